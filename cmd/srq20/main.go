// Command srq20 is the command-line front end of the SRQ-20 self-screening
// client: one subcommand per screen of the web application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"srq20.org/internal/apiclient"
	"srq20.org/internal/config"
	"srq20.org/internal/obs"
	"srq20.org/internal/questionnaire"
	"srq20.org/internal/reports"
	"srq20.org/internal/results"
	"srq20.org/internal/session"
	"srq20.org/internal/storage"
	"srq20.org/internal/validate"
)

var (
	version = "dev"
	commit  = "none"
)

const (
	annotationAuth = "srq20/auth"
	annotationBare = "srq20/bare"
)

// app is the per-invocation wiring shared by every subcommand.
type app struct {
	configPath string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	// indicator overrides the terminal busy indicator.
	indicator apiclient.Indicator

	cfg     *config.Config
	store   storage.Store
	client  *apiclient.Client
	session *session.Manager
	results *results.Store
	engine  *questionnaire.Engine
	reports *reports.Service
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	err := run(ctx, a, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintln(a.stderr, "srq20: "+describeError(err))
		os.Exit(1)
	}
}

// run executes one command line and releases the app's resources whatever the outcome.
func run(ctx context.Context, a *app, args []string) error {
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "srq20",
		Short:         "SRQ-20 mental health self-screening client",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version + " (" + commit + ")",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[annotationBare] == "true" {
				return nil
			}
			if err := a.init(cmd.Context()); err != nil {
				return err
			}
			if cmd.Annotations[annotationAuth] == "true" {
				return a.session.RequireAuth()
			}
			return nil
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default "+config.DefaultPath()+")")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newRegisterCmd(a),
		newWhoamiCmd(a),
		newQuestionnaireCmd(a),
		newResultCmd(a),
		newHistoryCmd(a),
		newStatsCmd(a),
		newExportCmd(a),
		newConfigCmd(a),
		newStateCmd(a),
	)
	return root
}

func requireAuth(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[annotationAuth] = "true"
	return cmd
}

func (a *app) init(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if _, err := obs.InitLogger(obs.LogConfig{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	obs.Init()
	obs.InitBuildInfo(version, commit)

	a.store, err = storage.Open(ctx, cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}

	indicator := a.indicator
	if indicator == nil {
		indicator = newTerminalIndicator(a.stderr)
	}
	a.client, err = apiclient.New(apiclient.Config{
		BaseURL:       cfg.APIURL,
		Timeout:       cfg.RequestTimeout,
		RatePerSecond: cfg.RateLimit.RPS,
		Burst:         cfg.RateLimit.Burst,
		Indicator:     indicator,
	})
	if err != nil {
		return err
	}

	policy := validate.PasswordLength
	if cfg.Password.Policy == "strong" {
		policy = validate.PasswordStrong
	}
	a.session, err = session.New(ctx, a.store, a.client, session.WithPasswordPolicy(policy))
	if err != nil {
		return err
	}
	a.results = results.New(a.store)
	a.engine = questionnaire.New(a.client, a.results)
	a.reports = reports.New(a.client, a.session)
	return nil
}

func (a *app) close() error {
	if a.cfg == nil {
		return nil
	}
	if a.client != nil {
		a.client.Close()
	}
	var err error
	if a.store != nil {
		err = a.store.Close()
	}
	if path := a.cfg.Metrics.Textfile; path != "" {
		if werr := obs.WriteTextfile(path); werr != nil {
			obs.Logger().Warn("write metrics textfile", zap.Error(werr))
		}
	}
	_ = obs.Logger().Sync()
	a.cfg, a.client, a.store = nil, nil, nil
	return err
}

// describeError turns an error into the one-line notice shown to the user.
func describeError(err error) string {
	var (
		incomplete *questionnaire.IncompleteError
		authErr    *session.AuthError
		fieldErr   *session.FieldErrors
		formatErr  *reports.FormatError
		apiErr     *apiclient.APIError
	)
	switch {
	case errors.Is(err, apiclient.ErrUnauthorized):
		return "your session has expired, log in again with `srq20 login`"
	case errors.Is(err, session.ErrNotAuthenticated):
		return "you are not logged in, run `srq20 login` first"
	case errors.Is(err, reports.ErrPermissionDenied):
		return "this report is only available to staff accounts"
	case errors.Is(err, results.ErrNoResult):
		return "no result yet, take the questionnaire with `srq20 questionnaire`"
	case errors.Is(err, questionnaire.ErrSubmissionInFlight):
		return "a submission is already in progress"
	case errors.As(err, &incomplete):
		return fmt.Sprintf("please answer all questions (%d unanswered)", len(incomplete.Missing))
	case errors.As(err, &authErr):
		return "login failed: " + authErr.Error()
	case errors.As(err, &fieldErr):
		return "registration failed: " + fieldErr.Error()
	case errors.As(err, &formatErr):
		return formatErr.Error()
	case errors.As(err, &apiErr):
		return apiErr.Error()
	default:
		return err.Error()
	}
}
