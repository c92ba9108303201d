package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"srq20.org/internal/questionnaire"
)

func newQuestionnaireCmd(a *app) *cobra.Command {
	var answers string
	cmd := &cobra.Command{
		Use:   "questionnaire",
		Short: "Answer the SRQ-20 questions and submit them",
		Long: `Loads the twenty yes/no questions, asks each one and submits the answers.
Use --answers to pass all answers at once, in display order, e.g.
--answers yes,no,no,...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			qs, err := a.engine.LoadQuestions(cmd.Context())
			if err != nil {
				return err
			}
			if answers != "" {
				err = recordAnswerList(a.engine, qs, answers)
			} else {
				err = askAnswers(a.engine, qs, bufio.NewReader(a.stdin), a.stderr)
			}
			if err != nil {
				return err
			}
			res, err := a.engine.Submit(cmd.Context())
			if err != nil {
				return err
			}
			printResult(a.stdout, res, time.Time{})
			return nil
		},
	}
	cmd.Flags().StringVar(&answers, "answers", "", "comma separated yes/no answers in display order")
	return requireAuth(cmd)
}

func recordAnswerList(e *questionnaire.Engine, qs []questionnaire.Question, list string) error {
	parts := strings.Split(list, ",")
	if len(parts) != len(qs) {
		return fmt.Errorf("--answers has %d values, expected %d", len(parts), len(qs))
	}
	for i, part := range parts {
		v, ok := parseAnswer(part)
		if !ok {
			return fmt.Errorf("--answers value %d: %q is not yes or no", i+1, part)
		}
		if err := e.RecordAnswer(qs[i].ID, v); err != nil {
			return err
		}
	}
	return nil
}

func askAnswers(e *questionnaire.Engine, qs []questionnaire.Question, in *bufio.Reader, out io.Writer) error {
	for i, q := range qs {
		for {
			line, err := prompt(in, out, fmt.Sprintf("%2d/%d %s [y/n] ", i+1, len(qs), q.Text))
			if err != nil {
				return err
			}
			v, ok := parseAnswer(line)
			if !ok {
				fmt.Fprintln(out, "please answer y or n")
				continue
			}
			if err := e.RecordAnswer(q.ID, v); err != nil {
				return err
			}
			break
		}
	}
	return nil
}

func parseAnswer(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "s", "sim", "1", "true":
		return true, true
	case "n", "no", "nao", "não", "0", "false":
		return false, true
	}
	return false, false
}

func newResultCmd(a *app) *cobra.Command {
	return requireAuth(&cobra.Command{
		Use:   "result",
		Short: "Show the result of the last submission",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := a.results.Load(cmd.Context())
			if err != nil {
				return err
			}
			printResult(a.stdout, snap.Result, snap.SavedAt)
			return nil
		},
	})
}

func newHistoryCmd(a *app) *cobra.Command {
	var page string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past assessments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hp, err := a.engine.LoadHistory(cmd.Context(), page)
			if err != nil {
				return err
			}
			if len(hp.Items) == 0 {
				fmt.Fprintln(a.stdout, "No assessments yet.")
				return nil
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDATE\tSCORE\tLEVEL")
			for _, it := range hp.Items {
				fmt.Fprintf(tw, "%d\t%s\t%d/20\t%s\n", it.ID, it.EvaluatedAt.Local().Format("2006-01-02 15:04"), it.Score, it.Band.Label())
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%d assessment(s) in total.\n", hp.Count)
			if hp.NextPage != "" {
				fmt.Fprintf(a.stdout, "More: srq20 history --page %s\n", hp.NextPage)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&page, "page", "", "page number")
	return requireAuth(cmd)
}

func printResult(w io.Writer, res *questionnaire.Result, savedAt time.Time) {
	as := res.Assessment
	fmt.Fprintf(w, "Score: %d/20\n", as.Score)
	fmt.Fprintf(w, "Level: %s\n", as.Band.Label())
	if !as.EvaluatedAt.IsZero() {
		fmt.Fprintf(w, "Evaluated: %s\n", as.EvaluatedAt.Local().Format("2006-01-02 15:04"))
	}
	if !savedAt.IsZero() {
		fmt.Fprintf(w, "Saved: %s\n", savedAt.Local().Format("2006-01-02 15:04"))
	}
	if len(res.Activities) > 0 {
		fmt.Fprintln(w, "Suggested activities:")
		for _, act := range res.Activities {
			fmt.Fprintf(w, "  - %s\n", act.Description)
		}
	}
	if as.Band == questionnaire.BandModerate || as.Band == questionnaire.BandSevere {
		fmt.Fprintln(w, "Consider talking to a mental health professional.")
	}
}
