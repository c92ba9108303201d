package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"srq20.org/internal/session"
)

func newLoginCmd(a *app) *cobra.Command {
	var username string
	var passwordStdin bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := bufio.NewReader(a.stdin)
			if username == "" {
				var err error
				if username, err = prompt(in, a.stderr, "Username: "); err != nil {
					return err
				}
			}
			label := "Password: "
			if passwordStdin {
				label = ""
			}
			password, err := prompt(in, a.stderr, label)
			if err != nil {
				return err
			}
			if err := a.session.Login(cmd.Context(), username, password); err != nil {
				return err
			}
			name := username
			if p := a.session.CurrentUser(); p != nil {
				name = p.DisplayName()
			}
			fmt.Fprintf(a.stdout, "Logged in as %s.\n", name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin without prompting")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "Logged out.")
			return nil
		},
	}
}

func newRegisterCmd(a *app) *cobra.Command {
	var reg session.Registration
	var passwordStdin bool
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := bufio.NewReader(a.stdin)
			first, confirm := "Password: ", "Confirm password: "
			if passwordStdin {
				first, confirm = "", ""
			}
			var err error
			if reg.Password, err = prompt(in, a.stderr, first); err != nil {
				return err
			}
			if reg.Password2, err = prompt(in, a.stderr, confirm); err != nil {
				return err
			}
			if err := a.session.Register(cmd.Context(), reg); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Account %s created. Log in with `srq20 login -u %s`.\n", reg.Username, reg.Username)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&reg.Username, "username", "", "account username")
	f.StringVar(&reg.Email, "email", "", "email address")
	f.StringVar(&reg.FirstName, "first-name", "", "first name")
	f.StringVar(&reg.LastName, "last-name", "", "last name")
	f.StringVar(&reg.Gender, "gender", "", "gender code (optional)")
	f.StringVar(&reg.BirthDate, "birth-date", "", "birth date as YYYY-MM-DD (optional)")
	f.BoolVar(&passwordStdin, "password-stdin", false, "read password and confirmation as two lines from stdin")
	return cmd
}

func newWhoamiCmd(a *app) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := a.session.CurrentUser()
			if refresh || p == nil {
				var err error
				if p, err = a.session.FetchUserInfo(cmd.Context()); err != nil {
					return err
				}
			}
			fmt.Fprintf(a.stdout, "%s <%s>\n", p.DisplayName(), p.Email)
			fmt.Fprintf(a.stdout, "username: %s\n", p.Username)
			if p.IsStaff {
				fmt.Fprintln(a.stdout, "role: staff")
			}
			if exp, ok := a.session.AccessTokenExpiry(); ok {
				fmt.Fprintf(a.stdout, "token expires: %s\n", exp.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "reload the profile from the server")
	return requireAuth(cmd)
}

// prompt writes label (when not empty) and reads one line from in.
func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	if label != "" {
		fmt.Fprint(out, label)
	}
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", errors.New("unexpected end of input")
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
