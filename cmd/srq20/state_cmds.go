package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"srq20.org/internal/storage"
)

func newStateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the local client state",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the state store backend and applied schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(a.stdout, "dsn: %s\n", a.cfg.Storage.DSN)
			fmt.Fprintf(a.stdout, "authenticated: %t\n", a.session.IsAuthenticated())
			sqlStore, ok := a.store.(*storage.SQLStore)
			if !ok {
				fmt.Fprintln(a.stdout, "migrations: n/a")
				return nil
			}
			applied, err := sqlStore.Migrations().Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "migrations:")
			for _, name := range applied {
				fmt.Fprintf(a.stdout, "  %s\n", name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Forget the session and the cached result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.session.Logout(cmd.Context()); err != nil {
				return err
			}
			if err := a.results.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "Local state cleared.")
			return nil
		},
	})
	return cmd
}
