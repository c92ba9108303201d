package main

import (
	"bytes"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatsCmd(a *app) *cobra.Command {
	return requireAuth(&cobra.Command{
		Use:   "stats",
		Short: "Show assessment statistics (staff only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.reports.Statistics(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Assessments: %d\n", st.Total)
			if st.MeanScore != nil {
				fmt.Fprintf(a.stdout, "Mean score: %.2f\n", *st.MeanScore)
			} else {
				fmt.Fprintln(a.stdout, "Mean score: -")
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\nLEVEL\tTOTAL")
			for _, b := range st.ByBand {
				fmt.Fprintf(tw, "%s\t%d\n", b.Band.Label(), b.Total)
			}
			fmt.Fprintln(tw, "\nGENDER\tMEAN\tTOTAL")
			for _, g := range st.ByGender {
				gender := "unspecified"
				if g.Gender != nil && *g.Gender != "" {
					gender = *g.Gender
				}
				fmt.Fprintf(tw, "%s\t%.2f\t%d\n", gender, g.Mean, g.Total)
			}
			return tw.Flush()
		},
	})
}

func newExportCmd(a *app) *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every assessment as JSON or CSV (staff only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var buf bytes.Buffer
			if err := a.reports.Export(cmd.Context(), format, &buf); err != nil {
				return err
			}
			if output == "" {
				_, err := buf.WriteTo(a.stdout)
				return err
			}
			if err := os.WriteFile(output, buf.Bytes(), 0o600); err != nil {
				return err
			}
			fmt.Fprintf(a.stderr, "Export written to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "json or csv")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return requireAuth(cmd)
}
