package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded crawl runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if a.cfg.DB.DSN == "" {
				return errors.New("db.dsn is not configured; the run ledger is disabled")
			}
			l, err := a.deps.newLedger(cmd.Context(), a.cfg.DB)
			if err != nil {
				return err
			}
			defer l.Close()

			runs, err := l.ListRuns(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATE\tQUERY\tSAVED\tERRORS\tRETRIES\tSTARTED\tFINISHED")
			for _, r := range runs {
				finished := "-"
				if r.FinishedAt != nil {
					finished = r.FinishedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
					r.ID, r.State, r.Query, r.ArticlesSaved, r.Errors, r.Retries,
					r.StartedAt.Format(time.RFC3339), finished)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "runs to skip")
	return cmd
}
