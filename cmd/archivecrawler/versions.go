package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newVersionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions <base-id>",
		Short: "List the stored versions of an article, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			articles, err := a.openArchive()
			if err != nil {
				return err
			}
			versions, err := articles.ListVersions(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(versions) == 0 {
				fmt.Fprintf(out, "No versions found for %s\n", args[0])
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tMETHOD\tLANGUAGE\tWORDS\tCREATED\tPATH")
			for _, v := range versions {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					v.ID, v.CorrectionMethod, v.Language, v.WordCount, v.CreatedAt.Format(time.RFC3339), v.Path)
			}
			return tw.Flush()
		},
	}
}
