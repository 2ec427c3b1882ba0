package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/newsarchive-crawler/internal/archive"
	"github.com/JakeFAU/newsarchive-crawler/internal/correction"
)

func newRecorrectCmd() *cobra.Command {
	var method, lang string
	cmd := &cobra.Command{
		Use:   "recorrect <base-id>",
		Short: "Create a new version of an article from its raw capture",
		Long: `Re-runs text correction on the immutable raw capture of an article and
stores the result as a new, timestamped version. Earlier versions and the raw
capture are left untouched; the canonical record points at the new version.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if method == "" {
				method = a.cfg.Correction.Method
			}
			if lang == "" {
				lang = a.cfg.Correction.Language
			}
			corrector, err := correction.FromConfig(a.cfg.Correction, a.logger.Named("correction")).Get(method)
			if err != nil {
				return err
			}
			articles, err := a.openArchive()
			if err != nil {
				return err
			}
			raw, err := articles.RawText(args[0])
			if err != nil {
				return err
			}
			res := correction.Apply(cmd.Context(), corrector, raw, lang, a.logger)
			saved, err := articles.Recorrect(cmd.Context(), args[0], archive.Correction{
				Text:      res.Text,
				Method:    res.Method,
				Language:  res.Language,
				Corrected: res.Corrected,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Version saved to: %s\n", saved.VersionPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&method, "correction", "", "correction method (defaults to correction.method)")
	cmd.Flags().StringVar(&lang, "language", "", "article language (defaults to correction.language)")
	return cmd
}
