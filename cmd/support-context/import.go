package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <path>",
		Short: "Import a corpus file or directory into storage",
		Long: `Import articles, FAQs and session documents from JSON or YAML corpus
files. A directory imports every corpus file directly inside it, in name
order. With memory storage nothing outlives the command, which makes this a
validation run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, func(ctx context.Context, a *app) error {
				if a.cfg.Storage.Type == "memory" {
					a.log.Warn("Storage is in memory; the import is only validated")
				}
				stats, err := a.importCorpus(ctx, args[0])
				if err != nil {
					return err
				}
				return printOutput(cmd, stats, func(w io.Writer) {
					fmt.Fprintf(w, "Imported %d files: %d articles, %d faqs, %d documents\n",
						stats.Files, stats.Articles, stats.FAQs, stats.Documents)
				})
			})
		},
	}
}
