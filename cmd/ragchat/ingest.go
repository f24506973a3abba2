package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/upb/rag-chat/config"
)

func newIngestCmd(root *rootOptions) *cobra.Command {
	var (
		pattern     string
		printChunks bool
		keywords    bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Split, embed and store documents",
		Long: `Reads every file matching the pattern (a directory, a glob or a
"**" pattern), splits it into overlapping chunks, embeds the chunks and
writes them to the configured vector store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := bootstrap(cmd, root, func(cfg *config.Config) {
				if pattern != "" {
					cfg.Ingest.Pattern = pattern
				}
				if cmd.Flags().Changed("print") {
					cfg.Ingest.PrintDocuments = printChunks
				}
				if cmd.Flags().Changed("keywords") {
					cfg.Ingest.Keywords = keywords
				}
			})
			if err != nil {
				return err
			}
			defer deps.Close(context.Background())

			report, err := deps.Ingest.Run(cmd.Context())
			if err != nil {
				return err
			}

			total, err := deps.VectorStore.Count(cmd.Context())
			if err != nil {
				return err
			}
			cmd.PrintErrf("Ingested %d documents as %d chunks in %s (%d chunks stored)\n",
				report.Documents, report.Chunks, report.Duration.Round(time.Millisecond), total)
			return nil
		},
	}

	cmd.Flags().StringVarP(&pattern, "pattern", "p", "", "documents to ingest, defaults to INGEST_PATTERN")
	cmd.Flags().BoolVar(&printChunks, "print", false, "print the chunks as JSON (INGEST_PRINT_DOCUMENTS)")
	cmd.Flags().BoolVar(&keywords, "keywords", false, "ask the chat model for keywords per chunk (INGEST_KEYWORDS)")
	return cmd
}
