package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/medrag/internal/pipeline"
	"github.com/fyrsmithlabs/medrag/internal/tui"
)

func newChatCmd(g *globalOptions) *cobra.Command {
	var base pipeline.ClinicalRequest

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive questions over one clinical note",
		Long: `Open a terminal chat over a single note. Each question runs the full clinical
pipeline, so edits to the note are picked up on the next question.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			base.ApplyDefaults(g.cfg.Pipeline)
			// Validate everything but the query, which comes from the prompt.
			check := base
			check.Query = "?"
			if err := check.Validate(); err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), g.cfg, g.logger, appOptions{s3: isS3(base.NotePath)})
			if err != nil {
				return err
			}
			defer a.Close()

			return tui.Run(cmd.Context(), tui.Config{
				NotePath: base.NotePath,
				Timeout:  g.cfg.Generation.Timeout.Duration() * 2,
				Ask: func(ctx context.Context, query string) (*pipeline.Result, error) {
					req := base
					req.Query = query
					return a.pipeline.Clinical(ctx, req)
				},
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&base.NotePath, "note", "", "path or s3:// URI of the clinical note")
	f.IntVar(&base.TopK, "top_k", 0, "number of chunks to retrieve (default 3)")
	f.IntVar(&base.MaxTokens, "max_tokens", 0, "approximate tokens per chunk (default 300)")
	f.BoolVar(&base.Rerank, "rerank", false, "reorder retrieved chunks by term overlap")
	f.BoolVar(&base.Deidentify, "deidentify", false, "redact PHI before indexing")

	return cmd
}
