package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/medrag/internal/pipeline"
)

type clinicalOptions struct {
	req    pipeline.ClinicalRequest
	watch  bool
	asJSON bool
}

func newClinicalCmd(g *globalOptions) *cobra.Command {
	opts := &clinicalOptions{}

	cmd := &cobra.Command{
		Use:   "clinical",
		Short: "Answer a question from a single clinical note or EHR record",
		Long: `Answer a question using only chunks retrieved from one clinical note.

Supported inputs: .txt, .md, .pdf and EHR .json files, or s3://bucket/key.

Examples:
  # Plain-text note
  medrag clinical --note visit.txt --query "Why was the patient given antibiotics?"

  # EHR record, redacting PHI before indexing
  medrag clinical --note patient.json --query "What medications?" --deidentify

  # Re-run whenever the note changes
  medrag clinical --note visit.txt --query "Current plan?" --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runClinical(cmd, g, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.req.NotePath, "note", "", "path or s3:// URI of the clinical note")
	f.StringVar(&opts.req.Query, "query", "", "question to answer")
	f.IntVar(&opts.req.TopK, "top_k", 0, "number of chunks to retrieve (default 3)")
	f.IntVar(&opts.req.MaxTokens, "max_tokens", 0, "approximate tokens per chunk (default 300)")
	f.BoolVar(&opts.req.Rerank, "rerank", false, "reorder retrieved chunks by term overlap")
	f.BoolVar(&opts.req.Deidentify, "deidentify", false, "redact PHI before indexing")
	f.BoolVar(&opts.watch, "watch", false, "re-run when the note file changes")
	f.BoolVar(&opts.asJSON, "json", false, "print the result as JSON")

	return cmd
}

func runClinical(cmd *cobra.Command, g *globalOptions, opts *clinicalOptions) error {
	ctx := cmd.Context()
	req := opts.req
	req.ApplyDefaults(g.cfg.Pipeline)
	if err := req.Validate(); err != nil {
		return err
	}
	if opts.watch && isS3(req.NotePath) {
		return fmt.Errorf("%w: --watch needs a local note", pipeline.ErrInvalidRequest)
	}

	a, err := newApp(ctx, g.cfg, g.logger, appOptions{s3: isS3(req.NotePath), events: true})
	if err != nil {
		return err
	}
	defer a.Close()

	ask := func(ctx context.Context) error {
		res, err := a.pipeline.Clinical(ctx, req)
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), res, opts.asJSON)
	}

	if err := ask(ctx); err != nil {
		return err
	}
	if !opts.watch {
		return nil
	}

	w, err := newNoteWatcher(req.NotePath, 250*time.Millisecond)
	if err != nil {
		return err
	}
	defer w.Close()

	g.logger.Info(ctx, "watching note for changes", zap.String("note", req.NotePath))
	return w.Run(ctx, func(ctx context.Context) error {
		fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("--- note changed, re-running ---"))
		if err := ask(ctx); err != nil {
			// Keep watching through transient failures; the note may be mid-edit.
			if errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		}
		return nil
	})
}
