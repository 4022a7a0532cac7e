package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/medrag/internal/eval"
	"github.com/fyrsmithlabs/medrag/internal/pipeline"
)

func newEvalCmd(g *globalOptions) *cobra.Command {
	var (
		suitePath string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run a TOML question suite and check the answers",
		Long: `Run every case of a suite through the pipeline and check answers and
retrieved context against keyword expectations. Exits 1 if any case fails.

Example suite:

  name = "discharge notes"

  [defaults]
  top_k = 3

  [[cases]]
  name = "antibiotics"
  mode = "clinical"
  note = "notes/visit.txt"
  query = "Why was the patient given antibiotics?"
  expect_keywords = ["pneumonia"]`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if suitePath == "" {
				return fmt.Errorf("%w: --suite is required", pipeline.ErrInvalidRequest)
			}
			suite, err := eval.LoadSuite(suitePath)
			if err != nil {
				return fmt.Errorf("%w: %v", pipeline.ErrInvalidRequest, err)
			}

			a, err := newApp(cmd.Context(), g.cfg, g.logger, appOptions{s3: true})
			if err != nil {
				return err
			}
			defer a.Close()

			runner, err := eval.NewRunner(eval.RunnerConfig{
				Pipeline: a.pipeline,
				Defaults: g.cfg.Pipeline,
				Logger:   g.logger,
			})
			if err != nil {
				return err
			}

			report, err := runner.Run(cmd.Context(), suite)
			if err != nil {
				return err
			}
			if err := writeReport(cmd.OutOrStdout(), report, asJSON); err != nil {
				return err
			}
			if !report.OK() {
				return fmt.Errorf("%w: %d of %d cases failed", errSuiteFailed, report.Failed, len(report.Results))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&suitePath, "suite", "", "TOML suite file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
