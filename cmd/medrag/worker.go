package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/medrag/internal/pipeline"
	"github.com/fyrsmithlabs/medrag/internal/worker"
)

func newWorkerCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Answer pipeline requests from NATS",
		Long: `Join the NATS queue group and answer JSON requests on
<prefix>.ask.clinical and <prefix>.ask.literature. Requires nats.url. Local
note paths must lie under pipeline.notes_dir (default: the working directory).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if g.cfg.NATS.URL == "" {
				return fmt.Errorf("%w: nats.url is required for the worker", pipeline.ErrInvalidRequest)
			}

			a, err := newApp(cmd.Context(), g.cfg, g.logger, appOptions{s3: true, events: true, nats: true, confine: true})
			if err != nil {
				return err
			}
			defer a.Close()

			w := worker.New(a.nc, a.pipeline, worker.Config{
				SubjectPrefix: g.cfg.NATS.SubjectPrefix,
				QueueGroup:    g.cfg.NATS.QueueGroup,
				Defaults:      g.cfg.Pipeline,
				Timeout:       g.cfg.Generation.Timeout.Duration() * 2,
			}, g.logger)
			return w.Run(cmd.Context())
		},
	}
}
