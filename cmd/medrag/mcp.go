package main

import (
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/medrag/internal/mcp"
)

func newMCPCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run an MCP server on stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout exposing the tools
clinical_ask, literature_ask and deidentify. Local note paths must lie under
pipeline.notes_dir (default: the working directory). Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), g.cfg, g.logger, appOptions{s3: true, events: true, confine: true})
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := mcp.NewServer(&mcp.Config{
				Name:     "medrag",
				Version:  version,
				Logger:   g.logger,
				Defaults: g.cfg.Pipeline,
				Redactor: a.redactor,
				Meter:    a.tel.Meter(instrumentationName),
			}, a.pipeline)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
}
