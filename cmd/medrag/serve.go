package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httpserver "github.com/fyrsmithlabs/medrag/internal/http"
)

func newServeCmd(g *globalOptions) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the pipelines over HTTP:

  GET  /health
  GET  /metrics
  POST /api/v1/clinical/ask
  POST /api/v1/literature/ask
  POST /api/v1/deidentify

Local note paths must lie under pipeline.notes_dir (default: the working
directory). Run events are published to NATS when nats.url is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := g.cfg
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			// /metrics is only useful with the Prometheus reader installed.
			cfg.Observability.Prometheus = true

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, g.logger, appOptions{s3: true, events: true, confine: true})
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := httpserver.NewServer(a.pipeline, g.logger, &httpserver.Config{
				Host:     cfg.Server.Host,
				Port:     cfg.Server.Port,
				Defaults: cfg.Pipeline,
				Meter:    a.tel.Meter(instrumentationName),
				Redactor: a.redactor,
			})
			if err != nil {
				return fmt.Errorf("failed to create http server: %w", err)
			}

			g.logger.Info(ctx, "starting medrag",
				zap.String("version", version),
				zap.Int("port", cfg.Server.Port),
				zap.Bool("nats", a.nc != nil),
			)

			eg, egCtx := errgroup.WithContext(ctx)
			eg.Go(srv.Start)
			eg.Go(func() error {
				<-egCtx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return eg.Wait()
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	return cmd
}
