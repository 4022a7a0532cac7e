package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/medrag/internal/config"
	"github.com/fyrsmithlabs/medrag/internal/deid"
	"github.com/fyrsmithlabs/medrag/internal/embeddings"
	"github.com/fyrsmithlabs/medrag/internal/events"
	"github.com/fyrsmithlabs/medrag/internal/generator"
	"github.com/fyrsmithlabs/medrag/internal/loader"
	"github.com/fyrsmithlabs/medrag/internal/logging"
	"github.com/fyrsmithlabs/medrag/internal/pipeline"
	"github.com/fyrsmithlabs/medrag/internal/pubmed"
	"github.com/fyrsmithlabs/medrag/internal/telemetry"
	"github.com/fyrsmithlabs/medrag/internal/vectorstore"
)

const instrumentationName = "github.com/fyrsmithlabs/medrag"

// app holds the wired collaborators of one process.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	tel      *telemetry.Telemetry
	pipeline *pipeline.Pipeline
	redactor deid.Redactor
	nc       *nats.Conn

	closers []func() error
}

// appOptions select optional wiring.
type appOptions struct {
	// s3 wires the S3 object fetcher into the loader.
	s3 bool
	// events publishes run events when NATS is configured.
	events bool
	// nats connects even without events, for the worker.
	nats bool
	// confine restricts local note paths to the notes directory. Set for
	// surfaces that take paths from remote callers.
	confine bool
}

// newApp builds the pipeline and its dependencies from configuration.
//
// Initialization order:
//  1. Telemetry (tracer, meter, optional Prometheus reader)
//  2. NATS connection when requested and configured
//  3. Loader, embeddings, index provider, generator, PubMed client
//  4. De-identifier
//  5. Pipeline
func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger, opts appOptions) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Observability, version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.tel = tel
	a.closers = append(a.closers, func() error { return tel.Shutdown(context.Background()) })
	if tel.IsDegraded() {
		logger.Warn(ctx, "telemetry degraded", zap.Error(tel.DegradedReason()))
	}
	meter := tel.Meter(instrumentationName)

	var publisher events.Publisher = events.Noop{}
	if (opts.events || opts.nats) && cfg.NATS.URL != "" {
		nc, err := events.Connect(cfg.NATS.URL, "medrag")
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		a.nc = nc
		a.closers = append(a.closers, func() error {
			nc.Close()
			return nil
		})
		if opts.events {
			publisher = events.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix, logger)
		}
		logger.Info(ctx, "connected to NATS", zap.String("url", nc.ConnectedUrl()))
	}

	var loaderOpts []loader.Option
	if opts.confine {
		root, err := notesRoot(cfg.Pipeline)
		if err != nil {
			return nil, err
		}
		loaderOpts = append(loaderOpts, loader.WithRoot(root))
		logger.Info(ctx, "note paths confined", zap.String("notes_dir", root))
	}
	if opts.s3 {
		fetcher, err := loader.NewS3Fetcher(ctx, loader.S3Config{
			Region:         cfg.S3.Region,
			Endpoint:       cfg.S3.Endpoint,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3: %w", err)
		}
		loaderOpts = append(loaderOpts, loader.WithObjectFetcher(fetcher))
	}

	embedder, err := embeddings.NewProvider(ctx,
		embeddings.FromConfig(cfg.Embeddings, cfg.AWS.Region),
		embeddings.NewMetrics(meter, logger),
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embeddings: %w", err)
	}
	a.closers = append(a.closers, embedder.Close)

	indexes, err := vectorstore.NewProvider(cfg.VectorStore, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	a.closers = append(a.closers, indexes.Close)

	gen, err := generator.New(ctx, generator.FromConfig(cfg.Generation, cfg.AWS.Region), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}

	pm := pubmed.New(pubmed.Config{
		BaseURL: cfg.PubMed.BaseURL,
		Email:   cfg.PubMed.Email,
		Tool:    cfg.PubMed.Tool,
		APIKey:  cfg.PubMed.APIKey.Value(),
		Timeout: cfg.PubMed.Timeout.Duration(),
	}, logger)

	redactor, err := newRedactor(cfg.Deid)
	if err != nil {
		return nil, err
	}
	a.redactor = redactor

	p, err := pipeline.New(pipeline.Deps{
		Loader:    loader.New(loaderOpts...),
		PubMed:    pm,
		Embedder:  embedder,
		Indexes:   indexes,
		Generator: gen,
		Redactor:  redactor,
		Events:    publisher,
		Tracer:    tel.Tracer(instrumentationName),
		Meter:     meter,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	a.pipeline = p

	logger.Debug(ctx, "pipeline ready",
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.String("generation", cfg.Generation.Provider),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.Bool("events", a.nc != nil && opts.events),
	)
	return a, nil
}

// newRedactor builds the de-identifier from the deid config section.
func newRedactor(cfg config.DeidConfig) (*deid.Deidentifier, error) {
	dcfg := deid.DefaultConfig()
	dcfg.Credentials = !cfg.SkipCredentials
	if cfg.RulesFile != "" {
		if err := deid.LoadFile(dcfg, cfg.RulesFile); err != nil {
			return nil, fmt.Errorf("%w: %v", pipeline.ErrInvalidRequest, err)
		}
	}
	d, err := deid.New(dcfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrInvalidRequest, err)
	}
	return d, nil
}

// notesRoot returns the absolute notes directory, defaulting to the working
// directory.
func notesRoot(cfg config.PipelineConfig) (string, error) {
	dir := cfg.NotesDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: pipeline.notes_dir: %v", pipeline.ErrInvalidRequest, err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: pipeline.notes_dir %s is not a directory", pipeline.ErrInvalidRequest, abs)
	}
	return abs, nil
}

// Close releases resources in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// isS3 reports whether source names an S3 object.
func isS3(source string) bool {
	return strings.HasPrefix(source, "s3://")
}
