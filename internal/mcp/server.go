package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric"

	"github.com/fyrsmithlabs/medrag/internal/config"
	"github.com/fyrsmithlabs/medrag/internal/deid"
	"github.com/fyrsmithlabs/medrag/internal/logging"
	"github.com/fyrsmithlabs/medrag/internal/pipeline"
)

// Runner executes pipeline runs.
type Runner interface {
	Clinical(ctx context.Context, req pipeline.ClinicalRequest) (*pipeline.Result, error)
	Literature(ctx context.Context, req pipeline.LiteratureRequest) (*pipeline.Result, error)
}

// Server is an MCP server backed by a pipeline Runner.
type Server struct {
	mcp      *mcp.Server
	runner   Runner
	redactor deid.Redactor
	defaults config.PipelineConfig
	metrics  *Metrics
	logger   *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "medrag")
	Name string

	// Version is the server version (default: "dev")
	Version string

	Logger *logging.Logger

	// Defaults fill zero tool arguments.
	Defaults config.PipelineConfig

	// Redactor enables the deidentify tool when set.
	Redactor deid.Redactor

	// Meter records tool metrics; nil uses the global provider.
	Meter metric.Meter
}

// DefaultConfig returns defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:     "medrag",
		Version:  "dev",
		Logger:   logging.NewNop(),
		Defaults: config.Default().Pipeline,
	}
}

// NewServer creates an MCP server and registers its tools.
func NewServer(cfg *Config, runner Runner) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "medrag"
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:      mcpServer,
		runner:   runner,
		redactor: cfg.Redactor,
		defaults: cfg.Defaults,
		metrics:  NewMetrics(cfg.Meter, cfg.Logger),
		logger:   cfg.Logger.Named("mcp"),
	}
	s.registerTools()

	return s, nil
}

// Run serves MCP on the stdio transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
