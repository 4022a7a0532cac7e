// Package http exposes the clinical and literature pipelines over JSON.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

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

// Server provides HTTP endpoints for medrag.
type Server struct {
	echo     *echo.Echo
	runner   Runner
	redactor deid.Redactor
	logger   *logging.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// Defaults fill zero request parameters.
	Defaults config.PipelineConfig
	// Meter records request metrics; nil uses the global provider.
	Meter metric.Meter
	// Redactor enables POST /api/v1/deidentify when set.
	Redactor deid.Redactor
}

// NewServer creates a new HTTP server.
func NewServer(runner Runner, logger *logging.Logger, cfg *Config) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 9191, Defaults: config.Default().Pipeline}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	metrics := NewHTTPMetrics(cfg.Meter, logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	})

	s := &Server{
		echo:     e,
		runner:   runner,
		redactor: cfg.Redactor,
		logger:   logger.Named("http"),
		config:   cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/clinical/ask", s.handleClinical)
	v1.POST("/literature/ask", s.handleLiterature)
	if s.redactor != nil {
		v1.POST("/deidentify", s.handleDeidentify)
	}
}

// Handler returns the router, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleClinical(c echo.Context) error {
	var req pipeline.ClinicalRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", pipeline.ErrInvalidRequest)
	}
	req.ApplyDefaults(s.config.Defaults)

	res, err := s.runner.Clinical(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pipeline.NewResponse(res))
}

func (s *Server) handleLiterature(c echo.Context) error {
	var req pipeline.LiteratureRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", pipeline.ErrInvalidRequest)
	}
	req.ApplyDefaults(s.config.Defaults)

	res, err := s.runner.Literature(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pipeline.NewResponse(res))
}

func (s *Server) handleDeidentify(c echo.Context) error {
	var req DeidentifyRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", pipeline.ErrInvalidRequest)
	}
	if req.Text == "" {
		return fmt.Errorf("%w: text field is required", pipeline.ErrInvalidRequest)
	}

	result := s.redactor.Redact(req.Text)
	s.logger.Debug(c.Request().Context(), "de-identified text", zap.Int("findings", len(result.Findings)))

	return c.JSON(http.StatusOK, DeidentifyResponse{
		Text:          result.Text,
		FindingsCount: len(result.Findings),
		ByRule:        result.ByRule,
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
