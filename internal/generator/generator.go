// Package generator turns a question and its retrieved context into an
// answer with one call to a text-generation API.
//
// Providers are selected by name (googleai, openai, ollama, bedrock). New
// wraps the provider so rate-limited calls are retried with a constant wait;
// every other failure is returned immediately, classified into the
// apierr sentinels.
package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/medrag/internal/config"
	"github.com/fyrsmithlabs/medrag/internal/logging"
)

var (
	// ErrInvalidConfig indicates the generator could not be configured.
	ErrInvalidConfig = errors.New("invalid generator configuration")
	// ErrEmptyResponse indicates the provider returned no text.
	ErrEmptyResponse = errors.New("empty response from generator")
)

// Generator produces an answer from a query and its context passages.
type Generator interface {
	Generate(ctx context.Context, query string, contexts []string) (string, error)
}

// Func adapts a function to the Generator interface.
type Func func(ctx context.Context, query string, contexts []string) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, query string, contexts []string) (string, error) {
	return f(ctx, query, contexts)
}

// completer sends a rendered prompt to a model.
type completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// promptGenerator renders the prompt and hands it to a completer.
type promptGenerator struct {
	completer completer
}

func (g *promptGenerator) Generate(ctx context.Context, query string, contexts []string) (string, error) {
	return g.completer.Complete(ctx, BuildPrompt(query, contexts))
}

// Config configures a generator.
type Config struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxAttempts int
	RetryWait   time.Duration
	Timeout     time.Duration
	Region      string
}

// FromConfig converts the application generation section.
func FromConfig(cfg config.GenerationConfig, awsRegion string) Config {
	return Config{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey.Value(),
		Temperature: cfg.Temperature,
		MaxAttempts: cfg.MaxAttempts,
		RetryWait:   cfg.RetryWait.Duration(),
		Timeout:     cfg.Timeout.Duration(),
		Region:      awsRegion,
	}
}

var defaultModels = map[string]string{
	"googleai": "gemini-1.5-pro",
	"openai":   "gpt-4o-mini",
	"ollama":   "llama3.1",
	"bedrock":  "anthropic.claude-3-haiku-20240307-v1:0",
}

func applyDefaults(cfg *Config) {
	if cfg.Provider == "" {
		cfg.Provider = "googleai"
	}
	if cfg.Model == "" {
		cfg.Model = defaultModels[cfg.Provider]
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 60 * time.Second
	}
}

// New creates the configured generator wrapped with the rate-limit retry.
func New(ctx context.Context, cfg Config, logger *logging.Logger) (Generator, error) {
	applyDefaults(&cfg)
	if logger == nil {
		logger = logging.NewNop()
	}

	var (
		c   completer
		err error
	)
	switch cfg.Provider {
	case "googleai":
		c, err = newGoogleAICompleter(ctx, cfg)
	case "ollama":
		c, err = newOllamaCompleter(cfg)
	case "openai":
		c, err = newOpenAICompleter(cfg)
	case "bedrock":
		c, err = newBedrockCompleter(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s generator: %w", cfg.Provider, err)
	}

	logger.Debug(ctx, "generator initialized",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("max_attempts", cfg.MaxAttempts),
	)

	return NewRetrying(&promptGenerator{completer: c}, RetryConfig{
		MaxAttempts: cfg.MaxAttempts,
		Wait:        cfg.RetryWait,
		Timeout:     cfg.Timeout,
	}, logger), nil
}
