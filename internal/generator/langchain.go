package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/fyrsmithlabs/medrag/internal/apierr"
)

// langchainCompleter sends a single prompt through a langchaingo model.
type langchainCompleter struct {
	provider    string
	model       llms.Model
	temperature float64
}

func newGoogleAICompleter(ctx context.Context, cfg Config) (*langchainCompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: googleai requires an API key (GEMINI_API_KEY or GOOGLE_API_KEY)", ErrInvalidConfig)
	}
	client, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultModel(cfg.Model),
	)
	if err != nil {
		return nil, err
	}
	return &langchainCompleter{provider: "googleai", model: client, temperature: cfg.Temperature}, nil
}

func newOllamaCompleter(cfg Config) (*langchainCompleter, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	client, err := ollama.New(opts...)
	if err != nil {
		return nil, err
	}
	return &langchainCompleter{provider: "ollama", model: client, temperature: cfg.Temperature}, nil
}

func (c *langchainCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	var opts []llms.CallOption
	if c.temperature > 0 {
		opts = append(opts, llms.WithTemperature(c.temperature))
	}
	out, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt, opts...)
	if err != nil {
		return "", apierr.Classify(c.provider, err)
	}
	if strings.TrimSpace(out) == "" {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(out), nil
}
