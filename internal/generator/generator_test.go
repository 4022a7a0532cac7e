package generator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/medrag/internal/config"
)

func TestApplyDefaults(t *testing.T) {
	tests := []struct {
		name      string
		in        Config
		wantModel string
	}{
		{"empty uses googleai", Config{}, "gemini-1.5-pro"},
		{"openai", Config{Provider: "openai"}, "gpt-4o-mini"},
		{"ollama", Config{Provider: "ollama"}, "llama3.1"},
		{"explicit model kept", Config{Provider: "openai", Model: "gpt-4o"}, "gpt-4o"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.in
			applyDefaults(&cfg)
			assert.Equal(t, tt.wantModel, cfg.Model)
			assert.Equal(t, 3, cfg.MaxAttempts)
			assert.Equal(t, 60*time.Second, cfg.RetryWait)
		})
	}
}

func TestFromConfig(t *testing.T) {
	app := config.Default()
	app.Generation.APIKey = config.Secret("k")
	app.Generation.Temperature = 0.2

	cfg := FromConfig(app.Generation, "eu-west-1")
	assert.Equal(t, "googleai", cfg.Provider)
	assert.Equal(t, "k", cfg.APIKey)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.RetryWait)
	assert.Equal(t, 0.2, cfg.Temperature)
	assert.Equal(t, "eu-west-1", cfg.Region)
}

func TestNew_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, Config{Provider: "watson"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(ctx, Config{Provider: "googleai"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(ctx, Config{Provider: "openai"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNew_OllamaWrapsRetry(t *testing.T) {
	g, err := New(context.Background(), Config{Provider: "ollama", BaseURL: "http://127.0.0.1:1"}, nil)
	require.NoError(t, err)

	r, ok := g.(*Retrying)
	require.True(t, ok)
	assert.Equal(t, 3, r.cfg.MaxAttempts)
}

func TestPromptGenerator(t *testing.T) {
	var seen string
	g := &promptGenerator{completer: completerFunc(func(_ context.Context, prompt string) (string, error) {
		seen = prompt
		return "done", nil
	})}

	got, err := g.Generate(context.Background(), "q", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, BuildPrompt("q", []string{"a", "b"}), seen)
}

type completerFunc func(ctx context.Context, prompt string) (string, error)

func (f completerFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
