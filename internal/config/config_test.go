package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("ENTREZ_EMAIL", "")
	t.Setenv("AWS_REGION", "")

	cfg := Default()

	assert.Equal(t, 3, cfg.Pipeline.TopK)
	assert.Equal(t, 300, cfg.Pipeline.MaxTokens)
	assert.Equal(t, 10, cfg.Pipeline.MaxResults)
	assert.False(t, cfg.Pipeline.Rerank)
	assert.Equal(t, "googleai", cfg.Embeddings.Provider)
	assert.Equal(t, "googleai", cfg.Generation.Provider)
	assert.Equal(t, 3, cfg.Generation.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.Generation.RetryWait.Duration())
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, 6334, cfg.VectorStore.Qdrant.Port)
	assert.Equal(t, "https://eutils.ncbi.nlm.nih.gov/entrez/eutils", cfg.PubMed.BaseURL)
	assert.Equal(t, "us-east-1", cfg.AWS.Region)
	assert.Equal(t, "us-east-1", cfg.S3.Region)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "medrag", cfg.NATS.SubjectPrefix)
	assert.Equal(t, "grpc", cfg.Observability.Protocol)
	require.NoError(t, cfg.Validate())
}

func TestDefault_APIKeyFromEnvironment(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		provider string
		want     string
	}{
		{
			name:     "gemini key preferred",
			env:      map[string]string{"GEMINI_API_KEY": "gem", "GOOGLE_API_KEY": "goog"},
			provider: "googleai",
			want:     "gem",
		},
		{
			name:     "google key fallback",
			env:      map[string]string{"GEMINI_API_KEY": "", "GOOGLE_API_KEY": "goog"},
			provider: "googleai",
			want:     "goog",
		},
		{
			name:     "openai key",
			env:      map[string]string{"OPENAI_API_KEY": "sk-test"},
			provider: "openai",
			want:     "sk-test",
		},
		{
			name:     "ollama has no key",
			env:      map[string]string{"OPENAI_API_KEY": "sk-test"},
			provider: "ollama",
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg := &Config{}
			cfg.Generation.Provider = tt.provider
			applyDefaults(cfg)
			assert.Equal(t, tt.want, cfg.Generation.APIKey.Value())
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero top_k",
			mutate:  func(c *Config) { c.Pipeline.TopK = 0 },
			wantErr: "pipeline.top_k",
		},
		{
			name:    "negative max_tokens",
			mutate:  func(c *Config) { c.Pipeline.MaxTokens = -1 },
			wantErr: "pipeline.max_tokens",
		},
		{
			name:    "unknown embeddings provider",
			mutate:  func(c *Config) { c.Embeddings.Provider = "word2vec" },
			wantErr: "embeddings.provider",
		},
		{
			name:    "unknown generation provider",
			mutate:  func(c *Config) { c.Generation.Provider = "hashing" },
			wantErr: "generation.provider",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.Generation.MaxAttempts = 0 },
			wantErr: "generation.max_attempts",
		},
		{
			name: "qdrant without host",
			mutate: func(c *Config) {
				c.VectorStore.Provider = "qdrant"
				c.VectorStore.Qdrant.Host = ""
			},
			wantErr: "vectorstore.qdrant.host",
		},
		{
			name:    "server port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.http_port",
		},
		{
			name:    "bad otlp protocol",
			mutate:  func(c *Config) { c.Observability.Protocol = "udp" },
			wantErr: "observability.protocol",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.TopK = 0
	cfg.Pipeline.MaxResults = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.top_k")
	assert.Contains(t, err.Error(), "pipeline.max_results")
}

func TestSecret_NeverPrinted(t *testing.T) {
	s := Secret("AIzaSyD-super-secret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "AIzaSyD-super-secret", s.Value())

	out, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{Key: s})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "super-secret")

	assert.Equal(t, "", Secret("").String())
	assert.False(t, Secret("").IsSet())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
