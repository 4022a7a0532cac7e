package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/medrag/internal/apierr"
	"github.com/fyrsmithlabs/medrag/internal/config"
	"github.com/fyrsmithlabs/medrag/internal/logging"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates the provider returned an unusable response.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Embedder converts text to vectors. Documents and queries are embedded
// separately because some models use different prefixes or task types.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Provider is an Embedder with a known dimension and releasable resources.
type Provider interface {
	Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string
	Dimension int
	// CacheDir is the model cache directory (fastembed only).
	CacheDir  string
	BatchSize int
	// Region is the AWS region (bedrock only).
	Region string
}

// FromConfig builds a ProviderConfig from application configuration.
func FromConfig(cfg config.EmbeddingsConfig, awsRegion string) ProviderConfig {
	return ProviderConfig{
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey.Value(),
		Dimension: cfg.Dimension,
		CacheDir:  cfg.CacheDir,
		BatchSize: cfg.BatchSize,
		Region:    awsRegion,
	}
}

// defaults per provider: model name and vector dimension.
var providerDefaults = map[string]struct {
	model     string
	dimension int
}{
	"googleai":  {"embedding-001", 768},
	"openai":    {"text-embedding-3-small", 1536},
	"ollama":    {"nomic-embed-text", 768},
	"bedrock":   {"amazon.titan-embed-text-v2:0", 1024},
	"tei":       {"BAAI/bge-small-en-v1.5", 384},
	"fastembed": {"BAAI/bge-small-en-v1.5", 384},
	"hashing":   {"hashing", DefaultHashingDimension},
}

func (c *ProviderConfig) applyDefaults() {
	d, ok := providerDefaults[c.Provider]
	if !ok {
		return
	}
	if c.Model == "" {
		c.Model = d.model
	}
	if c.Dimension <= 0 {
		c.Dimension = detectDimensionFromModel(c.Provider, c.Model, d.dimension)
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
}

// detectDimensionFromModel returns the embedding dimension for a model name,
// falling back to the provider default.
func detectDimensionFromModel(provider, model string, fallback int) int {
	if dim, ok := fastEmbedModelDimension(model); ok {
		return dim
	}
	switch provider {
	case "openai":
		if strings.Contains(model, "3-large") {
			return 3072
		}
	case "bedrock":
		if model == "amazon.titan-embed-text-v1" {
			return 1536
		}
	case "tei", "ollama":
		switch {
		case strings.Contains(model, "large"):
			return 1024
		case strings.Contains(model, "base"):
			return 768
		case strings.Contains(model, "small"), strings.Contains(model, "mini"):
			return 384
		}
	}
	return fallback
}

// NewProvider creates an embedding provider based on the configuration. The
// returned provider validates input, classifies failures and records
// metrics.
func NewProvider(ctx context.Context, cfg ProviderConfig, metrics *Metrics, logger *logging.Logger) (Provider, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = logging.NewNop()
	}

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "googleai":
		p, err = newGoogleAIProvider(ctx, cfg)
	case "openai":
		p, err = newOpenAIProvider(cfg)
	case "ollama":
		p, err = newOllamaProvider(cfg)
	case "bedrock":
		p, err = newBedrockProvider(ctx, cfg)
	case "tei":
		p, err = NewTEIProvider(TEIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			Dimension: cfg.Dimension,
			BatchSize: cfg.BatchSize,
		})
	case "fastembed":
		p, err = NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "hashing":
		p = NewHashingProvider(cfg.Dimension)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s embedder: %w", cfg.Provider, err)
	}

	logger.Debug(ctx, "embedding provider ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("dimension", p.Dimension()),
	)
	return Instrument(p, cfg.Provider, cfg.Model, metrics), nil
}

// Instrument wraps p with input validation, error classification and
// metrics. A nil metrics records nothing.
func Instrument(p Provider, name, model string, metrics *Metrics) Provider {
	return &instrumented{Provider: p, name: name, model: model, metrics: metrics}
}

type instrumented struct {
	Provider
	name    string
	model   string
	metrics *Metrics
}

func (i *instrumented) EmbedDocuments(ctx context.Context, texts []string) (vectors [][]float32, err error) {
	start := time.Now()
	defer func() {
		i.metrics.RecordGeneration(ctx, i.name, i.model, "embed_documents", time.Since(start), len(texts), err)
	}()

	if err := validateTexts(texts); err != nil {
		return nil, err
	}
	vectors, err = i.Provider.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, apierr.Classify(i.name, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts", ErrEmbeddingFailed, i.name, len(vectors), len(texts))
	}
	return vectors, nil
}

func (i *instrumented) EmbedQuery(ctx context.Context, text string) (vector []float32, err error) {
	start := time.Now()
	defer func() {
		i.metrics.RecordGeneration(ctx, i.name, i.model, "embed_query", time.Since(start), 1, err)
	}()

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrEmptyInput)
	}
	vector, err = i.Provider.EmbedQuery(ctx, text)
	if err != nil {
		return nil, apierr.Classify(i.name, err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: %s returned an empty vector", ErrEmbeddingFailed, i.name)
	}
	return vector, nil
}

func validateTexts(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("%w: text %d is blank", ErrEmptyInput, i)
		}
	}
	return nil
}

// batches splits texts into consecutive slices of at most size elements.
func batches(texts []string, size int) [][]string {
	if size <= 0 {
		size = len(texts)
	}
	out := make([][]string, 0, (len(texts)+size-1)/size)
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		out = append(out, texts[start:end])
	}
	return out
}
