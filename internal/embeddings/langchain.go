package embeddings

import (
	"context"
	"fmt"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
)

// langchainProvider adapts a langchaingo embedder. langchaingo batches
// documents itself.
type langchainProvider struct {
	embedder  lcembeddings.Embedder
	dimension int
}

func newGoogleAIProvider(ctx context.Context, cfg ProviderConfig) (*langchainProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: googleai requires an API key (GEMINI_API_KEY or GOOGLE_API_KEY)", ErrInvalidConfig)
	}
	client, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, err
	}
	return newLangchainProvider(client, cfg)
}

func newOllamaProvider(cfg ProviderConfig) (*langchainProvider, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	client, err := ollama.New(opts...)
	if err != nil {
		return nil, err
	}
	return newLangchainProvider(client, cfg)
}

func newLangchainProvider(client lcembeddings.EmbedderClient, cfg ProviderConfig) (*langchainProvider, error) {
	embedder, err := lcembeddings.NewEmbedder(client,
		lcembeddings.WithBatchSize(cfg.BatchSize),
		lcembeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, err
	}
	return &langchainProvider{embedder: embedder, dimension: cfg.Dimension}, nil
}

func (p *langchainProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embedder.EmbedDocuments(ctx, texts)
}

func (p *langchainProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.embedder.EmbedQuery(ctx, text)
}

func (p *langchainProvider) Dimension() int {
	return p.dimension
}

func (p *langchainProvider) Close() error {
	return nil
}
