package embeddings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/fyrsmithlabs/medrag/internal/apierr"
)

// openAIProvider calls the OpenAI embeddings endpoint, or any compatible
// server when BaseURL is set.
type openAIProvider struct {
	client    openai.Client
	model     string
	dimension int
	batchSize int
	// sendDimensions is set when the caller asked for a reduced dimension.
	sendDimensions bool
}

func newOpenAIProvider(cfg ProviderConfig) (*openAIProvider, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: openai requires an API key (OPENAI_API_KEY)", ErrInvalidConfig)
	}
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}

	return &openAIProvider{
		client:         openai.NewClient(opts...),
		model:          cfg.Model,
		dimension:      cfg.Dimension,
		batchSize:      cfg.BatchSize,
		sendDimensions: cfg.Dimension != detectDimensionFromModel("openai", cfg.Model, 1536),
	}, nil
}

func (p *openAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, batch := range batches(texts, p.batchSize) {
		vectors, err := p.embed(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (p *openAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
	}
	return vectors[0], nil
}

func (p *openAIProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(p.model),
	}
	if p.sendDimensions {
		params.Dimensions = openai.Int(int64(p.dimension))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, classifyOpenAI(err)
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func classifyOpenAI(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apierr.WithStatus("openai", apiErr.StatusCode, err)
	}
	return apierr.Classify("openai", err)
}

func (p *openAIProvider) Dimension() int {
	return p.dimension
}

func (p *openAIProvider) Close() error {
	return nil
}
