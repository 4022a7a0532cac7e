package embeddings

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// bedrockInvoker is the subset of the Bedrock runtime client used here.
type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// bedrockProvider embeds with Amazon Titan text embedding models. Titan
// accepts one input per call.
type bedrockProvider struct {
	client    bedrockInvoker
	model     string
	dimension int
}

type titanEmbeddingRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
	Normalize  bool   `json:"normalize,omitempty"`
}

type titanEmbeddingResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

func newBedrockProvider(ctx context.Context, cfg ProviderConfig) (*bedrockProvider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &bedrockProvider{
		client:    bedrockruntime.NewFromConfig(awsCfg),
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}, nil
}

func (p *bedrockProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

func (p *bedrockProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, text)
}

func (p *bedrockProvider) embed(ctx context.Context, text string) ([]float32, error) {
	req := titanEmbeddingRequest{InputText: text}
	// Only Titan v2 accepts dimensions and normalize.
	if p.model != "amazon.titan-embed-text-v1" {
		req.Dimensions = p.dimension
		req.Normalize = true
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, err
	}

	var titanResp titanEmbeddingResponse
	if err := json.Unmarshal(resp.Body, &titanResp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", ErrEmbeddingFailed, err)
	}
	return titanResp.Embedding, nil
}

func (p *bedrockProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op; the AWS SDK needs no explicit cleanup.
func (p *bedrockProvider) Close() error {
	return nil
}
