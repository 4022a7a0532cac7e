package embeddings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/medrag/internal/apierr"
	"github.com/fyrsmithlabs/medrag/internal/config"
	"github.com/fyrsmithlabs/medrag/internal/telemetry"
)

// stubProvider returns canned results and counts calls.
type stubProvider struct {
	vectors [][]float32
	err     error
	calls   int
}

func (s *stubProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	return s.vectors, s.err
}

func (s *stubProvider) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.vectors) == 0 {
		return nil, nil
	}
	return s.vectors[0], nil
}

func (s *stubProvider) Dimension() int { return 2 }
func (s *stubProvider) Close() error   { return nil }

func TestNewProvider_Unknown(t *testing.T) {
	_, err := NewProvider(context.Background(), ProviderConfig{Provider: "word2vec"}, nil, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewProvider_GoogleAIRequiresKey(t *testing.T) {
	_, err := NewProvider(context.Background(), ProviderConfig{Provider: "googleai"}, nil, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewProvider_OpenAIRequiresKeyOrURL(t *testing.T) {
	_, err := NewProvider(context.Background(), ProviderConfig{Provider: "openai"}, nil, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewProvider_Hashing(t *testing.T) {
	p, err := NewProvider(context.Background(), ProviderConfig{Provider: "hashing", Dimension: 64}, nil, nil)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 64, p.Dimension())
	vecs, err := p.EmbedDocuments(context.Background(), []string{"a note", "another note"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.EmbeddingsConfig{
		Provider:  "bedrock",
		APIKey:    config.Secret("k"),
		BatchSize: 10,
	}, "eu-west-1")
	assert.Equal(t, "bedrock", cfg.Provider)
	assert.Equal(t, "k", cfg.APIKey)
	assert.Equal(t, "eu-west-1", cfg.Region)

	cfg.applyDefaults()
	assert.Equal(t, "amazon.titan-embed-text-v2:0", cfg.Model)
	assert.Equal(t, 1024, cfg.Dimension)
}

func TestApplyDefaults_Dimensions(t *testing.T) {
	tests := []struct {
		provider string
		model    string
		want     int
	}{
		{"googleai", "", 768},
		{"openai", "", 1536},
		{"openai", "text-embedding-3-large", 3072},
		{"tei", "BAAI/bge-base-en-v1.5", 768},
		{"tei", "intfloat/e5-large", 1024},
		{"bedrock", "amazon.titan-embed-text-v1", 1536},
		{"hashing", "", DefaultHashingDimension},
	}
	for _, tt := range tests {
		t.Run(tt.provider+"/"+tt.model, func(t *testing.T) {
			cfg := ProviderConfig{Provider: tt.provider, Model: tt.model}
			cfg.applyDefaults()
			assert.Equal(t, tt.want, cfg.Dimension)
			assert.Equal(t, 100, cfg.BatchSize)
		})
	}
}

func TestInstrument_RejectsEmptyInput(t *testing.T) {
	stub := &stubProvider{}
	p := Instrument(stub, "stub", "m", nil)
	ctx := context.Background()

	_, err := p.EmbedDocuments(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = p.EmbedDocuments(ctx, []string{"ok", "  "})
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = p.EmbedQuery(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyInput)

	assert.Zero(t, stub.calls, "provider must not be called for empty input")
}

func TestInstrument_CountMismatch(t *testing.T) {
	p := Instrument(&stubProvider{vectors: [][]float32{{1, 0}}}, "stub", "m", nil)
	_, err := p.EmbedDocuments(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestInstrument_EmptyQueryVector(t *testing.T) {
	p := Instrument(&stubProvider{}, "stub", "m", nil)
	_, err := p.EmbedQuery(context.Background(), "q")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestInstrument_ClassifiesErrors(t *testing.T) {
	p := Instrument(&stubProvider{err: errors.New("googleapi: Error 429: Resource has been exhausted (e.g. check quota)")}, "googleai", "m", nil)
	_, err := p.EmbedDocuments(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, apierr.ErrRateLimited)

	p = Instrument(&stubProvider{err: errors.New("API key not valid. Please pass a valid API key.")}, "googleai", "m", nil)
	_, err = p.EmbedQuery(context.Background(), "q")
	assert.ErrorIs(t, err, apierr.ErrAuthentication)
}

func TestInstrument_RecordsMetrics(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	metrics := NewMetrics(tt.Meter("test"), nil)

	ok := Instrument(&stubProvider{vectors: [][]float32{{1, 0}, {0, 1}}}, "stub", "m", metrics)
	_, err := ok.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	failing := Instrument(&stubProvider{err: errors.New("boom")}, "stub", "m", metrics)
	_, err = failing.EmbedQuery(context.Background(), "q")
	require.Error(t, err)

	rm, err := tt.Collect(context.Background())
	require.NoError(t, err)

	_, found := telemetry.FindMetric(rm, "medrag.embedding.duration")
	assert.True(t, found)
	errs, found := telemetry.FindMetric(rm, "medrag.embedding.errors")
	require.True(t, found)
	assert.Equal(t, int64(1), telemetry.SumInt64(errs))
	assert.True(t, telemetry.HasAttribute(errs, "operation", "embed_query"))
}

func TestBatches(t *testing.T) {
	got := batches([]string{"a", "b", "c", "d", "e"}, 2)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, got)
	assert.Equal(t, [][]string{{"a"}}, batches([]string{"a"}, 0))
}
