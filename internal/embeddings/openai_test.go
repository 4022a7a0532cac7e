package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/medrag/internal/apierr"
)

func TestOpenAIProvider_EmbedDocuments(t *testing.T) {
	var model string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		model, _ = req["model"].(string)

		// Out of order on purpose; the provider sorts by index.
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0, 1]},
				{"object": "embedding", "index": 0, "embedding": [1, 0]}
			],
			"usage": {"prompt_tokens": 4, "total_tokens": 4}
		}`))
	}))
	defer srv.Close()

	cfg := ProviderConfig{Provider: "openai", APIKey: "sk-test", BaseURL: srv.URL}
	cfg.applyDefaults()
	p, err := newOpenAIProvider(cfg)
	require.NoError(t, err)

	vecs, err := p.EmbedDocuments(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
	assert.Equal(t, "text-embedding-3-small", model)
	assert.False(t, p.sendDimensions)
}

func TestOpenAIProvider_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer srv.Close()

	cfg := ProviderConfig{Provider: "openai", APIKey: "sk-bad", BaseURL: srv.URL}
	cfg.applyDefaults()
	p, err := newOpenAIProvider(cfg)
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, apierr.ErrAuthentication)
}

func TestOpenAIProvider_ReducedDimension(t *testing.T) {
	cfg := ProviderConfig{Provider: "openai", APIKey: "k", Dimension: 256}
	cfg.applyDefaults()
	p, err := newOpenAIProvider(cfg)
	require.NoError(t, err)
	assert.True(t, p.sendDimensions)
	assert.Equal(t, 256, p.Dimension())
}
