package mcp

import (
	"context"
	"fmt"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/medrag/internal/config"
	"github.com/fyrsmithlabs/medrag/internal/deid"
	"github.com/fyrsmithlabs/medrag/internal/loader"
	"github.com/fyrsmithlabs/medrag/internal/pipeline"
	"github.com/fyrsmithlabs/medrag/internal/vectorstore"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Clinical(ctx context.Context, req pipeline.ClinicalRequest) (*pipeline.Result, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*pipeline.Result)
	return res, args.Error(1)
}

func (m *mockRunner) Literature(ctx context.Context, req pipeline.LiteratureRequest) (*pipeline.Result, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*pipeline.Result)
	return res, args.Error(1)
}

// connect starts s on an in-memory transport and returns a client session.
func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := s.mcp.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(nil, nil)
	assert.ErrorContains(t, err, "runner is required")

	s, err := NewServer(nil, &mockRunner{})
	require.NoError(t, err)
	assert.NotNil(t, s.mcp)
}

func TestListTools(t *testing.T) {
	t.Run("without redactor", func(t *testing.T) {
		s, err := NewServer(nil, &mockRunner{})
		require.NoError(t, err)

		res, err := connect(t, s).ListTools(context.Background(), nil)
		require.NoError(t, err)

		var names []string
		for _, tool := range res.Tools {
			names = append(names, tool.Name)
		}
		assert.ElementsMatch(t, []string{"clinical_ask", "literature_ask"}, names)
	})

	t.Run("with redactor", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Redactor = deid.Noop{}
		s, err := NewServer(cfg, &mockRunner{})
		require.NoError(t, err)

		res, err := connect(t, s).ListTools(context.Background(), nil)
		require.NoError(t, err)
		assert.Len(t, res.Tools, 3)
	})
}

func TestClinicalAsk(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Clinical", mock.Anything, pipeline.ClinicalRequest{
		NotePath: "note.txt", Query: "Why antibiotics?", TopK: 3, MaxTokens: 300, Rerank: true,
	}).Return(&pipeline.Result{
		RunID:  "run-1",
		Answer: "Community-acquired pneumonia.",
		Chunks: 4,
		Hits: []vectorstore.Hit{
			{Chunk: loader.Chunk{ID: "note-3", Index: 3, Text: "Plan: ceftriaxone"}, Score: 0.5},
		},
	}, nil)

	s, err := NewServer(&Config{Defaults: config.Default().Pipeline}, runner)
	require.NoError(t, err)

	res, err := connect(t, s).CallTool(context.Background(), &mcp.CallToolParams{
		Name: "clinical_ask",
		Arguments: map[string]any{
			"note_path": "note.txt",
			"query":     "Why antibiotics?",
			"rerank":    true,
		},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	text := textOf(t, res)
	assert.Contains(t, text, "Community-acquired pneumonia.")
	assert.Contains(t, text, "note-3")
	runner.AssertExpectations(t)
}

func TestLiteratureAsk_ToolError(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Literature", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: query is required", pipeline.ErrInvalidRequest))

	s, err := NewServer(nil, runner)
	require.NoError(t, err)

	res, err := connect(t, s).CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "literature_ask",
		Arguments: map[string]any{"query": ""},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, textOf(t, res), "invalid_request")
}

func TestDeidentifyTool(t *testing.T) {
	dcfg := deid.DefaultConfig()
	dcfg.Credentials = false
	redactor, err := deid.New(dcfg)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Redactor = redactor
	s, err := NewServer(cfg, &mockRunner{})
	require.NoError(t, err)

	res, err := connect(t, s).CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "deidentify",
		Arguments: map[string]any{"text": "SSN 123-45-6789 on file"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, "SSN [REDACTED] on file", textOf(t, res))
}

func TestAnswerResult(t *testing.T) {
	res := answerResult(&pipeline.Response{Answer: "No relevant literature found on PubMed."})
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "No relevant literature found on PubMed.", text.Text)
}
