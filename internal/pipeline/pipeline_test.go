package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/medrag/internal/apierr"
	"github.com/fyrsmithlabs/medrag/internal/config"
	"github.com/fyrsmithlabs/medrag/internal/deid"
	"github.com/fyrsmithlabs/medrag/internal/embeddings"
	"github.com/fyrsmithlabs/medrag/internal/events"
	"github.com/fyrsmithlabs/medrag/internal/generator"
	"github.com/fyrsmithlabs/medrag/internal/loader"
	"github.com/fyrsmithlabs/medrag/internal/logging"
	"github.com/fyrsmithlabs/medrag/internal/pubmed"
	"github.com/fyrsmithlabs/medrag/internal/telemetry"
	"github.com/fyrsmithlabs/medrag/internal/vectorstore"
)

const antibioticsQuery = "Why was the patient given antibiotics?"

// countingEmbedder wraps the hashing embedder and counts calls.
type countingEmbedder struct {
	*embeddings.HashingProvider
	mu        sync.Mutex
	documents int
	queries   int
	err       error
}

func newCountingEmbedder() *countingEmbedder {
	return &countingEmbedder{HashingProvider: embeddings.NewHashingProvider(4096)}
}

func (e *countingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.documents++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return e.HashingProvider.EmbedDocuments(ctx, texts)
}

func (e *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.queries++
	e.mu.Unlock()
	return e.HashingProvider.EmbedQuery(ctx, text)
}

func (e *countingEmbedder) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.documents + e.queries
}

// echoGenerator answers with the context it was given.
type echoGenerator struct {
	mu       sync.Mutex
	calls    int
	contexts []string
	err      error
}

func (g *echoGenerator) Generate(_ context.Context, _ string, contexts []string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.contexts = contexts
	if g.err != nil {
		return "", g.err
	}
	return strings.Join(contexts, "\n"), nil
}

// recordingPublisher captures run events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) kinds() []events.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Kind, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Kind
	}
	return out
}

// fakeSearcher returns fixed abstracts.
type fakeSearcher struct {
	abstracts []string
	err       error
}

func (f *fakeSearcher) Search(_ context.Context, _ string, maxResults int, opts ...pubmed.SearchOption) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.abstracts) > maxResults {
		return f.abstracts[:maxResults], nil
	}
	return f.abstracts, nil
}

type fixture struct {
	pipeline  *Pipeline
	embedder  *countingEmbedder
	generator *echoGenerator
	events    *recordingPublisher
	telemetry *telemetry.TestTelemetry
	logger    *logging.TestLogger
	searcher  *fakeSearcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		embedder:  newCountingEmbedder(),
		generator: &echoGenerator{},
		events:    &recordingPublisher{},
		telemetry: telemetry.NewTestTelemetry(),
		logger:    logging.NewTestLogger(),
		searcher:  &fakeSearcher{},
	}
	p, err := New(Deps{
		Loader:    loader.New(),
		PubMed:    f.searcher,
		Embedder:  f.embedder,
		Indexes:   &vectorstore.ChromemProvider{},
		Generator: f.generator,
		Events:    f.events,
		Tracer:    f.telemetry.Tracer("test"),
		Meter:     f.telemetry.Meter("test"),
		Logger:    f.logger.Logger,
	})
	require.NoError(t, err)
	f.pipeline = p
	return f
}

func clinicalRequest(path string, topK int) ClinicalRequest {
	return ClinicalRequest{NotePath: path, Query: antibioticsQuery, TopK: topK, MaxTokens: 30}
}

func TestClinical_RetrievesPlanSection(t *testing.T) {
	f := newFixture(t)

	res, err := f.pipeline.Clinical(context.Background(), clinicalRequest("testdata/sample_note.txt", 3))
	require.NoError(t, err)

	assert.False(t, res.Empty)
	assert.Len(t, res.Hits, 3)
	assert.NotEmpty(t, res.RunID)

	joined := strings.Join(res.Contexts(), "\n")
	assert.Contains(t, joined, "Started empiric antibiotics with ceftriaxone and azithromycin")
	assert.Contains(t, res.Answer, "treat the pneumonia")
	assert.Equal(t, res.Contexts(), f.generator.contexts)
}

func TestClinical_TopKBounds(t *testing.T) {
	f := newFixture(t)

	res, err := f.pipeline.Clinical(context.Background(), clinicalRequest("testdata/sample_note.txt", 1))
	require.NoError(t, err)
	assert.Len(t, res.Hits, 1)

	res, err = f.pipeline.Clinical(context.Background(), clinicalRequest("testdata/sample_note.txt", 500))
	require.NoError(t, err)
	assert.Len(t, res.Hits, res.Chunks, "all chunks when top_k exceeds the count")
}

func TestClinical_DeterministicOrdering(t *testing.T) {
	f := newFixture(t)
	req := clinicalRequest("testdata/sample_note.txt", 4)

	first, err := f.pipeline.Clinical(context.Background(), req)
	require.NoError(t, err)
	second, err := f.pipeline.Clinical(context.Background(), req)
	require.NoError(t, err)

	ids := func(r *Result) []string {
		out := make([]string, len(r.Hits))
		for i, h := range r.Hits {
			out[i] = h.Chunk.ID
		}
		return out
	}
	assert.Equal(t, ids(first), ids(second))
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestClinical_EmptyNote(t *testing.T) {
	f := newFixture(t)

	res, err := f.pipeline.Clinical(context.Background(), clinicalRequest("testdata/empty_note.txt", 3))
	require.NoError(t, err)

	assert.True(t, res.Empty)
	assert.Equal(t, "No content found in the clinical note.", res.Answer)
	assert.Empty(t, res.Hits)
	assert.Zero(t, f.embedder.calls())
	assert.Zero(t, f.generator.calls)
	assert.Equal(t, []events.Kind{events.KindStarted, events.KindLoaded, events.KindCompleted}, f.events.kinds())
}

func TestClinical_MalformedRecordNeverEmbedded(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Clinical(context.Background(), clinicalRequest("testdata/malformed_ehr.json", 3))
	require.Error(t, err)
	assert.ErrorIs(t, err, loader.ErrMalformedRecord)
	assert.Zero(t, f.embedder.calls())
	assert.Zero(t, f.generator.calls)
	assert.Equal(t, []events.Kind{events.KindStarted, events.KindFailed}, f.events.kinds())
}

func TestClinical_LoaderErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Clinical(context.Background(), clinicalRequest("testdata/missing.txt", 3))
	assert.ErrorIs(t, err, loader.ErrNotFound)

	_, err = f.pipeline.Clinical(context.Background(), clinicalRequest("main_test.go", 3))
	assert.ErrorIs(t, err, loader.ErrUnsupportedFormat)
}

func TestClinical_StructuredRecord(t *testing.T) {
	f := newFixture(t)
	req := ClinicalRequest{NotePath: "testdata/sample_ehr.json", Query: "What medications is she taking?", TopK: 10, MaxTokens: 300}

	res, err := f.pipeline.Clinical(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)
	assert.Contains(t, res.Answer, "Metformin 500 MG Oral Tablet")
}

func TestClinical_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  ClinicalRequest
	}{
		{"zero top_k", ClinicalRequest{NotePath: "n.txt", Query: "q", TopK: 0, MaxTokens: 10}},
		{"negative max_tokens", ClinicalRequest{NotePath: "n.txt", Query: "q", TopK: 1, MaxTokens: -1}},
		{"blank query", ClinicalRequest{NotePath: "n.txt", Query: "  ", TopK: 1, MaxTokens: 10}},
		{"missing note", ClinicalRequest{Query: "q", TopK: 1, MaxTokens: 10}},
		{"deidentify without redactor", ClinicalRequest{NotePath: "n.txt", Query: "q", TopK: 1, MaxTokens: 10, Deidentify: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.pipeline.Clinical(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
	assert.Zero(t, f.embedder.calls())
	assert.Empty(t, f.events.kinds())
}

func TestClinical_ProviderErrorsPropagate(t *testing.T) {
	f := newFixture(t)
	f.generator.err = apierr.FromStatus("googleai", 401, "API key not valid")

	_, err := f.pipeline.Clinical(context.Background(), clinicalRequest("testdata/sample_note.txt", 3))
	require.Error(t, err)
	assert.ErrorIs(t, err, apierr.ErrAuthentication)
	assert.Contains(t, err.Error(), "generate answer")

	f.generator.err = nil
	f.embedder.err = apierr.FromStatus("googleai", 429, "quota")
	_, err = f.pipeline.Clinical(context.Background(), clinicalRequest("testdata/sample_note.txt", 3))
	assert.ErrorIs(t, err, apierr.ErrRateLimited)
	assert.Contains(t, err.Error(), "embed chunks")
}

func TestClinical_Deidentify(t *testing.T) {
	f := newFixture(t)
	cfg := deid.DefaultConfig()
	cfg.Credentials = false
	redactor, err := deid.New(cfg)
	require.NoError(t, err)
	f.pipeline.deps.Redactor = redactor

	req := clinicalRequest("testdata/sample_note.txt", 50)
	req.Deidentify = true
	res, err := f.pipeline.Clinical(context.Background(), req)
	require.NoError(t, err)

	assert.NotContains(t, res.Answer, "John Smith")
	assert.Contains(t, res.Answer, "Patient: [REDACTED]")
}

func TestClinical_Rerank(t *testing.T) {
	f := newFixture(t)
	req := clinicalRequest("testdata/sample_note.txt", 3)
	req.Rerank = true

	res, err := f.pipeline.Clinical(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Hits, 3)
	assert.Contains(t, res.Hits[0].Chunk.Text, "antibiotics")
	f.telemetry.AssertSpanExists(t, "pipeline.rerank")
}

func TestClinical_SpansEventsAndMetrics(t *testing.T) {
	f := newFixture(t)

	res, err := f.pipeline.Clinical(context.Background(), clinicalRequest("testdata/sample_note.txt", 3))
	require.NoError(t, err)

	for _, name := range []string{
		"pipeline.clinical", "pipeline.load", "pipeline.chunk", "pipeline.embed_documents",
		"pipeline.build_index", "pipeline.retrieve", "pipeline.generate",
	} {
		f.telemetry.AssertSpanExists(t, name)
	}
	f.telemetry.AssertSpanAttribute(t, "pipeline.clinical", "run.id", res.RunID)

	assert.Equal(t, []events.Kind{
		events.KindStarted, events.KindLoaded, events.KindEmbedded, events.KindRetrieved, events.KindCompleted,
	}, f.events.kinds())
	for _, ev := range f.events.events {
		assert.Equal(t, res.RunID, ev.RunID)
		assert.Equal(t, "clinical", ev.Pipeline)
	}

	rm, err := f.telemetry.Collect(context.Background())
	require.NoError(t, err)
	runs, ok := telemetry.FindMetric(rm, "medrag.pipeline.runs")
	require.True(t, ok)
	assert.Equal(t, int64(1), telemetry.SumInt64(runs))
	assert.True(t, telemetry.HasAttribute(runs, "outcome", "success"))

	f.logger.AssertLogged(t, zapcore.InfoLevel, "generating answer")
}

func TestClinical_Canceled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline.Clinical(ctx, clinicalRequest("testdata/sample_note.txt", 3))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.generator.calls)
}

// cancelAfterLoad cancels the run right after the note is read.
type cancelAfterLoad struct {
	*loader.Loader
	cancel context.CancelFunc
}

func (l *cancelAfterLoad) Load(ctx context.Context, source string) (*loader.Document, error) {
	doc, err := l.Loader.Load(ctx, source)
	l.cancel()
	return doc, err
}

func TestClinical_CanceledAfterLoad(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.pipeline.deps.Loader = &cancelAfterLoad{Loader: loader.New(), cancel: cancel}

	res, err := f.pipeline.Clinical(ctx, clinicalRequest("testdata/sample_note.txt", 3))
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
	assert.Zero(t, f.embedder.calls())
	assert.Zero(t, f.generator.calls)
}

func TestLiterature(t *testing.T) {
	f := newFixture(t)
	f.searcher.abstracts = []string{
		"1. Ceftriaxone plus azithromycin for community-acquired pneumonia in adults.",
		"2. Inhaled corticosteroids in stable COPD.",
		"3. Metformin and cardiovascular outcomes.",
	}

	res, err := f.pipeline.Literature(context.Background(), LiteratureRequest{
		Query: "antibiotics for pneumonia", TopK: 2, MaxResults: 10, Email: "a@b.org",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Chunks)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "pubmed-0", res.Hits[0].Chunk.ID)
	assert.Contains(t, res.Answer, "Ceftriaxone")

	f.logger.AssertLogged(t, zapcore.InfoLevel, "searching PubMed")
	f.telemetry.AssertSpanExists(t, "pipeline.search")
}

func TestLiterature_NoAbstracts(t *testing.T) {
	f := newFixture(t)

	res, err := f.pipeline.Literature(context.Background(), LiteratureRequest{Query: "q", TopK: 3, MaxResults: 5, Email: "a@b.org"})
	require.NoError(t, err)
	assert.True(t, res.Empty)
	assert.Equal(t, "No relevant literature found on PubMed.", res.Answer)
	assert.Zero(t, f.embedder.calls())
	assert.Zero(t, f.generator.calls)
}

func TestLiterature_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Literature(context.Background(), LiteratureRequest{Query: "q", TopK: 3, MaxResults: 0})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	f.searcher.err = pubmed.ErrEmailRequired
	_, err = f.pipeline.Literature(context.Background(), LiteratureRequest{Query: "q", TopK: 3, MaxResults: 5})
	assert.ErrorIs(t, err, pubmed.ErrEmailRequired)
}

func TestAbstractChunks(t *testing.T) {
	chunks := abstractChunks([]string{"ab", "cde"})
	require.Len(t, chunks, 2)
	assert.Equal(t, loader.Chunk{ID: "pubmed-1", Index: 1, Text: "cde", Start: 4, End: 7, Source: "pubmed"}, chunks[1])
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)

	_, err = New(Deps{Loader: loader.New(), Embedder: newCountingEmbedder(), Indexes: &vectorstore.ChromemProvider{}})
	assert.Error(t, err)

	p, err := New(Deps{
		Loader:    loader.New(),
		Embedder:  newCountingEmbedder(),
		Indexes:   &vectorstore.ChromemProvider{},
		Generator: generator.Func(func(context.Context, string, []string) (string, error) { return "", errors.New("x") }),
	})
	require.NoError(t, err)
	assert.NotNil(t, p.deps.Reranker)
}

func TestRequest_ApplyDefaults(t *testing.T) {
	cfg := config.Default().Pipeline
	req := ClinicalRequest{NotePath: "n.txt", Query: "q"}
	req.ApplyDefaults(cfg)
	assert.Equal(t, 3, req.TopK)
	assert.Equal(t, 300, req.MaxTokens)
	assert.NoError(t, req.Validate())

	lit := LiteratureRequest{Query: "q", TopK: 5}
	lit.ApplyDefaults(cfg)
	assert.Equal(t, 5, lit.TopK)
	assert.Equal(t, 10, lit.MaxResults)
}
