package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/medrag/internal/deid"
	"github.com/fyrsmithlabs/medrag/internal/embeddings"
	"github.com/fyrsmithlabs/medrag/internal/events"
	"github.com/fyrsmithlabs/medrag/internal/generator"
	"github.com/fyrsmithlabs/medrag/internal/loader"
	"github.com/fyrsmithlabs/medrag/internal/logging"
	"github.com/fyrsmithlabs/medrag/internal/pubmed"
	"github.com/fyrsmithlabs/medrag/internal/reranker"
	"github.com/fyrsmithlabs/medrag/internal/vectorstore"
)

const instrumentationName = "github.com/fyrsmithlabs/medrag/internal/pipeline"

// NoteLoader reads a clinical note.
type NoteLoader interface {
	Load(ctx context.Context, source string) (*loader.Document, error)
}

// LiteratureSearcher returns abstracts for a query.
type LiteratureSearcher interface {
	Search(ctx context.Context, query string, maxResults int, opts ...pubmed.SearchOption) ([]string, error)
}

// Deps are the collaborators of a Pipeline. Loader, Embedder, Indexes and
// Generator are required; the rest are optional.
type Deps struct {
	Loader    NoteLoader
	PubMed    LiteratureSearcher
	Embedder  embeddings.Embedder
	Indexes   vectorstore.Provider
	Generator generator.Generator

	// Reranker is used when a request sets Rerank. Defaults to the lexical reranker.
	Reranker reranker.Reranker
	// Redactor is used when a request sets Deidentify.
	Redactor deid.Redactor
	Events   events.Publisher

	Tracer trace.Tracer
	Meter  metric.Meter
	Logger *logging.Logger
}

// Pipeline runs clinical and literature question answering.
type Pipeline struct {
	deps    Deps
	tracer  trace.Tracer
	logger  *logging.Logger
	metrics *runMetrics
}

// New validates deps and creates a Pipeline.
func New(deps Deps) (*Pipeline, error) {
	switch {
	case deps.Loader == nil:
		return nil, errors.New("pipeline: loader is required")
	case deps.Embedder == nil:
		return nil, errors.New("pipeline: embedder is required")
	case deps.Indexes == nil:
		return nil, errors.New("pipeline: index provider is required")
	case deps.Generator == nil:
		return nil, errors.New("pipeline: generator is required")
	}

	if deps.Reranker == nil {
		deps.Reranker = reranker.NewLexicalReranker()
	}
	if deps.Events == nil {
		deps.Events = events.Noop{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}

	return &Pipeline{
		deps:    deps,
		tracer:  tracer,
		logger:  deps.Logger.Named("pipeline"),
		metrics: newRunMetrics(deps.Meter, deps.Logger),
	}, nil
}

// run carries per-invocation state.
type run struct {
	id       string
	pipeline string
	started  time.Time
}

func (p *Pipeline) startRun(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, *run) {
	r := &run{id: uuid.NewString(), pipeline: name, started: time.Now()}
	ctx = logging.WithRunID(ctx, r.id)
	attrs = append(attrs, attribute.String("run.id", r.id))
	ctx, span := p.tracer.Start(ctx, "pipeline."+name, trace.WithAttributes(attrs...))
	p.publish(ctx, r, events.Event{Kind: events.KindStarted})
	return ctx, span, r
}

// finish records the outcome of a run on its span, metrics and events.
func (p *Pipeline) finish(ctx context.Context, span trace.Span, r *run, res *Result, err error) {
	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.publish(ctx, r, events.Event{Kind: events.KindFailed, Error: err.Error()})
		p.logger.Warn(ctx, "run failed", zap.String("pipeline", r.pipeline), zap.Error(err))
	case res.Empty:
		outcome = "empty"
		p.publish(ctx, r, events.Event{Kind: events.KindCompleted, Message: res.Answer})
	default:
		p.publish(ctx, r, events.Event{Kind: events.KindCompleted, Chunks: res.Chunks, Hits: len(res.Hits)})
	}
	span.SetAttributes(attribute.String("run.outcome", outcome))
	p.metrics.record(ctx, r.pipeline, outcome, time.Since(r.started))
}

func (p *Pipeline) publish(ctx context.Context, r *run, ev events.Event) {
	ev.RunID = r.id
	ev.Pipeline = r.pipeline
	if err := p.deps.Events.Publish(ctx, ev); err != nil {
		p.logger.Warn(ctx, "failed to publish run event", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}

// stage runs fn inside a child span.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "pipeline."+name)
	defer span.End()
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Clinical answers a question about a clinical note.
func (p *Pipeline) Clinical(ctx context.Context, req ClinicalRequest) (res *Result, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Deidentify && p.deps.Redactor == nil {
		return nil, fmt.Errorf("%w: de-identification requested but not configured", ErrInvalidRequest)
	}

	ctx, span, r := p.startRun(ctx, "clinical",
		attribute.Int("request.top_k", req.TopK),
		attribute.Int("request.max_tokens", req.MaxTokens),
	)
	defer span.End()
	defer func() { p.finish(ctx, span, r, res, err) }()

	var doc *loader.Document
	if err := p.stage(ctx, "load", func(ctx context.Context) error {
		var lerr error
		doc, lerr = p.deps.Loader.Load(ctx, req.NotePath)
		return lerr
	}); err != nil {
		return nil, fmt.Errorf("load note: %w", err)
	}

	text := doc.Text
	if req.Deidentify {
		if err := p.stage(ctx, "deidentify", func(ctx context.Context) error {
			redacted := p.deps.Redactor.Redact(text)
			text = redacted.Text
			p.logger.Debug(ctx, "note de-identified", zap.Int("findings", len(redacted.Findings)))
			return nil
		}); err != nil {
			return nil, err
		}
	}

	var chunks []loader.Chunk
	if err := p.stage(ctx, "chunk", func(ctx context.Context) error {
		chunks = loader.ChunkText(loader.Clean(text), doc.Source, req.MaxTokens)
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("chunks", len(chunks)))
		return nil
	}); err != nil {
		return nil, err
	}
	p.publish(ctx, r, events.Event{Kind: events.KindLoaded, Chunks: len(chunks), Message: string(doc.Format)})
	p.logger.Info(ctx, "note loaded",
		zap.String("format", string(doc.Format)),
		zap.Int("chunks", len(chunks)),
	)

	if len(chunks) == 0 {
		return &Result{RunID: r.id, Answer: EmptyNoteAnswer, Hits: []vectorstore.Hit{}, Empty: true}, nil
	}

	return p.answer(ctx, r, req.Query, chunks, req.TopK, req.Rerank)
}

// Literature answers a question from PubMed abstracts. Each abstract is one
// chunk.
func (p *Pipeline) Literature(ctx context.Context, req LiteratureRequest) (res *Result, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if p.deps.PubMed == nil {
		return nil, errors.New("pipeline: literature search is not configured")
	}

	ctx, span, r := p.startRun(ctx, "literature",
		attribute.Int("request.top_k", req.TopK),
		attribute.Int("request.max_results", req.MaxResults),
	)
	defer span.End()
	defer func() { p.finish(ctx, span, r, res, err) }()

	p.logger.Info(ctx, "searching PubMed", zap.Int("max_results", req.MaxResults))
	var abstracts []string
	if err := p.stage(ctx, "search", func(ctx context.Context) error {
		var serr error
		abstracts, serr = p.deps.PubMed.Search(ctx, req.Query, req.MaxResults, pubmed.WithEmail(req.Email))
		return serr
	}); err != nil {
		return nil, fmt.Errorf("search PubMed: %w", err)
	}

	chunks := abstractChunks(abstracts)
	p.publish(ctx, r, events.Event{Kind: events.KindLoaded, Chunks: len(chunks), Message: "pubmed"})
	p.logger.Info(ctx, "abstracts fetched", zap.Int("abstracts", len(chunks)))

	if len(chunks) == 0 {
		return &Result{RunID: r.id, Answer: EmptyLiteratureAnswer, Hits: []vectorstore.Hit{}, Empty: true}, nil
	}

	return p.answer(ctx, r, req.Query, chunks, req.TopK, req.Rerank)
}

// abstractChunks turns abstracts into chunks with offsets into the
// blank-line-joined abstract text.
func abstractChunks(abstracts []string) []loader.Chunk {
	chunks := make([]loader.Chunk, 0, len(abstracts))
	offset := 0
	for i, a := range abstracts {
		chunks = append(chunks, loader.Chunk{
			ID:     fmt.Sprintf("pubmed-%d", i),
			Index:  i,
			Text:   a,
			Start:  offset,
			End:    offset + len(a),
			Source: "pubmed",
		})
		offset += len(a) + 2
	}
	return chunks
}

// answer runs the shared embed, index, retrieve and generate stages.
func (p *Pipeline) answer(ctx context.Context, r *run, query string, chunks []loader.Chunk, topK int, rerank bool) (*Result, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	p.logger.Info(ctx, "embedding chunks", zap.Int("chunks", len(chunks)))
	var vectors [][]float32
	if err := p.stage(ctx, "embed_documents", func(ctx context.Context) error {
		var eerr error
		vectors, eerr = p.deps.Embedder.EmbedDocuments(ctx, texts)
		return eerr
	}); err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	p.publish(ctx, r, events.Event{Kind: events.KindEmbedded, Chunks: len(vectors)})

	index, err := p.deps.Indexes.NewIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	defer func() {
		if cerr := index.Close(); cerr != nil {
			p.logger.Warn(ctx, "failed to close index", zap.Error(cerr))
		}
	}()

	if err := p.stage(ctx, "build_index", func(ctx context.Context) error {
		return index.Build(ctx, chunks, vectors)
	}); err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	p.logger.Info(ctx, "retrieving context", zap.Int("top_k", topK))
	var hits []vectorstore.Hit
	if err := p.stage(ctx, "retrieve", func(ctx context.Context) error {
		queryVec, qerr := p.deps.Embedder.EmbedQuery(ctx, query)
		if qerr != nil {
			return fmt.Errorf("embed query: %w", qerr)
		}
		var rerr error
		hits, rerr = index.Retrieve(ctx, queryVec, topK)
		return rerr
	}); err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	if rerank {
		if err := p.stage(ctx, "rerank", func(ctx context.Context) error {
			var rerr error
			hits, rerr = p.deps.Reranker.Rerank(ctx, query, hits)
			return rerr
		}); err != nil {
			return nil, fmt.Errorf("rerank: %w", err)
		}
	}
	p.publish(ctx, r, events.Event{Kind: events.KindRetrieved, Chunks: len(chunks), Hits: len(hits)})

	contexts := make([]string, len(hits))
	for i, h := range hits {
		contexts[i] = h.Chunk.Text
	}

	p.logger.Info(ctx, "generating answer", zap.Int("contexts", len(contexts)))
	var answer string
	if err := p.stage(ctx, "generate", func(ctx context.Context) error {
		var gerr error
		answer, gerr = p.deps.Generator.Generate(ctx, query, contexts)
		return gerr
	}); err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &Result{RunID: r.id, Answer: answer, Hits: hits, Chunks: len(chunks)}, nil
}
