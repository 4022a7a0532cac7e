package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/medrag/internal/loader"
	"github.com/fyrsmithlabs/medrag/internal/logging"
)

var tracer = otel.Tracer("github.com/fyrsmithlabs/medrag/internal/vectorstore")

// errPrecomputedOnly is returned if chromem ever asks the index to embed
// text itself; every document and query arrives with its vector.
var errPrecomputedOnly = errors.New("index accepts precomputed embeddings only")

const chromemCollection = "chunks"

// ChromemIndex is an in-memory chromem-go collection owned by one run.
type ChromemIndex struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	chunks     map[string]loader.Chunk
	dim        int
	built      bool
	closed     bool
	logger     *logging.Logger
}

// NewChromemIndex creates an empty in-memory index.
func NewChromemIndex(logger *logging.Logger) *ChromemIndex {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ChromemIndex{
		db:     chromem.NewDB(),
		logger: logger,
	}
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errPrecomputedOnly
}

// Build adds every chunk with its precomputed vector.
func (c *ChromemIndex) Build(ctx context.Context, chunks []loader.Chunk, vectors [][]float32) (err error) {
	ctx, span := tracer.Start(ctx, "ChromemIndex.Build")
	defer span.End()
	start := time.Now()
	defer func() { observeBuild("chromem", len(chunks), time.Since(start), err) }()

	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.built {
		return ErrIndexBuilt
	}
	dim, err := validateBuild(chunks, vectors)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	collection, err := c.db.CreateCollection(chromemCollection, nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	docs := make([]chromem.Document, len(chunks))
	byID := make(map[string]loader.Chunk, len(chunks))
	for i, chunk := range chunks {
		id := strconv.Itoa(chunk.Index)
		docs[i] = chromem.Document{
			ID:        id,
			Content:   chunk.Text,
			Embedding: vectors[i],
			Metadata:  map[string]string{"chunk_id": chunk.ID},
		}
		byID[id] = chunk
	}
	if len(byID) != len(chunks) {
		return fmt.Errorf("%w: duplicate chunk index", ErrDimensionMismatch)
	}

	if len(docs) > 0 {
		// Concurrency of 1 since embeddings are already computed.
		if err := collection.AddDocuments(ctx, docs, 1); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("adding documents: %w", err)
		}
	}

	c.collection = collection
	c.chunks = byID
	c.dim = dim
	c.built = true

	span.SetStatus(codes.Ok, "success")
	c.logger.Debug(ctx, "built chromem index", zap.Int("chunks", len(chunks)), zap.Int("dimension", dim))
	return nil
}

// Retrieve returns the k chunks most similar to query.
func (c *ChromemIndex) Retrieve(ctx context.Context, query []float32, k int) (hits []Hit, err error) {
	ctx, span := tracer.Start(ctx, "ChromemIndex.Retrieve")
	defer span.End()
	start := time.Now()
	defer func() { observeRetrieve("chromem", time.Since(start), err) }()

	span.SetAttributes(attribute.Int("k", k))

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClosed
	}
	if err := validateQuery(query, c.dim, k); err != nil {
		return nil, err
	}
	if c.collection == nil || c.collection.Count() == 0 {
		return []Hit{}, nil
	}

	// Query every document so ties at the k boundary are resolved by
	// chunk index rather than by chromem's heap order.
	results, err := c.collection.QueryEmbedding(ctx, query, c.collection.Count(), nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying index: %w", err)
	}

	hits = make([]Hit, 0, len(results))
	for _, r := range results {
		chunk, ok := c.chunks[r.ID]
		if !ok {
			return nil, fmt.Errorf("unknown document %q in index", r.ID)
		}
		hits = append(hits, Hit{Chunk: chunk, Score: r.Similarity})
	}
	hits = rank(hits, k)

	span.SetAttributes(attribute.Int("results_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

// Len returns the number of indexed chunks.
func (c *ChromemIndex) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.chunks)
}

// Close drops the in-memory collection.
func (c *ChromemIndex) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.collection = nil
	c.chunks = nil
	return c.db.Reset()
}

var _ Index = (*ChromemIndex)(nil)
