package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/fyrsmithlabs/medrag/internal/apierr"
	"github.com/fyrsmithlabs/medrag/internal/loader"
	"github.com/fyrsmithlabs/medrag/internal/logging"
)

// collectionNamePattern validates collection names.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname. Default: localhost.
	Host string
	// Port is the Qdrant gRPC port (6334), not the REST port (6333).
	Port   int
	UseTLS bool
	APIKey string
	// MaxMessageSize is the maximum gRPC message size in bytes. Default: 50MB.
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	return nil
}

// ValidateCollectionName rejects names outside ^[a-z0-9_]{1,64}$.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidConfig, name)
	}
	return nil
}

// RunCollectionName returns a fresh collection name for one run.
func RunCollectionName() string {
	return "medrag_run_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// qdrantPoints is the subset of *qdrant.Client the index uses.
type qdrantPoints interface {
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, collectionName string) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
}

// NewQdrantClient dials Qdrant over gRPC. The connection is shared by every
// run's index.
func NewQdrantClient(cfg QdrantConfig) (*qdrant.Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   cfg.Host,
		Port:                   cfg.Port,
		UseTLS:                 cfg.UseTLS,
		APIKey:                 cfg.APIKey,
		SkipCompatibilityCheck: true,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, apierr.Classify("qdrant", fmt.Errorf("connecting to qdrant: %w", err))
	}
	return client, nil
}

// QdrantIndex is an ephemeral Qdrant collection owned by one run.
type QdrantIndex struct {
	mu         sync.RWMutex
	client     qdrantPoints
	collection string
	chunks     map[uint64]loader.Chunk
	dim        int
	created    bool
	built      bool
	closed     bool
	logger     *logging.Logger
}

// NewQdrantIndex creates an index that will live in a fresh collection.
func NewQdrantIndex(client qdrantPoints, logger *logging.Logger) *QdrantIndex {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &QdrantIndex{
		client:     client,
		collection: RunCollectionName(),
		logger:     logger,
	}
}

// Collection returns the collection name backing this index.
func (q *QdrantIndex) Collection() string {
	return q.collection
}

// Build creates the run collection and upserts every chunk.
func (q *QdrantIndex) Build(ctx context.Context, chunks []loader.Chunk, vectors [][]float32) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Build")
	defer span.End()
	start := time.Now()
	defer func() { observeBuild("qdrant", len(chunks), time.Since(start), err) }()

	span.SetAttributes(
		attribute.String("collection", q.collection),
		attribute.Int("chunk_count", len(chunks)),
	)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if q.built {
		return ErrIndexBuilt
	}
	dim, err := validateBuild(chunks, vectors)
	if err != nil {
		return err
	}
	if err := ValidateCollectionName(q.collection); err != nil {
		return err
	}

	byIndex := make(map[uint64]loader.Chunk, len(chunks))
	if len(chunks) > 0 {
		if err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return apierr.Classify("qdrant", fmt.Errorf("creating collection %s: %w", q.collection, err))
		}
		q.created = true

		points := make([]*qdrant.PointStruct, len(chunks))
		for i, chunk := range chunks {
			id := uint64(chunk.Index)
			points[i] = &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(id),
				Vectors: qdrant.NewVectors(vectors[i]...),
				Payload: qdrant.NewValueMap(map[string]any{
					"chunk_id":    chunk.ID,
					"chunk_index": int64(chunk.Index),
				}),
			}
			byIndex[id] = chunk
		}
		if len(byIndex) != len(chunks) {
			return fmt.Errorf("%w: duplicate chunk index", ErrDimensionMismatch)
		}

		if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		}); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return apierr.Classify("qdrant", fmt.Errorf("upserting points to collection %s: %w", q.collection, err))
		}
	}

	q.chunks = byIndex
	q.dim = dim
	q.built = true

	span.SetStatus(codes.Ok, "success")
	q.logger.Debug(ctx, "built qdrant index",
		zap.String("collection", q.collection),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

// Retrieve runs an exact (brute-force) cosine search over the collection.
func (q *QdrantIndex) Retrieve(ctx context.Context, query []float32, k int) (hits []Hit, err error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Retrieve")
	defer span.End()
	start := time.Now()
	defer func() { observeRetrieve("qdrant", time.Since(start), err) }()

	span.SetAttributes(
		attribute.String("collection", q.collection),
		attribute.Int("k", k),
		attribute.Bool("exact", true),
	)

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, ErrClosed
	}
	if err := validateQuery(query, q.dim, k); err != nil {
		return nil, err
	}
	if len(q.chunks) == 0 {
		return []Hit{}, nil
	}

	// Fetch every point so ties at the k boundary resolve by chunk index.
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(uint64(len(q.chunks))),
		WithPayload:    qdrant.NewWithPayload(false),
		Params: &qdrant.SearchParams{
			Exact: qdrant.PtrOf(true),
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, apierr.Classify("qdrant", fmt.Errorf("querying collection %s: %w", q.collection, err))
	}

	hits, err = q.toHits(points)
	if err != nil {
		return nil, err
	}
	hits = rank(hits, k)

	span.SetAttributes(attribute.Int("results_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

func (q *QdrantIndex) toHits(points []*qdrant.ScoredPoint) ([]Hit, error) {
	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		id := p.GetId().GetNum()
		chunk, ok := q.chunks[id]
		if !ok {
			return nil, fmt.Errorf("unknown point %d in collection %s", id, q.collection)
		}
		hits = append(hits, Hit{Chunk: chunk, Score: p.GetScore()})
	}
	return hits, nil
}

// Len returns the number of indexed chunks.
func (q *QdrantIndex) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.chunks)
}

// Close deletes the run collection. The shared client stays open.
func (q *QdrantIndex) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	q.chunks = nil
	if !q.created {
		return nil
	}

	// Use a fresh context so cleanup still runs after the run was canceled.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
		return apierr.Classify("qdrant", fmt.Errorf("deleting collection %s: %w", q.collection, err))
	}
	return nil
}

var _ Index = (*QdrantIndex)(nil)
