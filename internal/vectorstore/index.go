package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/medrag/internal/loader"
)

// Sentinel errors for index operations.
var (
	// ErrInvalidK is returned when Retrieve is called with k <= 0.
	ErrInvalidK = errors.New("k must be positive")

	// ErrIndexBuilt is returned when Build is called on an index that was
	// already built.
	ErrIndexBuilt = errors.New("index already built")

	// ErrDimensionMismatch indicates mismatched chunk/vector counts or
	// vector lengths.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrClosed is returned when an index is used after Close.
	ErrClosed = errors.New("index closed")
)

// Hit is a retrieved chunk and its cosine similarity to the query.
type Hit struct {
	Chunk loader.Chunk
	Score float32
}

// Index maps chunk vectors to chunks for one pipeline run.
type Index interface {
	// Build indexes chunks with their vectors. It may be called once.
	Build(ctx context.Context, chunks []loader.Chunk, vectors [][]float32) error
	// Retrieve returns the min(k, Len()) most similar chunks.
	Retrieve(ctx context.Context, query []float32, k int) ([]Hit, error)
	// Len returns the number of indexed chunks.
	Len() int
	// Close releases the index. Closing twice is a no-op.
	Close() error
}

// validateBuild checks chunk/vector pairing and returns the vector dimension.
func validateBuild(chunks []loader.Chunk, vectors [][]float32) (int, error) {
	if len(chunks) != len(vectors) {
		return 0, fmt.Errorf("%w: %d chunks but %d vectors", ErrDimensionMismatch, len(chunks), len(vectors))
	}
	if len(vectors) == 0 {
		return 0, nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return 0, fmt.Errorf("%w: empty vector for chunk 0", ErrDimensionMismatch)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("%w: vector %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return dim, nil
}

func validateQuery(query []float32, dim, k int) error {
	if k <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if dim > 0 && len(query) != dim {
		return fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(query), dim)
	}
	return nil
}

// rank orders hits by descending score, breaking ties by ascending chunk
// index, and truncates to k.
func rank(hits []Hit, k int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.Index < hits[j].Chunk.Index
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits
}
