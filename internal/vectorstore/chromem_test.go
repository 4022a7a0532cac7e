package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildChromem(t *testing.T, vectors [][]float32) *ChromemIndex {
	t.Helper()
	texts := make([]string, len(vectors))
	for i := range texts {
		texts[i] = "chunk text"
	}
	idx := NewChromemIndex(nil)
	t.Cleanup(func() { _ = idx.Close() })
	require.NoError(t, idx.Build(context.Background(), testChunks(texts...), vectors))
	return idx
}

func TestChromemIndex_Retrieve(t *testing.T) {
	idx := buildChromem(t, [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.8, 0.6, 0},
		{0, 0, 1},
	})
	assert.Equal(t, 4, idx.Len())

	hits, err := idx.Retrieve(context.Background(), []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].Chunk.Index)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	assert.Equal(t, 2, hits[1].Chunk.Index)
	assert.InDelta(t, 0.8, hits[1].Score, 1e-5)
}

func TestChromemIndex_ReturnsAllWhenKExceedsLen(t *testing.T) {
	idx := buildChromem(t, [][]float32{{1, 0}, {0, 1}})

	hits, err := idx.Retrieve(context.Background(), []float32{1, 1}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestChromemIndex_TiesOrderedByChunkIndex(t *testing.T) {
	idx := buildChromem(t, [][]float32{
		{0, 1},
		{1, 0},
		{1, 0},
		{1, 0},
	})

	for i := 0; i < 5; i++ {
		hits, err := idx.Retrieve(context.Background(), []float32{1, 0}, 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, 1, hits[0].Chunk.Index)
		assert.Equal(t, 2, hits[1].Chunk.Index)
	}
}

func TestChromemIndex_InvalidK(t *testing.T) {
	idx := buildChromem(t, [][]float32{{1, 0}})
	_, err := idx.Retrieve(context.Background(), []float32{1, 0}, 0)
	assert.ErrorIs(t, err, ErrInvalidK)
}

func TestChromemIndex_QueryDimensionMismatch(t *testing.T) {
	idx := buildChromem(t, [][]float32{{1, 0}})
	_, err := idx.Retrieve(context.Background(), []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestChromemIndex_Empty(t *testing.T) {
	idx := buildChromem(t, nil)
	assert.Zero(t, idx.Len())

	hits, err := idx.Retrieve(context.Background(), []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChromemIndex_UnbuiltRetrieveIsEmpty(t *testing.T) {
	idx := NewChromemIndex(nil)
	defer idx.Close()
	hits, err := idx.Retrieve(context.Background(), []float32{1}, 1)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChromemIndex_WriteOnce(t *testing.T) {
	idx := buildChromem(t, [][]float32{{1, 0}})
	err := idx.Build(context.Background(), testChunks("again"), [][]float32{{0, 1}})
	assert.ErrorIs(t, err, ErrIndexBuilt)
	assert.Equal(t, 1, idx.Len())
}

func TestChromemIndex_BuildMismatch(t *testing.T) {
	idx := NewChromemIndex(nil)
	defer idx.Close()
	err := idx.Build(context.Background(), testChunks("a", "b"), [][]float32{{1, 0}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Zero(t, idx.Len())
}

func TestChromemIndex_Close(t *testing.T) {
	idx := NewChromemIndex(nil)
	require.NoError(t, idx.Build(context.Background(), testChunks("a"), [][]float32{{1, 0}}))
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())

	_, err := idx.Retrieve(context.Background(), []float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, idx.Len())
}
