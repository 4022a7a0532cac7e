package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/medrag/internal/apierr"
	"github.com/fyrsmithlabs/medrag/internal/config"
)

// fakeQdrant records calls and serves canned scores keyed by point id.
type fakeQdrant struct {
	created   []*qdrant.CreateCollection
	upserted  []*qdrant.UpsertPoints
	queried   []*qdrant.QueryPoints
	deleted   []string
	scores    map[uint64]float32
	createErr error
}

func (f *fakeQdrant) CreateCollection(_ context.Context, req *qdrant.CreateCollection) error {
	f.created = append(f.created, req)
	return f.createErr
}

func (f *fakeQdrant) DeleteCollection(_ context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeQdrant) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.upserted = append(f.upserted, req)
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeQdrant) Query(_ context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.queried = append(f.queried, req)
	var out []*qdrant.ScoredPoint
	for id, score := range f.scores {
		out = append(out, &qdrant.ScoredPoint{Id: qdrant.NewIDNum(id), Score: score})
	}
	return out, nil
}

func TestRunCollectionName(t *testing.T) {
	a, b := RunCollectionName(), RunCollectionName()
	assert.NotEqual(t, a, b)
	assert.NoError(t, ValidateCollectionName(a))
	assert.Regexp(t, `^medrag_run_[0-9a-f]{32}$`, a)
}

func TestValidateCollectionName(t *testing.T) {
	assert.NoError(t, ValidateCollectionName("medrag_run_1"))
	assert.ErrorIs(t, ValidateCollectionName(""), ErrInvalidConfig)
	assert.ErrorIs(t, ValidateCollectionName("../etc"), ErrInvalidConfig)
	assert.ErrorIs(t, ValidateCollectionName("Upper"), ErrInvalidConfig)
}

func TestQdrantConfig_Validate(t *testing.T) {
	cfg := QdrantConfig{}
	cfg.ApplyDefaults()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 6334, cfg.Port)

	assert.ErrorIs(t, QdrantConfig{Host: "h", Port: 70000}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, QdrantConfig{Port: 6334}.Validate(), ErrInvalidConfig)
}

func TestQdrantIndex_BuildAndRetrieve(t *testing.T) {
	fake := &fakeQdrant{scores: map[uint64]float32{0: 0.2, 1: 0.9, 2: 0.9, 3: 0.5}}
	idx := NewQdrantIndex(fake, nil)
	ctx := context.Background()

	chunks := testChunks("a", "b", "c", "d")
	vectors := [][]float32{{1, 0}, {0, 1}, {0, 1}, {1, 1}}
	require.NoError(t, idx.Build(ctx, chunks, vectors))
	assert.Equal(t, 4, idx.Len())

	require.Len(t, fake.created, 1)
	assert.Equal(t, idx.Collection(), fake.created[0].CollectionName)
	require.Len(t, fake.upserted, 1)
	assert.Len(t, fake.upserted[0].Points, 4)
	assert.True(t, fake.upserted[0].GetWait())

	hits, err := idx.Retrieve(ctx, []float32{0, 1}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{hits[0].Chunk.Index, hits[1].Chunk.Index, hits[2].Chunk.Index})

	require.Len(t, fake.queried, 1)
	assert.True(t, fake.queried[0].GetParams().GetExact())
	assert.Equal(t, uint64(4), fake.queried[0].GetLimit())

	require.NoError(t, idx.Close())
	assert.Equal(t, []string{idx.Collection()}, fake.deleted)
	require.NoError(t, idx.Close())
	assert.Len(t, fake.deleted, 1)
}

func TestQdrantIndex_EmptyBuildCreatesNothing(t *testing.T) {
	fake := &fakeQdrant{}
	idx := NewQdrantIndex(fake, nil)
	require.NoError(t, idx.Build(context.Background(), nil, nil))

	hits, err := idx.Retrieve(context.Background(), []float32{1}, 1)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, idx.Close())
	assert.Empty(t, fake.created)
	assert.Empty(t, fake.deleted)
}

func TestQdrantIndex_WriteOnce(t *testing.T) {
	fake := &fakeQdrant{}
	idx := NewQdrantIndex(fake, nil)
	require.NoError(t, idx.Build(context.Background(), testChunks("a"), [][]float32{{1}}))
	assert.ErrorIs(t, idx.Build(context.Background(), testChunks("b"), [][]float32{{1}}), ErrIndexBuilt)
}

func TestQdrantIndex_InvalidK(t *testing.T) {
	idx := NewQdrantIndex(&fakeQdrant{}, nil)
	require.NoError(t, idx.Build(context.Background(), testChunks("a"), [][]float32{{1}}))
	_, err := idx.Retrieve(context.Background(), []float32{1}, 0)
	assert.ErrorIs(t, err, ErrInvalidK)
}

func TestQdrantIndex_ClassifiesErrors(t *testing.T) {
	fake := &fakeQdrant{createErr: status.Error(codes.Unavailable, "connection refused")}
	idx := NewQdrantIndex(fake, nil)
	err := idx.Build(context.Background(), testChunks("a"), [][]float32{{1}})
	assert.ErrorIs(t, err, apierr.ErrUnavailable)
}

func TestQdrantIndex_UnknownPoint(t *testing.T) {
	fake := &fakeQdrant{scores: map[uint64]float32{99: 1}}
	idx := NewQdrantIndex(fake, nil)
	require.NoError(t, idx.Build(context.Background(), testChunks("a"), [][]float32{{1}}))
	_, err := idx.Retrieve(context.Background(), []float32{1}, 1)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidK))
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.VectorStoreConfig{Provider: "chromem"}, nil)
	require.NoError(t, err)
	defer p.Close()

	idx, err := p.NewIndex(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &ChromemIndex{}, idx)
	require.NoError(t, idx.Close())

	_, err = NewProvider(config.VectorStoreConfig{Provider: "faiss"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewProvider(config.VectorStoreConfig{Provider: "qdrant", Qdrant: config.QdrantConfig{Host: "localhost", Port: -1}}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestProvider_NewIndexCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&ChromemProvider{}).NewIndex(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
