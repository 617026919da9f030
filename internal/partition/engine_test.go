package partition

import (
	"context"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
	apperrors "github.com/abourramouss/serverlessextract-sub000/internal/pkg/errors"
	"github.com/abourramouss/serverlessextract-sub000/internal/storage"
	"github.com/abourramouss/serverlessextract-sub000/internal/testutil"
)

func newEngine(t *testing.T, store storage.ObjectStore) *Engine {
	return NewEngine(store, zap.NewNop(), Options{WorkDir: t.TempDir(), Concurrency: 3})
}

var destination = domain.ReferencePath{Container: testutil.TestContainer, Key: "partitions"}

func TestEngine_Partition(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	testutil.PutDataset(t, store, "raw/SB0.ms.zip", testutil.UniformRows(1000, 0, 1))

	engine := newEngine(t, store)
	source := domain.DatasetRef{Container: testutil.TestContainer, Keys: []string{"raw/SB0.ms.zip"}}

	result, err := engine.Partition(ctx, source, 4, destination)
	require.NoError(t, err)
	assert.False(t, result.AlreadyExists)
	assert.Equal(t, path.Join("partitions", result.Identifier), result.Location.Key)
	require.Len(t, result.Partitions, 4)

	listed, err := store.List(ctx, testutil.TestContainer, result.Location.Key+"/")
	require.NoError(t, err)
	require.Len(t, listed, 4)

	for i, p := range result.Partitions {
		assert.Equal(t, i*250, p.StartRow)
		assert.Equal(t, (i+1)*250, p.EndRow)
		assert.Equal(t, path.Join(result.Location.Key, PartitionName(i)+".zip"), p.Key)

		table := testutil.ReadDataset(t, store, p.Key)
		require.Equal(t, 250, table.Len())
		assert.Equal(t, float64(i*250), table.Rows[0].Time)
		assert.Equal(t, float64((i+1)*250-1), table.Rows[249].Time)
	}
}

func TestEngine_PartitionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	testutil.PutDataset(t, store, "raw/SB0.ms.zip", testutil.UniformRows(100, 0, 1))

	engine := newEngine(t, store)
	source := domain.DatasetRef{Container: testutil.TestContainer, Keys: []string{"raw/SB0.ms.zip"}}

	first, err := engine.Partition(ctx, source, 3, destination)
	require.NoError(t, err)
	objects := store.Len()

	second, err := engine.Partition(ctx, source, 3, destination)
	require.NoError(t, err)
	assert.True(t, second.AlreadyExists)
	assert.Equal(t, first.Location, second.Location)
	assert.Equal(t, objects, store.Len(), "no new objects must be created")
	require.Len(t, second.Partitions, 3)
	for i, p := range second.Partitions {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, first.Partitions[i].Key, p.Key)
		assert.Equal(t, first.Partitions[i].Size, p.Size)
	}

	other, err := engine.Partition(ctx, source, 2, destination)
	require.NoError(t, err)
	assert.False(t, other.AlreadyExists)
	assert.NotEqual(t, first.Identifier, other.Identifier)
}

func TestEngine_ConcatenatesAndSorts(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	testutil.PutDataset(t, store, "raw/SB1.ms.zip", testutil.UniformRows(50, 50, 1))
	testutil.PutDataset(t, store, "raw/SB0.ms.zip", testutil.UniformRows(50, 0, 1))

	engine := newEngine(t, store)
	source := domain.DatasetRef{Container: testutil.TestContainer, Keys: []string{"raw/SB1.ms.zip", "raw/SB0.ms.zip"}}

	result, err := engine.Partition(ctx, source, 2, destination)
	require.NoError(t, err)

	first := testutil.ReadDataset(t, store, result.Partitions[0].Key)
	second := testutil.ReadDataset(t, store, result.Partitions[1].Key)
	assert.Equal(t, 100, first.Len()+second.Len())
	assert.Equal(t, float64(0), first.Rows[0].Time)
	assert.Equal(t, float64(99), second.Rows[second.Len()-1].Time)
}

func TestEngine_IdentifierCollision(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	testutil.PutDataset(t, store, "raw/SB0.ms.zip", testutil.UniformRows(20, 0, 1))

	engine := newEngine(t, store)
	source := domain.DatasetRef{Container: testutil.TestContainer, Keys: []string{"raw/SB0.ms.zip"}}

	result, err := engine.Partition(ctx, source, 2, destination)
	require.NoError(t, err)
	testutil.PutFile(t, store, path.Join(result.Location.Key, "stray"), "x")

	_, err = engine.Partition(ctx, source, 2, destination)
	require.Error(t, err)
	assert.True(t, apperrors.IsInvariant(err))
}

func TestEngine_Validation(t *testing.T) {
	engine := newEngine(t, storage.NewMemory())
	source := domain.DatasetRef{Container: testutil.TestContainer, Keys: []string{"raw/SB0.ms.zip"}}

	_, err := engine.Partition(context.Background(), source, 0, destination)
	assert.True(t, apperrors.IsValidation(err))

	_, err = engine.Partition(context.Background(), domain.DatasetRef{}, 2, destination)
	assert.True(t, apperrors.IsValidation(err))
}
