package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/abourramouss/serverlessextract-sub000/internal/pkg/errors"
)

func putString(t *testing.T, s ObjectStore, key, body string) {
	t.Helper()
	require.NoError(t, s.Put(context.Background(), "bucket", key, strings.NewReader(body), int64(len(body))))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	putString(t, s, "parts/b", "bb")
	putString(t, s, "parts/a", "a")
	putString(t, s, "other/c", "ccc")

	objects, err := s.List(ctx, "bucket", "parts/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "parts/a", objects[0].Key)
	assert.Equal(t, "parts/b", objects[1].Key)
	assert.Equal(t, int64(3), TotalSize(objects))

	info, err := s.Head(ctx, "bucket", "other/c")
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size)

	_, err = s.Head(ctx, "bucket", "missing")
	assert.True(t, apperrors.IsNotFound(err))

	ok, err := Exists(ctx, s, "bucket", "parts/a")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "bucket", "parts/a"))
	ok, err = Exists(ctx, s, "bucket", "parts/a")
	require.NoError(t, err)
	assert.False(t, ok)

	empty, err := s.List(ctx, "other-bucket", "")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDownloadUpload(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	putString(t, s, "in/data.txt", "hello")

	dir := t.TempDir()
	local := filepath.Join(dir, "nested", "data.txt")
	n, err := Download(ctx, s, "bucket", "in/data.txt", local)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	content, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))

	n, err = Upload(ctx, s, "bucket", "out/data.txt", local)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	info, err := s.Head(ctx, "bucket", "out/data.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
}

func TestDownloadPrefix(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	putString(t, s, "cal/part_0/a.h5", "aa")
	putString(t, s, "cal/part_0/sub/b.h5", "bbb")

	dir := t.TempDir()
	n, err := DownloadPrefix(ctx, s, "bucket", "cal/part_0", dir, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.FileExists(t, filepath.Join(dir, "a.h5"))
	assert.FileExists(t, filepath.Join(dir, "sub", "b.h5"))

	_, err = DownloadPrefix(ctx, s, "bucket", "nothing/here", dir, 2)
	assert.True(t, apperrors.IsNotFound(err))
}
