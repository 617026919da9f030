// Package testutil provides shared test utilities for the pipeline packages.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abourramouss/serverlessextract-sub000/internal/archive"
	"github.com/abourramouss/serverlessextract-sub000/internal/dataset"
	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
	"github.com/abourramouss/serverlessextract-sub000/internal/storage"
)

// TestContainer is the bucket used by fixtures
const TestContainer = "test-bucket"

// UniformRows creates n rows with times start, start+step, ...
func UniformRows(n int, start, step float64) []dataset.Row {
	rows := make([]dataset.Row, n)
	for i := range rows {
		rows[i] = dataset.Row{
			Time:     start + float64(i)*step,
			Antenna1: int32(i % 7),
			Antenna2: int32((i + 1) % 7),
			Real:     float64(i),
			Imag:     -float64(i),
			Weight:   1,
		}
	}
	return rows
}

// PutDataset writes rows as a dataset directory, archives it under a single
// root and uploads it to key. It returns the archive size.
func PutDataset(t *testing.T, store storage.ObjectStore, key string, rows []dataset.Row) int64 {
	t.Helper()

	work := t.TempDir()
	name := domain.BaseName(key) + dataset.Extension
	dir := filepath.Join(work, name)
	require.NoError(t, dataset.Write(dir, &dataset.Table{Rows: rows}))

	zipPath := filepath.Join(work, name+archive.Extension)
	require.NoError(t, archive.Zip(dir, zipPath, name))

	size, err := storage.Upload(context.Background(), store, TestContainer, key, zipPath)
	require.NoError(t, err)
	return size
}

// PutFile uploads a small object with the given body
func PutFile(t *testing.T, store storage.ObjectStore, key, body string) {
	t.Helper()

	p := filepath.Join(t.TempDir(), "body")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	_, err := storage.Upload(context.Background(), store, TestContainer, key, p)
	require.NoError(t, err)
}

// ReadDataset downloads a dataset archive and returns its rows
func ReadDataset(t *testing.T, store storage.ObjectStore, key string) *dataset.Table {
	t.Helper()

	work := t.TempDir()
	zipPath := filepath.Join(work, "ds.zip")
	_, err := storage.Download(context.Background(), store, TestContainer, key, zipPath)
	require.NoError(t, err)

	dir := filepath.Join(work, "ds")
	require.NoError(t, archive.Unzip(zipPath, dir))
	table, err := dataset.Read(dir)
	require.NoError(t, err)
	return table
}
