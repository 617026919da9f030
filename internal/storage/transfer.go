package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"

	apperrors "github.com/abourramouss/serverlessextract-sub000/internal/pkg/errors"
	"github.com/abourramouss/serverlessextract-sub000/internal/pkg/metrics"
)

// Download copies one object to a local file, creating parent directories.
// It returns the number of bytes written.
func Download(ctx context.Context, store ObjectStore, container, key, localPath string) (int64, error) {
	body, err := store.Get(ctx, container, key)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory for %s: %w", localPath, err)
	}
	f, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", localPath, err)
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, apperrors.Transient("download", err).WithDetail("key", key)
	}
	metrics.RecordDownload(n)
	return n, nil
}

// Upload copies a local file to one object and returns its size
func Upload(ctx context.Context, store ObjectStore, container, key, localPath string) (int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", localPath, err)
	}
	if err := store.Put(ctx, container, key, f, info.Size()); err != nil {
		return 0, err
	}
	metrics.RecordUpload(info.Size())
	return info.Size(), nil
}

// DownloadPrefix copies every object under prefix into localDir, keeping the
// key layout below the prefix. Transfers run on a bounded pool and every
// transfer is attempted even when a sibling fails.
func DownloadPrefix(ctx context.Context, store ObjectStore, container, prefix, localDir string, concurrency int) (int64, error) {
	objects, err := store.List(ctx, container, prefix)
	if err != nil {
		return 0, err
	}
	if len(objects) == 0 {
		return 0, apperrors.NotFound("prefix").WithDetail("prefix", prefix)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	base := strings.TrimSuffix(prefix, "/")
	var total atomic.Int64
	p := pool.New().WithErrors().WithMaxGoroutines(concurrency)
	for _, obj := range objects {
		rel := strings.TrimPrefix(strings.TrimPrefix(obj.Key, base), "/")
		if rel == "" {
			rel = path.Base(obj.Key)
		}
		key := obj.Key
		p.Go(func() error {
			n, err := Download(ctx, store, container, key, filepath.Join(localDir, filepath.FromSlash(rel)))
			total.Add(n)
			return err
		})
	}
	err = p.Wait()
	return total.Load(), err
}

// Exists reports whether an object exists
func Exists(ctx context.Context, store ObjectStore, container, key string) (bool, error) {
	_, err := store.Head(ctx, container, key)
	if err == nil {
		return true, nil
	}
	if apperrors.IsNotFound(err) {
		return false, nil
	}
	return false, err
}
