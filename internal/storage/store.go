package storage

import (
	"context"
	"io"
	"time"
)

// ObjectStore abstracts S3-compatible object storage.
type ObjectStore interface {
	// List returns every object under prefix, sorted by key.
	List(ctx context.Context, container, prefix string) ([]ObjectInfo, error)
	Put(ctx context.Context, container, key string, body io.Reader, size int64) error
	Get(ctx context.Context, container, key string) (io.ReadCloser, error)
	// Head returns a NOT_FOUND AppError when the object does not exist.
	Head(ctx context.Context, container, key string) (ObjectInfo, error)
	Delete(ctx context.Context, container, key string) error
}

// ObjectInfo describes one stored object
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// TotalSize sums the sizes of the given objects
func TotalSize(objects []ObjectInfo) int64 {
	var total int64
	for _, o := range objects {
		total += o.Size
	}
	return total
}

// Sizes indexes object sizes by key
func Sizes(objects []ObjectInfo) map[string]int64 {
	sizes := make(map[string]int64, len(objects))
	for _, o := range objects {
		sizes[o.Key] = o.Size
	}
	return sizes
}
