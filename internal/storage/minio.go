package storage

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/abourramouss/serverlessextract-sub000/internal/config"
	apperrors "github.com/abourramouss/serverlessextract-sub000/internal/pkg/errors"
)

// MinioStore implements ObjectStore on an S3-compatible service
type MinioStore struct {
	client *minio.Client
}

// NewMinio creates a MinIO client from configuration
func NewMinio(cfg config.MinIOConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioStore{client: client}, nil
}

// EnsureBucket creates the bucket if it does not exist
func (s *MinioStore) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}

// List returns every object under prefix
func (s *MinioStore) List(ctx context.Context, container, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	for obj := range s.client.ListObjects(ctx, container, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, apperrors.Transient("list objects", obj.Err).WithDetail("prefix", prefix)
		}
		objects = append(objects, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Put uploads an object
func (s *MinioStore) Put(ctx context.Context, container, key string, body io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, container, key, body, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return apperrors.Transient("put object", err).WithDetail("key", key)
	}
	return nil
}

// Get downloads an object
func (s *MinioStore) Get(ctx context.Context, container, key string) (io.ReadCloser, error) {
	if _, err := s.Head(ctx, container, key); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, container, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, apperrors.Transient("get object", err).WithDetail("key", key)
	}
	return obj, nil
}

// Head returns the metadata of an object
func (s *MinioStore) Head(ctx context.Context, container, key string) (ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, container, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return ObjectInfo{}, apperrors.NotFound("object").WithDetail("key", key)
		}
		return ObjectInfo{}, apperrors.Transient("stat object", err).WithDetail("key", key)
	}
	return ObjectInfo{Key: info.Key, Size: info.Size, LastModified: info.LastModified}, nil
}

// Delete removes an object
func (s *MinioStore) Delete(ctx context.Context, container, key string) error {
	if err := s.client.RemoveObject(ctx, container, key, minio.RemoveObjectOptions{}); err != nil {
		return apperrors.Transient("remove object", err).WithDetail("key", key)
	}
	return nil
}
