package collection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/abourramouss/serverlessextract-sub000/internal/config"
	apperrors "github.com/abourramouss/serverlessextract-sub000/internal/pkg/errors"
	"github.com/abourramouss/serverlessextract-sub000/internal/storage"
)

// FileBackend keeps the document in a local file
type FileBackend struct {
	Path string
}

// Load reads the file
func (b FileBackend) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// Save replaces the file atomically
func (b FileBackend) Save(_ context.Context, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(b.Path), 0o755); err != nil {
		return err
	}
	tmp := b.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, b.Path)
}

func (b FileBackend) String() string {
	return "file:" + b.Path
}

// ObjectBackend keeps the document as one object
type ObjectBackend struct {
	Store     storage.ObjectStore
	Container string
	Key       string
}

// Load reads the object
func (b ObjectBackend) Load(ctx context.Context) ([]byte, error) {
	body, err := b.Store.Get(ctx, b.Container, b.Key)
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

// Save overwrites the object
func (b ObjectBackend) Save(ctx context.Context, data []byte) error {
	return b.Store.Put(ctx, b.Container, b.Key, bytes.NewReader(data), int64(len(data)))
}

func (b ObjectBackend) String() string {
	return fmt.Sprintf("s3://%s/%s", b.Container, b.Key)
}

// RedisBackend keeps the document under one Redis key
type RedisBackend struct {
	Client *redis.Client
	Key    string
}

// Load reads the key
func (b RedisBackend) Load(ctx context.Context) ([]byte, error) {
	data, err := b.Client.Get(ctx, b.Key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return data, err
}

// Save overwrites the key without expiration
func (b RedisBackend) Save(ctx context.Context, data []byte) error {
	return b.Client.Set(ctx, b.Key, data, 0).Err()
}

func (b RedisBackend) String() string {
	return "redis:" + b.Key
}

// NewRedisClient connects to Redis and checks the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr(),
		Password:        cfg.Password,
		DB:              cfg.DB,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("connected to Redis",
		zap.String("addr", cfg.Addr()),
		zap.Int("db", cfg.DB),
	)
	return client, nil
}

// Open selects the backend named in the configuration. The object store is
// used by the storage backend and the Redis client by the redis backend; either
// may be nil when the other backends are selected.
func Open(cfg *config.Config, store storage.ObjectStore, client *redis.Client, logger *zap.Logger) (*Store, error) {
	var backend Backend
	switch cfg.Collection.Backend {
	case "file", "":
		backend = FileBackend{Path: cfg.Collection.Path}
	case "storage":
		if store == nil {
			return nil, apperrors.Validation("storage collection backend needs an object store")
		}
		backend = ObjectBackend{Store: store, Container: cfg.MinIO.Bucket, Key: cfg.Collection.Key}
	case "redis":
		if client == nil {
			return nil, apperrors.Validation("redis collection backend needs a redis client")
		}
		backend = RedisBackend{Client: client, Key: cfg.Collection.Key}
	default:
		return nil, apperrors.Validation("unknown collection backend").WithDetail("backend", cfg.Collection.Backend)
	}
	return New(backend, logger), nil
}
