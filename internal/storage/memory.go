package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/abourramouss/serverlessextract-sub000/internal/pkg/errors"
)

// MemoryStore is an in-process ObjectStore used by tests and local runs
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data     []byte
	modified time.Time
}

// NewMemory creates an empty in-memory store
func NewMemory() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func memoryKey(container, key string) string {
	return container + "/" + key
}

// List returns every object under prefix
func (s *MemoryStore) List(_ context.Context, container, prefix string) ([]ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	full := memoryKey(container, prefix)
	var objects []ObjectInfo
	for k, obj := range s.objects {
		if !strings.HasPrefix(k, full) {
			continue
		}
		objects = append(objects, ObjectInfo{
			Key:          strings.TrimPrefix(k, container+"/"),
			Size:         int64(len(obj.data)),
			LastModified: obj.modified,
		})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Put stores an object
func (s *MemoryStore) Put(_ context.Context, container, key string, body io.Reader, _ int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return apperrors.Transient("put object", err).WithDetail("key", key)
	}
	s.mu.Lock()
	s.objects[memoryKey(container, key)] = memoryObject{data: data, modified: time.Now()}
	s.mu.Unlock()
	return nil
}

// Get returns a reader over a copy of the object
func (s *MemoryStore) Get(_ context.Context, container, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objects[memoryKey(container, key)]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound("object").WithDetail("key", key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Head returns the metadata of an object
func (s *MemoryStore) Head(_ context.Context, container, key string) (ObjectInfo, error) {
	s.mu.RLock()
	obj, ok := s.objects[memoryKey(container, key)]
	s.mu.RUnlock()
	if !ok {
		return ObjectInfo{}, apperrors.NotFound("object").WithDetail("key", key)
	}
	return ObjectInfo{Key: key, Size: int64(len(obj.data)), LastModified: obj.modified}, nil
}

// Delete removes an object; deleting a missing object is not an error
func (s *MemoryStore) Delete(_ context.Context, container, key string) error {
	s.mu.Lock()
	delete(s.objects, memoryKey(container, key))
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored objects
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
