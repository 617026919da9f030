// Package collection persists completed steps as one JSON document mapping a
// step name to every CompletedStep recorded for it. The document is always
// loaded and rewritten wholesale.
package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
)

// JobCollection maps a step name to its completed runs, oldest first
type JobCollection map[string][]domain.CompletedStep

// Add appends completed steps under their step names
func (c JobCollection) Add(steps ...domain.CompletedStep) {
	for _, s := range steps {
		c[s.StepName] = append(c[s.StepName], s)
	}
}

// Names returns the step names in sorted order
func (c JobCollection) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Backend reads and writes the raw document. Load returns nil data when
// nothing has been stored yet.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	String() string
}

// Store loads and rewrites the collection through a backend
type Store struct {
	backend Backend
	logger  *zap.Logger
	mu      sync.Mutex
}

// New creates a collection store
func New(backend Backend, logger *zap.Logger) *Store {
	return &Store{backend: backend, logger: logger}
}

// Load returns the stored collection, empty when none exists
func (s *Store) Load(ctx context.Context) (JobCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) (JobCollection, error) {
	data, err := s.backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load collection from %s: %w", s.backend, err)
	}
	c := JobCollection{}
	if len(data) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal collection: %w", err)
	}
	return c, nil
}

// Append records completed steps and rewrites the document
func (s *Store) Append(ctx context.Context, steps ...domain.CompletedStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load(ctx)
	if err != nil {
		return err
	}
	c.Add(steps...)

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal collection: %w", err)
	}
	if err := s.backend.Save(ctx, data); err != nil {
		return fmt.Errorf("failed to save collection to %s: %w", s.backend, err)
	}

	s.logger.Debug("collection saved",
		zap.String("backend", s.backend.String()),
		zap.Int("steps", len(steps)),
		zap.Int("bytes", len(data)),
	)
	return nil
}
