// Package partition splits a time-sorted dataset into independently stored
// partitions of equal time span.
package partition

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/abourramouss/serverlessextract-sub000/internal/archive"
	"github.com/abourramouss/serverlessextract-sub000/internal/dataset"
	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
	apperrors "github.com/abourramouss/serverlessextract-sub000/internal/pkg/errors"
	"github.com/abourramouss/serverlessextract-sub000/internal/pkg/id"
	"github.com/abourramouss/serverlessextract-sub000/internal/pkg/metrics"
	"github.com/abourramouss/serverlessextract-sub000/internal/storage"
)

// Result describes where the partitions of a dataset live
type Result struct {
	Location      domain.ReferencePath
	Identifier    string
	AlreadyExists bool
	Partitions    []domain.Partition
}

// Options configures an Engine
type Options struct {
	WorkDir     string
	Concurrency int
}

// Engine partitions datasets held in object storage
type Engine struct {
	store       storage.ObjectStore
	logger      *zap.Logger
	workDir     string
	concurrency int
}

// NewEngine creates a new partitioning engine
func NewEngine(store storage.ObjectStore, logger *zap.Logger, opts Options) *Engine {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Engine{
		store:       store,
		logger:      logger,
		workDir:     opts.WorkDir,
		concurrency: opts.Concurrency,
	}
}

// PartitionName returns the directory name of partition i
func PartitionName(i int) string {
	return "part_" + strconv.Itoa(i) + dataset.Extension
}

// Partition splits source into n partitions stored below destination.Key/<identifier>/.
// When exactly n partitions already exist under that prefix nothing is created
// and the existing location is returned.
func (e *Engine) Partition(ctx context.Context, source domain.DatasetRef, n int, destination domain.ReferencePath) (*Result, error) {
	if n < 1 {
		return nil, apperrors.Validation("partition count must be at least 1")
	}
	if len(source.Keys) == 0 {
		return nil, apperrors.Validation("source dataset has no keys")
	}
	if destination.Container == "" {
		return nil, apperrors.Validation("destination container is required")
	}

	if err := os.MkdirAll(e.workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	work, err := os.MkdirTemp(e.workDir, "partition-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(work)

	dirs, table, err := e.load(ctx, source, filepath.Join(work, "src"))
	if err != nil {
		return nil, err
	}
	table.SortByTime()

	identifier := id.Fingerprint(table.Len(), table.Columns(), n, source.Names())
	location := domain.ReferencePath{
		Kind:      domain.ReferenceInput,
		Container: destination.Container,
		Key:       path.Join(destination.Key, identifier),
		Extension: dataset.Extension + archive.Extension,
	}
	log := e.logger.With(zap.String("identifier", identifier), zap.Int("partitions", n))

	existing, err := e.store.List(ctx, location.Container, location.Key+"/")
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		if len(existing) != n {
			return nil, apperrors.Invariant("partition identifier collision").
				WithDetail("prefix", location.Key).
				WithDetail("expected", strconv.Itoa(n)).
				WithDetail("found", strconv.Itoa(len(existing)))
		}
		log.Info("partitions already exist, skipping", zap.String("location", location.String()))
		return &Result{
			Location:      location,
			Identifier:    identifier,
			AlreadyExists: true,
			Partitions:    fromListing(existing),
		}, nil
	}

	parts := Windows(table.Times(), n)
	log.Info("creating partitions", zap.Int("rows", table.Len()))

	outDir := filepath.Join(work, "parts")
	p := pool.New().WithErrors().WithMaxGoroutines(e.concurrency)
	for i := range parts {
		i := i
		p.Go(func() error {
			key, size, err := e.create(ctx, table, parts[i], dirs[0], outDir, location)
			if err != nil {
				log.Error("partition creation failed", zap.Int("index", i), zap.Error(err))
				return fmt.Errorf("partition %d: %w", i, err)
			}
			parts[i].Key = key
			parts[i].Size = size
			metrics.RecordPartitionCreated()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	log.Info("partitions created", zap.String("location", location.String()))
	return &Result{
		Location:   location,
		Identifier: identifier,
		Partitions: parts,
	}, nil
}

// load downloads and reads every constituent dataset, preserving key order
func (e *Engine) load(ctx context.Context, source domain.DatasetRef, dir string) ([]string, *dataset.Table, error) {
	dirs := make([]string, len(source.Keys))
	tables := make([]*dataset.Table, len(source.Keys))

	p := pool.New().WithErrors().WithMaxGoroutines(e.concurrency)
	for i, key := range source.Keys {
		i, key := i, key
		p.Go(func() error {
			local := filepath.Join(dir, strconv.Itoa(i), domain.BaseName(key)+dataset.Extension)
			if err := e.fetch(ctx, source.Container, key, local); err != nil {
				return fmt.Errorf("dataset %s: %w", key, err)
			}
			t, err := dataset.Read(local)
			if err != nil {
				return err
			}
			dirs[i] = local
			tables[i] = t
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, nil, err
	}
	return dirs, dataset.Concat(tables...), nil
}

// fetch materializes one dataset directory from an archive key or a key prefix
func (e *Engine) fetch(ctx context.Context, container, key, local string) error {
	if !archive.IsArchive(key) {
		_, err := storage.DownloadPrefix(ctx, e.store, container, key+"/", local, e.concurrency)
		return err
	}
	zipPath := local + archive.Extension
	if _, err := storage.Download(ctx, e.store, container, key, zipPath); err != nil {
		return err
	}
	if err := archive.Unzip(zipPath, local); err != nil {
		return err
	}
	return os.Remove(zipPath)
}

// create materializes, archives and uploads one partition, then deletes the local copies
func (e *Engine) create(ctx context.Context, table *dataset.Table, part domain.Partition, auxFrom, outDir string, location domain.ReferencePath) (string, int64, error) {
	name := PartitionName(part.Index)
	dir := filepath.Join(outDir, name)
	zipPath := dir + archive.Extension
	defer os.RemoveAll(dir)
	defer os.Remove(zipPath)

	if err := dataset.Write(dir, table.Slice(part.StartRow, part.EndRow)); err != nil {
		return "", 0, err
	}
	if err := dataset.CopyAuxiliary(auxFrom, dir); err != nil {
		return "", 0, fmt.Errorf("failed to copy auxiliary files: %w", err)
	}
	if err := archive.Zip(dir, zipPath, name); err != nil {
		return "", 0, err
	}

	key := path.Join(location.Key, name+archive.Extension)
	size, err := storage.Upload(ctx, e.store, location.Container, key, zipPath)
	if err != nil {
		return "", 0, err
	}
	return key, size, nil
}

// fromListing rebuilds partition descriptors from stored archives
func fromListing(objects []storage.ObjectInfo) []domain.Partition {
	parts := make([]domain.Partition, 0, len(objects))
	for i, o := range objects {
		index := i
		var n int
		if _, err := fmt.Sscanf(domain.BaseName(o.Key), "part_%d", &n); err == nil {
			index = n
		}
		parts = append(parts, domain.Partition{Index: index, Key: o.Key, Size: o.Size})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Index < parts[j].Index })
	return parts
}
