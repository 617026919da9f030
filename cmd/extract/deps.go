package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/abourramouss/serverlessextract-sub000/internal/aggregate"
	"github.com/abourramouss/serverlessextract-sub000/internal/collection"
	"github.com/abourramouss/serverlessextract-sub000/internal/config"
	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
	"github.com/abourramouss/serverlessextract-sub000/internal/executor"
	"github.com/abourramouss/serverlessextract-sub000/internal/partition"
	"github.com/abourramouss/serverlessextract-sub000/internal/runner"
	"github.com/abourramouss/serverlessextract-sub000/internal/storage"
	"github.com/abourramouss/serverlessextract-sub000/internal/worker"
)

// dependencies holds everything a command may need
type dependencies struct {
	Store      *storage.MinioStore
	Redis      *redis.Client
	Executor   executor.Executor
	Engine     *partition.Engine
	Runner     *runner.StepRunner
	Collection *collection.Store
}

// initDependencies connects to object storage and, when the configuration
// asks for them, to Redis. The executor and step runner are only built when
// withExecutor is set.
func initDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger, withExecutor bool) (*dependencies, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	store, err := storage.NewMinio(cfg.MinIO)
	if err != nil {
		return nil, nil, err
	}
	if err := store.EnsureBucket(ctx, cfg.MinIO.Bucket); err != nil {
		return nil, nil, err
	}
	deps := &dependencies{
		Store:  store,
		Engine: partition.NewEngine(store, logger, partition.Options{WorkDir: cfg.Worker.WorkDir, Concurrency: cfg.Partition.Concurrency}),
	}

	if cfg.Collection.Backend == "redis" {
		client, err := collection.NewRedisClient(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, nil, err
		}
		deps.Redis = client
		cleanups = append(cleanups, func() { client.Close() })
	}

	deps.Collection, err = collection.Open(cfg, store, deps.Redis, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	if withExecutor {
		exec, err := newExecutor(cfg, store, logger)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.Executor = exec
		cleanups = append(cleanups, func() {
			if err := exec.Close(); err != nil {
				logger.Warn("failed to close executor", zap.Error(err))
			}
		})

		deps.Runner = runner.New(store, exec, logger, runner.Options{
			Worker: aggregate.WorkerSpec{
				MemoryMB:       cfg.Worker.MemoryMB,
				CPUs:           cfg.Worker.CPUs,
				CostPerMsPerMB: cfg.Worker.CostPerMsPerMB,
			},
			Policy: domain.FailurePolicy(cfg.Worker.FailurePolicy),
		})
	}

	return deps, cleanup, nil
}

// newExecutor builds the configured executor. The local backend runs the
// worker in this process.
func newExecutor(cfg *config.Config, store storage.ObjectStore, logger *zap.Logger) (executor.Executor, error) {
	if cfg.IsRemote() {
		return executor.NewAsynq(logger, cfg.Redis, cfg.Executor), nil
	}
	if cfg.Executor.Backend != "local" {
		return nil, fmt.Errorf("unknown executor backend %q", cfg.Executor.Backend)
	}
	local := executor.NewLocal(logger, cfg.Executor.Concurrency)
	local.Register(worker.TypeExecuteStep, worker.NewFromConfig(cfg, store, logger).Handle)
	return local, nil
}
