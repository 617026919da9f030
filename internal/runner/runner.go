// Package runner runs one pipeline step: it discovers the partitions of the
// step's designated input, maps one execution plan per partition onto the
// executor and aggregates what the workers report.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/abourramouss/serverlessextract-sub000/internal/aggregate"
	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
	"github.com/abourramouss/serverlessextract-sub000/internal/executor"
	apperrors "github.com/abourramouss/serverlessextract-sub000/internal/pkg/errors"
	"github.com/abourramouss/serverlessextract-sub000/internal/pkg/logger"
	"github.com/abourramouss/serverlessextract-sub000/internal/pkg/metrics"
	"github.com/abourramouss/serverlessextract-sub000/internal/planner"
	"github.com/abourramouss/serverlessextract-sub000/internal/storage"
	"github.com/abourramouss/serverlessextract-sub000/internal/worker"
)

// Invocation outcomes recorded in metrics
const (
	OutcomeSucceeded  = "succeeded"
	OutcomeIncomplete = "incomplete"
	OutcomeFailed     = "failed"
)

// Options configures a StepRunner
type Options struct {
	Worker aggregate.WorkerSpec
	Policy domain.FailurePolicy
}

// StepRunner runs steps over an executor
type StepRunner struct {
	store  storage.ObjectStore
	exec   executor.Executor
	logger *zap.Logger
	opts   Options
}

// New creates a step runner
func New(store storage.ObjectStore, exec executor.Executor, logger *zap.Logger, opts Options) *StepRunner {
	return &StepRunner{
		store:  store,
		exec:   exec,
		logger: logger,
		opts:   opts,
	}
}

// Run executes every parameter set of a step over each partition of its
// designated input, at most limit partitions when limit is positive. It
// blocks until every worker has finished. Failed invocations are reported
// together once all have returned.
func (r *StepRunner) Run(ctx context.Context, run domain.RunContext, name string, sets []domain.ParameterSet, limit int) (*domain.CompletedStep, error) {
	log := logger.WithStep(logger.WithRunID(r.logger, run.RunID), name)

	step := planner.Step{Name: name, Sets: sets, Policy: r.opts.Policy}
	if err := step.Validate(); err != nil {
		return nil, err
	}
	designated, _ := step.Designated()

	prefix := planner.ListPrefix(designated, run)
	objects, err := r.store.List(ctx, designated.Container, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	listed := make([]string, 0, len(objects))
	for _, obj := range objects {
		listed = append(listed, obj.Key)
	}
	keys := planner.FilterKeys(listed, designated, limit)
	if len(keys) == 0 {
		return nil, apperrors.NotFound("partitions").
			WithDetail("container", designated.Container).
			WithDetail("prefix", prefix)
	}

	plans, err := planner.Expand(step, keys, run)
	if err != nil {
		return nil, err
	}

	payloads := make([][]byte, len(plans))
	for i, plan := range plans {
		payloads[i], err = json.Marshal(plan)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal plan for %s: %w", plan.PartitionKey, err)
		}
		log.Debug("planned partition", zap.String("plan", planner.Describe(plan)))
	}

	log.Info("dispatching step",
		zap.Int("partitions", len(plans)),
		zap.Int("stages", len(sets)),
		zap.String("prefix", prefix),
	)

	futures, err := r.exec.Map(ctx, worker.TypeExecuteStep, payloads)
	if err != nil {
		appErr := apperrors.Invocation("failed to dispatch step").WithDetail("step", name).WithError(err)
		if len(futures) > 0 {
			ids, dispatched := orphaned(plans, futures)
			log.Warn("step partially dispatched, submitted invocations are not collected",
				zap.Strings("task_ids", ids),
				zap.Strings("partitions", dispatched),
			)
			appErr = appErr.
				WithDetail("task_ids", strings.Join(ids, ",")).
				WithDetail("dispatched", strings.Join(dispatched, ","))
		}
		return nil, appErr
	}
	outcomes, err := r.exec.GetResult(ctx, futures)
	if err != nil {
		return nil, fmt.Errorf("failed to collect results of %s: %w", name, err)
	}

	invocations, failed := r.collect(log, name, plans, outcomes)
	if len(failed) > 0 {
		sort.Strings(failed)
		return nil, apperrors.Invocation("worker invocations failed").
			WithDetail("step", name).
			WithDetail("partitions", strings.Join(failed, ","))
	}

	sizes := storage.Sizes(objects)
	expected := make(map[string]int64, len(keys))
	for _, key := range keys {
		expected[key] = sizes[key]
	}
	completed, err := aggregate.Finalize(name, run, invocations, expected, r.opts.Worker)
	if err != nil {
		return nil, err
	}
	metrics.RecordStep(name, completed.Duration(), completed.Cost)

	if incomplete := completed.IncompletePartitions(); len(incomplete) > 0 {
		log.Warn("step finished with incomplete partitions", zap.Strings("partitions", incomplete))
	}
	log.Info("step completed",
		zap.Int("workers", completed.WorkerCount),
		zap.Duration("duration", completed.Duration()),
		zap.Float64("cost", completed.Cost),
		zap.Int64("ingested_size", completed.IngestedSize),
	)
	return completed, nil
}

// collect decodes every outcome. It returns the invocations in plan order and
// the partition keys whose invocation failed.
func (r *StepRunner) collect(log *zap.Logger, step string, plans []domain.ExecutionPlan, outcomes []executor.Outcome) ([]aggregate.Invocation, []string) {
	invocations := make([]aggregate.Invocation, 0, len(outcomes))
	var failed []string

	for i, out := range outcomes {
		key := plans[i].PartitionKey
		inv := aggregate.Invocation{
			PartitionKey: key,
			Start:        out.StartedAt,
			End:          out.EndedAt,
			Err:          out.Err,
		}
		if inv.Err == nil {
			var result domain.WorkerResult
			if err := json.Unmarshal(out.Result, &result); err != nil {
				inv.Err = apperrors.Invocation("malformed worker result").WithDetail("partition", key).WithError(err)
			} else {
				inv.Result = &result
			}
		}

		switch {
		case inv.Err != nil:
			failed = append(failed, key)
			metrics.RecordInvocation(step, OutcomeFailed)
			log.Error("worker invocation failed", zap.String("partition", key), zap.Error(inv.Err))
		case inv.Result.Incomplete():
			metrics.RecordInvocation(step, OutcomeIncomplete)
		default:
			metrics.RecordInvocation(step, OutcomeSucceeded)
		}
		invocations = append(invocations, inv)
	}
	return invocations, failed
}

// orphaned lists the task IDs and partition keys of invocations submitted
// before a dispatch failed
func orphaned(plans []domain.ExecutionPlan, futures []*executor.Future) ([]string, []string) {
	ids := make([]string, 0, len(futures))
	keys := make([]string, 0, len(futures))
	for _, f := range futures {
		ids = append(ids, f.ID)
		if f.Index >= 0 && f.Index < len(plans) {
			keys = append(keys, plans[f.Index].PartitionKey)
		}
	}
	return ids, keys
}
