package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/abourramouss/serverlessextract-sub000/internal/collection"
	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
	"github.com/abourramouss/serverlessextract-sub000/internal/partition"
	"github.com/abourramouss/serverlessextract-sub000/internal/pkg/logger"
	"github.com/abourramouss/serverlessextract-sub000/internal/runner"
)

// Report summarizes one pipeline run
type Report struct {
	RunID      string                 `json:"runId"`
	Partitions *partition.Result      `json:"partitions,omitempty"`
	Steps      []domain.CompletedStep `json:"steps"`
	Start      time.Time              `json:"start"`
	End        time.Time              `json:"end"`
}

// Duration returns the wall-clock duration of the run
func (r Report) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Pipeline partitions a dataset and runs the declared steps in order
type Pipeline struct {
	engine     *partition.Engine
	runner     *runner.StepRunner
	collection *collection.Store
	logger     *zap.Logger
}

// New creates a pipeline. A nil collection skips persistence.
func New(engine *partition.Engine, r *runner.StepRunner, c *collection.Store, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		engine:     engine,
		runner:     r,
		collection: c,
		logger:     logger,
	}
}

// Run executes the definition under the given run context. Each completed
// step is persisted before the next one starts; the first failing step ends
// the run and the report holds the steps completed so far.
func (p *Pipeline) Run(ctx context.Context, def *Definition, run domain.RunContext) (*Report, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	run = run.WithOutputs(def.OutputKeys()...)
	log := logger.WithRunID(p.logger, run.RunID)
	report := &Report{RunID: run.RunID, Start: time.Now()}

	var location *domain.ReferencePath
	if def.Partitions > 0 {
		result, err := p.engine.Partition(ctx, def.Dataset, def.Partitions, def.Destination)
		if err != nil {
			return report, err
		}
		report.Partitions = result
		location = &result.Location
		log.Info("dataset partitioned",
			zap.String("location", result.Location.String()),
			zap.Bool("already_existed", result.AlreadyExists),
			zap.Int("partitions", len(result.Partitions)),
		)
	}

	for i, step := range def.Steps {
		sets := step.Sets
		if location != nil {
			sets = BindPartitions(sets, *location)
		}

		completed, err := p.runner.Run(ctx, run, step.Name, sets, step.Limit)
		if err != nil {
			report.End = time.Now()
			log.Error("step failed", zap.String("step", step.Name), zap.Error(err))
			return report, err
		}
		if p.collection != nil {
			if err := p.collection.Append(ctx, *completed); err != nil {
				report.End = time.Now()
				return report, err
			}
		}
		report.Steps = append(report.Steps, *completed)

		log.Info("step finished",
			zap.String("step", step.Name),
			zap.Int("index", i+1),
			zap.Int("of", len(def.Steps)),
			zap.Duration("duration", completed.Duration()),
			zap.Float64("cost", completed.Cost),
		)
	}

	report.End = time.Now()
	log.Info("pipeline finished", zap.String("name", def.Name), zap.Duration("duration", report.Duration()))
	return report, nil
}
