package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/abourramouss/serverlessextract-sub000/internal/config"
	"github.com/abourramouss/serverlessextract-sub000/internal/pkg/circuitbreaker"
	apperrors "github.com/abourramouss/serverlessextract-sub000/internal/pkg/errors"
)

// Asynq dispatches invocations to remote workers through a Redis-backed queue.
// Tasks are never retried; results are kept for ResultRetention so GetResult
// can read them back through the inspector. Repeated Redis errors open a
// circuit breaker that suspends enqueueing and polling for a cooldown.
type Asynq struct {
	logger    *zap.Logger
	cfg       config.ExecutorConfig
	client    *asynq.Client
	inspector *asynq.Inspector
	limiter   *rate.Limiter
	breaker   *circuitbreaker.CircuitBreaker
}

// RedisOpt builds the asynq connection options from the Redis configuration
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewAsynq creates a remote executor
func NewAsynq(logger *zap.Logger, redis config.RedisConfig, cfg config.ExecutorConfig) *Asynq {
	opt := RedisOpt(redis)
	return &Asynq{
		logger:    logger,
		cfg:       cfg,
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		limiter:   rate.NewLimiter(rate.Limit(cfg.SubmitRate), cfg.SubmitBurst),
		breaker:   newBreaker(logger, cfg),
	}
}

func newBreaker(logger *zap.Logger, cfg config.ExecutorConfig) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.New(circuitbreaker.Config{
		Name:        "asynq:" + cfg.Queue,
		MaxFailures: cfg.BreakerFailures,
		Cooldown:    cfg.BreakerCooldown,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			logger.Warn("redis circuit breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// NewTask builds the queue task of one invocation
func NewTask(fn string, payload []byte, cfg config.ExecutorConfig) *asynq.Task {
	return asynq.NewTask(fn, payload,
		asynq.MaxRetry(0),
		asynq.Queue(cfg.Queue),
		asynq.Timeout(cfg.TaskTimeout),
		asynq.Retention(cfg.ResultRetention),
	)
}

// CallAsync enqueues one invocation, waiting on the submission rate limit
func (e *Asynq) CallAsync(ctx context.Context, fn string, payload []byte) (*Future, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var info *asynq.TaskInfo
	err := e.breaker.Execute(ctx, func() error {
		var err error
		info, err = e.client.EnqueueContext(ctx, NewTask(fn, payload, e.cfg))
		return err
	})
	if err != nil {
		return nil, apperrors.Transient("failed to enqueue invocation", err).WithDetail("function", fn)
	}
	return &Future{
		ID:          info.ID,
		Function:    fn,
		SubmittedAt: time.Now(),
		queue:       info.Queue,
	}, nil
}

// Map enqueues one invocation per payload. A failed enqueue stops submission;
// the futures already submitted are returned with the error.
func (e *Asynq) Map(ctx context.Context, fn string, payloads [][]byte) ([]*Future, error) {
	futures := make([]*Future, 0, len(payloads))
	for i, payload := range payloads {
		f, err := e.CallAsync(ctx, fn, payload)
		if err != nil {
			return futures, err
		}
		f.Index = i
		futures = append(futures, f)
	}
	e.logger.Info("enqueued invocations",
		zap.String("function", fn),
		zap.String("queue", e.cfg.Queue),
		zap.Int("count", len(futures)),
	)
	return futures, nil
}

// GetResult polls the queue until every task has completed or been archived
func (e *Asynq) GetResult(ctx context.Context, futures []*Future) ([]Outcome, error) {
	outcomes := make([]Outcome, len(futures))
	pending := make(map[int]*Future, len(futures))
	for i, f := range futures {
		pending[i] = f
	}

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		for i, f := range pending {
			out, done := e.poll(ctx, f)
			if done {
				outcomes[i] = out
				delete(pending, i)
			}
		}
		if len(pending) == 0 {
			return outcomes, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll reads the state of one task. Lookups that fail for any reason other
// than a missing task are retried on the next tick.
func (e *Asynq) poll(ctx context.Context, f *Future) (Outcome, bool) {
	out := Outcome{ID: f.ID, Function: f.Function, Index: f.Index, SubmittedAt: f.SubmittedAt}

	var info *asynq.TaskInfo
	err := e.breaker.Execute(ctx, func() error {
		var err error
		info, err = e.inspector.GetTaskInfo(f.queue, f.ID)
		if errors.Is(err, asynq.ErrTaskNotFound) {
			return nil
		}
		return err
	})
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen), ctx.Err() != nil:
		return out, false
	case err != nil:
		e.logger.Warn("failed to poll task", zap.String("id", f.ID), zap.Error(err))
		return out, false
	case info == nil:
		out.Err = apperrors.Invocation("task result is no longer available").WithDetail("id", f.ID)
		return out, true
	}

	switch info.State {
	case asynq.TaskStateCompleted:
		env, err := DecodeEnvelope(info.Result)
		if err != nil {
			out.Err = apperrors.Invocation("malformed task result").WithDetail("id", f.ID).WithError(err)
			out.EndedAt = info.CompletedAt
			return out, true
		}
		return outcomeOf(f, env), true
	case asynq.TaskStateArchived:
		out.Err = apperrors.Invocation(info.LastErr).WithDetail("function", f.Function).WithDetail("id", f.ID)
		out.StartedAt = f.SubmittedAt
		out.EndedAt = info.LastFailedAt
		return out, true
	}
	return out, false
}

// Close releases the Redis connections
func (e *Asynq) Close() error {
	return errors.Join(e.client.Close(), e.inspector.Close())
}

// HandlerFunc adapts a Handler to an asynq task handler. The handler's output
// and worker-side timestamps are written as the task result; handler errors are
// carried in the envelope so the task itself completes.
func HandlerFunc(h Handler) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		env := Invoke(ctx, h, t.Payload())
		data, err := EncodeEnvelope(env)
		if err != nil {
			return err
		}
		if _, err := t.ResultWriter().Write(data); err != nil {
			return fmt.Errorf("failed to write task result: %w", err)
		}
		return nil
	}
}
