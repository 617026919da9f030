package executor

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	apperrors "github.com/abourramouss/serverlessextract-sub000/internal/pkg/errors"
)

// Local runs invocations on in-process goroutines
type Local struct {
	logger      *zap.Logger
	concurrency int

	mu       sync.RWMutex
	handlers map[string]Handler
	seq      atomic.Int64
	wg       sync.WaitGroup
}

// NewLocal creates a local executor running at most concurrency invocations
// of one Map call at a time
func NewLocal(logger *zap.Logger, concurrency int) *Local {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Local{
		logger:      logger,
		concurrency: concurrency,
		handlers:    make(map[string]Handler),
	}
}

// Register makes a function callable by name
func (e *Local) Register(fn string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[fn] = h
}

func (e *Local) handler(fn string) (Handler, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.handlers[fn]
	if !ok {
		return nil, apperrors.NotFound("function").WithDetail("function", fn)
	}
	return h, nil
}

// CallAsync submits one invocation
func (e *Local) CallAsync(ctx context.Context, fn string, payload []byte) (*Future, error) {
	futures, err := e.Map(ctx, fn, [][]byte{payload})
	if err != nil {
		return nil, err
	}
	return futures[0], nil
}

// Map submits every payload and returns immediately. The invocations run on a
// bounded pool; one failing does not affect the others.
func (e *Local) Map(ctx context.Context, fn string, payloads [][]byte) ([]*Future, error) {
	h, err := e.handler(fn)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	futures := make([]*Future, len(payloads))
	for i := range payloads {
		futures[i] = &Future{
			ID:          strconv.FormatInt(e.seq.Add(1), 10),
			Function:    fn,
			Index:       i,
			SubmittedAt: now,
			done:        make(chan struct{}),
		}
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		p := pool.New().WithMaxGoroutines(e.concurrency)
		for i, payload := range payloads {
			payload := payload
			f := futures[i]
			p.Go(func() {
				env := Invoke(ctx, h, payload)
				f.outcome = outcomeOf(f, env)
				close(f.done)
			})
		}
		p.Wait()
	}()

	e.logger.Debug("mapped invocations", zap.String("function", fn), zap.Int("count", len(payloads)))
	return futures, nil
}

// GetResult waits for every future
func (e *Local) GetResult(ctx context.Context, futures []*Future) ([]Outcome, error) {
	outcomes := make([]Outcome, len(futures))
	for i, f := range futures {
		if f.done == nil {
			return nil, apperrors.Internal("future was not created by this executor").WithDetail("id", f.ID)
		}
		select {
		case <-f.done:
			outcomes[i] = f.outcome
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return outcomes, nil
}

// Close waits for running invocations
func (e *Local) Close() error {
	e.wg.Wait()
	return nil
}

func outcomeOf(f *Future, env Envelope) Outcome {
	out := Outcome{
		ID:          f.ID,
		Function:    f.Function,
		Index:       f.Index,
		SubmittedAt: f.SubmittedAt,
		StartedAt:   env.StartedAt,
		EndedAt:     env.EndedAt,
		Result:      env.Result,
	}
	if env.Error != "" {
		out.Err = apperrors.Invocation(env.Error).WithDetail("function", f.Function).WithDetail("id", f.ID)
	}
	return out
}
