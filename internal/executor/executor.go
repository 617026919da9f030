// Package executor maps function invocations over workers. A function is
// identified by name and receives an opaque payload; futures report when the
// call was submitted and when the worker actually started and ended it.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Handler runs one function invocation
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// Executor submits invocations and collects their results
type Executor interface {
	// CallAsync submits one invocation
	CallAsync(ctx context.Context, fn string, payload []byte) (*Future, error)
	// Map submits one invocation per payload, in order
	Map(ctx context.Context, fn string, payloads [][]byte) ([]*Future, error)
	// GetResult blocks until every future has an outcome. Outcomes are in
	// future order; a failed invocation is reported in its Outcome, not as an error.
	GetResult(ctx context.Context, futures []*Future) ([]Outcome, error)
	Close() error
}

// Future is a handle on a submitted invocation
type Future struct {
	ID          string
	Function    string
	Index       int
	SubmittedAt time.Time

	queue   string
	done    chan struct{}
	outcome Outcome
}

// Outcome is the terminal state of an invocation
type Outcome struct {
	ID          string
	Function    string
	Index       int
	Result      []byte
	Err         error
	SubmittedAt time.Time
	StartedAt   time.Time
	EndedAt     time.Time
}

// Duration returns how long the worker ran the invocation
func (o Outcome) Duration() time.Duration {
	if o.StartedAt.IsZero() || o.EndedAt.Before(o.StartedAt) {
		return 0
	}
	return o.EndedAt.Sub(o.StartedAt)
}

// Envelope is what a worker stores as the result of an invocation. The
// timestamps are taken on the worker around the handler.
type Envelope struct {
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Result    []byte    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Invoke runs h and wraps its output with the worker-side timestamps.
// A panic in h is reported as an invocation error.
func Invoke(ctx context.Context, h Handler, payload []byte) (env Envelope) {
	env.StartedAt = time.Now()
	defer func() {
		if r := recover(); r != nil {
			env.Result = nil
			env.Error = fmt.Sprintf("panic: %v", r)
		}
		env.EndedAt = time.Now()
	}()

	result, err := h(ctx, payload)
	if err != nil {
		env.Error = err.Error()
		return env
	}
	env.Result = result
	return env
}

// EncodeEnvelope serializes an envelope
func EncodeEnvelope(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope parses an envelope written by a worker
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal result envelope: %w", err)
	}
	return env, nil
}
