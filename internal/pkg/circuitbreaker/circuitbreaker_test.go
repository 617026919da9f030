package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("connection refused")

func newTestBreaker(max int, cooldown time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := New(Config{Name: "test", MaxFailures: max, Cooldown: cooldown})
	cb.now = func() time.Time { return now }
	return cb, &now
}

func fail() error { return errBackend }
func ok() error   { return nil }

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errBackend)
	}
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, 0, cb.Failures(), "a success resets the count")

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errBackend)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb, now := newTestBreaker(1, time.Minute)
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errBackend)
	require.Equal(t, StateOpen, cb.State())

	*now = now.Add(time.Minute)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errBackend)
	assert.Equal(t, StateOpen, cb.State(), "a failed probe reopens the breaker")
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrOpen)

	*now = now.Add(time.Minute)
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_SingleProbe(t *testing.T) {
	cb, now := newTestBreaker(1, time.Second)
	ctx := context.Background()

	assert.Error(t, cb.Execute(ctx, fail))
	*now = now.Add(time.Second)

	err := cb.Execute(ctx, func() error {
		assert.Equal(t, StateHalfOpen, cb.State())
		assert.ErrorIs(t, cb.Execute(ctx, ok), ErrOpen, "only one probe at a time")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_CancellationIsNotAFailure(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Minute)

	err := cb.Execute(context.Background(), func() error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, cb.Execute(ctx, ok), context.Canceled)
}

func TestCircuitBreaker_StateChanges(t *testing.T) {
	var transitions []string
	cb := New(Config{
		Name:        "polling",
		MaxFailures: 1,
		Cooldown:    time.Nanosecond,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})
	ctx := context.Background()

	assert.Error(t, cb.Execute(ctx, fail))
	time.Sleep(time.Millisecond)
	require.NoError(t, cb.Execute(ctx, ok))

	assert.Equal(t, []string{
		"polling:closed->open",
		"polling:open->half-open",
		"polling:half-open->closed",
	}, transitions)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "unknown", State(7).String())
}
