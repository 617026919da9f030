package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
	"github.com/abourramouss/serverlessextract-sub000/internal/executor"
	apperrors "github.com/abourramouss/serverlessextract-sub000/internal/pkg/errors"
	"github.com/abourramouss/serverlessextract-sub000/internal/worker"
)

// MockExecutor mocks the function-execution service
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) CallAsync(ctx context.Context, fn string, payload []byte) (*executor.Future, error) {
	args := m.Called(ctx, fn, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*executor.Future), args.Error(1)
}

func (m *MockExecutor) Map(ctx context.Context, fn string, payloads [][]byte) ([]*executor.Future, error) {
	args := m.Called(ctx, fn, payloads)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*executor.Future), args.Error(1)
}

func (m *MockExecutor) GetResult(ctx context.Context, futures []*executor.Future) ([]executor.Outcome, error) {
	args := m.Called(ctx, futures)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]executor.Outcome), args.Error(1)
}

func (m *MockExecutor) Close() error {
	return m.Called().Error(0)
}

func TestStepRunner_DispatchFailure(t *testing.T) {
	f := setup(t, 2)
	exec := new(MockExecutor)
	exec.On("Map", mock.Anything, worker.TypeExecuteStep, mock.MatchedBy(func(p [][]byte) bool { return len(p) == 2 })).
		Return(nil, apperrors.Transient("failed to enqueue task", errors.New("connection refused")))

	r := New(f.store, exec, zap.NewNop(), Options{Worker: spec})
	_, err := r.Run(context.Background(), domain.RunContext{}, "rebinning", rebinSets(), 0)
	require.Error(t, err)
	assert.True(t, apperrors.IsInvocation(err))
	assert.Contains(t, err.Error(), "failed to dispatch step")

	exec.AssertExpectations(t)
	exec.AssertNotCalled(t, "GetResult", mock.Anything, mock.Anything)
}

func TestStepRunner_PartialDispatch(t *testing.T) {
	f := setup(t, 2)
	submitted := []*executor.Future{{ID: "task-7", Function: worker.TypeExecuteStep, Index: 0}}
	exec := new(MockExecutor)
	exec.On("Map", mock.Anything, worker.TypeExecuteStep, mock.Anything).
		Return(submitted, apperrors.Transient("failed to enqueue invocation", errors.New("connection reset")))

	r := New(f.store, exec, zap.NewNop(), Options{Worker: spec})
	_, err := r.Run(context.Background(), domain.RunContext{}, "rebinning", rebinSets(), 0)
	require.Error(t, err)

	app := apperrors.GetAppError(err)
	require.NotNil(t, app)
	assert.True(t, apperrors.IsInvocation(err))
	assert.Equal(t, "task-7", app.Details["task_ids"])
	assert.Equal(t, "rebinned/part_0.ms.zip", app.Details["dispatched"])
	exec.AssertNotCalled(t, "GetResult", mock.Anything, mock.Anything)
}

func TestStepRunner_CollectCancelled(t *testing.T) {
	f := setup(t, 1)
	futures := []*executor.Future{{ID: "task-1", Function: worker.TypeExecuteStep}}
	exec := new(MockExecutor)
	exec.On("Map", mock.Anything, worker.TypeExecuteStep, mock.Anything).Return(futures, nil)
	exec.On("GetResult", mock.Anything, futures).Return(nil, context.Canceled)

	r := New(f.store, exec, zap.NewNop(), Options{Worker: spec})
	_, err := r.Run(context.Background(), domain.RunContext{}, "rebinning", rebinSets(), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	exec.AssertExpectations(t)
}

func TestStepRunner_MalformedResult(t *testing.T) {
	f := setup(t, 1)
	futures := []*executor.Future{{ID: "task-1", Function: worker.TypeExecuteStep}}
	exec := new(MockExecutor)
	exec.On("Map", mock.Anything, worker.TypeExecuteStep, mock.Anything).Return(futures, nil)
	exec.On("GetResult", mock.Anything, futures).Return([]executor.Outcome{{ID: "task-1", Result: []byte("not json")}}, nil)

	r := New(f.store, exec, zap.NewNop(), Options{Worker: spec})
	_, err := r.Run(context.Background(), domain.RunContext{}, "rebinning", rebinSets(), 0)
	require.Error(t, err)

	app := apperrors.GetAppError(err)
	require.NotNil(t, app)
	assert.Equal(t, "rebinned/part_0.ms.zip", app.Details["partitions"])
}
