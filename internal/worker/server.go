package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/abourramouss/serverlessextract-sub000/internal/config"
	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
	"github.com/abourramouss/serverlessextract-sub000/internal/executor"
)

// TypeExecuteStep is the task type of one execution plan
const TypeExecuteStep = "step:execute"

// Handle decodes an execution plan, runs it and encodes the worker result.
// It is registered as the TypeExecuteStep function on every executor backend.
func (w *Worker) Handle(ctx context.Context, payload []byte) ([]byte, error) {
	var plan domain.ExecutionPlan
	if err := json.Unmarshal(payload, &plan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution plan: %w", err)
	}

	w.logger.Info("processing execution plan",
		zap.String("run_id", plan.Run.RunID),
		zap.String("step", plan.Step),
		zap.String("partition", plan.PartitionKey),
		zap.Int("stages", len(plan.Stages)),
	)

	result, err := w.Run(ctx, plan)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal worker result: %w", err)
	}
	return data, nil
}

// Server consumes execution plans from the queue
type Server struct {
	logger *zap.Logger
	config *config.Config
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewServer creates a new worker server
func NewServer(logger *zap.Logger, cfg *config.Config, w *Worker) *Server {
	server := asynq.NewServer(
		executor.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				cfg.Executor.Queue: 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task processing failed",
					zap.String("type", task.Type()),
					zap.Error(err),
				)
			}),
			Logger: &asynqLogger{logger: logger},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeExecuteStep, executor.HandlerFunc(w.Handle))

	return &Server{
		logger: logger,
		config: cfg,
		server: server,
		mux:    mux,
	}
}

// Start runs the worker server until it is shut down
func (s *Server) Start() error {
	s.logger.Info("starting worker server",
		zap.String("queue", s.config.Executor.Queue),
		zap.Int("concurrency", s.config.Worker.Concurrency),
	)
	return s.server.Run(s.mux)
}

// Stop stops the worker server
func (s *Server) Stop() {
	s.server.Shutdown()
}

// asynqLogger adapts zap.Logger to asynq.Logger
type asynqLogger struct {
	logger *zap.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) {
	l.logger.Debug(fmt.Sprint(args...))
}

func (l *asynqLogger) Info(args ...interface{}) {
	l.logger.Info(fmt.Sprint(args...))
}

func (l *asynqLogger) Warn(args ...interface{}) {
	l.logger.Warn(fmt.Sprint(args...))
}

func (l *asynqLogger) Error(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
}

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Fatal(fmt.Sprint(args...))
}
