package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/logger"
)

// TaskProcessor executes one ledger task. Implemented by the app-level
// executor.
type TaskProcessor interface {
	ProcessTaskRun(ctx context.Context, taskID string) error
}

// WorkerConfig holds the configuration for the job worker.
type WorkerConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
}

// Worker processes task runs from the queue.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *logger.Logger
}

// NewWorker creates a new task run worker.
func NewWorker(cfg WorkerConfig, processor TaskProcessor, log *logger.Logger) *Worker {
	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				QueueTasks: 10,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeTaskRun, func(ctx context.Context, t *asynq.Task) error {
		var payload TaskRunPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("failed to unmarshal task run payload: %w", err)
		}
		return processor.ProcessTaskRun(ctx, payload.TaskID)
	})

	return &Worker{
		server: server,
		mux:    mux,
		logger: log.With("component", "job_worker"),
	}
}

// Start starts the worker.
func (w *Worker) Start() error {
	w.logger.Info("starting job worker")
	return w.server.Start(w.mux)
}

// Stop stops the worker gracefully.
func (w *Worker) Stop() {
	w.logger.Info("stopping job worker")
	w.server.Shutdown()
}
