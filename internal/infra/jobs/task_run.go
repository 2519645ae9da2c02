// Package jobs dispatches task runs to the worker pool over asynq.
package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TypeTaskRun is the asynq task type for one sandbox run.
const TypeTaskRun = "task:run"

// QueueTasks is the queue task runs are dispatched on.
const QueueTasks = "tasks"

// TaskRunPayload carries the ledger task to execute. The payload is only a
// reference; the worker loads the authoritative state from the ledger and
// claims it there.
type TaskRunPayload struct {
	TaskID string `json:"task_id"`
}

// NewTaskRunTask creates an asynq task for one run. Retries are disabled:
// failure handling belongs to the ledger, where a failed task stays failed
// until an operator requeues it.
func NewTaskRunTask(payload TaskRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task run payload: %w", err)
	}
	return asynq.NewTask(TypeTaskRun, data,
		asynq.Queue(QueueTasks),
		asynq.MaxRetry(0),
	), nil
}
