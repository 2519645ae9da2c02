package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/pagination"
)

// Filter represents filter options for listing tasks.
type Filter struct {
	ScheduleID   *shared.ID
	PluginID     string
	Status       *Status
	Organization string
}

// Repository defines the interface for task persistence. Status-changing
// operations are conditional updates: they succeed only when the row is in
// the expected source state, which makes concurrent workers and racing
// cancellations safe without an external lock.
type Repository interface {
	// Create creates a new task.
	Create(ctx context.Context, t *Task) error

	// CreateBatch creates several tasks in one transaction.
	CreateBatch(ctx context.Context, tasks []*Task) error

	// GetByID retrieves a task by ID.
	GetByID(ctx context.Context, id shared.ID) (*Task, error)

	// List lists tasks with filters and pagination.
	List(ctx context.Context, filter Filter, page pagination.Pagination) (pagination.Result[*Task], error)

	// ClaimPending atomically transitions a pending task to running under
	// the given worker. Returns false when another worker holds the claim or
	// the task left pending, which callers treat as benign.
	ClaimPending(ctx context.Context, id shared.ID, workerID string, now time.Time) (bool, error)

	// Heartbeat refreshes the liveness deadline of a running task owned by
	// the given worker.
	Heartbeat(ctx context.Context, id shared.ID, workerID string, now time.Time) error

	// Complete transitions a running task to completed.
	Complete(ctx context.Context, id shared.ID, result json.RawMessage, outputFileKey string, now time.Time) error

	// Fail transitions a running task to failed with a structured error.
	Fail(ctx context.Context, id shared.ID, execErr ExecError, now time.Time) error

	// Cancel transitions a pending or running task to cancelled. Returns
	// false when the task already reached a terminal state, so a cancel
	// racing a completion loses cleanly.
	Cancel(ctx context.Context, id shared.ID, now time.Time) (bool, error)

	// Requeue transitions a failed task back to pending.
	Requeue(ctx context.Context, id shared.ID) error

	// ReclaimStale forces running tasks whose heartbeat is older than the
	// deadline to failed with the worker_lost error class. Returns the
	// reclaimed task IDs.
	ReclaimStale(ctx context.Context, deadline time.Time, now time.Time) ([]shared.ID, error)

	// ListPendingBefore returns IDs of tasks still pending since before the
	// given time, for queue-loss redelivery.
	ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]shared.ID, error)

	// ActiveInputKeys returns the input keys covered by pending or running
	// tasks of the given (schedule, plugin) pair created after since. The
	// evaluator uses it to avoid duplicate task creation within a window.
	ActiveInputKeys(ctx context.Context, scheduleID shared.ID, pluginID string, since time.Time) (map[string]struct{}, error)
}
