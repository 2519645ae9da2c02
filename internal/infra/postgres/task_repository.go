package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/task"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/pagination"
)

// TaskRepository handles database operations for the task ledger. All
// status transitions are conditional updates guarded by the source status,
// so two workers racing for a task or a cancel racing a completion resolve
// in the database without an external lock.
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, schedule_id, plugin_id, input_kind, input_keys, status,
	worker_id, result, error, attempts, output_file_key, organization,
	created_at, started_at, ended_at, heartbeat_at`

// Create creates a new task.
func (r *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	return r.insert(ctx, r.db.DB, t)
}

// CreateBatch creates several tasks in one transaction, so one evaluator
// pass either lands all tasks of a batch or none.
func (r *TaskRepository) CreateBatch(ctx context.Context, tasks []*task.Task) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, t := range tasks {
			if err := r.insert(ctx, tx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *TaskRepository) insert(ctx context.Context, db execer, t *task.Task) error {
	attempts, err := marshalJSON(t.Attempts)
	if err != nil {
		return fmt.Errorf("failed to marshal attempts: %w", err)
	}
	execErr, err := marshalJSON(t.Error)
	if err != nil {
		return fmt.Errorf("failed to marshal error: %w", err)
	}

	query := `
		INSERT INTO tasks (id, schedule_id, plugin_id, input_kind, input_keys, status,
			worker_id, result, error, attempts, output_file_key, organization,
			created_at, started_at, ended_at, heartbeat_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = db.ExecContext(ctx, query,
		t.ID, nullID(t.ScheduleID), t.PluginID, string(t.Input.Kind), pq.Array(t.Input.Keys),
		string(t.Status), nullString(t.WorkerID), []byte(t.Result), execErr, attempts,
		nullString(t.OutputFileKey), nullString(t.Organization),
		t.CreatedAt, nullTime(t.StartedAt), nullTime(t.EndedAt), nullTime(t.HeartbeatAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetByID retrieves a task by ID.
func (r *TaskRepository) GetByID(ctx context.Context, id shared.ID) (*task.Task, error) {
	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE id = $1`, taskColumns)

	t, err := r.scanTask(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, task.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// List lists tasks with filters and pagination.
func (r *TaskRepository) List(ctx context.Context, filter task.Filter, pg pagination.Pagination) (pagination.Result[*task.Task], error) {
	where := "1=1"
	args := []any{}
	argn := 0

	if filter.ScheduleID != nil {
		argn++
		where += fmt.Sprintf(" AND schedule_id = $%d", argn)
		args = append(args, *filter.ScheduleID)
	}
	if filter.PluginID != "" {
		argn++
		where += fmt.Sprintf(" AND plugin_id = $%d", argn)
		args = append(args, filter.PluginID)
	}
	if filter.Status != nil {
		argn++
		where += fmt.Sprintf(" AND status = $%d", argn)
		args = append(args, string(*filter.Status))
	}
	if filter.Organization != "" {
		argn++
		where += fmt.Sprintf(" AND organization = $%d", argn)
		args = append(args, filter.Organization)
	}

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM tasks WHERE %s`, where)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return pagination.Result[*task.Task]{}, fmt.Errorf("failed to count tasks: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		taskColumns, where, argn+1, argn+2)
	args = append(args, pg.Limit(), pg.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return pagination.Result[*task.Task]{}, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*task.Task, 0)
	for rows.Next() {
		t, err := r.scanTask(rows)
		if err != nil {
			return pagination.Result[*task.Task]{}, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return pagination.Result[*task.Task]{}, err
	}
	return pagination.NewResult(tasks, total, pg), nil
}

// ClaimPending atomically transitions a pending task to running under the
// given worker. The status guard in the WHERE clause is the claim: only one
// worker's UPDATE matches.
func (r *TaskRepository) ClaimPending(ctx context.Context, id shared.ID, workerID string, now time.Time) (bool, error) {
	query := `
		UPDATE tasks
		SET status = 'running',
			worker_id = $2,
			started_at = $3,
			heartbeat_at = $3,
			attempts = attempts || jsonb_build_array(jsonb_build_object(
				'worker_id', $2::text,
				'started_at', to_jsonb($3::timestamptz)
			))
		WHERE id = $1 AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query, id, workerID, now)
	if err != nil {
		return false, fmt.Errorf("failed to claim task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Heartbeat refreshes the liveness deadline of a running task owned by the
// given worker.
func (r *TaskRepository) Heartbeat(ctx context.Context, id shared.ID, workerID string, now time.Time) error {
	query := `
		UPDATE tasks SET heartbeat_at = $3
		WHERE id = $1 AND worker_id = $2 AND status = 'running'
	`
	result, err := r.db.ExecContext(ctx, query, id, workerID, now)
	if err != nil {
		return fmt.Errorf("failed to heartbeat task: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return shared.NewDomainError("CLAIM_LOST", "task is no longer running under this worker", shared.ErrConflict)
	}
	return nil
}

// Complete transitions a running task to completed.
func (r *TaskRepository) Complete(ctx context.Context, id shared.ID, result json.RawMessage, outputFileKey string, now time.Time) error {
	query := `
		UPDATE tasks
		SET status = 'completed',
			result = $2,
			output_file_key = $3,
			ended_at = $4,
			attempts = closed_attempts(attempts, $4::timestamptz, NULL)
		WHERE id = $1 AND status = 'running'
	`
	res, err := r.db.ExecContext(ctx, query, id, []byte(result), nullString(outputFileKey), now)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shared.NewDomainError("INVALID_TRANSITION", "only a running task can complete", shared.ErrConflict)
	}
	return nil
}

// Fail transitions a running task to failed with a structured error.
func (r *TaskRepository) Fail(ctx context.Context, id shared.ID, execErr task.ExecError, now time.Time) error {
	payload, err := json.Marshal(execErr)
	if err != nil {
		return fmt.Errorf("failed to marshal error: %w", err)
	}

	query := `
		UPDATE tasks
		SET status = 'failed',
			error = $2,
			ended_at = $3,
			attempts = closed_attempts(attempts, $3::timestamptz, $2::jsonb)
		WHERE id = $1 AND status = 'running'
	`
	res, err := r.db.ExecContext(ctx, query, id, payload, now)
	if err != nil {
		return fmt.Errorf("failed to fail task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shared.NewDomainError("INVALID_TRANSITION", "only a running task can fail", shared.ErrConflict)
	}
	return nil
}

// Cancel transitions a pending or running task to cancelled. Returns false
// when the task already reached a terminal state.
func (r *TaskRepository) Cancel(ctx context.Context, id shared.ID, now time.Time) (bool, error) {
	query := `
		UPDATE tasks
		SET status = 'cancelled',
			ended_at = $2,
			attempts = closed_attempts(attempts, $2::timestamptz, NULL)
		WHERE id = $1 AND status IN ('pending', 'running')
	`
	result, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to cancel task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Requeue transitions a failed task back to pending. The error payload and
// attempt history stay in place as the audit trail of earlier runs.
func (r *TaskRepository) Requeue(ctx context.Context, id shared.ID) error {
	query := `
		UPDATE tasks
		SET status = 'pending',
			worker_id = NULL,
			started_at = NULL,
			ended_at = NULL,
			heartbeat_at = NULL
		WHERE id = $1 AND status = 'failed'
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to requeue task: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return shared.NewDomainError("INVALID_TRANSITION", "only a failed task can be requeued", shared.ErrConflict)
	}
	return nil
}

// ReclaimStale forces running tasks whose heartbeat is older than the
// deadline to failed with the worker_lost error class.
func (r *TaskRepository) ReclaimStale(ctx context.Context, deadline time.Time, now time.Time) ([]shared.ID, error) {
	execErr, err := json.Marshal(task.ExecError{
		Class:   task.ErrorClassWorkerLost,
		Message: "worker heartbeat expired",
	})
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE tasks
		SET status = 'failed',
			error = $1,
			ended_at = $3,
			attempts = closed_attempts(attempts, $3::timestamptz, $1::jsonb)
		WHERE status = 'running' AND heartbeat_at < $2
		RETURNING id
	`
	rows, err := r.db.QueryContext(ctx, query, execErr, deadline, now)
	if err != nil {
		return nil, fmt.Errorf("failed to reclaim stale tasks: %w", err)
	}
	defer rows.Close()

	var ids []shared.ID
	for rows.Next() {
		var id shared.ID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListPendingBefore returns IDs of tasks still pending since before the
// given time, oldest first.
func (r *TaskRepository) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]shared.ID, error) {
	query := `
		SELECT id FROM tasks
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending tasks: %w", err)
	}
	defer rows.Close()

	var ids []shared.ID
	for rows.Next() {
		var id shared.ID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ActiveInputKeys returns the input keys covered by pending or running
// tasks of the given (schedule, plugin) pair created after since.
func (r *TaskRepository) ActiveInputKeys(ctx context.Context, scheduleID shared.ID, pluginID string, since time.Time) (map[string]struct{}, error) {
	query := `
		SELECT DISTINCT unnest(input_keys)
		FROM tasks
		WHERE schedule_id = $1 AND plugin_id = $2
			AND status IN ('pending', 'running')
			AND created_at >= $3
	`
	rows, err := r.db.QueryContext(ctx, query, scheduleID, pluginID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query active input keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys[key] = struct{}{}
	}
	return keys, rows.Err()
}

func (r *TaskRepository) scanTask(row rowScanner) (*task.Task, error) {
	var (
		t             task.Task
		scheduleID    sql.NullString
		inputKind     string
		inputKeys     pq.StringArray
		status        string
		workerID      sql.NullString
		result        []byte
		execErr       []byte
		attempts      []byte
		outputFileKey sql.NullString
		organization  sql.NullString
		startedAt     sql.NullTime
		endedAt       sql.NullTime
		heartbeatAt   sql.NullTime
	)

	if err := row.Scan(
		&t.ID, &scheduleID, &t.PluginID, &inputKind, &inputKeys, &status,
		&workerID, &result, &execErr, &attempts, &outputFileKey, &organization,
		&t.CreatedAt, &startedAt, &endedAt, &heartbeatAt,
	); err != nil {
		return nil, err
	}

	t.ScheduleID = parseNullID(scheduleID)
	t.Input = task.Input{Kind: task.InputKind(inputKind), Keys: []string(inputKeys)}
	t.Status = task.Status(status)
	t.WorkerID = nullStringValue(workerID)
	t.Result = json.RawMessage(result)
	if err := unmarshalJSON(execErr, &t.Error); err != nil {
		return nil, fmt.Errorf("failed to unmarshal error: %w", err)
	}
	if err := unmarshalJSON(attempts, &t.Attempts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attempts: %w", err)
	}
	t.OutputFileKey = nullStringValue(outputFileKey)
	t.Organization = nullStringValue(organization)
	t.StartedAt = nullTimeValue(startedAt)
	t.EndedAt = nullTimeValue(endedAt)
	t.HeartbeatAt = nullTimeValue(heartbeatAt)
	return &t, nil
}
