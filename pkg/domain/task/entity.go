// Package task defines the Task ledger entity: one unit of work and its
// lifecycle state machine.
package task

import (
	"encoding/json"
	"time"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
)

// Status represents the lifecycle state of a task.
type Status string

// Task statuses. Transitions are monotonic: pending -> running ->
// completed|failed, cancelled from pending or running, and an
// operator-triggered requeue from failed back to pending.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ErrorClass classifies why a task failed.
type ErrorClass string

// Failure classes.
const (
	ErrorClassExitCode   ErrorClass = "exit_code"     // sandbox exited non-zero
	ErrorClassTimeout    ErrorClass = "timeout"       // wall-clock timeout, sandbox killed
	ErrorClassShim       ErrorClass = "shim_protocol" // shim-level API or protocol failure
	ErrorClassWorkerLost ErrorClass = "worker_lost"   // worker crashed, reclaimed by liveness sweep
	ErrorClassInternal   ErrorClass = "internal"      // scheduler-side error before/around the sandbox
)

// InputKind describes what a task's input keys refer to.
type InputKind string

// Input kinds.
const (
	InputNone    InputKind = "none"
	InputObjects InputKind = "objects"
	InputFiles   InputKind = "files"
)

// Input is the task's input descriptor: no input, a list of object keys, or
// a list of produced-file keys.
type Input struct {
	Kind InputKind `json:"kind"`
	Keys []string  `json:"keys,omitempty"`
}

// NoInput returns the empty input descriptor.
func NoInput() Input {
	return Input{Kind: InputNone}
}

// ObjectInput returns an input descriptor over object keys.
func ObjectInput(keys ...string) Input {
	return Input{Kind: InputObjects, Keys: keys}
}

// FileInput returns an input descriptor over produced-file keys.
func FileInput(keys ...string) Input {
	return Input{Kind: InputFiles, Keys: keys}
}

// OutputKey returns the catalog key of a task's raw-output file. The shim
// uploads under this key and the scheduler records it, so both sides must
// derive it the same way.
func OutputKey(taskID string) string {
	return "task-" + taskID + "-output"
}

// ExecError is the structured failure payload of an attempt.
type ExecError struct {
	Class      ErrorClass `json:"class"`
	ExitCode   int        `json:"exit_code,omitempty"`
	StderrTail string     `json:"stderr_tail,omitempty"`
	Message    string     `json:"message,omitempty"`
}

// Attempt records one execution attempt. Attempts are append-only so a
// requeued task keeps the audit trail of every failure.
type Attempt struct {
	WorkerID  string     `json:"worker_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Error     *ExecError `json:"error,omitempty"`
}

// Task is one unit of work in the ledger.
type Task struct {
	ID         shared.ID
	ScheduleID *shared.ID // nil for ad-hoc runs
	PluginID   string
	Input      Input

	Status   Status
	WorkerID string // worker holding the claim while running

	// Result holds the structured success payload; Error the failure payload
	// of the latest attempt. Terminal tasks are immutable except for these
	// append-only fields.
	Result   json.RawMessage
	Error    *ExecError
	Attempts []Attempt

	// OutputFileKey references the raw-output file the shim uploads, when
	// the sandbox produced output. The key is deterministic (OutputKey) so
	// the scheduler can record it without a report-back channel; a run with
	// empty stdout simply leaves no file behind it.
	OutputFileKey string

	Organization string

	CreatedAt   time.Time
	StartedAt   *time.Time
	EndedAt     *time.Time
	HeartbeatAt *time.Time
}

// New creates a new pending task.
func New(pluginID string, input Input) (*Task, error) {
	if pluginID == "" {
		return nil, shared.NewDomainError("VALIDATION", "plugin_id is required", shared.ErrValidation)
	}
	if input.Kind == "" {
		input = NoInput()
	}
	if input.Kind != InputNone && len(input.Keys) == 0 {
		return nil, shared.NewDomainError("VALIDATION", "input keys are required for non-empty input", shared.ErrValidation)
	}

	return &Task{
		ID:        shared.NewID(),
		PluginID:  pluginID,
		Input:     input,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}, nil
}

// SetScheduleID attaches the owning schedule.
func (t *Task) SetScheduleID(id shared.ID) {
	t.ScheduleID = &id
}

// Claim transitions the task to running under the given worker. Only a
// pending task can be claimed.
func (t *Task) Claim(workerID string, now time.Time) error {
	if t.Status != StatusPending {
		return shared.NewDomainError("CLAIM_CONFLICT", "task is not pending", shared.ErrConflict)
	}
	t.Status = StatusRunning
	t.WorkerID = workerID
	t.StartedAt = &now
	t.HeartbeatAt = &now
	t.Attempts = append(t.Attempts, Attempt{WorkerID: workerID, StartedAt: now})
	return nil
}

// Complete transitions a running task to completed.
func (t *Task) Complete(result json.RawMessage, now time.Time) error {
	if t.Status != StatusRunning {
		return shared.NewDomainError("INVALID_TRANSITION", "only a running task can complete", shared.ErrConflict)
	}
	t.Status = StatusCompleted
	t.Result = result
	t.EndedAt = &now
	t.closeAttempt(now, nil)
	return nil
}

// Fail transitions a running task to failed with a structured error.
func (t *Task) Fail(execErr ExecError, now time.Time) error {
	if t.Status != StatusRunning {
		return shared.NewDomainError("INVALID_TRANSITION", "only a running task can fail", shared.ErrConflict)
	}
	t.Status = StatusFailed
	t.Error = &execErr
	t.EndedAt = &now
	t.closeAttempt(now, &execErr)
	return nil
}

// Cancel transitions a pending or running task to cancelled. Completed and
// failed tasks cannot be retroactively cancelled.
func (t *Task) Cancel(now time.Time) error {
	if t.Status != StatusPending && t.Status != StatusRunning {
		return shared.NewDomainError("INVALID_TRANSITION", "only a pending or running task can be cancelled", shared.ErrConflict)
	}
	t.Status = StatusCancelled
	t.EndedAt = &now
	t.closeAttempt(now, nil)
	return nil
}

// Requeue transitions a failed task back to pending for an explicit operator
// retry. The error payload and attempt history are preserved.
func (t *Task) Requeue() error {
	if t.Status != StatusFailed {
		return shared.NewDomainError("INVALID_TRANSITION", "only a failed task can be requeued", shared.ErrConflict)
	}
	t.Status = StatusPending
	t.WorkerID = ""
	t.StartedAt = nil
	t.EndedAt = nil
	t.HeartbeatAt = nil
	return nil
}

// Heartbeat refreshes the liveness deadline of a running task.
func (t *Task) Heartbeat(now time.Time) {
	if t.Status == StatusRunning {
		t.HeartbeatAt = &now
	}
}

// closeAttempt stamps the end of the latest open attempt, if any.
func (t *Task) closeAttempt(now time.Time, execErr *ExecError) {
	if len(t.Attempts) == 0 {
		return
	}
	last := &t.Attempts[len(t.Attempts)-1]
	if last.EndedAt == nil {
		last.EndedAt = &now
		last.Error = execErr
	}
}
