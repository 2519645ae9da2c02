// Package schedule defines the binding of a plugin to an object set with a
// recurrence rule. A schedule is the sole source of truth for whether a unit
// of work should run.
package schedule

import (
	"time"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/recurrence"
)

// Schedule binds a plugin to an object set with a recurrence rule.
type Schedule struct {
	ID          shared.ID
	PluginID    string
	ObjectSetID shared.ID
	Recurrence  string // cron expression, including @every/@daily descriptors
	Enabled     bool

	// Organization optionally scopes the schedule to one tenant. Empty means
	// the schedule applies globally.
	Organization string

	// LastEvaluatedAt is an explicit evaluation cursor. It is advanced by the
	// evaluator after a successful pass and is never re-derived from task
	// timestamps, so task deletion or backfill cannot move it.
	LastEvaluatedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a new Schedule. The recurrence rule is validated eagerly so a
// broken rule is rejected at creation rather than silently skipped by the
// evaluator forever.
func New(pluginID string, objectSetID shared.ID, rule string) (*Schedule, error) {
	if pluginID == "" {
		return nil, shared.NewDomainError("VALIDATION", "plugin_id is required", shared.ErrValidation)
	}
	if objectSetID.IsZero() {
		return nil, shared.NewDomainError("VALIDATION", "object_set_id is required", shared.ErrValidation)
	}
	if _, err := recurrence.Parse(rule); err != nil {
		return nil, shared.NewDomainError("VALIDATION", "invalid recurrence rule", shared.ErrValidation)
	}

	now := time.Now()
	return &Schedule{
		ID:          shared.NewID(),
		PluginID:    pluginID,
		ObjectSetID: objectSetID,
		Recurrence:  rule,
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// WindowStart returns the start of the evaluation window: the cursor when
// set, the creation time otherwise.
func (s *Schedule) WindowStart() time.Time {
	if s.LastEvaluatedAt != nil {
		return *s.LastEvaluatedAt
	}
	return s.CreatedAt
}

// MarkEvaluated advances the evaluation cursor.
func (s *Schedule) MarkEvaluated(at time.Time) {
	s.LastEvaluatedAt = &at
	s.UpdatedAt = at
}

// Enable enables the schedule.
func (s *Schedule) Enable() {
	s.Enabled = true
	s.UpdatedAt = time.Now()
}

// Disable disables the schedule.
func (s *Schedule) Disable() {
	s.Enabled = false
	s.UpdatedAt = time.Now()
}
