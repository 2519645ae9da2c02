package schedule

import (
	"context"
	"time"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/pagination"
)

// Filter represents filter options for listing schedules.
type Filter struct {
	PluginID     string
	Enabled      *bool
	Organization string
}

// Repository defines the interface for schedule persistence.
type Repository interface {
	// Create creates a new schedule.
	Create(ctx context.Context, s *Schedule) error

	// GetByID retrieves a schedule by ID.
	GetByID(ctx context.Context, id shared.ID) (*Schedule, error)

	// ListEnabled lists all enabled schedules, for one evaluator pass.
	ListEnabled(ctx context.Context) ([]*Schedule, error)

	// List lists schedules with filters and pagination.
	List(ctx context.Context, filter Filter, page pagination.Pagination) (pagination.Result[*Schedule], error)

	// Update updates a schedule.
	Update(ctx context.Context, s *Schedule) error

	// UpdateCursor advances the evaluation cursor without touching other
	// fields, so operator edits cannot race an evaluator pass.
	UpdateCursor(ctx context.Context, id shared.ID, evaluatedAt time.Time) error

	// SetEnabled flips the enabled flag.
	SetEnabled(ctx context.Context, id shared.ID, enabled bool) error

	// Delete deletes a schedule.
	Delete(ctx context.Context, id shared.ID) error
}
