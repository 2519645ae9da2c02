package attribution

import (
	"context"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/pagination"
)

// Filter narrows attribution listings.
type Filter struct {
	TaskID     *shared.ID
	PluginID   string
	ObjectKey  string
	ObjectType string
}

// Repository persists attribution records.
type Repository interface {
	// RecordBatch inserts the given records, silently skipping any that
	// duplicate an existing (task_id, object_key) pair. It returns the
	// number of records actually inserted.
	RecordBatch(ctx context.Context, records []*Attribution) (int, error)

	// ListByObject returns the provenance trail of one object key, newest
	// first.
	ListByObject(ctx context.Context, objectKey string, page pagination.Pagination) (pagination.Result[*Attribution], error)

	// ListByTask returns everything a task is known to have produced.
	ListByTask(ctx context.Context, taskID shared.ID) ([]*Attribution, error)

	// List lists attribution records with filters and pagination.
	List(ctx context.Context, filter Filter, page pagination.Pagination) (pagination.Result[*Attribution], error)
}
