package objectset

import (
	"context"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/pagination"
)

// Repository defines the interface for object set persistence.
type Repository interface {
	// Create creates a new object set.
	Create(ctx context.Context, set *ObjectSet) error

	// GetByID retrieves an object set by ID.
	GetByID(ctx context.Context, id shared.ID) (*ObjectSet, error)

	// GetByName retrieves an object set by name.
	GetByName(ctx context.Context, name string) (*ObjectSet, error)

	// List lists object sets with pagination.
	List(ctx context.Context, page pagination.Pagination) (pagination.Result[*ObjectSet], error)

	// Update updates an object set.
	Update(ctx context.Context, set *ObjectSet) error

	// Delete deletes an object set.
	Delete(ctx context.Context, id shared.ID) error
}
