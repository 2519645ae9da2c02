package plugin

import (
	"context"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/pagination"
)

// Filter represents filter options for listing plugins.
type Filter struct {
	ScanLevel *ScanLevel
	Consumes  string
	Search    string
}

// Repository defines the interface for plugin persistence.
type Repository interface {
	// Upsert creates or replaces a plugin descriptor by its natural id.
	// Used by the out-of-band sync step; timestamps of existing rows are
	// preserved except UpdatedAt.
	Upsert(ctx context.Context, p *Plugin) error

	// GetByPluginID retrieves a plugin by its natural identifier.
	GetByPluginID(ctx context.Context, pluginID string) (*Plugin, error)

	// List lists plugins with filters and pagination.
	List(ctx context.Context, filter Filter, page pagination.Pagination) (pagination.Result[*Plugin], error)

	// Delete removes a plugin descriptor.
	Delete(ctx context.Context, pluginID string) error
}
