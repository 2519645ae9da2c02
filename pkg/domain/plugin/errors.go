package plugin

import (
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
)

// ErrNotFound is returned when a plugin does not exist.
var ErrNotFound = shared.NewDomainError("PLUGIN_NOT_FOUND", "plugin not found", shared.ErrNotFound)
