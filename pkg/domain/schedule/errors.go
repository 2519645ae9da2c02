package schedule

import (
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
)

// ErrNotFound is returned when a schedule does not exist.
var ErrNotFound = shared.NewDomainError("SCHEDULE_NOT_FOUND", "schedule not found", shared.ErrNotFound)
