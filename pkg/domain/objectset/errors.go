package objectset

import (
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
)

// ErrNotFound is returned when an object set does not exist.
var ErrNotFound = shared.NewDomainError("OBJECT_SET_NOT_FOUND", "object set not found", shared.ErrNotFound)
