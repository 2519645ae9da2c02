package task

import (
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
)

// ErrNotFound is returned when a task does not exist.
var ErrNotFound = shared.NewDomainError("TASK_NOT_FOUND", "task not found", shared.ErrNotFound)
