// Package attribution defines provenance records linking produced data back
// to the task, plugin, and input object that generated it.
package attribution

import (
	"time"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
)

// Attribution is one provenance tuple: this task, running this plugin,
// produced data concerning this object. Records are write-once and
// idempotent on (task_id, object_key).
type Attribution struct {
	ID         shared.ID
	TaskID     shared.ID
	PluginID   string
	ObjectKey  string
	ObjectType string

	Organization string
	CreatedAt    time.Time
}

// New creates an attribution record.
func New(taskID shared.ID, pluginID, objectKey, objectType string) (*Attribution, error) {
	if pluginID == "" {
		return nil, shared.NewDomainError("VALIDATION", "plugin_id is required", shared.ErrValidation)
	}
	if objectKey == "" {
		return nil, shared.NewDomainError("VALIDATION", "object_key is required", shared.ErrValidation)
	}
	if objectType == "" {
		return nil, shared.NewDomainError("VALIDATION", "object_type is required", shared.ErrValidation)
	}

	return &Attribution{
		ID:         shared.NewID(),
		TaskID:     taskID,
		PluginID:   pluginID,
		ObjectKey:  objectKey,
		ObjectType: objectType,
		CreatedAt:  time.Now(),
	}, nil
}
