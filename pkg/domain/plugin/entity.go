// Package plugin defines the Plugin descriptor: an immutable-per-version
// description of a containerized scanning tool.
package plugin

import (
	"strings"
	"time"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
)

// DefaultBatchSize is the number of input members grouped into one task
// when a plugin does not declare its own batch size.
const DefaultBatchSize = 50

// ScanLevel is the ordinal clearance a plugin requires on its target.
// Level 0 is passive, level 4 the most intrusive.
type ScanLevel int

// Scan levels.
const (
	ScanLevelDoNotScan ScanLevel = iota
	ScanLevelDiscovery
	ScanLevelNormal
	ScanLevelDetect
	ScanLevelIntense
)

// IsValid checks if the scan level is within range.
func (l ScanLevel) IsValid() bool {
	return l >= ScanLevelDoNotScan && l <= ScanLevelIntense
}

// Grant actions a plugin may declare. The baseline and input-scoped grants
// are computed per task; these constants name the API operations.
const (
	ActionFileCreate   = "file:create"
	ActionFileRead     = "file:read"
	ActionObjectRead   = "object:read"
	ActionObjectQuery  = "object:query"
	ActionObjectCreate = "object:create"
)

// Grant is a declared permission requirement, optionally restricted by a
// key allow-list, a query filter, or a result-count limit.
type Grant struct {
	Action string   `json:"action" yaml:"action"`
	Keys   []string `json:"keys,omitempty" yaml:"keys,omitempty"`
	Filter string   `json:"filter,omitempty" yaml:"filter,omitempty"`
	Limit  int      `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// Plugin describes one version of a containerized scanning tool. Plugins are
// written by the out-of-band sync step and referenced, never mutated, by
// tasks and schedules.
type Plugin struct {
	ID          shared.ID
	PluginID    string // natural identifier, e.g. "dns-lookup"
	Name        string
	Description string

	ScanLevel ScanLevel
	Consumes  []string // object types or "file:<type>" kinds this plugin takes as input

	OCIImage     string
	OCIArguments []string // argument template, may contain placeholders

	Grants    []Grant
	BatchSize int // 0 means DefaultBatchSize

	// Default recurrence for schedules created from this plugin. Interval is
	// in minutes; Cron, when set, wins.
	Interval int
	Cron     string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a new Plugin descriptor.
func New(pluginID, name, ociImage string, scanLevel ScanLevel) (*Plugin, error) {
	if pluginID == "" {
		return nil, shared.NewDomainError("VALIDATION", "plugin_id is required", shared.ErrValidation)
	}
	if name == "" {
		return nil, shared.NewDomainError("VALIDATION", "name is required", shared.ErrValidation)
	}
	if ociImage == "" {
		return nil, shared.NewDomainError("VALIDATION", "oci_image is required", shared.ErrValidation)
	}
	if !scanLevel.IsValid() {
		return nil, shared.NewDomainError("VALIDATION", "invalid scan_level", shared.ErrValidation)
	}

	now := time.Now()
	return &Plugin{
		ID:        shared.NewID(),
		PluginID:  pluginID,
		Name:      name,
		ScanLevel: scanLevel,
		OCIImage:  ociImage,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// EffectiveBatchSize returns the declared batch size or the default.
func (p *Plugin) EffectiveBatchSize() int {
	if p.BatchSize > 0 {
		return p.BatchSize
	}
	return DefaultBatchSize
}

// ConsumesObjectType checks whether the plugin takes the given object type
// as input.
func (p *Plugin) ConsumesObjectType(objectType string) bool {
	for _, c := range p.Consumes {
		if c == objectType {
			return true
		}
	}
	return false
}

// ConsumesFileType checks whether the plugin takes produced files of the
// given type as input ("file:<type>" entries in Consumes).
func (p *Plugin) ConsumesFileType(fileType string) bool {
	for _, c := range p.Consumes {
		if strings.HasPrefix(c, "file:") && strings.TrimPrefix(c, "file:") == fileType {
			return true
		}
	}
	return false
}

// DefaultRecurrence returns the cron expression schedules created from this
// plugin should use, or empty when the plugin declares none.
func (p *Plugin) DefaultRecurrence() string {
	if p.Cron != "" {
		return p.Cron
	}
	if p.Interval > 0 {
		return "@every " + time.Duration(p.Interval*int(time.Minute)).String()
	}
	return ""
}
