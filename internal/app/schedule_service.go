package app

import (
	"context"
	"time"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/objectset"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/plugin"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/schedule"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/logger"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/pagination"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/recurrence"
)

// ScheduleService manages schedules and the object sets they select.
type ScheduleService struct {
	schedules schedule.Repository
	sets      objectset.Repository
	plugins   plugin.Repository
	logger    *logger.Logger
}

// NewScheduleService creates a ScheduleService.
func NewScheduleService(
	schedules schedule.Repository,
	sets objectset.Repository,
	plugins plugin.Repository,
	log *logger.Logger,
) *ScheduleService {
	return &ScheduleService{
		schedules: schedules,
		sets:      sets,
		plugins:   plugins,
		logger:    log.With("component", "schedule_service"),
	}
}

// CreateScheduleInput carries the fields of a new schedule. An empty
// recurrence falls back to the plugin's declared default.
type CreateScheduleInput struct {
	PluginID     string
	ObjectSetID  shared.ID
	Recurrence   string
	Organization string
}

// CreateSchedule creates a schedule after verifying the plugin and object
// set exist and the rule parses.
func (s *ScheduleService) CreateSchedule(ctx context.Context, input CreateScheduleInput) (*schedule.Schedule, error) {
	p, err := s.plugins.GetByPluginID(ctx, input.PluginID)
	if err != nil {
		return nil, err
	}
	if _, err := s.sets.GetByID(ctx, input.ObjectSetID); err != nil {
		return nil, err
	}

	rule := input.Recurrence
	if rule == "" {
		rule = p.DefaultRecurrence()
	}
	if rule == "" {
		return nil, shared.NewDomainError("VALIDATION", "recurrence is required: plugin declares no default", shared.ErrValidation)
	}

	sched, err := schedule.New(input.PluginID, input.ObjectSetID, rule)
	if err != nil {
		return nil, err
	}
	sched.Organization = input.Organization

	if err := s.schedules.Create(ctx, sched); err != nil {
		return nil, err
	}

	s.logger.Info("schedule created",
		"schedule_id", sched.ID.String(),
		"plugin_id", sched.PluginID,
		"recurrence", sched.Recurrence,
	)
	return sched, nil
}

// GetSchedule retrieves a schedule by ID.
func (s *ScheduleService) GetSchedule(ctx context.Context, id shared.ID) (*schedule.Schedule, error) {
	return s.schedules.GetByID(ctx, id)
}

// ListSchedules lists schedules with filters.
func (s *ScheduleService) ListSchedules(ctx context.Context, filter schedule.Filter, page pagination.Pagination) (pagination.Result[*schedule.Schedule], error) {
	return s.schedules.List(ctx, filter, page)
}

// UpdateRecurrence replaces a schedule's recurrence rule.
func (s *ScheduleService) UpdateRecurrence(ctx context.Context, id shared.ID, rule string) (*schedule.Schedule, error) {
	if _, err := recurrence.Parse(rule); err != nil {
		return nil, shared.NewDomainError("VALIDATION", "invalid recurrence rule", shared.ErrValidation)
	}

	sched, err := s.schedules.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	sched.Recurrence = rule
	sched.UpdatedAt = time.Now()

	if err := s.schedules.Update(ctx, sched); err != nil {
		return nil, err
	}
	return sched, nil
}

// SetEnabled flips a schedule's enabled flag. The flag is the sole switch
// for whether the schedule's work runs; plugins carry no enable state.
func (s *ScheduleService) SetEnabled(ctx context.Context, id shared.ID, enabled bool) error {
	if err := s.schedules.SetEnabled(ctx, id, enabled); err != nil {
		return err
	}
	s.logger.Info("schedule toggled", "schedule_id", id.String(), "enabled", enabled)
	return nil
}

// DeleteSchedule deletes a schedule.
func (s *ScheduleService) DeleteSchedule(ctx context.Context, id shared.ID) error {
	return s.schedules.Delete(ctx, id)
}

// CreateObjectSetInput carries the fields of a new object set.
type CreateObjectSetInput struct {
	Name       string
	ObjectType string
	Query      string
	StaticKeys []string
}

// CreateObjectSet creates an object set.
func (s *ScheduleService) CreateObjectSet(ctx context.Context, input CreateObjectSetInput) (*objectset.ObjectSet, error) {
	set, err := objectset.New(input.Name, input.ObjectType)
	if err != nil {
		return nil, err
	}
	set.Query = input.Query
	set.StaticKeys = input.StaticKeys

	if err := s.sets.Create(ctx, set); err != nil {
		return nil, err
	}
	s.logger.Info("object set created", "object_set_id", set.ID.String(), "name", set.Name)
	return set, nil
}

// GetObjectSet retrieves an object set by ID.
func (s *ScheduleService) GetObjectSet(ctx context.Context, id shared.ID) (*objectset.ObjectSet, error) {
	return s.sets.GetByID(ctx, id)
}

// ListObjectSets lists object sets.
func (s *ScheduleService) ListObjectSets(ctx context.Context, page pagination.Pagination) (pagination.Result[*objectset.ObjectSet], error) {
	return s.sets.List(ctx, page)
}

// UpdateObjectSet replaces an object set's selection.
func (s *ScheduleService) UpdateObjectSet(ctx context.Context, id shared.ID, input CreateObjectSetInput) (*objectset.ObjectSet, error) {
	set, err := s.sets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	set.Name = input.Name
	set.ObjectType = input.ObjectType
	set.Query = input.Query
	set.StaticKeys = input.StaticKeys
	set.UpdatedAt = time.Now()

	if err := s.sets.Update(ctx, set); err != nil {
		return nil, err
	}
	return set, nil
}

// DeleteObjectSet deletes an object set.
func (s *ScheduleService) DeleteObjectSet(ctx context.Context, id shared.ID) error {
	return s.sets.Delete(ctx, id)
}
