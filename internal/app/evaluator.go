package app

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/infra/catalog"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/metrics"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/objectset"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/plugin"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/schedule"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/task"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/logger"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/recurrence"
)

// ObjectCatalog is the slice of the catalog API the evaluator needs to
// materialize object-set membership.
type ObjectCatalog interface {
	QueryObjects(ctx context.Context, objectType, query string, minClearance int) ([]catalog.Object, error)
	GetObjects(ctx context.Context, objectType string, keys []string) ([]catalog.Object, error)
}

// ScheduleLocker hands out per-schedule advisory locks so one evaluation
// pass per schedule runs at a time across evaluator instances.
type ScheduleLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, func(context.Context) error, error)
}

// TaskEnqueuer dispatches created tasks to the worker pool.
type TaskEnqueuer interface {
	EnqueueTaskRun(ctx context.Context, taskID string) error
}

// EvaluatorConfig holds evaluator settings.
type EvaluatorConfig struct {
	TickInterval time.Duration
	LockTTL      time.Duration
	DedupWindow  time.Duration
}

// Evaluator periodically expands enabled schedules into pending tasks.
type Evaluator struct {
	schedules schedule.Repository
	plugins   plugin.Repository
	sets      objectset.Repository
	tasks     task.Repository
	catalog   ObjectCatalog
	locker    ScheduleLocker
	enqueuer  TaskEnqueuer
	cfg       EvaluatorConfig
	logger    *logger.Logger

	now func() time.Time
}

// NewEvaluator creates a schedule evaluator.
func NewEvaluator(
	schedules schedule.Repository,
	plugins plugin.Repository,
	sets objectset.Repository,
	tasks task.Repository,
	cat ObjectCatalog,
	locker ScheduleLocker,
	enqueuer TaskEnqueuer,
	cfg EvaluatorConfig,
	log *logger.Logger,
) *Evaluator {
	return &Evaluator{
		schedules: schedules,
		plugins:   plugins,
		sets:      sets,
		tasks:     tasks,
		catalog:   cat,
		locker:    locker,
		enqueuer:  enqueuer,
		cfg:       cfg,
		logger:    log.With("component", "evaluator"),
		now:       time.Now,
	}
}

// Start runs the tick loop until the context is done.
func (e *Evaluator) Start(ctx context.Context) {
	e.logger.Info("evaluator started", "tick_interval", e.cfg.TickInterval.String())

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("evaluator stopped")
			return
		case <-ticker.C:
			e.EvaluateAll(ctx)
		}
	}
}

// EvaluateAll runs one evaluation pass over every enabled schedule. A
// broken schedule is logged and skipped; it never aborts the pass.
func (e *Evaluator) EvaluateAll(ctx context.Context) {
	ctx, span := otel.Tracer("app/evaluator").Start(ctx, "evaluator.pass")
	defer span.End()

	schedules, err := e.schedules.ListEnabled(ctx)
	if err != nil {
		e.logger.Error("failed to list enabled schedules", "error", err)
		return
	}

	for _, s := range schedules {
		if err := e.evaluateSchedule(ctx, s); err != nil {
			e.logger.Error("schedule evaluation failed",
				"schedule_id", s.ID.String(),
				"plugin_id", s.PluginID,
				"error", err,
			)
		}
	}
	metrics.EvaluatorPassesTotal.Inc()
}

func (e *Evaluator) evaluateSchedule(ctx context.Context, s *schedule.Schedule) error {
	locked, release, err := e.locker.TryLock(ctx, "schedule:"+s.ID.String(), e.cfg.LockTTL)
	if err != nil {
		return err
	}
	if !locked {
		metrics.EvaluatorSchedulesSkippedTotal.WithLabelValues("locked").Inc()
		return nil
	}
	defer func() {
		if err := release(ctx); err != nil {
			e.logger.Warn("failed to release schedule lock", "schedule_id", s.ID.String(), "error", err)
		}
	}()

	rule, err := recurrence.Parse(s.Recurrence)
	if err != nil {
		metrics.EvaluatorSchedulesSkippedTotal.WithLabelValues("invalid_rule").Inc()
		e.logger.Warn("skipping schedule with invalid recurrence rule",
			"schedule_id", s.ID.String(), "rule", s.Recurrence, "error", err)
		return nil
	}

	now := e.now()
	window := recurrence.Window{Start: s.WindowStart(), End: now}
	if len(rule.Occurrences(window)) == 0 {
		return nil
	}

	p, err := e.plugins.GetByPluginID(ctx, s.PluginID)
	if err != nil {
		metrics.EvaluatorSchedulesSkippedTotal.WithLabelValues("plugin_missing").Inc()
		e.logger.Warn("skipping schedule for unknown plugin",
			"schedule_id", s.ID.String(), "plugin_id", s.PluginID)
		return nil
	}

	set, err := e.sets.GetByID(ctx, s.ObjectSetID)
	if err != nil {
		metrics.EvaluatorSchedulesSkippedTotal.WithLabelValues("objectset_missing").Inc()
		e.logger.Warn("skipping schedule for unknown object set",
			"schedule_id", s.ID.String(), "object_set_id", s.ObjectSetID.String())
		return nil
	}

	if len(p.Consumes) == 0 {
		// Input-less plugin: a due occurrence means one run, no membership
		// to resolve.
		if err := e.createTasks(ctx, s, p, []task.Input{task.NoInput()}); err != nil {
			return err
		}
		return e.schedules.UpdateCursor(ctx, s.ID, now)
	}

	members, err := e.resolveMembers(ctx, p, set)
	if err != nil {
		metrics.EvaluatorSchedulesSkippedTotal.WithLabelValues("query_failed").Inc()
		e.logger.Warn("skipping schedule after object set query failure",
			"schedule_id", s.ID.String(), "object_set", set.Name, "error", err)
		return nil
	}

	// The coverage lookback reaches at least DedupWindow behind now: a
	// still-pending task created in an earlier window keeps suppressing
	// re-creation even after the cursor moved past it.
	since := now.Add(-e.cfg.DedupWindow)
	if window.Start.Before(since) {
		since = window.Start
	}
	covered, err := e.tasks.ActiveInputKeys(ctx, s.ID, s.PluginID, since)
	if err != nil {
		return err
	}

	fresh := members[:0:0]
	for _, key := range members {
		if _, ok := covered[key]; ok {
			metrics.EvaluatorMembersExcludedTotal.WithLabelValues("active_task").Inc()
			continue
		}
		fresh = append(fresh, key)
	}

	if len(fresh) > 0 {
		inputs := make([]task.Input, 0, (len(fresh)+p.EffectiveBatchSize()-1)/p.EffectiveBatchSize())
		for start := 0; start < len(fresh); start += p.EffectiveBatchSize() {
			end := min(start+p.EffectiveBatchSize(), len(fresh))
			inputs = append(inputs, task.ObjectInput(fresh[start:end]...))
		}
		if err := e.createTasks(ctx, s, p, inputs); err != nil {
			return err
		}
	}

	return e.schedules.UpdateCursor(ctx, s.ID, now)
}

// resolveMembers materializes the object set's current membership, gated by
// the plugin's scan level: explicit static keys plus stored-query results,
// or every object of the type when the set declares neither. Objects whose
// clearance is below the plugin's scan level are excluded.
func (e *Evaluator) resolveMembers(ctx context.Context, p *plugin.Plugin, set *objectset.ObjectSet) ([]string, error) {
	minClearance := int(p.ScanLevel)

	var members []string
	seen := make(map[string]struct{})
	add := func(key string) {
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			members = append(members, key)
		}
	}

	if len(set.StaticKeys) > 0 {
		objects, err := e.catalog.GetObjects(ctx, set.ObjectType, set.StaticKeys)
		if err != nil {
			return nil, err
		}
		byKey := make(map[string]catalog.Object, len(objects))
		for _, o := range objects {
			byKey[o.Key] = o
		}
		for _, key := range set.StaticKeys {
			o, ok := byKey[key]
			if !ok {
				metrics.EvaluatorMembersExcludedTotal.WithLabelValues("unknown_object").Inc()
				continue
			}
			if o.Clearance < minClearance {
				metrics.EvaluatorMembersExcludedTotal.WithLabelValues("clearance").Inc()
				continue
			}
			add(key)
		}
	}

	if set.Query != "" || len(set.StaticKeys) == 0 {
		objects, err := e.catalog.QueryObjects(ctx, set.ObjectType, set.Query, minClearance)
		if err != nil {
			return nil, err
		}
		for _, o := range objects {
			add(o.Key)
		}
	}

	return members, nil
}

func (e *Evaluator) createTasks(ctx context.Context, s *schedule.Schedule, p *plugin.Plugin, inputs []task.Input) error {
	tasks := make([]*task.Task, 0, len(inputs))
	for _, input := range inputs {
		t, err := task.New(p.PluginID, input)
		if err != nil {
			return err
		}
		t.SetScheduleID(s.ID)
		t.Organization = s.Organization
		tasks = append(tasks, t)
	}

	if err := e.tasks.CreateBatch(ctx, tasks); err != nil {
		return err
	}

	for _, t := range tasks {
		metrics.TasksCreatedTotal.WithLabelValues(p.PluginID).Inc()
		if err := e.enqueuer.EnqueueTaskRun(ctx, t.ID.String()); err != nil {
			// The ledger row exists; the sweeper re-dispatches pending
			// tasks whose queue hop was lost.
			e.logger.Error("failed to enqueue created task",
				"task_id", t.ID.String(), "error", err)
		}
	}

	e.logger.Info("tasks created",
		"schedule_id", s.ID.String(),
		"plugin_id", p.PluginID,
		"count", len(tasks),
	)
	return nil
}
