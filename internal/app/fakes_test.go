package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/infra/catalog"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/sandbox"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/attribution"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/objectset"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/plugin"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/schedule"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/task"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/logger"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/pagination"
)

func testLogger() *logger.Logger {
	return logger.NewDefault()
}

// fakeTaskRepo is an in-memory task.Repository backed by the entity state
// machine.
type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*task.Task
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: make(map[string]*task.Task)}
}

func (r *fakeTaskRepo) Create(_ context.Context, t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.ID.String()] = t
	return nil
}

func (r *fakeTaskRepo) CreateBatch(ctx context.Context, tasks []*task.Task) error {
	for _, t := range tasks {
		if err := r.Create(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeTaskRepo) GetByID(_ context.Context, id shared.ID) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id.String()]
	if !ok {
		return nil, task.ErrNotFound
	}
	return t, nil
}

func (r *fakeTaskRepo) List(_ context.Context, filter task.Filter, page pagination.Pagination) (pagination.Result[*task.Task], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := make([]*task.Task, 0)
	for _, t := range r.tasks {
		if filter.PluginID != "" && t.PluginID != filter.PluginID {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		matched = append(matched, t)
	}
	return pagination.NewResult(matched, int64(len(matched)), page), nil
}

func (r *fakeTaskRepo) ClaimPending(_ context.Context, id shared.ID, workerID string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id.String()]
	if !ok {
		return false, task.ErrNotFound
	}
	if err := t.Claim(workerID, now); err != nil {
		return false, nil
	}
	return true, nil
}

func (r *fakeTaskRepo) Heartbeat(_ context.Context, id shared.ID, workerID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id.String()]
	if !ok || t.Status != task.StatusRunning || t.WorkerID != workerID {
		return shared.NewDomainError("CLAIM_LOST", "task is no longer running under this worker", shared.ErrConflict)
	}
	t.Heartbeat(now)
	return nil
}

func (r *fakeTaskRepo) Complete(_ context.Context, id shared.ID, result json.RawMessage, outputFileKey string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id.String()]
	if !ok {
		return task.ErrNotFound
	}
	if err := t.Complete(result, now); err != nil {
		return err
	}
	t.OutputFileKey = outputFileKey
	return nil
}

func (r *fakeTaskRepo) Fail(_ context.Context, id shared.ID, execErr task.ExecError, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id.String()]
	if !ok {
		return task.ErrNotFound
	}
	return t.Fail(execErr, now)
}

func (r *fakeTaskRepo) Cancel(_ context.Context, id shared.ID, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id.String()]
	if !ok {
		return false, task.ErrNotFound
	}
	if err := t.Cancel(now); err != nil {
		return false, nil
	}
	return true, nil
}

func (r *fakeTaskRepo) Requeue(_ context.Context, id shared.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id.String()]
	if !ok {
		return task.ErrNotFound
	}
	return t.Requeue()
}

func (r *fakeTaskRepo) ReclaimStale(_ context.Context, deadline time.Time, now time.Time) ([]shared.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []shared.ID
	for _, t := range r.tasks {
		if t.Status == task.StatusRunning && t.HeartbeatAt != nil && t.HeartbeatAt.Before(deadline) {
			_ = t.Fail(task.ExecError{Class: task.ErrorClassWorkerLost, Message: "worker heartbeat expired"}, now)
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}

func (r *fakeTaskRepo) ListPendingBefore(_ context.Context, before time.Time, limit int) ([]shared.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []shared.ID
	for _, t := range r.tasks {
		if t.Status == task.StatusPending && t.CreatedAt.Before(before) && len(ids) < limit {
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}

func (r *fakeTaskRepo) ActiveInputKeys(_ context.Context, scheduleID shared.ID, pluginID string, since time.Time) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make(map[string]struct{})
	for _, t := range r.tasks {
		if t.ScheduleID == nil || !t.ScheduleID.Equals(scheduleID) || t.PluginID != pluginID {
			continue
		}
		if t.Status != task.StatusPending && t.Status != task.StatusRunning {
			continue
		}
		if t.CreatedAt.Before(since) {
			continue
		}
		for _, k := range t.Input.Keys {
			keys[k] = struct{}{}
		}
	}
	return keys, nil
}

func (r *fakeTaskRepo) all() []*task.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*task.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	return out
}

// fakePluginRepo is an in-memory plugin.Repository.
type fakePluginRepo struct {
	plugins map[string]*plugin.Plugin
}

func newFakePluginRepo(plugins ...*plugin.Plugin) *fakePluginRepo {
	r := &fakePluginRepo{plugins: make(map[string]*plugin.Plugin)}
	for _, p := range plugins {
		r.plugins[p.PluginID] = p
	}
	return r
}

func (r *fakePluginRepo) Upsert(_ context.Context, p *plugin.Plugin) error {
	r.plugins[p.PluginID] = p
	return nil
}

func (r *fakePluginRepo) GetByPluginID(_ context.Context, pluginID string) (*plugin.Plugin, error) {
	p, ok := r.plugins[pluginID]
	if !ok {
		return nil, plugin.ErrNotFound
	}
	return p, nil
}

func (r *fakePluginRepo) List(_ context.Context, _ plugin.Filter, page pagination.Pagination) (pagination.Result[*plugin.Plugin], error) {
	out := make([]*plugin.Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p)
	}
	return pagination.NewResult(out, int64(len(out)), page), nil
}

func (r *fakePluginRepo) Delete(_ context.Context, pluginID string) error {
	delete(r.plugins, pluginID)
	return nil
}

// fakeScheduleRepo is an in-memory schedule.Repository.
type fakeScheduleRepo struct {
	schedules map[string]*schedule.Schedule
}

func newFakeScheduleRepo(schedules ...*schedule.Schedule) *fakeScheduleRepo {
	r := &fakeScheduleRepo{schedules: make(map[string]*schedule.Schedule)}
	for _, s := range schedules {
		r.schedules[s.ID.String()] = s
	}
	return r
}

func (r *fakeScheduleRepo) Create(_ context.Context, s *schedule.Schedule) error {
	r.schedules[s.ID.String()] = s
	return nil
}

func (r *fakeScheduleRepo) GetByID(_ context.Context, id shared.ID) (*schedule.Schedule, error) {
	s, ok := r.schedules[id.String()]
	if !ok {
		return nil, schedule.ErrNotFound
	}
	return s, nil
}

func (r *fakeScheduleRepo) ListEnabled(_ context.Context) ([]*schedule.Schedule, error) {
	out := make([]*schedule.Schedule, 0)
	for _, s := range r.schedules {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeScheduleRepo) List(_ context.Context, _ schedule.Filter, page pagination.Pagination) (pagination.Result[*schedule.Schedule], error) {
	out := make([]*schedule.Schedule, 0, len(r.schedules))
	for _, s := range r.schedules {
		out = append(out, s)
	}
	return pagination.NewResult(out, int64(len(out)), page), nil
}

func (r *fakeScheduleRepo) Update(_ context.Context, s *schedule.Schedule) error {
	if _, ok := r.schedules[s.ID.String()]; !ok {
		return schedule.ErrNotFound
	}
	r.schedules[s.ID.String()] = s
	return nil
}

func (r *fakeScheduleRepo) UpdateCursor(_ context.Context, id shared.ID, evaluatedAt time.Time) error {
	s, ok := r.schedules[id.String()]
	if !ok {
		return schedule.ErrNotFound
	}
	s.MarkEvaluated(evaluatedAt)
	return nil
}

func (r *fakeScheduleRepo) SetEnabled(_ context.Context, id shared.ID, enabled bool) error {
	s, ok := r.schedules[id.String()]
	if !ok {
		return schedule.ErrNotFound
	}
	s.Enabled = enabled
	return nil
}

func (r *fakeScheduleRepo) Delete(_ context.Context, id shared.ID) error {
	delete(r.schedules, id.String())
	return nil
}

// fakeObjectSetRepo is an in-memory objectset.Repository.
type fakeObjectSetRepo struct {
	sets map[string]*objectset.ObjectSet
}

func newFakeObjectSetRepo(sets ...*objectset.ObjectSet) *fakeObjectSetRepo {
	r := &fakeObjectSetRepo{sets: make(map[string]*objectset.ObjectSet)}
	for _, s := range sets {
		r.sets[s.ID.String()] = s
	}
	return r
}

func (r *fakeObjectSetRepo) Create(_ context.Context, set *objectset.ObjectSet) error {
	r.sets[set.ID.String()] = set
	return nil
}

func (r *fakeObjectSetRepo) GetByID(_ context.Context, id shared.ID) (*objectset.ObjectSet, error) {
	set, ok := r.sets[id.String()]
	if !ok {
		return nil, objectset.ErrNotFound
	}
	return set, nil
}

func (r *fakeObjectSetRepo) GetByName(_ context.Context, name string) (*objectset.ObjectSet, error) {
	for _, set := range r.sets {
		if set.Name == name {
			return set, nil
		}
	}
	return nil, objectset.ErrNotFound
}

func (r *fakeObjectSetRepo) List(_ context.Context, page pagination.Pagination) (pagination.Result[*objectset.ObjectSet], error) {
	out := make([]*objectset.ObjectSet, 0, len(r.sets))
	for _, s := range r.sets {
		out = append(out, s)
	}
	return pagination.NewResult(out, int64(len(out)), page), nil
}

func (r *fakeObjectSetRepo) Update(_ context.Context, set *objectset.ObjectSet) error {
	r.sets[set.ID.String()] = set
	return nil
}

func (r *fakeObjectSetRepo) Delete(_ context.Context, id shared.ID) error {
	delete(r.sets, id.String())
	return nil
}

// fakeAttributionRepo is an in-memory attribution.Repository with the same
// (task_id, object_key) dedup as the real one.
type fakeAttributionRepo struct {
	records []*attribution.Attribution
	seen    map[string]struct{}
}

func newFakeAttributionRepo() *fakeAttributionRepo {
	return &fakeAttributionRepo{seen: make(map[string]struct{})}
}

func (r *fakeAttributionRepo) RecordBatch(_ context.Context, records []*attribution.Attribution) (int, error) {
	inserted := 0
	for _, rec := range records {
		key := rec.TaskID.String() + "|" + rec.ObjectKey
		if _, ok := r.seen[key]; ok {
			continue
		}
		r.seen[key] = struct{}{}
		r.records = append(r.records, rec)
		inserted++
	}
	return inserted, nil
}

func (r *fakeAttributionRepo) ListByObject(_ context.Context, objectKey string, page pagination.Pagination) (pagination.Result[*attribution.Attribution], error) {
	out := make([]*attribution.Attribution, 0)
	for _, rec := range r.records {
		if rec.ObjectKey == objectKey {
			out = append(out, rec)
		}
	}
	return pagination.NewResult(out, int64(len(out)), page), nil
}

func (r *fakeAttributionRepo) ListByTask(_ context.Context, taskID shared.ID) ([]*attribution.Attribution, error) {
	out := make([]*attribution.Attribution, 0)
	for _, rec := range r.records {
		if rec.TaskID.Equals(taskID) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *fakeAttributionRepo) List(_ context.Context, _ attribution.Filter, page pagination.Pagination) (pagination.Result[*attribution.Attribution], error) {
	return pagination.NewResult(r.records, int64(len(r.records)), page), nil
}

// fakeCatalog serves a fixed object inventory.
type fakeCatalog struct {
	objects []catalog.Object
	err     error
}

func (c *fakeCatalog) QueryObjects(_ context.Context, objectType, _ string, minClearance int) ([]catalog.Object, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make([]catalog.Object, 0)
	for _, o := range c.objects {
		if o.Type == objectType && o.Clearance >= minClearance {
			out = append(out, o)
		}
	}
	return out, nil
}

func (c *fakeCatalog) GetObjects(_ context.Context, objectType string, keys []string) ([]catalog.Object, error) {
	if c.err != nil {
		return nil, c.err
	}
	wanted := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		wanted[k] = struct{}{}
	}
	out := make([]catalog.Object, 0)
	for _, o := range c.objects {
		if _, ok := wanted[o.Key]; ok && o.Type == objectType {
			out = append(out, o)
		}
	}
	return out, nil
}

// fakeLocker grants every lock unless told otherwise.
type fakeLocker struct {
	denied bool
	locked []string
}

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (bool, func(context.Context) error, error) {
	if l.denied {
		return false, nil, nil
	}
	l.locked = append(l.locked, key)
	return true, func(context.Context) error { return nil }, nil
}

// fakeEnqueuer records dispatched task IDs.
type fakeEnqueuer struct {
	mu       sync.Mutex
	enqueued []string
}

func (e *fakeEnqueuer) EnqueueTaskRun(_ context.Context, taskID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enqueued = append(e.enqueued, taskID)
	return nil
}

// fakeEngine replays scripted run results and records the specs it saw.
type fakeEngine struct {
	mu      sync.Mutex
	results []*sandbox.RunResult
	err     error
	specs   []sandbox.RunSpec
	block   bool // when set, Run waits for ctx and reports Killed
}

func (e *fakeEngine) Run(ctx context.Context, spec sandbox.RunSpec) (*sandbox.RunResult, error) {
	e.mu.Lock()
	e.specs = append(e.specs, spec)
	e.mu.Unlock()

	if e.err != nil {
		return nil, e.err
	}
	if e.block {
		<-ctx.Done()
		return &sandbox.RunResult{Killed: true}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.results) == 0 {
		return &sandbox.RunResult{ExitCode: 0}, nil
	}
	result := e.results[0]
	e.results = e.results[1:]
	return result, nil
}

// fakeNotifier records cancelled task IDs.
type fakeNotifier struct {
	notified []string
}

func (n *fakeNotifier) NotifyCancel(_ context.Context, taskID string) error {
	n.notified = append(n.notified, taskID)
	return nil
}
