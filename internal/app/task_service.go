package app

import (
	"context"
	"time"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/metrics"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/plugin"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/task"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/logger"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/pagination"
)

// TaskCancelNotifier tells the worker pool a running task was cancelled.
type TaskCancelNotifier interface {
	NotifyCancel(ctx context.Context, taskID string) error
}

// TaskService exposes ledger operations to the control API: ad-hoc runs,
// inspection, cancellation, and operator requeues.
type TaskService struct {
	tasks    task.Repository
	plugins  plugin.Repository
	enqueuer TaskEnqueuer
	notifier TaskCancelNotifier
	logger   *logger.Logger
}

// NewTaskService creates a TaskService.
func NewTaskService(
	tasks task.Repository,
	plugins plugin.Repository,
	enqueuer TaskEnqueuer,
	notifier TaskCancelNotifier,
	log *logger.Logger,
) *TaskService {
	return &TaskService{
		tasks:    tasks,
		plugins:  plugins,
		enqueuer: enqueuer,
		notifier: notifier,
		logger:   log.With("component", "task_service"),
	}
}

// CreateAdHoc creates and dispatches a task outside any schedule.
func (s *TaskService) CreateAdHoc(ctx context.Context, pluginID string, input task.Input, organization string) (*task.Task, error) {
	if _, err := s.plugins.GetByPluginID(ctx, pluginID); err != nil {
		return nil, err
	}

	t, err := task.New(pluginID, input)
	if err != nil {
		return nil, err
	}
	t.Organization = organization

	if err := s.tasks.Create(ctx, t); err != nil {
		return nil, err
	}
	metrics.TasksCreatedTotal.WithLabelValues(pluginID).Inc()

	if err := s.enqueuer.EnqueueTaskRun(ctx, t.ID.String()); err != nil {
		s.logger.Error("failed to enqueue ad-hoc task", "task_id", t.ID.String(), "error", err)
	}

	s.logger.Info("ad-hoc task created", "task_id", t.ID.String(), "plugin_id", pluginID)
	return t, nil
}

// Get retrieves a task by ID.
func (s *TaskService) Get(ctx context.Context, id shared.ID) (*task.Task, error) {
	return s.tasks.GetByID(ctx, id)
}

// List lists tasks with filters.
func (s *TaskService) List(ctx context.Context, filter task.Filter, page pagination.Pagination) (pagination.Result[*task.Task], error) {
	return s.tasks.List(ctx, filter, page)
}

// Cancel cancels a pending or running task. Cancelling a task that already
// reached a terminal state is a conflict: completed work cannot be
// retroactively cancelled.
func (s *TaskService) Cancel(ctx context.Context, id shared.ID) error {
	cancelled, err := s.tasks.Cancel(ctx, id, time.Now())
	if err != nil {
		return err
	}
	if !cancelled {
		return shared.NewDomainError("INVALID_TRANSITION", "task already reached a terminal state", shared.ErrConflict)
	}

	// Best effort: the ledger row is already cancelled, the notification
	// only shortens how long a running sandbox lingers.
	if err := s.notifier.NotifyCancel(ctx, id.String()); err != nil {
		s.logger.Warn("failed to notify workers of cancellation", "task_id", id.String(), "error", err)
	}

	s.logger.Info("task cancelled", "task_id", id.String())
	return nil
}

// Requeue puts a failed task back in the queue. The failure payload and
// attempt history are preserved as the audit trail.
func (s *TaskService) Requeue(ctx context.Context, id shared.ID) error {
	if err := s.tasks.Requeue(ctx, id); err != nil {
		return err
	}
	if err := s.enqueuer.EnqueueTaskRun(ctx, id.String()); err != nil {
		s.logger.Error("failed to enqueue requeued task", "task_id", id.String(), "error", err)
	}

	s.logger.Info("task requeued", "task_id", id.String())
	return nil
}
