package app

import (
	"context"
	"time"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/metrics"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/task"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/logger"
)

// redispatchBatch bounds how many stuck pending tasks one sweep re-enqueues.
const redispatchBatch = 100

// SweeperConfig holds liveness sweep settings.
type SweeperConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
}

// Sweeper reclaims running tasks whose worker stopped heartbeating and
// re-dispatches pending tasks whose queue delivery was lost.
type Sweeper struct {
	tasks    task.Repository
	enqueuer TaskEnqueuer
	cfg      SweeperConfig
	logger   *logger.Logger

	now func() time.Time
}

// NewSweeper creates a liveness sweeper.
func NewSweeper(tasks task.Repository, enqueuer TaskEnqueuer, cfg SweeperConfig, log *logger.Logger) *Sweeper {
	return &Sweeper{
		tasks:    tasks,
		enqueuer: enqueuer,
		cfg:      cfg,
		logger:   log.With("component", "sweeper"),
		now:      time.Now,
	}
}

// Start runs the sweep loop until the context is done.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("sweeper started",
		"interval", s.cfg.Interval.String(),
		"stale_after", s.cfg.StaleAfter.String(),
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass: reclaim heartbeat-dead running tasks, then
// re-enqueue pending tasks older than the stale deadline. Reclaimed tasks
// end up failed with the worker_lost class and stay failed until an
// operator requeues them.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now()
	deadline := now.Add(-s.cfg.StaleAfter)

	reclaimed, err := s.tasks.ReclaimStale(ctx, deadline, now)
	if err != nil {
		s.logger.Error("failed to reclaim stale tasks", "error", err)
	} else {
		for _, id := range reclaimed {
			metrics.TasksReclaimedTotal.Inc()
			s.logger.Warn("reclaimed task from dead worker", "task_id", id.String())
		}
	}

	pending, err := s.tasks.ListPendingBefore(ctx, deadline, redispatchBatch)
	if err != nil {
		s.logger.Error("failed to list stuck pending tasks", "error", err)
		return
	}
	for _, id := range pending {
		if err := s.enqueuer.EnqueueTaskRun(ctx, id.String()); err != nil {
			s.logger.Error("failed to re-enqueue pending task", "task_id", id.String(), "error", err)
			continue
		}
		s.logger.Info("re-enqueued stuck pending task", "task_id", id.String())
	}
}
