// Package app wires the domain into running services: the schedule
// evaluator, the task executor, and the operator-facing services behind the
// control API.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/metrics"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/sandbox"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/capability"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/plugin"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/task"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/logger"
)

// Sandbox environment contract. The sandboxed process reads its API
// address, credentials, and bulk input from these variables only.
const (
	EnvAPIBaseURL = "OPENKAT_API"
	EnvToken      = "OPENKAT_TOKEN"
	EnvPluginID   = "PLUGIN_ID"
	EnvTaskID     = "OPENKAT_TASK_ID"
	EnvBulkInput  = "OPENKAT_INPUT"
)

// ExecutorConfig holds executor settings.
type ExecutorConfig struct {
	WorkerID          string
	APIBaseURL        string // API address as reachable from inside the sandbox
	Network           string
	ShimVolume        string
	ShimMount         string
	ShimEntrypoint    string
	Timeout           time.Duration // wall-clock budget for all invocations of one task
	TokenGrace        time.Duration
	HeartbeatInterval time.Duration
}

// Executor claims pending tasks and drives them through the sandbox.
type Executor struct {
	tasks   task.Repository
	plugins plugin.Repository
	issuer  *capability.Issuer
	engine  sandbox.Engine
	cfg     ExecutorConfig
	logger  *logger.Logger

	// running maps task id to the cancel function of its run context, so a
	// cancellation notification can kill the sandbox mid-flight.
	running sync.Map
}

// NewExecutor creates a task executor.
func NewExecutor(
	tasks task.Repository,
	plugins plugin.Repository,
	issuer *capability.Issuer,
	engine sandbox.Engine,
	cfg ExecutorConfig,
	log *logger.Logger,
) *Executor {
	return &Executor{
		tasks:   tasks,
		plugins: plugins,
		issuer:  issuer,
		engine:  engine,
		cfg:     cfg,
		logger:  log.With("component", "executor", "worker_id", cfg.WorkerID),
	}
}

// ProcessTaskRun executes one ledger task. A claim lost to another worker
// is benign: the task is already in good hands and this worker moves on.
func (e *Executor) ProcessTaskRun(ctx context.Context, taskID string) error {
	ctx, span := otel.Tracer("app/executor").Start(ctx, "task.execute",
		trace.WithAttributes(attribute.String("task.id", taskID)))
	defer span.End()

	id, err := shared.IDFromString(taskID)
	if err != nil {
		return fmt.Errorf("invalid task id %q: %w", taskID, err)
	}

	now := time.Now()
	claimed, err := e.tasks.ClaimPending(ctx, id, e.cfg.WorkerID, now)
	if err != nil {
		return fmt.Errorf("failed to claim task: %w", err)
	}
	if !claimed {
		metrics.ClaimConflictsTotal.Inc()
		e.logger.Debug("task already claimed, skipping", "task_id", taskID)
		return nil
	}

	metrics.TasksRunning.Inc()
	defer metrics.TasksRunning.Dec()

	t, err := e.tasks.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load claimed task: %w", err)
	}

	start := time.Now()
	status := e.run(ctx, t)
	metrics.TaskRunsTotal.WithLabelValues(t.PluginID, string(status)).Inc()
	metrics.TaskRunDuration.WithLabelValues(t.PluginID).Observe(time.Since(start).Seconds())
	return nil
}

// run drives one claimed task to a terminal state and reports which one it
// reached.
func (e *Executor) run(ctx context.Context, t *task.Task) task.Status {
	log := e.logger.With("task_id", t.ID.String(), "plugin_id", t.PluginID)

	p, err := e.plugins.GetByPluginID(ctx, t.PluginID)
	if err != nil {
		return e.fail(ctx, t, task.ExecError{
			Class:   task.ErrorClassInternal,
			Message: fmt.Sprintf("plugin lookup failed: %v", err),
		})
	}

	resolved, err := resolveArguments(p.OCIArguments, t.Input)
	if err != nil {
		return e.fail(ctx, t, task.ExecError{
			Class:   task.ErrorClassInternal,
			Message: fmt.Sprintf("argument resolution failed: %v", err),
		})
	}

	token, _, err := e.issuer.Issue(t.ID, p, capability.GrantsFor(t, p), e.cfg.Timeout+e.cfg.TokenGrace)
	if err != nil {
		return e.fail(ctx, t, task.ExecError{
			Class:   task.ErrorClassInternal,
			Message: fmt.Sprintf("token issuance failed: %v", err),
		})
	}
	metrics.CapabilityTokensIssuedTotal.Inc()

	runCtx, cancelRun := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancelRun()
	e.running.Store(t.ID.String(), cancelRun)
	defer e.running.Delete(t.ID.String())

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go e.heartbeat(hbCtx, t.ID, cancelRun)

	env := []string{
		EnvAPIBaseURL + "=" + e.cfg.APIBaseURL,
		EnvToken + "=" + token,
		EnvPluginID + "=" + p.PluginID,
		EnvTaskID + "=" + t.ID.String(),
	}
	if len(resolved.BulkInput) > 0 {
		env = append(env, EnvBulkInput+"="+strings.Join(resolved.BulkInput, "\n"))
	}

	for i, args := range resolved.Invocations {
		result, err := e.engine.Run(runCtx, sandbox.RunSpec{
			Name:       fmt.Sprintf("kat-task-%s-%d", t.ID.String(), i),
			Image:      p.OCIImage,
			Args:       args,
			Env:        env,
			Network:    e.cfg.Network,
			ShimVolume: e.cfg.ShimVolume,
			ShimMount:  e.cfg.ShimMount,
			Entrypoint: e.cfg.ShimEntrypoint,
		})
		if err != nil {
			return e.fail(ctx, t, task.ExecError{
				Class:   task.ErrorClassInternal,
				Message: fmt.Sprintf("sandbox start failed: %v", err),
			})
		}

		if result.Killed {
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				metrics.SandboxTimeoutsTotal.WithLabelValues(p.PluginID).Inc()
				return e.fail(ctx, t, task.ExecError{
					Class:      task.ErrorClassTimeout,
					StderrTail: result.StderrTail,
					Message:    fmt.Sprintf("sandbox killed after %s", e.cfg.Timeout),
				})
			}
			// Killed by a cancellation: the ledger row is already
			// cancelled, nothing left to record.
			log.Info("sandbox killed by cancellation")
			return task.StatusCancelled
		}

		if result.ExitCode != 0 {
			return e.fail(ctx, t, task.ExecError{
				Class:      task.ErrorClassExitCode,
				ExitCode:   result.ExitCode,
				StderrTail: result.StderrTail,
				Message:    fmt.Sprintf("invocation %d of %d exited with code %d", i+1, len(resolved.Invocations), result.ExitCode),
			})
		}
	}

	payload, _ := json.Marshal(map[string]any{"invocations": len(resolved.Invocations)})
	// The output key is recorded for every completed run: it is
	// deterministic, and a run with empty stdout leaves no file behind,
	// which readers see as catalog not-found.
	if err := e.tasks.Complete(ctx, t.ID, payload, task.OutputKey(t.ID.String()), time.Now()); err != nil {
		if shared.IsConflict(err) {
			// A racing cancellation reached the terminal state first.
			log.Info("task finished but was cancelled concurrently")
			return task.StatusCancelled
		}
		log.Error("failed to mark task completed", "error", err)
		return task.StatusFailed
	}

	log.Info("task completed", "invocations", len(resolved.Invocations))
	return task.StatusCompleted
}

func (e *Executor) fail(ctx context.Context, t *task.Task, execErr task.ExecError) task.Status {
	log := e.logger.With("task_id", t.ID.String(), "plugin_id", t.PluginID)

	if err := e.tasks.Fail(ctx, t.ID, execErr, time.Now()); err != nil {
		if shared.IsConflict(err) {
			log.Info("task failed but was cancelled concurrently", "class", string(execErr.Class))
			return task.StatusCancelled
		}
		log.Error("failed to mark task failed", "error", err)
		return task.StatusFailed
	}

	log.Warn("task failed",
		"class", string(execErr.Class),
		"exit_code", execErr.ExitCode,
		"message", execErr.Message,
	)
	return task.StatusFailed
}

// heartbeat refreshes the task's liveness deadline until the surrounding
// run finishes. Losing the claim kills the run: the ledger decided the task
// no longer belongs to this worker.
func (e *Executor) heartbeat(ctx context.Context, id shared.ID, cancelRun context.CancelFunc) {
	ticker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.tasks.Heartbeat(ctx, id, e.cfg.WorkerID, time.Now()); err != nil {
				if shared.IsConflict(err) {
					e.logger.Warn("claim lost, killing sandbox", "task_id", id.String())
					cancelRun()
					return
				}
				e.logger.Warn("heartbeat failed", "task_id", id.String(), "error", err)
			}
		}
	}
}

// CancelRunning kills the sandbox of a task this worker is running. It is
// a no-op for tasks running elsewhere; every worker receives every
// cancellation notification.
func (e *Executor) CancelRunning(taskID string) {
	if cancelRun, ok := e.running.Load(taskID); ok {
		e.logger.Info("cancelling running task", "task_id", taskID)
		cancelRun.(context.CancelFunc)()
	}
}
