package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Task ledger metrics
var (
	// TasksCreatedTotal tracks tasks created by plugin
	TasksCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_created_total",
			Help: "Total number of tasks created by plugin",
		},
		[]string{"plugin_id"},
	)

	// TaskRunsTotal tracks finished task runs by terminal status
	TaskRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_runs_total",
			Help: "Total number of finished task runs by plugin and status",
		},
		[]string{"plugin_id", "status"},
	)

	// TaskRunDuration tracks task run duration
	TaskRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "task_run_duration_seconds",
			Help:    "Task run duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"plugin_id"},
	)

	// TasksRunning tracks tasks currently claimed by a worker
	TasksRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tasks_running",
			Help: "Number of tasks currently running",
		},
	)

	// ClaimConflictsTotal tracks claims lost to another worker
	ClaimConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "task_claim_conflicts_total",
			Help: "Total number of task claims lost to a concurrent worker",
		},
	)

	// TasksReclaimedTotal tracks running tasks reclaimed after heartbeat loss
	TasksReclaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tasks_reclaimed_total",
			Help: "Total number of running tasks reclaimed after heartbeat loss",
		},
	)
)

// Evaluator metrics
var (
	// EvaluatorPassesTotal tracks completed evaluator passes
	EvaluatorPassesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evaluator_passes_total",
			Help: "Total number of completed schedule evaluation passes",
		},
	)

	// EvaluatorSchedulesSkippedTotal tracks schedules skipped per pass by reason
	EvaluatorSchedulesSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluator_schedules_skipped_total",
			Help: "Total number of schedules skipped during evaluation by reason",
		},
		[]string{"reason"},
	)

	// EvaluatorMembersExcludedTotal tracks input members excluded by reason
	EvaluatorMembersExcludedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluator_members_excluded_total",
			Help: "Total number of input members excluded during evaluation by reason",
		},
		[]string{"reason"},
	)
)

// Sandbox metrics
var (
	// SandboxTimeoutsTotal tracks sandbox runs killed at the wall-clock limit
	SandboxTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandbox_timeouts_total",
			Help: "Total number of sandbox runs killed at the wall-clock limit",
		},
		[]string{"plugin_id"},
	)

	// CapabilityTokensIssuedTotal tracks capability tokens minted
	CapabilityTokensIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capability_tokens_issued_total",
			Help: "Total number of capability tokens issued",
		},
	)
)

// Attribution metrics
var (
	// AttributionsRecordedTotal tracks provenance records written
	AttributionsRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attributions_recorded_total",
			Help: "Total number of attribution records written by plugin",
		},
		[]string{"plugin_id"},
	)
)
