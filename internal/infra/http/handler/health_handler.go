package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger is a health-checkable dependency.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	db    Pinger
	redis Pinger
}

// NewHealthHandler creates a health handler over the given dependencies.
func NewHealthHandler(db, redis Pinger) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// HealthResponse is the liveness probe payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}

// ReadyResponse is the readiness probe payload.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// Ready handles GET /ready: it pings every dependency with a short budget.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true
	for name, dep := range map[string]Pinger{"database": h.db, "redis": h.redis} {
		if dep == nil {
			continue
		}
		if err := dep.HealthCheck(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	state := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	respondJSON(w, status, ReadyResponse{
		Status:    state,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}
