// Package http assembles the control API: routing, middleware, and the
// server lifecycle.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/infra/http/handler"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/infra/http/middleware"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/capability"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/plugin"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/logger"
)

// RouterDeps carries everything the router mounts.
type RouterDeps struct {
	Health      *handler.HealthHandler
	Tasks       *handler.TaskHandler
	Schedules   *handler.ScheduleHandler
	ObjectSets  *handler.ObjectSetHandler
	Plugins     *handler.PluginHandler
	Attribution *handler.AttributionHandler

	Issuer   *capability.Issuer
	APIToken string
	Logger   *logger.Logger
}

// NewRouter builds the chi router with the full route tree. The operator
// surface sits behind the static API token; the attribution ingest endpoint
// is reachable with a per-task capability token only.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recovery(deps.Logger),
		middleware.RequestID(),
		middleware.Timeout(60*time.Second),
		middleware.Metrics(),
		middleware.Logger(deps.Logger),
	)

	r.Get("/health", deps.Health.Health)
	r.Get("/ready", deps.Health.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Sandbox-facing: plugins report produced objects under their
	// capability token.
	r.Group(func(r chi.Router) {
		r.Use(middleware.CapabilityAuth(deps.Issuer, plugin.ActionObjectCreate))
		r.Post("/api/v1/attributions", deps.Attribution.Ingest)
	})

	// Operator surface.
	r.Group(func(r chi.Router) {
		r.Use(middleware.OperatorAuth(deps.APIToken))

		r.Route("/api/v1/tasks", func(r chi.Router) {
			r.Post("/", deps.Tasks.Create)
			r.Get("/", deps.Tasks.List)
			r.Get("/{id}", deps.Tasks.Get)
			r.Post("/{id}/cancel", deps.Tasks.Cancel)
			r.Post("/{id}/requeue", deps.Tasks.Requeue)
			r.Get("/{id}/attributions", deps.Attribution.ListByTask)
		})

		r.Route("/api/v1/schedules", func(r chi.Router) {
			r.Post("/", deps.Schedules.Create)
			r.Get("/", deps.Schedules.List)
			r.Get("/{id}", deps.Schedules.Get)
			r.Put("/{id}/recurrence", deps.Schedules.UpdateRecurrence)
			r.Put("/{id}/enabled", deps.Schedules.SetEnabled)
			r.Delete("/{id}", deps.Schedules.Delete)
		})

		r.Route("/api/v1/object-sets", func(r chi.Router) {
			r.Post("/", deps.ObjectSets.Create)
			r.Get("/", deps.ObjectSets.List)
			r.Get("/{id}", deps.ObjectSets.Get)
			r.Put("/{id}", deps.ObjectSets.Update)
			r.Delete("/{id}", deps.ObjectSets.Delete)
		})

		r.Route("/api/v1/plugins", func(r chi.Router) {
			r.Get("/", deps.Plugins.List)
			r.Get("/{plugin_id}", deps.Plugins.Get)
		})

		r.Get("/api/v1/attributions", deps.Attribution.ListByObject)
	})

	return r
}
