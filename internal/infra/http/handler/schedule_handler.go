package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/app"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/apierror"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/schedule"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/logger"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/pagination"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/validator"
)

// ScheduleHandler handles HTTP requests for schedules.
type ScheduleHandler struct {
	service   *app.ScheduleService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewScheduleHandler creates a ScheduleHandler.
func NewScheduleHandler(service *app.ScheduleService, v *validator.Validator, log *logger.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		service:   service,
		validator: v,
		logger:    log.With("handler", "schedule"),
	}
}

// CreateScheduleRequest is the body for creating a schedule.
type CreateScheduleRequest struct {
	PluginID     string `json:"plugin_id" validate:"required,plugin_id"`
	ObjectSetID  string `json:"object_set_id" validate:"required,uuid"`
	Recurrence   string `json:"recurrence" validate:"recurrence"`
	Organization string `json:"organization" validate:"max=100"`
}

// UpdateRecurrenceRequest is the body for changing a schedule's rule.
type UpdateRecurrenceRequest struct {
	Recurrence string `json:"recurrence" validate:"required,recurrence"`
}

// SetEnabledRequest is the body for enabling or disabling a schedule.
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// ScheduleResponse is the wire shape of one schedule.
type ScheduleResponse struct {
	ID              string     `json:"id"`
	PluginID        string     `json:"plugin_id"`
	ObjectSetID     string     `json:"object_set_id"`
	Recurrence      string     `json:"recurrence"`
	Enabled         bool       `json:"enabled"`
	Organization    string     `json:"organization,omitempty"`
	LastEvaluatedAt *time.Time `json:"last_evaluated_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toScheduleResponse(s *schedule.Schedule) ScheduleResponse {
	return ScheduleResponse{
		ID:              s.ID.String(),
		PluginID:        s.PluginID,
		ObjectSetID:     s.ObjectSetID.String(),
		Recurrence:      s.Recurrence,
		Enabled:         s.Enabled,
		Organization:    s.Organization,
		LastEvaluatedAt: s.LastEvaluatedAt,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

// Create handles POST /api/v1/schedules.
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, err)
		return
	}

	setID, err := parseID(req.ObjectSetID)
	if err != nil {
		respondError(w, err)
		return
	}

	s, err := h.service.CreateSchedule(r.Context(), app.CreateScheduleInput{
		PluginID:     req.PluginID,
		ObjectSetID:  setID,
		Recurrence:   req.Recurrence,
		Organization: req.Organization,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toScheduleResponse(s))
}

// Get handles GET /api/v1/schedules/{id}.
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}

	s, err := h.service.GetSchedule(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toScheduleResponse(s))
}

// List handles GET /api/v1/schedules.
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := schedule.Filter{
		PluginID:     r.URL.Query().Get("plugin_id"),
		Organization: r.URL.Query().Get("organization"),
	}
	if s := r.URL.Query().Get("enabled"); s == "true" || s == "false" {
		enabled := s == "true"
		filter.Enabled = &enabled
	}

	result, err := h.service.ListSchedules(r.Context(), filter, parsePagination(r))
	if err != nil {
		respondError(w, err)
		return
	}

	items := make([]ScheduleResponse, 0, len(result.Data))
	for _, s := range result.Data {
		items = append(items, toScheduleResponse(s))
	}
	respondJSON(w, http.StatusOK, pagination.Result[ScheduleResponse]{
		Data:       items,
		Total:      result.Total,
		Page:       result.Page,
		PerPage:    result.PerPage,
		TotalPages: result.TotalPages,
	})
}

// UpdateRecurrence handles PUT /api/v1/schedules/{id}/recurrence.
func (h *ScheduleHandler) UpdateRecurrence(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}

	var req UpdateRecurrenceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, err)
		return
	}

	s, err := h.service.UpdateRecurrence(r.Context(), id, req.Recurrence)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toScheduleResponse(s))
}

// SetEnabled handles PUT /api/v1/schedules/{id}/enabled.
func (h *ScheduleHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}

	var req SetEnabledRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, err)
		return
	}

	if err := h.service.SetEnabled(r.Context(), id, *req.Enabled); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// Delete handles DELETE /api/v1/schedules/{id}.
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}

	if err := h.service.DeleteSchedule(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}
