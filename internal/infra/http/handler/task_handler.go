package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/app"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/apierror"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/task"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/logger"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/pagination"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/validator"
)

// TaskHandler handles HTTP requests for the task ledger.
type TaskHandler struct {
	service   *app.TaskService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(service *app.TaskService, v *validator.Validator, log *logger.Logger) *TaskHandler {
	return &TaskHandler{
		service:   service,
		validator: v,
		logger:    log.With("handler", "task"),
	}
}

// CreateTaskRequest is the body for an ad-hoc task run.
type CreateTaskRequest struct {
	PluginID     string   `json:"plugin_id" validate:"required,plugin_id"`
	InputKind    string   `json:"input_kind" validate:"omitempty,oneof=none objects files"`
	InputKeys    []string `json:"input_keys" validate:"max=1000"`
	Organization string   `json:"organization" validate:"max=100"`
}

// TaskResponse is the wire shape of one ledger task.
//
// OutputFileKey is recorded for every completed run and points into the
// file catalog. A plugin that wrote nothing to stdout leaves no file
// behind, so the catalog answers not found for the key; clients must
// treat that as an empty output, not an error.
type TaskResponse struct {
	ID            string          `json:"id"`
	ScheduleID    string          `json:"schedule_id,omitempty"`
	PluginID      string          `json:"plugin_id"`
	Input         task.Input      `json:"input"`
	Status        task.Status     `json:"status"`
	WorkerID      string          `json:"worker_id,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         *task.ExecError `json:"error,omitempty"`
	Attempts      []task.Attempt  `json:"attempts,omitempty"`
	OutputFileKey string          `json:"output_file_key,omitempty"`
	Organization  string          `json:"organization,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	EndedAt       *time.Time      `json:"ended_at,omitempty"`
}

func toTaskResponse(t *task.Task) TaskResponse {
	resp := TaskResponse{
		ID:            t.ID.String(),
		PluginID:      t.PluginID,
		Input:         t.Input,
		Status:        t.Status,
		WorkerID:      t.WorkerID,
		Result:        t.Result,
		Error:         t.Error,
		Attempts:      t.Attempts,
		OutputFileKey: t.OutputFileKey,
		Organization:  t.Organization,
		CreatedAt:     t.CreatedAt,
		StartedAt:     t.StartedAt,
		EndedAt:       t.EndedAt,
	}
	if t.ScheduleID != nil {
		resp.ScheduleID = t.ScheduleID.String()
	}
	return resp
}

// Create handles POST /api/v1/tasks.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, err)
		return
	}

	input := task.Input{Kind: task.InputKind(req.InputKind), Keys: req.InputKeys}
	t, err := h.service.CreateAdHoc(r.Context(), req.PluginID, input, req.Organization)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, toTaskResponse(t))
}

// Get handles GET /api/v1/tasks/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}

	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toTaskResponse(t))
}

// List handles GET /api/v1/tasks.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := task.Filter{
		PluginID:     r.URL.Query().Get("plugin_id"),
		Organization: r.URL.Query().Get("organization"),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status := task.Status(s)
		if !status.IsValid() {
			apierror.BadRequest("Invalid status filter").WriteJSON(w)
			return
		}
		filter.Status = &status
	}
	if s := r.URL.Query().Get("schedule_id"); s != "" {
		id, err := parseID(s)
		if err != nil {
			respondError(w, err)
			return
		}
		filter.ScheduleID = &id
	}

	result, err := h.service.List(r.Context(), filter, parsePagination(r))
	if err != nil {
		respondError(w, err)
		return
	}

	items := make([]TaskResponse, 0, len(result.Data))
	for _, t := range result.Data {
		items = append(items, toTaskResponse(t))
	}
	respondJSON(w, http.StatusOK, pagination.Result[TaskResponse]{
		Data:       items,
		Total:      result.Total,
		Page:       result.Page,
		PerPage:    result.PerPage,
		TotalPages: result.TotalPages,
	})
}

// Cancel handles POST /api/v1/tasks/{id}/cancel.
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}

	if err := h.service.Cancel(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// Requeue handles POST /api/v1/tasks/{id}/requeue.
func (h *TaskHandler) Requeue(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}

	if err := h.service.Requeue(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}
