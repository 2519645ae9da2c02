package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/app"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/infra/http/middleware"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/apierror"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/attribution"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/logger"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/pagination"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/validator"
)

// AttributionHandler handles provenance ingestion and queries. The ingest
// endpoint is called by sandboxed plugins under their capability token; the
// task identity comes from the token, never from the request body.
type AttributionHandler struct {
	service   *app.AttributionService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewAttributionHandler creates an AttributionHandler.
func NewAttributionHandler(service *app.AttributionService, v *validator.Validator, log *logger.Logger) *AttributionHandler {
	return &AttributionHandler{
		service:   service,
		validator: v,
		logger:    log.With("handler", "attribution"),
	}
}

// IngestRequest is the body for reporting produced objects.
type IngestRequest struct {
	Objects []IngestObject `json:"objects" validate:"required,min=1,max=1000,dive"`
}

// IngestObject is one produced object.
type IngestObject struct {
	Key  string `json:"key" validate:"required,max=500"`
	Type string `json:"type" validate:"required,max=100"`
}

// IngestResponse reports how many records were new.
type IngestResponse struct {
	Reported int `json:"reported"`
	Inserted int `json:"inserted"`
}

// AttributionResponse is the wire shape of one provenance record.
type AttributionResponse struct {
	ID           string    `json:"id"`
	TaskID       string    `json:"task_id"`
	PluginID     string    `json:"plugin_id"`
	ObjectKey    string    `json:"object_key"`
	ObjectType   string    `json:"object_type"`
	Organization string    `json:"organization,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toAttributionResponse(rec *attribution.Attribution) AttributionResponse {
	return AttributionResponse{
		ID:           rec.ID.String(),
		TaskID:       rec.TaskID.String(),
		PluginID:     rec.PluginID,
		ObjectKey:    rec.ObjectKey,
		ObjectType:   rec.ObjectType,
		Organization: rec.Organization,
		CreatedAt:    rec.CreatedAt,
	}
}

// Ingest handles POST /api/v1/attributions, authenticated with a capability
// token.
func (h *AttributionHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		apierror.Unauthorized("").WriteJSON(w)
		return
	}

	taskID, err := parseID(claims.TaskID)
	if err != nil {
		apierror.Unauthorized("Malformed task binding in token").WriteJSON(w)
		return
	}

	var req IngestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, err)
		return
	}

	objects := make([]app.ProducedObject, 0, len(req.Objects))
	for _, o := range req.Objects {
		objects = append(objects, app.ProducedObject{Key: o.Key, Type: o.Type})
	}

	inserted, err := h.service.Record(r.Context(), taskID, objects)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, IngestResponse{
		Reported: len(req.Objects),
		Inserted: inserted,
	})
}

// ListByObject handles GET /api/v1/attributions?object_key=...
func (h *AttributionHandler) ListByObject(w http.ResponseWriter, r *http.Request) {
	objectKey := r.URL.Query().Get("object_key")
	if objectKey == "" {
		apierror.BadRequest("object_key query parameter is required").WriteJSON(w)
		return
	}

	result, err := h.service.ListByObject(r.Context(), objectKey, parsePagination(r))
	if err != nil {
		respondError(w, err)
		return
	}

	items := make([]AttributionResponse, 0, len(result.Data))
	for _, rec := range result.Data {
		items = append(items, toAttributionResponse(rec))
	}
	respondJSON(w, http.StatusOK, pagination.Result[AttributionResponse]{
		Data:       items,
		Total:      result.Total,
		Page:       result.Page,
		PerPage:    result.PerPage,
		TotalPages: result.TotalPages,
	})
}

// ListByTask handles GET /api/v1/tasks/{id}/attributions.
func (h *AttributionHandler) ListByTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}

	records, err := h.service.ListByTask(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	items := make([]AttributionResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, toAttributionResponse(rec))
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": items})
}
