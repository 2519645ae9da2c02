package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/app"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/apierror"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/objectset"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/logger"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/pagination"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/validator"
)

// ObjectSetHandler handles HTTP requests for object sets.
type ObjectSetHandler struct {
	service   *app.ScheduleService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewObjectSetHandler creates an ObjectSetHandler.
func NewObjectSetHandler(service *app.ScheduleService, v *validator.Validator, log *logger.Logger) *ObjectSetHandler {
	return &ObjectSetHandler{
		service:   service,
		validator: v,
		logger:    log.With("handler", "objectset"),
	}
}

// ObjectSetRequest is the body for creating or updating an object set.
type ObjectSetRequest struct {
	Name       string   `json:"name" validate:"required,min=1,max=200"`
	ObjectType string   `json:"object_type" validate:"required,min=1,max=100"`
	Query      string   `json:"query" validate:"max=2000"`
	StaticKeys []string `json:"static_keys" validate:"max=10000"`
}

// ObjectSetResponse is the wire shape of one object set.
type ObjectSetResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ObjectType string    `json:"object_type"`
	Query      string    `json:"query,omitempty"`
	StaticKeys []string  `json:"static_keys,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toObjectSetResponse(set *objectset.ObjectSet) ObjectSetResponse {
	return ObjectSetResponse{
		ID:         set.ID.String(),
		Name:       set.Name,
		ObjectType: set.ObjectType,
		Query:      set.Query,
		StaticKeys: set.StaticKeys,
		CreatedAt:  set.CreatedAt,
		UpdatedAt:  set.UpdatedAt,
	}
}

// Create handles POST /api/v1/object-sets.
func (h *ObjectSetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ObjectSetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, err)
		return
	}

	set, err := h.service.CreateObjectSet(r.Context(), app.CreateObjectSetInput{
		Name:       req.Name,
		ObjectType: req.ObjectType,
		Query:      req.Query,
		StaticKeys: req.StaticKeys,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toObjectSetResponse(set))
}

// Get handles GET /api/v1/object-sets/{id}.
func (h *ObjectSetHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}

	set, err := h.service.GetObjectSet(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toObjectSetResponse(set))
}

// List handles GET /api/v1/object-sets.
func (h *ObjectSetHandler) List(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ListObjectSets(r.Context(), parsePagination(r))
	if err != nil {
		respondError(w, err)
		return
	}

	items := make([]ObjectSetResponse, 0, len(result.Data))
	for _, set := range result.Data {
		items = append(items, toObjectSetResponse(set))
	}
	respondJSON(w, http.StatusOK, pagination.Result[ObjectSetResponse]{
		Data:       items,
		Total:      result.Total,
		Page:       result.Page,
		PerPage:    result.PerPage,
		TotalPages: result.TotalPages,
	})
}

// Update handles PUT /api/v1/object-sets/{id}.
func (h *ObjectSetHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}

	var req ObjectSetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(w, err)
		return
	}

	set, err := h.service.UpdateObjectSet(r.Context(), id, app.CreateObjectSetInput{
		Name:       req.Name,
		ObjectType: req.ObjectType,
		Query:      req.Query,
		StaticKeys: req.StaticKeys,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toObjectSetResponse(set))
}

// Delete handles DELETE /api/v1/object-sets/{id}.
func (h *ObjectSetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}

	if err := h.service.DeleteObjectSet(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}
