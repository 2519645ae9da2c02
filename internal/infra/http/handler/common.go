// Package handler implements the HTTP handlers of the control API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/apierror"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/pagination"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/validator"
)

const maxBodySize = 1 << 20 // 1 MiB

// decodeJSON decodes the request body into dst with a size cap.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// respondJSON writes a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// respondError maps an error to a JSON error response. Validation errors
// keep their per-field details; domain errors map to their HTTP status.
func respondError(w http.ResponseWriter, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		apierror.ValidationFailed("Validation failed", validationErrs).WriteJSON(w)
		return
	}
	apierror.FromDomainError(err).WriteJSON(w)
}

// parseID parses an ID path parameter.
func parseID(value string) (shared.ID, error) {
	id, err := shared.IDFromString(value)
	if err != nil {
		return shared.ID{}, apierror.BadRequest("Invalid id format")
	}
	return id, nil
}

// parsePagination reads page and per_page query parameters.
func parsePagination(r *http.Request) pagination.Pagination {
	page := parseQueryInt(r.URL.Query().Get("page"), 1)
	perPage := parseQueryInt(r.URL.Query().Get("per_page"), 20)
	return pagination.New(page, perPage)
}

func parseQueryInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
