package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/apierror"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/plugin"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/logger"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/pagination"
)

// PluginHandler serves the read-only plugin catalog. Plugins are defined
// out-of-band as manifests and synced by the admin CLI; the API only lists
// and inspects them.
type PluginHandler struct {
	plugins plugin.Repository
	logger  *logger.Logger
}

// NewPluginHandler creates a PluginHandler.
func NewPluginHandler(plugins plugin.Repository, log *logger.Logger) *PluginHandler {
	return &PluginHandler{
		plugins: plugins,
		logger:  log.With("handler", "plugin"),
	}
}

// PluginResponse is the wire shape of one plugin descriptor.
type PluginResponse struct {
	PluginID     string         `json:"plugin_id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	ScanLevel    int            `json:"scan_level"`
	Consumes     []string       `json:"consumes,omitempty"`
	OCIImage     string         `json:"oci_image"`
	OCIArguments []string       `json:"oci_arguments,omitempty"`
	Grants       []plugin.Grant `json:"grants,omitempty"`
	BatchSize    int            `json:"batch_size,omitempty"`
	Interval     int            `json:"interval,omitempty"`
	Cron         string         `json:"cron,omitempty"`
}

func toPluginResponse(p *plugin.Plugin) PluginResponse {
	return PluginResponse{
		PluginID:     p.PluginID,
		Name:         p.Name,
		Description:  p.Description,
		ScanLevel:    int(p.ScanLevel),
		Consumes:     p.Consumes,
		OCIImage:     p.OCIImage,
		OCIArguments: p.OCIArguments,
		Grants:       p.Grants,
		BatchSize:    p.BatchSize,
		Interval:     p.Interval,
		Cron:         p.Cron,
	}
}

// Get handles GET /api/v1/plugins/{plugin_id}.
func (h *PluginHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.plugins.GetByPluginID(r.Context(), chi.URLParam(r, "plugin_id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toPluginResponse(p))
}

// List handles GET /api/v1/plugins.
func (h *PluginHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := plugin.Filter{
		Consumes: r.URL.Query().Get("consumes"),
		Search:   r.URL.Query().Get("search"),
	}
	if s := r.URL.Query().Get("scan_level"); s != "" {
		level := plugin.ScanLevel(parseQueryInt(s, -1))
		if !level.IsValid() {
			apierror.BadRequest("Invalid scan_level filter").WriteJSON(w)
			return
		}
		filter.ScanLevel = &level
	}

	result, err := h.plugins.List(r.Context(), filter, parsePagination(r))
	if err != nil {
		respondError(w, err)
		return
	}

	items := make([]PluginResponse, 0, len(result.Data))
	for _, p := range result.Data {
		items = append(items, toPluginResponse(p))
	}
	respondJSON(w, http.StatusOK, pagination.Result[PluginResponse]{
		Data:       items,
		Total:      result.Total,
		Page:       result.Page,
		PerPage:    result.PerPage,
		TotalPages: result.TotalPages,
	})
}
