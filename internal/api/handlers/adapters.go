package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pratik-mahalle/complyflow/internal/api/dto"
	"github.com/pratik-mahalle/complyflow/internal/api/middleware"
	"github.com/pratik-mahalle/complyflow/internal/domain/evidence"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
	"github.com/pratik-mahalle/complyflow/internal/pkg/utils"
	"github.com/pratik-mahalle/complyflow/internal/registry"
)

// RegistryLookup finds the live registry of a tenant
type RegistryLookup interface {
	Get(tenantID string) (*registry.Registry, bool)
}

// AdapterHandler runs collection and health probes for one tenant on demand
type AdapterHandler struct {
	collector  evidence.Collector
	registries RegistryLookup
	logger     *logger.Logger
}

// NewAdapterHandler creates a new adapter handler
func NewAdapterHandler(collector evidence.Collector, registries RegistryLookup, log *logger.Logger) *AdapterHandler {
	return &AdapterHandler{
		collector:  collector,
		registries: registries,
		logger:     log,
	}
}

// Health handles GET /api/v1/adapters/{tenant}/health. It reports the last
// known state without probing.
func (h *AdapterHandler) Health(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	reg, ok := h.registries.Get(tenantID)
	if !ok {
		utils.WriteError(w, errors.NotFound("adapter registry"))
		return
	}
	utils.WriteSuccess(w, http.StatusOK, reg.GetHealth())
}

// Probe handles POST /api/v1/adapters/{tenant}/health
func (h *AdapterHandler) Probe(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	middleware.AddLogField(w, "tenant_id", tenantID)

	report, err := h.collector.CheckHealth(r.Context(), tenantID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, report)
}

// Collect handles POST /api/v1/adapters/{tenant}/collect
func (h *AdapterHandler) Collect(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	middleware.AddLogField(w, "tenant_id", tenantID)

	var req dto.CollectRequest
	if err := decodeJSON(r, &req, true); err != nil {
		utils.WriteError(w, err)
		return
	}

	summary, err := h.collector.Collect(r.Context(), tenantID, req.Options())
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	middleware.AddLogField(w, "persisted", summary.Persisted)
	utils.WriteSuccess(w, http.StatusOK, summary)
}
