package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pratik-mahalle/complyflow/internal/domain/alert"
	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
	"github.com/pratik-mahalle/complyflow/internal/pkg/utils"
)

// AlertHandler lists and transitions alerts
type AlertHandler struct {
	alerts alert.Service
	logger *logger.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(svc alert.Service, log *logger.Logger) *AlertHandler {
	return &AlertHandler{
		alerts: svc,
		logger: log,
	}
}

// ListUnresolved handles GET /api/v1/alerts/{tenant}
func (h *AlertHandler) ListUnresolved(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alerts.ListUnresolved(r.Context(), chi.URLParam(r, "tenant"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	if alerts == nil {
		alerts = []*alert.Alert{}
	}
	utils.WriteSuccess(w, http.StatusOK, alerts)
}

// Acknowledge handles POST /api/v1/alerts/{tenant}/{id}/acknowledge
func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	if err := h.alerts.Acknowledge(r.Context(), chi.URLParam(r, "tenant"), chi.URLParam(r, "id")); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, map[string]string{"status": alert.StatusAcknowledged})
}

// Resolve handles POST /api/v1/alerts/{tenant}/{id}/resolve
func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if err := h.alerts.Resolve(r.Context(), chi.URLParam(r, "tenant"), chi.URLParam(r, "id")); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, map[string]string{"status": alert.StatusResolved})
}
