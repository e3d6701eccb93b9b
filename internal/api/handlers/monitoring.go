package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pratik-mahalle/complyflow/internal/api/dto"
	"github.com/pratik-mahalle/complyflow/internal/api/middleware"
	"github.com/pratik-mahalle/complyflow/internal/domain/monitoring"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
	"github.com/pratik-mahalle/complyflow/internal/pkg/utils"
)

// MonitoringHandler exposes the monitoring engine per tenant and framework
type MonitoringHandler struct {
	monitoring monitoring.Service
	logger     *logger.Logger
}

// NewMonitoringHandler creates a new monitoring handler
func NewMonitoringHandler(svc monitoring.Service, log *logger.Logger) *MonitoringHandler {
	return &MonitoringHandler{
		monitoring: svc,
		logger:     log,
	}
}

func scope(w http.ResponseWriter, r *http.Request) (tenantID, framework string) {
	tenantID = chi.URLParam(r, "tenant")
	framework = chi.URLParam(r, "framework")
	middleware.AddLogField(w, "tenant_id", tenantID)
	middleware.AddLogField(w, "framework", framework)
	return tenantID, framework
}

// Health handles GET /api/v1/monitoring/{tenant}/{framework}/health
func (h *MonitoringHandler) Health(w http.ResponseWriter, r *http.Request) {
	tenantID, framework := scope(w, r)
	health, err := h.monitoring.GetMonitoringHealth(r.Context(), tenantID, framework)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, health)
}

// Trend handles GET /api/v1/monitoring/{tenant}/{framework}/trend?days=
func (h *MonitoringHandler) Trend(w http.ResponseWriter, r *http.Request) {
	tenantID, framework := scope(w, r)
	days, err := queryInt(r, "days", 0)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	points, err := h.monitoring.GetComplianceTrend(r.Context(), tenantID, framework, days)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	if points == nil {
		points = []monitoring.TrendPoint{}
	}
	utils.WriteSuccess(w, http.StatusOK, points)
}

// Baseline handles GET /api/v1/monitoring/{tenant}/{framework}/baseline
func (h *MonitoringHandler) Baseline(w http.ResponseWriter, r *http.Request) {
	tenantID, framework := scope(w, r)
	b, err := h.monitoring.GetLatestBaseline(r.Context(), tenantID, framework)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	if b == nil {
		utils.WriteError(w, errors.NotFound("baseline"))
		return
	}
	utils.WriteSuccess(w, http.StatusOK, b)
}

// CaptureBaseline handles POST /api/v1/monitoring/baselines. The tenant and
// framework come from the assessment.
func (h *MonitoringHandler) CaptureBaseline(w http.ResponseWriter, r *http.Request) {
	var req dto.CaptureBaselineRequest
	if err := decodeJSON(r, &req, false); err != nil {
		utils.WriteError(w, err)
		return
	}

	b, err := h.monitoring.CaptureBaseline(r.Context(), req.AssessmentID, req.CapturedBy)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	middleware.AddLogField(w, "baseline_id", b.ID)
	utils.WriteSuccess(w, http.StatusCreated, b)
}

// Drift handles GET /api/v1/monitoring/{tenant}/{framework}/drift?assessment_id=
func (h *MonitoringHandler) Drift(w http.ResponseWriter, r *http.Request) {
	tenantID, framework := scope(w, r)
	assessmentID := r.URL.Query().Get("assessment_id")
	if assessmentID == "" {
		utils.WriteError(w, errors.BadRequest("assessment_id is required"))
		return
	}
	drift, err := h.monitoring.DetectDrift(r.Context(), tenantID, framework, assessmentID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	if drift == nil {
		drift = []monitoring.DriftResult{}
	}
	utils.WriteSuccess(w, http.StatusOK, drift)
}

// Check handles POST /api/v1/monitoring/{tenant}/{framework}/check
func (h *MonitoringHandler) Check(w http.ResponseWriter, r *http.Request) {
	tenantID, framework := scope(w, r)
	result, err := h.monitoring.RunScheduledCheck(r.Context(), tenantID, framework)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, result)
}
