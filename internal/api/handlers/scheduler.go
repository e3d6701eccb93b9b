package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pratik-mahalle/complyflow/internal/api/middleware"
	"github.com/pratik-mahalle/complyflow/internal/domain/job"
	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
	"github.com/pratik-mahalle/complyflow/internal/pkg/utils"
)

// JobRunner is the part of the scheduler the ops API drives
type JobRunner interface {
	GetStatus() job.SchedulerStatus
	History(jobID string, limit int) []*job.Result
	TriggerJob(ctx context.Context, jobID string) (*job.Result, error)
	RunAllChecks(ctx context.Context) []*job.Result
}

// SchedulerHandler exposes the job table
type SchedulerHandler struct {
	scheduler JobRunner
	logger    *logger.Logger
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(s JobRunner, log *logger.Logger) *SchedulerHandler {
	return &SchedulerHandler{
		scheduler: s,
		logger:    log,
	}
}

// Status handles GET /api/v1/scheduler/status
func (h *SchedulerHandler) Status(w http.ResponseWriter, r *http.Request) {
	utils.WriteSuccess(w, http.StatusOK, h.scheduler.GetStatus())
}

// History handles GET /api/v1/scheduler/history?job_id=&limit=
func (h *SchedulerHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	results := h.scheduler.History(r.URL.Query().Get("job_id"), limit)
	if results == nil {
		results = []*job.Result{}
	}
	utils.WriteSuccess(w, http.StatusOK, results)
}

// Trigger handles POST /api/v1/scheduler/jobs/{id}/trigger. The job runs
// synchronously and its result is returned whether it succeeded or not.
func (h *SchedulerHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	middleware.AddLogField(w, "job_id", jobID)

	result, err := h.scheduler.TriggerJob(r.Context(), jobID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	if !result.Success {
		h.logger.With("job_id", jobID).Warn("Manually triggered job failed")
	}
	utils.WriteSuccess(w, http.StatusOK, result)
}

// RunAll handles POST /api/v1/scheduler/run-all
func (h *SchedulerHandler) RunAll(w http.ResponseWriter, r *http.Request) {
	results := h.scheduler.RunAllChecks(r.Context())
	if results == nil {
		results = []*job.Result{}
	}
	utils.WriteSuccess(w, http.StatusOK, results)
}
