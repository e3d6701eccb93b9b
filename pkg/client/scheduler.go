package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pratik-mahalle/complyflow/internal/domain/job"
)

// SchedulerService handles scheduler API calls
type SchedulerService struct {
	client *Client
}

// Status returns the job table with run counts and next runs
func (s *SchedulerService) Status(ctx context.Context) (*job.SchedulerStatus, error) {
	var status job.SchedulerStatus
	if err := s.client.doRequest(ctx, http.MethodGet, "/api/v1/scheduler/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// History returns recent executions, newest first. An empty jobID returns every job.
func (s *SchedulerService) History(ctx context.Context, jobID string, limit int) ([]*job.Result, error) {
	query := url.Values{}
	if jobID != "" {
		query.Set("job_id", jobID)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/scheduler/history"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var results []*job.Result
	if err := s.client.doRequest(ctx, http.MethodGet, path, nil, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Trigger runs one job now and waits for its result
func (s *SchedulerService) Trigger(ctx context.Context, jobID string) (*job.Result, error) {
	var result job.Result
	if err := s.client.doRequest(ctx, http.MethodPost, "/api/v1/scheduler/jobs/"+url.PathEscape(jobID)+"/trigger", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RunAll runs every enabled job in table order
func (s *SchedulerService) RunAll(ctx context.Context) ([]*job.Result, error) {
	var results []*job.Result
	if err := s.client.doRequest(ctx, http.MethodPost, "/api/v1/scheduler/run-all", nil, &results); err != nil {
		return nil, err
	}
	return results, nil
}
