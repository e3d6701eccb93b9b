package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/pratik-mahalle/complyflow/internal/domain/job"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
)

// JobRepository persists scheduler execution records
type JobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a new job execution repository
func NewJobRepository(db *sql.DB) job.Repository {
	return &JobRepository{db: db}
}

func (r *JobRepository) CreateExecution(ctx context.Context, res *job.Result) error {
	defer observe("insert", "job_executions", time.Now())

	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	details := res.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	detailsJSON, err := marshalJSON(details)
	if err != nil {
		return errors.Internal("Failed to encode job details", err)
	}

	query := `INSERT INTO job_executions (id, job_id, job_name, trigger_type, started_at, completed_at, duration_ms, success, error, details)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = r.db.ExecContext(ctx, query,
		res.ID, res.JobID, res.JobName, res.Trigger,
		formatTime(res.StartedAt), formatTime(res.CompletedAt), res.Duration.Milliseconds(),
		res.Success, res.Error, detailsJSON)
	if err != nil {
		return errors.DatabaseError("Failed to record job execution", err)
	}
	return nil
}

// ListExecutions returns executions newest first. An empty jobID lists every job.
func (r *JobRepository) ListExecutions(ctx context.Context, jobID string, limit int) ([]*job.Result, error) {
	defer observe("select", "job_executions", time.Now())

	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, job_id, job_name, trigger_type, started_at, completed_at, duration_ms, success, error, details
	          FROM job_executions
	          WHERE ($1 = '' OR job_id = $1)
	          ORDER BY started_at DESC
	          LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, jobID, limit)
	if err != nil {
		return nil, errors.DatabaseError("Failed to list job executions", err)
	}
	defer rows.Close()

	out := []*job.Result{}
	for rows.Next() {
		var (
			res                  job.Result
			startedAt, completed string
			durationMS           int64
			detailsJSON          string
		)
		if err := rows.Scan(&res.ID, &res.JobID, &res.JobName, &res.Trigger, &startedAt, &completed,
			&durationMS, &res.Success, &res.Error, &detailsJSON); err != nil {
			return nil, errors.DatabaseError("Failed to scan job execution", err)
		}
		res.StartedAt = parseTime(startedAt)
		res.CompletedAt = parseTime(completed)
		res.Duration = time.Duration(durationMS) * time.Millisecond
		if detailsJSON != "" {
			if err := json.Unmarshal([]byte(detailsJSON), &res.Details); err != nil {
				return nil, errors.Internal("Failed to decode job details", err)
			}
		}
		out = append(out, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("Failed to list job executions", err)
	}
	return out, nil
}
