package job

import "context"

// Repository persists job execution records beyond the in-memory history
type Repository interface {
	CreateExecution(ctx context.Context, result *Result) error
	ListExecutions(ctx context.Context, jobID string, limit int) ([]*Result, error)
}
