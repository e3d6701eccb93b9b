package remediation

import "context"

// Repository defines the remediation task store
type Repository interface {
	Create(ctx context.Context, task *Task) error
	UpdateStatus(ctx context.Context, id, status string) error
	// CountOverdue counts unfinished tasks past their due date
	CountOverdue(ctx context.Context, tenantID string) (int, error)
}
