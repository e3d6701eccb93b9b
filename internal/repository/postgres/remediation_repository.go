package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/pratik-mahalle/complyflow/internal/domain/remediation"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
)

// RemediationRepository implements remediation.Repository
type RemediationRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRemediationRepository creates a new remediation task repository
func NewRemediationRepository(db *sql.DB) remediation.Repository {
	return &RemediationRepository{db: db, now: time.Now}
}

func (r *RemediationRepository) Create(ctx context.Context, t *remediation.Task) error {
	defer observe("insert", "remediation_tasks", time.Now())

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.now().UTC()
	}
	if t.Status == "" {
		t.Status = remediation.StatusOpen
	}

	query := `INSERT INTO remediation_tasks (id, tenant_id, control_id, title, status, due_date, completed_at, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.TenantID, t.ControlID, t.Title, t.Status,
		formatTimePtr(t.DueDate), formatTimePtr(t.CompletedAt), formatTime(t.CreatedAt))
	if err != nil {
		return errors.DatabaseError("Failed to create remediation task", err)
	}
	return nil
}

func (r *RemediationRepository) UpdateStatus(ctx context.Context, id, status string) error {
	defer observe("update", "remediation_tasks", time.Now())

	var completedAt interface{}
	if status == remediation.StatusCompleted {
		completedAt = formatTime(r.now())
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE remediation_tasks SET status = $1, completed_at = $2 WHERE id = $3`,
		status, completedAt, id)
	if err != nil {
		return errors.DatabaseError("Failed to update remediation task", err)
	}
	return expectRow(res, "Remediation task")
}

func (r *RemediationRepository) CountOverdue(ctx context.Context, tenantID string) (int, error) {
	defer observe("select", "remediation_tasks", time.Now())

	query := `SELECT COUNT(*) FROM remediation_tasks
	          WHERE tenant_id = $1 AND status NOT IN ($2, $3)
	            AND due_date IS NOT NULL AND due_date < $4`
	var n int
	err := r.db.QueryRowContext(ctx, query, tenantID,
		remediation.StatusCompleted, remediation.StatusCancelled, formatTime(r.now())).Scan(&n)
	if err != nil {
		return 0, errors.DatabaseError("Failed to count overdue remediation tasks", err)
	}
	return n, nil
}
