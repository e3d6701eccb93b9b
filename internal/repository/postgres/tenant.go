package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pratik-mahalle/complyflow/internal/domain/alert"
	"github.com/pratik-mahalle/complyflow/internal/domain/compliance"
	"github.com/pratik-mahalle/complyflow/internal/domain/tenant"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
)

// TenantRepository answers the scope queries of scheduled jobs
type TenantRepository struct {
	db *sql.DB
}

func NewTenantRepository(db *sql.DB) tenant.Repository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) Upsert(ctx context.Context, t *tenant.Tenant) error {
	defer observe("upsert", "tenants", time.Now())

	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
		t.ID, t.Name, formatTime(t.CreatedAt))
	if err != nil {
		return errors.DatabaseError("Failed to save tenant", err)
	}
	return nil
}

func (r *TenantRepository) List(ctx context.Context) ([]*tenant.Tenant, error) {
	defer observe("select", "tenants", time.Now())

	rows, err := r.db.QueryContext(ctx, `SELECT id, name, created_at FROM tenants ORDER BY id`)
	if err != nil {
		return nil, errors.DatabaseError("Failed to list tenants", err)
	}
	defer rows.Close()

	out := []*tenant.Tenant{}
	for rows.Next() {
		var t tenant.Tenant
		var createdAt string
		if err := rows.Scan(&t.ID, &t.Name, &createdAt); err != nil {
			return nil, errors.DatabaseError("Failed to scan tenant", err)
		}
		t.CreatedAt = parseTime(createdAt)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("Failed to list tenants", err)
	}
	return out, nil
}

func (r *TenantRepository) ListWithEnabledAdapters(ctx context.Context) ([]string, error) {
	defer observe("select", "adapter_configs", time.Now())

	return r.ids(ctx,
		`SELECT DISTINCT tenant_id FROM adapter_configs WHERE enabled = $1 ORDER BY tenant_id`, true)
}

func (r *TenantRepository) ListWithRecentAssessments(ctx context.Context, since time.Time) ([]tenant.FrameworkScope, error) {
	defer observe("select", "assessments", time.Now())

	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT tenant_id, framework FROM assessments
		 WHERE status = $1 AND completed_at IS NOT NULL AND completed_at >= $2
		 ORDER BY tenant_id, framework`,
		compliance.AssessmentStatusCompleted, formatTime(since))
	if err != nil {
		return nil, errors.DatabaseError("Failed to list assessment scopes", err)
	}
	defer rows.Close()

	out := []tenant.FrameworkScope{}
	for rows.Next() {
		var s tenant.FrameworkScope
		if err := rows.Scan(&s.TenantID, &s.Framework); err != nil {
			return nil, errors.DatabaseError("Failed to scan assessment scope", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("Failed to list assessment scopes", err)
	}
	return out, nil
}

func (r *TenantRepository) ListWithUnresolvedAlerts(ctx context.Context) ([]string, error) {
	defer observe("select", "alerts", time.Now())

	return r.ids(ctx,
		`SELECT DISTINCT tenant_id FROM alerts WHERE status IN ($1, $2) ORDER BY tenant_id`,
		alert.StatusOpen, alert.StatusAcknowledged)
}

func (r *TenantRepository) ids(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.DatabaseError("Failed to list tenants", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.DatabaseError("Failed to scan tenant id", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("Failed to list tenants", err)
	}
	return out, nil
}
