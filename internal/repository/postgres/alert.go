package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/pratik-mahalle/complyflow/internal/domain/alert"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
)

// AlertRepository implements alert.Repository
type AlertRepository struct {
	db *sql.DB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *sql.DB) alert.Repository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, tenant_id, framework, source, type, severity, title, message, details, status,
	escalation_level, created_at, updated_at, resolved_at`

// Create creates a new alert
func (r *AlertRepository) Create(ctx context.Context, a *alert.Alert) error {
	defer observe("insert", "alerts", time.Now())

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = a.CreatedAt
	if a.Status == "" {
		a.Status = alert.StatusOpen
	}
	details := a.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	detailsJSON, err := marshalJSON(details)
	if err != nil {
		return errors.Internal("Failed to encode alert details", err)
	}

	query := `INSERT INTO alerts (` + alertColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err = r.db.ExecContext(ctx, query,
		a.ID, a.TenantID, a.Framework, a.Source, a.Type, string(a.Severity), a.Title, a.Message,
		detailsJSON, a.Status, a.EscalationLevel, formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
		formatTimePtr(a.ResolvedAt))
	if err != nil {
		return errors.DatabaseError("Failed to create alert", err)
	}
	return nil
}

// GetByID retrieves an alert by ID
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*alert.Alert, error) {
	defer observe("select", "alerts", time.Now())

	a, err := scanAlert(r.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Alert")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get alert", err)
	}
	return a, nil
}

// ListUnresolved returns open and acknowledged alerts of a tenant
func (r *AlertRepository) ListUnresolved(ctx context.Context, tenantID string) ([]*alert.Alert, error) {
	defer observe("select", "alerts", time.Now())

	query := `SELECT ` + alertColumns + ` FROM alerts
	          WHERE tenant_id = $1 AND status IN ($2, $3)
	          ORDER BY created_at DESC`
	return r.list(ctx, query, tenantID, alert.StatusOpen, alert.StatusAcknowledged)
}

// ListUnresolvedBefore returns unresolved alerts not touched since cutoff
func (r *AlertRepository) ListUnresolvedBefore(ctx context.Context, tenantID string, cutoff time.Time) ([]*alert.Alert, error) {
	defer observe("select", "alerts", time.Now())

	query := `SELECT ` + alertColumns + ` FROM alerts
	          WHERE tenant_id = $1 AND status IN ($2, $3) AND updated_at < $4
	          ORDER BY updated_at ASC`
	return r.list(ctx, query, tenantID, alert.StatusOpen, alert.StatusAcknowledged, formatTime(cutoff))
}

// UpdateSeverity stores an escalated severity
func (r *AlertRepository) UpdateSeverity(ctx context.Context, id string, severity alert.Severity, level int) error {
	defer observe("update", "alerts", time.Now())

	res, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET severity = $1, escalation_level = $2, updated_at = $3 WHERE id = $4`,
		string(severity), level, formatTime(time.Now()), id)
	if err != nil {
		return errors.DatabaseError("Failed to escalate alert", err)
	}
	return expectRow(res, "Alert")
}

// UpdateStatus updates alert status
func (r *AlertRepository) UpdateStatus(ctx context.Context, id string, status string) error {
	defer observe("update", "alerts", time.Now())

	now := time.Now()
	var resolvedAt interface{}
	if status == alert.StatusResolved {
		resolvedAt = formatTime(now)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET status = $1, updated_at = $2, resolved_at = $3 WHERE id = $4`,
		status, formatTime(now), resolvedAt, id)
	if err != nil {
		return errors.DatabaseError("Failed to update alert status", err)
	}
	return expectRow(res, "Alert")
}

func (r *AlertRepository) list(ctx context.Context, query string, args ...interface{}) ([]*alert.Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.DatabaseError("Failed to list alerts", err)
	}
	defer rows.Close()

	alerts := []*alert.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, errors.DatabaseError("Failed to scan alert", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("Failed to list alerts", err)
	}
	return alerts, nil
}

func scanAlert(row scanner) (*alert.Alert, error) {
	var a alert.Alert
	var severity, detailsJSON, createdAt, updatedAt string
	var resolvedAt sql.NullString
	if err := row.Scan(&a.ID, &a.TenantID, &a.Framework, &a.Source, &a.Type, &severity, &a.Title, &a.Message,
		&detailsJSON, &a.Status, &a.EscalationLevel, &createdAt, &updatedAt, &resolvedAt); err != nil {
		return nil, err
	}
	a.Severity = alert.Severity(severity)
	if detailsJSON != "" {
		if err := json.Unmarshal([]byte(detailsJSON), &a.Details); err != nil {
			return nil, err
		}
	}
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	a.ResolvedAt = parseNullTime(resolvedAt)
	return &a, nil
}
