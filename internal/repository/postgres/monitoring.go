package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/pratik-mahalle/complyflow/internal/domain/monitoring"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
)

// MonitoringRepository keeps the audit trail of composite checks. The whole
// result is stored as JSON next to the columns used for lookups.
type MonitoringRepository struct {
	db *sql.DB
}

func NewMonitoringRepository(db *sql.DB) monitoring.Repository {
	return &MonitoringRepository{db: db}
}

func (r *MonitoringRepository) SaveCheck(ctx context.Context, check *monitoring.CheckResult) error {
	defer observe("insert", "monitoring_checks", time.Now())

	if check.ID == "" {
		check.ID = uuid.NewString()
	}
	if check.CheckedAt.IsZero() {
		check.CheckedAt = time.Now().UTC()
	}
	body, err := marshalJSON(check)
	if err != nil {
		return errors.Internal("Failed to encode check result", err)
	}

	query := `INSERT INTO monitoring_checks (id, tenant_id, framework, current_score, previous_score, alerts_created, result, checked_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.db.ExecContext(ctx, query,
		check.ID, check.TenantID, check.Framework, check.CurrentScore, check.PreviousScore,
		check.AlertsCreated, body, formatTime(check.CheckedAt))
	if err != nil {
		return errors.DatabaseError("Failed to save monitoring check", err)
	}
	return nil
}

func (r *MonitoringRepository) GetLatestCheck(ctx context.Context, tenantID, framework string) (*monitoring.CheckResult, error) {
	defer observe("select", "monitoring_checks", time.Now())

	var body string
	err := r.db.QueryRowContext(ctx,
		`SELECT result FROM monitoring_checks
		 WHERE tenant_id = $1 AND framework = $2
		 ORDER BY checked_at DESC LIMIT 1`, tenantID, framework).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Monitoring check")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get latest monitoring check", err)
	}
	return decodeCheck(body)
}

func (r *MonitoringRepository) ListChecksSince(ctx context.Context, tenantID, framework string, since time.Time) ([]*monitoring.CheckResult, error) {
	defer observe("select", "monitoring_checks", time.Now())

	rows, err := r.db.QueryContext(ctx,
		`SELECT result FROM monitoring_checks
		 WHERE tenant_id = $1 AND framework = $2 AND checked_at >= $3
		 ORDER BY checked_at DESC`, tenantID, framework, formatTime(since))
	if err != nil {
		return nil, errors.DatabaseError("Failed to list monitoring checks", err)
	}
	defer rows.Close()

	out := []*monitoring.CheckResult{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, errors.DatabaseError("Failed to scan monitoring check", err)
		}
		c, err := decodeCheck(body)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("Failed to list monitoring checks", err)
	}
	return out, nil
}

func decodeCheck(body string) (*monitoring.CheckResult, error) {
	var c monitoring.CheckResult
	if err := json.Unmarshal([]byte(body), &c); err != nil {
		return nil, errors.Internal("Failed to decode monitoring check", err)
	}
	return &c, nil
}
