package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/pratik-mahalle/complyflow/internal/domain/baseline"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
)

type BaselineRepository struct {
	db *sql.DB
}

func NewBaselineRepository(db *sql.DB) baseline.Repository {
	return &BaselineRepository{db: db}
}

const baselineColumns = `id, tenant_id, framework, assessment_id, overall_score, controls, captured_at, captured_by`

func (r *BaselineRepository) Create(ctx context.Context, b *baseline.ComplianceBaseline) error {
	defer observe("insert", "compliance_baselines", time.Now())

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CapturedAt.IsZero() {
		b.CapturedAt = time.Now().UTC()
	}
	controls := b.Controls
	if controls == nil {
		controls = map[string]baseline.ControlSnapshot{}
	}
	controlsJSON, err := marshalJSON(controls)
	if err != nil {
		return errors.Internal("Failed to encode baseline controls", err)
	}

	query := `INSERT INTO compliance_baselines (` + baselineColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.db.ExecContext(ctx, query,
		b.ID, b.TenantID, b.Framework, b.AssessmentID, b.OverallScore,
		controlsJSON, formatTime(b.CapturedAt), b.CapturedBy)
	if err != nil {
		return errors.DatabaseError("Failed to create baseline", err)
	}
	return nil
}

func (r *BaselineRepository) GetByID(ctx context.Context, id string) (*baseline.ComplianceBaseline, error) {
	defer observe("select", "compliance_baselines", time.Now())

	row := r.db.QueryRowContext(ctx, `SELECT `+baselineColumns+` FROM compliance_baselines WHERE id = $1`, id)
	b, err := scanBaseline(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Baseline")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get baseline", err)
	}
	return b, nil
}

func (r *BaselineRepository) GetLatest(ctx context.Context, tenantID, framework string) (*baseline.ComplianceBaseline, error) {
	defer observe("select", "compliance_baselines", time.Now())

	query := `SELECT ` + baselineColumns + ` FROM compliance_baselines
	          WHERE tenant_id = $1 AND framework = $2
	          ORDER BY captured_at DESC
	          LIMIT 1`
	b, err := scanBaseline(r.db.QueryRowContext(ctx, query, tenantID, framework))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Baseline")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get latest baseline", err)
	}
	return b, nil
}

func (r *BaselineRepository) List(ctx context.Context, tenantID, framework string, limit int) ([]*baseline.ComplianceBaseline, error) {
	defer observe("select", "compliance_baselines", time.Now())

	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + baselineColumns + ` FROM compliance_baselines
	          WHERE tenant_id = $1 AND framework = $2
	          ORDER BY captured_at DESC
	          LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, tenantID, framework, limit)
	if err != nil {
		return nil, errors.DatabaseError("Failed to list baselines", err)
	}
	defer rows.Close()

	out := []*baseline.ComplianceBaseline{}
	for rows.Next() {
		b, err := scanBaseline(rows)
		if err != nil {
			return nil, errors.DatabaseError("Failed to scan baseline", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("Failed to list baselines", err)
	}
	return out, nil
}

func scanBaseline(row scanner) (*baseline.ComplianceBaseline, error) {
	var b baseline.ComplianceBaseline
	var controlsJSON, capturedAt string
	if err := row.Scan(&b.ID, &b.TenantID, &b.Framework, &b.AssessmentID, &b.OverallScore,
		&controlsJSON, &capturedAt, &b.CapturedBy); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(controlsJSON), &b.Controls); err != nil {
		return nil, err
	}
	b.CapturedAt = parseTime(capturedAt)
	return &b, nil
}
