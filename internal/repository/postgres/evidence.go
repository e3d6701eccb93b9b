package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
	"github.com/pratik-mahalle/complyflow/internal/domain/evidence"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
)

type EvidenceRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewEvidenceRepository(db *sql.DB) evidence.Repository {
	return &EvidenceRepository{db: db, now: time.Now}
}

const evidenceColumns = `id, tenant_id, source_adapter_id, external_id, type, title, description, raw_data,
	collected_at, source_system, control_ids, severity, status, expires_at, created_at, updated_at`

func (r *EvidenceRepository) Upsert(ctx context.Context, tenantID string, ev adapter.CollectedEvidence, sourceAdapterID string) error {
	defer observe("upsert", "evidence", time.Now())

	controls := ev.ControlIDs
	if controls == nil {
		controls = []string{}
	}
	controlsJSON, err := marshalJSON(controls)
	if err != nil {
		return errors.Internal("Failed to encode control ids", err)
	}
	var raw interface{}
	if len(ev.RawData) > 0 {
		raw = string(ev.RawData)
	}
	status := ev.Status
	if status == "" {
		status = adapter.EvidenceValid
	}
	collectedAt := ev.CollectedAt
	if collectedAt.IsZero() {
		collectedAt = r.now()
	}
	now := formatTime(r.now())

	query := `INSERT INTO evidence (` + evidenceColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	          ON CONFLICT (tenant_id, source_adapter_id, external_id) DO UPDATE SET
	              type = excluded.type,
	              title = excluded.title,
	              description = excluded.description,
	              raw_data = excluded.raw_data,
	              collected_at = excluded.collected_at,
	              source_system = excluded.source_system,
	              control_ids = excluded.control_ids,
	              severity = excluded.severity,
	              status = excluded.status,
	              expires_at = excluded.expires_at,
	              updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		uuid.NewString(), tenantID, sourceAdapterID, ev.ExternalID, ev.Type, ev.Title, ev.Description, raw,
		formatTime(collectedAt), ev.SourceSystem, controlsJSON, ev.Severity, string(status),
		formatTimePtr(ev.ExpiresAt), now, now)
	if err != nil {
		return errors.DatabaseError("Failed to upsert evidence", err)
	}
	return nil
}

func (r *EvidenceRepository) MarkExpired(ctx context.Context, tenantID string) (int, error) {
	defer observe("update", "evidence", time.Now())

	now := formatTime(r.now())
	query := `UPDATE evidence SET status = $1, updated_at = $2
	          WHERE tenant_id = $3 AND status = $4 AND expires_at IS NOT NULL AND expires_at <= $5`
	res, err := r.db.ExecContext(ctx, query,
		string(adapter.EvidenceExpired), now, tenantID, string(adapter.EvidenceValid), now)
	if err != nil {
		return 0, errors.DatabaseError("Failed to mark expired evidence", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.DatabaseError("Failed to read affected rows", err)
	}
	return int(n), nil
}

func (r *EvidenceRepository) ListExpiringWithin(ctx context.Context, tenantID string, days int) ([]*evidence.Evidence, error) {
	defer observe("select", "evidence", time.Now())

	now := r.now()
	query := `SELECT ` + evidenceColumns + ` FROM evidence
	          WHERE tenant_id = $1 AND status = $2 AND expires_at IS NOT NULL
	            AND expires_at > $3 AND expires_at <= $4
	          ORDER BY expires_at, id`
	return r.list(ctx, query, tenantID, string(adapter.EvidenceValid),
		formatTime(now), formatTime(now.AddDate(0, 0, days)))
}

func (r *EvidenceRepository) ListBySource(ctx context.Context, tenantID, sourceAdapterID string) ([]*evidence.Evidence, error) {
	defer observe("select", "evidence", time.Now())

	query := `SELECT ` + evidenceColumns + ` FROM evidence
	          WHERE tenant_id = $1 AND source_adapter_id = $2
	          ORDER BY collected_at DESC, external_id`
	return r.list(ctx, query, tenantID, sourceAdapterID)
}

func (r *EvidenceRepository) list(ctx context.Context, query string, args ...interface{}) ([]*evidence.Evidence, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.DatabaseError("Failed to list evidence", err)
	}
	defer rows.Close()

	items := []*evidence.Evidence{}
	for rows.Next() {
		var (
			e                             evidence.Evidence
			raw, expiresAt                sql.NullString
			controlsJSON, status          string
			collectedAt, created, updated string
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.SourceAdapterID, &e.ExternalID, &e.Type, &e.Title,
			&e.Description, &raw, &collectedAt, &e.SourceSystem, &controlsJSON, &e.Severity, &status,
			&expiresAt, &created, &updated); err != nil {
			return nil, errors.DatabaseError("Failed to scan evidence", err)
		}
		if raw.Valid && raw.String != "" {
			e.RawData = json.RawMessage(raw.String)
		}
		if err := json.Unmarshal([]byte(controlsJSON), &e.ControlIDs); err != nil {
			return nil, errors.Internal("Failed to decode control ids", err)
		}
		e.Status = adapter.EvidenceStatus(status)
		e.CollectedAt = parseTime(collectedAt)
		e.ExpiresAt = parseNullTime(expiresAt)
		e.CreatedAt = parseTime(created)
		e.UpdatedAt = parseTime(updated)
		items = append(items, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("Failed to list evidence", err)
	}
	return items, nil
}
