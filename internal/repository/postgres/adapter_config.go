package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
	"github.com/pratik-mahalle/complyflow/internal/pkg/crypto"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
)

// AdapterConfigRepository stores adapter configurations. Credentials are
// sealed before they reach the database.
type AdapterConfigRepository struct {
	db     *sql.DB
	sealer *crypto.Sealer
}

// NewAdapterConfigRepository creates the configuration store. A nil sealer
// stores credentials unsealed.
func NewAdapterConfigRepository(db *sql.DB, sealer *crypto.Sealer) adapter.ConfigRepository {
	return &AdapterConfigRepository{db: db, sealer: sealer}
}

const adapterConfigColumns = `id, tenant_id, name, kind, base_url, credentials, polling_interval_ms, enabled, metadata,
	last_healthy, last_health_at, last_health_message, last_collection_at, created_at, updated_at`

func (r *AdapterConfigRepository) ListEnabled(ctx context.Context, tenantID string) ([]*adapter.Config, error) {
	defer observe("select", "adapter_configs", time.Now())

	query := `SELECT ` + adapterConfigColumns + ` FROM adapter_configs
	          WHERE tenant_id = $1 AND enabled = $2
	          ORDER BY created_at, id`
	return r.list(ctx, query, tenantID, true)
}

func (r *AdapterConfigRepository) List(ctx context.Context, tenantID string) ([]*adapter.Config, error) {
	defer observe("select", "adapter_configs", time.Now())

	query := `SELECT ` + adapterConfigColumns + ` FROM adapter_configs
	          WHERE tenant_id = $1
	          ORDER BY created_at, id`
	return r.list(ctx, query, tenantID)
}

func (r *AdapterConfigRepository) list(ctx context.Context, query string, args ...interface{}) ([]*adapter.Config, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.DatabaseError("Failed to list adapter configurations", err)
	}
	defer rows.Close()

	var out []*adapter.Config
	for rows.Next() {
		cfg, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("Failed to list adapter configurations", err)
	}
	return out, nil
}

func (r *AdapterConfigRepository) Get(ctx context.Context, id string) (*adapter.Config, error) {
	defer observe("select", "adapter_configs", time.Now())

	query := `SELECT ` + adapterConfigColumns + ` FROM adapter_configs WHERE id = $1`
	cfg, err := r.scan(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Adapter configuration")
	}
	return cfg, err
}

func (r *AdapterConfigRepository) Upsert(ctx context.Context, cfg *adapter.Config) error {
	defer observe("upsert", "adapter_configs", time.Now())

	creds, err := json.Marshal(cfg.Credentials)
	if err != nil {
		return errors.Internal("Failed to encode adapter credentials", err)
	}
	sealed, err := r.sealer.Seal(creds)
	if err != nil {
		return errors.Internal("Failed to seal adapter credentials", err)
	}
	meta := cfg.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := marshalJSON(meta)
	if err != nil {
		return errors.Internal("Failed to encode adapter metadata", err)
	}

	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	query := `INSERT INTO adapter_configs (id, tenant_id, name, kind, base_url, credentials, polling_interval_ms, enabled, metadata, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	          ON CONFLICT (id) DO UPDATE SET
	              tenant_id = excluded.tenant_id,
	              name = excluded.name,
	              kind = excluded.kind,
	              base_url = excluded.base_url,
	              credentials = excluded.credentials,
	              polling_interval_ms = excluded.polling_interval_ms,
	              enabled = excluded.enabled,
	              metadata = excluded.metadata,
	              updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		cfg.ID, cfg.TenantID, cfg.Name, string(cfg.Kind), cfg.BaseURL, sealed,
		cfg.PollingInterval.Milliseconds(), cfg.Enabled, metaJSON,
		formatTime(cfg.CreatedAt), formatTime(cfg.UpdatedAt))
	if err != nil {
		return errors.DatabaseError("Failed to save adapter configuration", err)
	}
	return nil
}

func (r *AdapterConfigRepository) UpdateHealth(ctx context.Context, adapterID string, status adapter.HealthStatus) error {
	defer observe("update", "adapter_configs", time.Now())

	at := status.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	query := `UPDATE adapter_configs
	          SET last_healthy = $1, last_health_at = $2, last_health_message = $3
	          WHERE id = $4`
	res, err := r.db.ExecContext(ctx, query, status.Healthy, formatTime(at), status.Message, adapterID)
	if err != nil {
		return errors.DatabaseError("Failed to update adapter health", err)
	}
	return expectRow(res, "Adapter configuration")
}

func (r *AdapterConfigRepository) UpdateLastCollectionTime(ctx context.Context, adapterID string, at time.Time) error {
	defer observe("update", "adapter_configs", time.Now())

	query := `UPDATE adapter_configs SET last_collection_at = $1 WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, formatTime(at), adapterID)
	if err != nil {
		return errors.DatabaseError("Failed to update last collection time", err)
	}
	return expectRow(res, "Adapter configuration")
}

func (r *AdapterConfigRepository) scan(row scanner) (*adapter.Config, error) {
	var (
		cfg                    adapter.Config
		kind, sealed, metaJSON string
		intervalMS             int64
		healthy                sql.NullBool
		healthAt, collectedAt  sql.NullString
		createdAt, updatedAt   string
	)
	err := row.Scan(&cfg.ID, &cfg.TenantID, &cfg.Name, &kind, &cfg.BaseURL, &sealed,
		&intervalMS, &cfg.Enabled, &metaJSON,
		&healthy, &healthAt, &cfg.LastHealthMessage, &collectedAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to scan adapter configuration", err)
	}

	cfg.Kind = adapter.Kind(kind)
	cfg.PollingInterval = time.Duration(intervalMS) * time.Millisecond

	plain, err := r.sealer.Open(sealed)
	if err != nil {
		return nil, errors.Internal("Failed to open adapter credentials", err)
	}
	if err := json.Unmarshal(plain, &cfg.Credentials); err != nil {
		return nil, errors.Internal("Failed to decode adapter credentials", err)
	}
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &cfg.Metadata); err != nil {
			return nil, errors.Internal("Failed to decode adapter metadata", err)
		}
	}

	if healthy.Valid {
		h := healthy.Bool
		cfg.LastHealthy = &h
	}
	cfg.LastHealthAt = parseNullTime(healthAt)
	cfg.LastCollectionAt = parseNullTime(collectedAt)
	cfg.CreatedAt = parseTime(createdAt)
	cfg.UpdatedAt = parseTime(updatedAt)
	return &cfg, nil
}

func expectRow(res sql.Result, resource string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.DatabaseError("Failed to read affected rows", err)
	}
	if n == 0 {
		return errors.NotFound(resource)
	}
	return nil
}
