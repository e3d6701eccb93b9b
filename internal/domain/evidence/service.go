package evidence

import (
	"context"
	"time"

	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
)

// CollectionSummary is the outcome of one tenant collection run
type CollectionSummary struct {
	TenantID      string                       `json:"tenant_id"`
	Bulk          adapter.BulkCollectionResult `json:"bulk"`
	Persisted     int                          `json:"persisted"`
	PersistErrors int                          `json:"persist_errors"`
	Duration      time.Duration                `json:"duration"`
}

// HealthReport is the outcome of probing every adapter of a tenant
type HealthReport struct {
	TenantID string                          `json:"tenant_id"`
	Statuses map[string]adapter.HealthStatus `json:"statuses"`
	// NewlyUnhealthy lists adapters whose previous probe was healthy
	NewlyUnhealthy []string `json:"newly_unhealthy,omitempty"`
}

// Collector runs the adapter registry of a tenant and persists what it returns
type Collector interface {
	Collect(ctx context.Context, tenantID string, opts adapter.CollectionOptions) (*CollectionSummary, error)
	CheckHealth(ctx context.Context, tenantID string) (*HealthReport, error)
}
