package adapter

import (
	"context"
	"time"
)

// ConfigRepository defines the configuration store of adapters
type ConfigRepository interface {
	// ListEnabled returns the enabled adapter configurations of a tenant
	ListEnabled(ctx context.Context, tenantID string) ([]*Config, error)

	// List returns every adapter configuration of a tenant
	List(ctx context.Context, tenantID string) ([]*Config, error)

	// Get retrieves one configuration by id
	Get(ctx context.Context, id string) (*Config, error)

	// Upsert creates or replaces a configuration
	Upsert(ctx context.Context, cfg *Config) error

	// UpdateHealth stores the result of the latest health probe
	UpdateHealth(ctx context.Context, adapterID string, status HealthStatus) error

	// UpdateLastCollectionTime stamps a completed collection
	UpdateLastCollectionTime(ctx context.Context, adapterID string, at time.Time) error
}
