package baseline

import "context"

// Repository defines the interface for baseline data access. Baselines are
// never updated or deleted.
type Repository interface {
	// Create stores a new baseline
	Create(ctx context.Context, baseline *ComplianceBaseline) error

	// GetByID retrieves a baseline by id
	GetByID(ctx context.Context, id string) (*ComplianceBaseline, error)

	// GetLatest retrieves the most recently captured baseline
	GetLatest(ctx context.Context, tenantID, framework string) (*ComplianceBaseline, error)

	// List retrieves baselines newest first
	List(ctx context.Context, tenantID, framework string, limit int) ([]*ComplianceBaseline, error)
}
