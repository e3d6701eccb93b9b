package evidence

import (
	"context"

	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
)

// Repository defines the evidence store
type Repository interface {
	// Upsert inserts or refreshes evidence keyed by tenant, source adapter and external id
	Upsert(ctx context.Context, tenantID string, ev adapter.CollectedEvidence, sourceAdapterID string) error

	// MarkExpired flips valid evidence past its expiry to expired and returns how many changed
	MarkExpired(ctx context.Context, tenantID string) (int, error)

	// ListExpiringWithin returns valid evidence expiring in the next days
	ListExpiringWithin(ctx context.Context, tenantID string, days int) ([]*Evidence, error)

	// ListBySource returns the evidence collected from one adapter
	ListBySource(ctx context.Context, tenantID, sourceAdapterID string) ([]*Evidence, error)
}
