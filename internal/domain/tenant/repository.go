package tenant

import (
	"context"
	"time"
)

// Repository answers the tenant scope queries used by scheduled jobs
type Repository interface {
	Upsert(ctx context.Context, t *Tenant) error
	List(ctx context.Context) ([]*Tenant, error)

	// ListWithEnabledAdapters returns tenants that have at least one enabled adapter
	ListWithEnabledAdapters(ctx context.Context) ([]string, error)

	// ListWithRecentAssessments returns tenant/framework pairs with a completed assessment since the cutoff
	ListWithRecentAssessments(ctx context.Context, since time.Time) ([]FrameworkScope, error)

	// ListWithUnresolvedAlerts returns tenants with open or acknowledged alerts
	ListWithUnresolvedAlerts(ctx context.Context) ([]string, error)
}
