package monitoring

import (
	"context"
	"time"
)

// Repository stores monitoring check audit records
type Repository interface {
	// SaveCheck persists a check result
	SaveCheck(ctx context.Context, check *CheckResult) error

	// GetLatestCheck returns the most recent check of a tenant and framework
	GetLatestCheck(ctx context.Context, tenantID, framework string) (*CheckResult, error)

	// ListChecksSince returns checks newest first
	ListChecksSince(ctx context.Context, tenantID, framework string, since time.Time) ([]*CheckResult, error)
}
