package alert

import (
	"context"
	"time"
)

// Service defines the alerting collaborator
type Service interface {
	// CreateAlert persists an alert and dispatches notifications
	CreateAlert(ctx context.Context, actx Context, in Input) (*Alert, error)

	// ListUnresolved returns open and acknowledged alerts of a tenant
	ListUnresolved(ctx context.Context, tenantID string) ([]*Alert, error)

	// EscalateStale raises the severity of unresolved alerts untouched for olderThan
	EscalateStale(ctx context.Context, tenantID string, olderThan time.Duration) (int, error)

	// Acknowledge marks an alert of tenantID as seen
	Acknowledge(ctx context.Context, tenantID, id string) error

	// Resolve closes an alert of tenantID
	Resolve(ctx context.Context, tenantID, id string) error
}

// Notifier delivers alerts to an external channel
type Notifier interface {
	Notify(ctx context.Context, alert *Alert) error
}
