package alert

import (
	"context"
	"time"
)

// Repository defines the interface for alert data access
type Repository interface {
	// Create creates a new alert
	Create(ctx context.Context, alert *Alert) error

	// GetByID retrieves an alert by ID
	GetByID(ctx context.Context, id string) (*Alert, error)

	// ListUnresolved returns open and acknowledged alerts of a tenant, newest first
	ListUnresolved(ctx context.Context, tenantID string) ([]*Alert, error)

	// ListUnresolvedBefore returns unresolved alerts last updated before the cutoff
	ListUnresolvedBefore(ctx context.Context, tenantID string, cutoff time.Time) ([]*Alert, error)

	// UpdateSeverity stores an escalated severity and level
	UpdateSeverity(ctx context.Context, id string, severity Severity, level int) error

	// UpdateStatus updates alert status
	UpdateStatus(ctx context.Context, id string, status string) error
}
