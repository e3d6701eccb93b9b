package evidence

import (
	"time"

	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
)

// Evidence is a persisted evidence item. (TenantID, SourceAdapterID,
// ExternalID) identifies it for idempotent upserts.
type Evidence struct {
	ID              string `json:"id"`
	TenantID        string `json:"tenant_id"`
	SourceAdapterID string `json:"source_adapter_id"`
	adapter.CollectedEvidence
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExpired reports whether the item is past its expiry at now
func (e *Evidence) IsExpired(now time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}
