package dto

import (
	"time"

	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
)

// CollectRequest is the body of POST /adapters/{tenant}/collect. Every field is optional.
type CollectRequest struct {
	Since *time.Time `json:"since,omitempty"`
	Until *time.Time `json:"until,omitempty"`
	Limit int        `json:"limit,omitempty" validate:"gte=0"`
	Types []string   `json:"types,omitempty"`
}

// Options converts the request into registry collection options
func (r CollectRequest) Options() adapter.CollectionOptions {
	return adapter.CollectionOptions{
		Since: r.Since,
		Until: r.Until,
		Limit: r.Limit,
		Types: r.Types,
	}
}
