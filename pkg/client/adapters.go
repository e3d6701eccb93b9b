package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
	"github.com/pratik-mahalle/complyflow/internal/domain/evidence"
	"github.com/pratik-mahalle/complyflow/internal/registry"
)

// AdapterService handles adapter registry API calls
type AdapterService struct {
	client *Client
}

// Health returns the last known health of a tenant's registry without probing
func (s *AdapterService) Health(ctx context.Context, tenantID string) (*registry.HealthSummary, error) {
	var summary registry.HealthSummary
	if err := s.client.doRequest(ctx, http.MethodGet, "/api/v1/adapters/"+url.PathEscape(tenantID)+"/health", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Probe health-checks every adapter of a tenant
func (s *AdapterService) Probe(ctx context.Context, tenantID string) (*evidence.HealthReport, error) {
	var report evidence.HealthReport
	if err := s.client.doRequest(ctx, http.MethodPost, "/api/v1/adapters/"+url.PathEscape(tenantID)+"/health", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Collect runs evidence collection for a tenant
func (s *AdapterService) Collect(ctx context.Context, tenantID string, opts adapter.CollectionOptions) (*evidence.CollectionSummary, error) {
	var summary evidence.CollectionSummary
	if err := s.client.doRequest(ctx, http.MethodPost, "/api/v1/adapters/"+url.PathEscape(tenantID)+"/collect", opts, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
