package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pratik-mahalle/complyflow/internal/domain/alert"
)

// AlertService handles alert API calls
type AlertService struct {
	client *Client
}

// ListUnresolved returns open and acknowledged alerts of a tenant
func (s *AlertService) ListUnresolved(ctx context.Context, tenantID string) ([]*alert.Alert, error) {
	var alerts []*alert.Alert
	if err := s.client.doRequest(ctx, http.MethodGet, "/api/v1/alerts/"+url.PathEscape(tenantID), nil, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// Acknowledge marks an alert as seen
func (s *AlertService) Acknowledge(ctx context.Context, tenantID, id string) error {
	return s.client.doRequest(ctx, http.MethodPost, "/api/v1/alerts/"+url.PathEscape(tenantID)+"/"+url.PathEscape(id)+"/acknowledge", nil, nil)
}

// Resolve closes an alert
func (s *AlertService) Resolve(ctx context.Context, tenantID, id string) error {
	return s.client.doRequest(ctx, http.MethodPost, "/api/v1/alerts/"+url.PathEscape(tenantID)+"/"+url.PathEscape(id)+"/resolve", nil, nil)
}
