package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pratik-mahalle/complyflow/internal/domain/baseline"
	"github.com/pratik-mahalle/complyflow/internal/domain/monitoring"
)

// MonitoringService handles monitoring engine API calls
type MonitoringService struct {
	client *Client
}

func scopePath(tenantID, framework, op string) string {
	return "/api/v1/monitoring/" + url.PathEscape(tenantID) + "/" + url.PathEscape(framework) + "/" + op
}

// Health summarizes the posture of a tenant and framework
func (s *MonitoringService) Health(ctx context.Context, tenantID, framework string) (*monitoring.Health, error) {
	var health monitoring.Health
	if err := s.client.doRequest(ctx, http.MethodGet, scopePath(tenantID, framework, "health"), nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// Trend returns completed assessment scores of the last days, 0 for the server default
func (s *MonitoringService) Trend(ctx context.Context, tenantID, framework string, days int) ([]monitoring.TrendPoint, error) {
	path := scopePath(tenantID, framework, "trend")
	if days > 0 {
		path += "?days=" + strconv.Itoa(days)
	}
	var points []monitoring.TrendPoint
	if err := s.client.doRequest(ctx, http.MethodGet, path, nil, &points); err != nil {
		return nil, err
	}
	return points, nil
}

// LatestBaseline returns the newest baseline
func (s *MonitoringService) LatestBaseline(ctx context.Context, tenantID, framework string) (*baseline.ComplianceBaseline, error) {
	var b baseline.ComplianceBaseline
	if err := s.client.doRequest(ctx, http.MethodGet, scopePath(tenantID, framework, "baseline"), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// CaptureBaseline snapshots a completed assessment
func (s *MonitoringService) CaptureBaseline(ctx context.Context, assessmentID, capturedBy string) (*baseline.ComplianceBaseline, error) {
	body := map[string]string{
		"assessment_id": assessmentID,
		"captured_by":   capturedBy,
	}
	var b baseline.ComplianceBaseline
	if err := s.client.doRequest(ctx, http.MethodPost, "/api/v1/monitoring/baselines", body, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Drift compares an assessment against the latest baseline
func (s *MonitoringService) Drift(ctx context.Context, tenantID, framework, assessmentID string) ([]monitoring.DriftResult, error) {
	path := scopePath(tenantID, framework, "drift") + "?assessment_id=" + url.QueryEscape(assessmentID)
	var drift []monitoring.DriftResult
	if err := s.client.doRequest(ctx, http.MethodGet, path, nil, &drift); err != nil {
		return nil, err
	}
	return drift, nil
}

// Check runs the composite monitoring check now
func (s *MonitoringService) Check(ctx context.Context, tenantID, framework string) (*monitoring.CheckResult, error) {
	var result monitoring.CheckResult
	if err := s.client.doRequest(ctx, http.MethodPost, scopePath(tenantID, framework, "check"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
