package monitoring

import (
	"context"

	"github.com/pratik-mahalle/complyflow/internal/domain/baseline"
)

// Service defines the continuous monitoring engine
type Service interface {
	// CaptureBaseline snapshots a completed assessment
	CaptureBaseline(ctx context.Context, assessmentID, capturedBy string) (*baseline.ComplianceBaseline, error)

	// GetLatestBaseline returns the newest baseline, or nil when none exists
	GetLatestBaseline(ctx context.Context, tenantID, framework string) (*baseline.ComplianceBaseline, error)

	// DetectDrift compares an assessment against the latest baseline
	DetectDrift(ctx context.Context, tenantID, framework, currentAssessmentID string) ([]DriftResult, error)

	// RunScheduledCheck runs the composite check, raises alerts and persists the result
	RunScheduledCheck(ctx context.Context, tenantID, framework string) (*CheckResult, error)

	// GetComplianceTrend returns completed assessment scores over the last days
	GetComplianceTrend(ctx context.Context, tenantID, framework string, days int) ([]TrendPoint, error)

	// GetMonitoringHealth summarizes the current posture without raising alerts
	GetMonitoringHealth(ctx context.Context, tenantID, framework string) (*Health, error)
}
