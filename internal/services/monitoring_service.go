package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pratik-mahalle/complyflow/internal/domain/alert"
	"github.com/pratik-mahalle/complyflow/internal/domain/baseline"
	"github.com/pratik-mahalle/complyflow/internal/domain/compliance"
	"github.com/pratik-mahalle/complyflow/internal/domain/evidence"
	"github.com/pratik-mahalle/complyflow/internal/domain/monitoring"
	"github.com/pratik-mahalle/complyflow/internal/domain/remediation"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
	"github.com/pratik-mahalle/complyflow/internal/pkg/metrics"
)

const (
	alertSource      = "monitoring"
	defaultTrendDays = 30
)

// MonitoringDeps are the collaborators of the monitoring engine
type MonitoringDeps struct {
	Assessments compliance.AssessmentRepository
	Baselines   baseline.Repository
	Evidence    evidence.Repository
	Remediation remediation.Repository
	Alerts      alert.Service
	Checks      monitoring.Repository
	Logger      *logger.Logger

	// ExpiryWarningDays overrides monitoring.ExpiryWindowDays
	ExpiryWarningDays int
}

// MonitoringService implements monitoring.Service
type MonitoringService struct {
	assessments compliance.AssessmentRepository
	baselines   baseline.Repository
	evidence    evidence.Repository
	remediation remediation.Repository
	alerts      alert.Service
	checks      monitoring.Repository
	expiryDays  int
	logger      *logger.Logger
	now         func() time.Time
}

// NewMonitoringService creates a new monitoring service
func NewMonitoringService(deps MonitoringDeps) *MonitoringService {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	days := deps.ExpiryWarningDays
	if days <= 0 {
		days = monitoring.ExpiryWindowDays
	}
	return &MonitoringService{
		assessments: deps.Assessments,
		baselines:   deps.Baselines,
		evidence:    deps.Evidence,
		remediation: deps.Remediation,
		alerts:      deps.Alerts,
		checks:      deps.Checks,
		expiryDays:  days,
		logger:      log,
		now:         time.Now,
	}
}

// CaptureBaseline snapshots a completed assessment as the new baseline of
// its tenant and framework.
func (s *MonitoringService) CaptureBaseline(ctx context.Context, assessmentID, capturedBy string) (*baseline.ComplianceBaseline, error) {
	a, err := s.assessments.Get(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if !a.IsCompleted() {
		return nil, errors.PreconditionFailed(fmt.Sprintf("assessment %s is %s, only completed assessments can be baselined", a.ID, a.Status))
	}

	findings, err := s.assessments.GetFindings(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	b := &baseline.ComplianceBaseline{
		ID:           uuid.NewString(),
		TenantID:     a.TenantID,
		Framework:    a.Framework,
		AssessmentID: a.ID,
		OverallScore: a.OverallScore,
		Controls:     monitoring.SnapshotControls(findings),
		CapturedAt:   s.now().UTC(),
		CapturedBy:   capturedBy,
	}
	if err := s.baselines.Create(ctx, b); err != nil {
		s.logger.ErrorWithErr(err, "Failed to store baseline")
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"tenant_id":     b.TenantID,
		"framework":     b.Framework,
		"assessment_id": b.AssessmentID,
		"baseline_id":   b.ID,
		"controls":      len(b.Controls),
	}).Info("Compliance baseline captured")
	return b, nil
}

// GetLatestBaseline returns nil without error when no baseline exists
func (s *MonitoringService) GetLatestBaseline(ctx context.Context, tenantID, framework string) (*baseline.ComplianceBaseline, error) {
	b, err := s.baselines.GetLatest(ctx, tenantID, framework)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

// DetectDrift compares the findings of an assessment against the latest baseline
func (s *MonitoringService) DetectDrift(ctx context.Context, tenantID, framework, currentAssessmentID string) ([]monitoring.DriftResult, error) {
	a, err := s.assessments.Get(ctx, currentAssessmentID)
	if err != nil {
		return nil, err
	}
	if a.TenantID != tenantID || a.Framework != framework {
		return nil, errors.PreconditionFailed(fmt.Sprintf("assessment %s does not belong to %s/%s", a.ID, tenantID, framework))
	}

	base, err := s.GetLatestBaseline(ctx, tenantID, framework)
	if err != nil {
		return nil, err
	}
	if base == nil {
		return []monitoring.DriftResult{}, nil
	}
	return s.drift(ctx, base, a.ID)
}

func (s *MonitoringService) drift(ctx context.Context, base *baseline.ComplianceBaseline, assessmentID string) ([]monitoring.DriftResult, error) {
	findings, err := s.assessments.GetFindings(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	results := monitoring.ComputeDrift(base, findings)
	for _, d := range results {
		metrics.RecordDrift(string(d.Classification), string(d.Severity))
	}
	return results, nil
}

// RunScheduledCheck compares the latest completed assessment against the
// baseline, consults evidence expiry and overdue remediation, raises alerts
// and stores the result. Collaborator failures past the assessment lookup are
// recorded in the result instead of aborting the check.
func (s *MonitoringService) RunScheduledCheck(ctx context.Context, tenantID, framework string) (*monitoring.CheckResult, error) {
	start := s.now()
	log := s.logger.WithFields(map[string]interface{}{
		"tenant_id": tenantID,
		"framework": framework,
	})

	result := &monitoring.CheckResult{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Framework: framework,
		Drift:     []monitoring.DriftResult{},
		CheckedAt: start.UTC(),
	}

	base, err := s.GetLatestBaseline(ctx, tenantID, framework)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("baseline: %v", err))
	}

	current, err := s.assessments.GetLatestCompleted(ctx, tenantID, framework)
	switch {
	case err == nil:
		result.AssessmentID = current.ID
		result.CurrentScore = current.OverallScore
	case errors.HasCode(err, errors.ErrCodeNotFound):
		result.Errors = append(result.Errors, "no completed assessment")
	default:
		return nil, err
	}

	result.PreviousScore = result.CurrentScore
	if base != nil {
		result.BaselineID = base.ID
		if current != nil {
			result.PreviousScore = base.OverallScore
		}
	}
	result.ScoreDelta = result.CurrentScore - result.PreviousScore

	if base != nil && current != nil {
		drift, err := s.drift(ctx, base, current.ID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("drift: %v", err))
		} else {
			result.Drift = drift
		}
	}
	for _, d := range result.Drift {
		switch d.Classification {
		case monitoring.Degraded:
			result.DegradedControls++
		case monitoring.Improved:
			result.ImprovedControls++
		}
	}

	var expiring []*evidence.Evidence
	if s.evidence != nil {
		expired, err := s.evidence.MarkExpired(ctx, tenantID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("mark expired: %v", err))
		}
		result.ExpiredEvidence = expired

		expiring, err = s.evidence.ListExpiringWithin(ctx, tenantID, s.expiryDays)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("expiring evidence: %v", err))
		}
		result.ExpiringEvidence = len(expiring)
	}

	if s.remediation != nil {
		overdue, err := s.remediation.CountOverdue(ctx, tenantID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("overdue remediation: %v", err))
		}
		result.OverdueRemediations = overdue
	}

	actx := alert.Context{TenantID: tenantID, Framework: framework, Source: alertSource}
	for _, in := range s.checkAlerts(result, expiring) {
		if s.alerts == nil {
			break
		}
		if _, err := s.alerts.CreateAlert(ctx, actx, in); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("alert %s: %v", in.Type, err))
			continue
		}
		result.AlertsCreated++
	}

	result.Duration = s.now().Sub(start)
	if s.checks != nil {
		if err := s.checks.SaveCheck(ctx, result); err != nil {
			log.ErrorWithErr(err, "Failed to store monitoring check")
			result.Errors = append(result.Errors, fmt.Sprintf("save check: %v", err))
		}
	}
	metrics.RecordScheduledCheck(framework)

	log.WithFields(map[string]interface{}{
		"current_score":  result.CurrentScore,
		"previous_score": result.PreviousScore,
		"degraded":       result.DegradedControls,
		"alerts":         result.AlertsCreated,
		"errors":         len(result.Errors),
	}).Info("Scheduled compliance check completed")
	return result, nil
}

// checkAlerts decides which alerts a check raises
func (s *MonitoringService) checkAlerts(r *monitoring.CheckResult, expiring []*evidence.Evidence) []alert.Input {
	var out []alert.Input

	if drop := r.PreviousScore - r.CurrentScore; drop > monitoring.ScoreDropAlert {
		sev := alert.SeverityWarning
		if drop > monitoring.ScoreDropCritical {
			sev = alert.SeverityCritical
		}
		out = append(out, alert.Input{
			Type:     alert.TypeScoreDegradation,
			Severity: sev,
			Title:    fmt.Sprintf("%s compliance score dropped %.1f points", r.Framework, drop),
			Message:  fmt.Sprintf("Overall score fell from %.1f to %.1f since the last baseline.", r.PreviousScore, r.CurrentScore),
			Details: map[string]interface{}{
				"previous_score": r.PreviousScore,
				"current_score":  r.CurrentScore,
				"baseline_id":    r.BaselineID,
				"assessment_id":  r.AssessmentID,
			},
		})
	}

	for _, d := range r.Drift {
		if d.Classification != monitoring.Degraded || d.Severity != monitoring.DriftCritical {
			continue
		}
		out = append(out, alert.Input{
			Type:     alert.TypeControlDrift,
			Severity: alert.SeverityCritical,
			Title:    fmt.Sprintf("Control %s degraded", d.ControlID),
			Message:  fmt.Sprintf("Control %s went from %s to %s.", d.ControlID, d.PreviousStatus, d.CurrentStatus),
			Details: map[string]interface{}{
				"control_id":      d.ControlID,
				"previous_status": d.PreviousStatus,
				"current_status":  d.CurrentStatus,
				"delta":           d.Delta,
				"risk_category":   d.RiskCategory,
			},
		})
	}

	if r.ExpiringEvidence > 0 {
		ids := make([]string, 0, len(expiring))
		for _, e := range expiring {
			ids = append(ids, e.ID)
		}
		out = append(out, alert.Input{
			Type:     alert.TypeEvidenceExpiring,
			Severity: alert.SeverityWarning,
			Title:    fmt.Sprintf("%d evidence items expire within %d days", r.ExpiringEvidence, s.expiryDays),
			Message:  "Refresh the evidence before it expires to keep the affected controls covered.",
			Details:  map[string]interface{}{"evidence_ids": ids},
		})
	}

	if r.ExpiredEvidence > 0 {
		out = append(out, alert.Input{
			Type:     alert.TypeEvidenceExpired,
			Severity: alert.SeverityError,
			Title:    fmt.Sprintf("%d evidence items expired", r.ExpiredEvidence),
			Message:  "Evidence passed its expiry date and no longer supports its controls.",
			Details:  map[string]interface{}{"count": r.ExpiredEvidence},
		})
	}

	if r.OverdueRemediations > 0 {
		sev := alert.SeverityWarning
		if r.OverdueRemediations > monitoring.OverdueErrorThreshold {
			sev = alert.SeverityError
		}
		out = append(out, alert.Input{
			Type:     alert.TypeRemediationOverdue,
			Severity: sev,
			Title:    fmt.Sprintf("%d remediation tasks overdue", r.OverdueRemediations),
			Message:  "Remediation tasks are past their due date.",
			Details:  map[string]interface{}{"count": r.OverdueRemediations},
		})
	}
	return out
}

// GetComplianceTrend returns one point per completed assessment in the last days
func (s *MonitoringService) GetComplianceTrend(ctx context.Context, tenantID, framework string, days int) ([]monitoring.TrendPoint, error) {
	if days <= 0 {
		days = defaultTrendDays
	}
	since := s.now().AddDate(0, 0, -days)
	assessments, err := s.assessments.ListCompletedSince(ctx, tenantID, framework, since)
	if err != nil {
		return nil, err
	}

	points := make([]monitoring.TrendPoint, 0, len(assessments))
	for _, a := range assessments {
		date := a.CreatedAt
		if a.CompletedAt != nil {
			date = *a.CompletedAt
		}
		points = append(points, monitoring.TrendPoint{
			Date:         date,
			Score:        a.OverallScore,
			AssessmentID: a.ID,
		})
	}
	return points, nil
}

// GetMonitoringHealth summarizes the posture of a tenant and framework
// without raising alerts.
func (s *MonitoringService) GetMonitoringHealth(ctx context.Context, tenantID, framework string) (*monitoring.Health, error) {
	h := &monitoring.Health{
		TenantID:  tenantID,
		Framework: framework,
		Status:    monitoring.HealthUnknown,
	}

	current, err := s.assessments.GetLatestCompleted(ctx, tenantID, framework)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeNotFound) {
			return h, nil
		}
		return nil, err
	}
	score := current.OverallScore
	h.CurrentScore = &score

	base, err := s.GetLatestBaseline(ctx, tenantID, framework)
	if err != nil {
		return nil, err
	}
	if base != nil {
		baseScore := base.OverallScore
		capturedAt := base.CapturedAt
		h.BaselineScore = &baseScore
		h.LastBaselineAt = &capturedAt
		h.ScoreDelta = score - baseScore

		drift, err := s.drift(ctx, base, current.ID)
		if err != nil {
			return nil, err
		}
		for _, d := range drift {
			if d.Classification != monitoring.Degraded {
				continue
			}
			h.DegradedControls++
			if d.Severity == monitoring.DriftCritical {
				h.CriticalDrifts++
			}
		}
	}

	if s.alerts != nil {
		unresolved, err := s.alerts.ListUnresolved(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		for _, a := range unresolved {
			if a.Framework == "" || a.Framework == framework {
				h.UnresolvedAlerts++
			}
		}
	}

	if s.checks != nil {
		last, err := s.checks.GetLatestCheck(ctx, tenantID, framework)
		if err == nil {
			at := last.CheckedAt
			h.LastCheckAt = &at
		} else if !errors.HasCode(err, errors.ErrCodeNotFound) {
			return nil, err
		}
	}

	switch {
	case h.CriticalDrifts > 0 || h.ScoreDelta < -monitoring.ScoreDropCritical:
		h.Status = monitoring.HealthCritical
	case h.DegradedControls > 0 || h.ScoreDelta < -monitoring.ScoreDropAlert || h.UnresolvedAlerts > 0:
		h.Status = monitoring.HealthWarning
	default:
		h.Status = monitoring.HealthHealthy
	}
	return h, nil
}
