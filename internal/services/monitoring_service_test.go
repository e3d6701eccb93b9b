package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
	"github.com/pratik-mahalle/complyflow/internal/domain/alert"
	"github.com/pratik-mahalle/complyflow/internal/domain/compliance"
	"github.com/pratik-mahalle/complyflow/internal/domain/evidence"
	"github.com/pratik-mahalle/complyflow/internal/domain/monitoring"
	"github.com/pratik-mahalle/complyflow/internal/domain/remediation"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
	"github.com/pratik-mahalle/complyflow/internal/testutil"
)

type monitoringFixture struct {
	assessments *testutil.MockAssessmentRepository
	baselines   *testutil.MockBaselineRepository
	evidence    *testutil.MockEvidenceRepository
	remediation *testutil.MockRemediationRepository
	alerts      *testutil.MockAlertService
	checks      *testutil.MockMonitoringRepository
	service     *MonitoringService
}

func newMonitoringFixture() *monitoringFixture {
	fx := &monitoringFixture{
		assessments: testutil.NewMockAssessmentRepository(),
		baselines:   testutil.NewMockBaselineRepository(),
		evidence:    testutil.NewMockEvidenceRepository(),
		remediation: testutil.NewMockRemediationRepository(),
		alerts:      testutil.NewMockAlertService(),
		checks:      testutil.NewMockMonitoringRepository(),
	}
	fx.service = NewMonitoringService(MonitoringDeps{
		Assessments: fx.assessments,
		Baselines:   fx.baselines,
		Evidence:    fx.evidence,
		Remediation: fx.remediation,
		Alerts:      fx.alerts,
		Checks:      fx.checks,
		Logger:      logger.Nop(),
	})
	return fx
}

// assessment stores a completed soc2 assessment of t1 finished ago before now
func (fx *monitoringFixture) assessment(t *testing.T, id string, score float64, ago time.Duration, findings ...*compliance.Finding) *compliance.Assessment {
	t.Helper()
	done := time.Now().Add(-ago)
	a := &compliance.Assessment{
		ID:           id,
		TenantID:     "t1",
		Framework:    "soc2",
		Status:       compliance.AssessmentStatusCompleted,
		OverallScore: score,
		CompletedAt:  &done,
		CreatedAt:    done.Add(-time.Hour),
	}
	if err := fx.assessments.Create(context.Background(), a, findings); err != nil {
		t.Fatalf("seed assessment: %v", err)
	}
	return a
}

func finding(control string, status compliance.FindingStatus, risk string, evidenceCount int) *compliance.Finding {
	return &compliance.Finding{ControlID: control, Status: status, RiskCategory: risk, EvidenceCount: evidenceCount}
}

func TestMonitoringService_CaptureBaseline(t *testing.T) {
	ctx := context.Background()
	fx := newMonitoringFixture()
	a := fx.assessment(t, "a1", 75, time.Hour,
		finding("CC1.1", compliance.StatusCompliant, "", 2),
		finding("CC1.2", compliance.StatusPartial, compliance.RiskHigh, 1),
		finding("CC1.3", compliance.StatusNonCompliant, compliance.RiskLow, 0),
		finding("CC1.4", compliance.StatusNotApplicable, "", 0),
	)

	b, err := fx.service.CaptureBaseline(ctx, a.ID, "auditor@example.com")
	if err != nil {
		t.Fatalf("CaptureBaseline() error = %v", err)
	}
	if b.TenantID != "t1" || b.Framework != "soc2" || b.OverallScore != 75 || b.AssessmentID != "a1" {
		t.Errorf("baseline = %+v, want t1/soc2 score 75 from a1", b)
	}

	want := map[string]float64{"CC1.1": 100, "CC1.2": 50, "CC1.3": 0, "CC1.4": 100}
	for id, score := range want {
		if got := b.Controls[id].Score; got != score {
			t.Errorf("control %s score = %v, want %v", id, got, score)
		}
	}

	latest, err := fx.service.GetLatestBaseline(ctx, "t1", "soc2")
	if err != nil || latest == nil || latest.ID != b.ID {
		t.Errorf("GetLatestBaseline() = %v, %v, want the captured baseline", latest, err)
	}
}

func TestMonitoringService_CaptureBaseline_Errors(t *testing.T) {
	ctx := context.Background()
	fx := newMonitoringFixture()
	_ = fx.assessments.Create(ctx, &compliance.Assessment{
		ID: "running", TenantID: "t1", Framework: "soc2", Status: compliance.AssessmentStatusInProgress,
	}, nil)

	tests := []struct {
		name     string
		id       string
		wantCode string
	}{
		{"in progress assessment", "running", errors.ErrCodePrecondition},
		{"unknown assessment", "missing", errors.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.service.CaptureBaseline(ctx, tt.id, "x")
			if !errors.HasCode(err, tt.wantCode) {
				t.Errorf("CaptureBaseline() error = %v, want %s", err, tt.wantCode)
			}
		})
	}
	if len(fx.baselines.Baselines) != 0 {
		t.Error("no baseline should be stored on failure")
	}
}

func TestMonitoringService_GetLatestBaseline_None(t *testing.T) {
	fx := newMonitoringFixture()
	b, err := fx.service.GetLatestBaseline(context.Background(), "t1", "soc2")
	if err != nil || b != nil {
		t.Errorf("GetLatestBaseline() = %v, %v, want nil, nil", b, err)
	}
}

func TestMonitoringService_DetectDrift(t *testing.T) {
	ctx := context.Background()
	fx := newMonitoringFixture()
	base := fx.assessment(t, "a1", 100, 48*time.Hour,
		finding("CC1.1", compliance.StatusCompliant, "", 1),
		finding("CC2.1", compliance.StatusCompliant, compliance.RiskHigh, 1),
		finding("CC3.1", compliance.StatusNonCompliant, "", 0),
	)
	if _, err := fx.service.CaptureBaseline(ctx, base.ID, "system"); err != nil {
		t.Fatalf("CaptureBaseline() error = %v", err)
	}
	cur := fx.assessment(t, "a2", 66, time.Hour,
		finding("CC1.1", compliance.StatusCompliant, "", 1),
		finding("CC2.1", compliance.StatusPartial, compliance.RiskHigh, 1),
		finding("CC3.1", compliance.StatusCompliant, "", 0),
		finding("CC9.1", compliance.StatusNonCompliant, compliance.RiskCritical, 0),
	)

	drift, err := fx.service.DetectDrift(ctx, "t1", "soc2", cur.ID)
	if err != nil {
		t.Fatalf("DetectDrift() error = %v", err)
	}
	if len(drift) != 2 {
		t.Fatalf("DetectDrift() = %d results, want 2: %+v", len(drift), drift)
	}
	// compliant to partial is a 50 point drop, which is critical whatever the risk
	if d := drift[0]; d.ControlID != "CC2.1" || d.Classification != monitoring.Degraded || d.Severity != monitoring.DriftCritical {
		t.Errorf("drift[0] = %+v, want CC2.1 degraded/critical", d)
	}
	if d := drift[1]; d.ControlID != "CC3.1" || d.Classification != monitoring.Improved || d.Severity != "" {
		t.Errorf("drift[1] = %+v, want CC3.1 improved without severity", d)
	}

	_, err = fx.service.DetectDrift(ctx, "t2", "soc2", cur.ID)
	if !errors.HasCode(err, errors.ErrCodePrecondition) {
		t.Errorf("DetectDrift() for another tenant error = %v, want PRECONDITION_FAILED", err)
	}
}

func TestMonitoringService_DetectDrift_NoBaseline(t *testing.T) {
	fx := newMonitoringFixture()
	cur := fx.assessment(t, "a1", 80, time.Hour, finding("CC1.1", compliance.StatusPartial, "", 0))

	drift, err := fx.service.DetectDrift(context.Background(), "t1", "soc2", cur.ID)
	if err != nil || len(drift) != 0 {
		t.Errorf("DetectDrift() = %v, %v, want empty", drift, err)
	}
}

func TestMonitoringService_RunScheduledCheck_ScoreDrop(t *testing.T) {
	ctx := context.Background()
	fx := newMonitoringFixture()
	base := fx.assessment(t, "a1", 90, 48*time.Hour,
		finding("CC6.1", compliance.StatusCompliant, compliance.RiskMedium, 2),
	)
	if _, err := fx.service.CaptureBaseline(ctx, base.ID, "system"); err != nil {
		t.Fatalf("CaptureBaseline() error = %v", err)
	}
	fx.assessment(t, "a2", 60, time.Hour,
		finding("CC6.1", compliance.StatusNonCompliant, compliance.RiskMedium, 2),
	)

	result, err := fx.service.RunScheduledCheck(ctx, "t1", "soc2")
	if err != nil {
		t.Fatalf("RunScheduledCheck() error = %v", err)
	}

	if result.CurrentScore != 60 || result.PreviousScore != 90 || result.ScoreDelta != -30 {
		t.Errorf("scores = %v -> %v (delta %v), want 90 -> 60 (delta -30)", result.PreviousScore, result.CurrentScore, result.ScoreDelta)
	}

	degradation := fx.alerts.ByType(alert.TypeScoreDegradation)
	if len(degradation) != 1 || degradation[0].Severity != alert.SeverityCritical {
		t.Errorf("score_degradation alerts = %+v, want one critical", degradation)
	}

	drift := fx.alerts.ByType(alert.TypeControlDrift)
	if len(drift) != 1 || drift[0].Severity != alert.SeverityCritical {
		t.Fatalf("control_drift alerts = %+v, want one critical", drift)
	}
	if drift[0].Details["control_id"] != "CC6.1" {
		t.Errorf("control_drift control = %v, want CC6.1", drift[0].Details["control_id"])
	}

	if result.AlertsCreated != 2 {
		t.Errorf("AlertsCreated = %d, want 2", result.AlertsCreated)
	}
	if result.DegradedControls != 1 {
		t.Errorf("DegradedControls = %d, want 1", result.DegradedControls)
	}

	if len(fx.checks.Checks) != 1 || fx.checks.Checks[0].ID != result.ID {
		t.Error("check result should be persisted")
	}
}

func TestMonitoringService_RunScheduledCheck_Thresholds(t *testing.T) {
	tests := []struct {
		name      string
		baseline  float64
		current   float64
		expired   int
		expiring  int
		overdue   int
		wantTypes map[string]alert.Severity
	}{
		{
			name:      "drop of exactly 10 raises nothing",
			baseline:  80,
			current:   70,
			wantTypes: map[string]alert.Severity{},
		},
		{
			name:      "moderate drop is a warning",
			baseline:  80,
			current:   65,
			wantTypes: map[string]alert.Severity{alert.TypeScoreDegradation: alert.SeverityWarning},
		},
		{
			name:      "drop of exactly 25 stays a warning",
			baseline:  85,
			current:   60,
			wantTypes: map[string]alert.Severity{alert.TypeScoreDegradation: alert.SeverityWarning},
		},
		{
			name:     "evidence and remediation collaborators",
			baseline: 80,
			current:  80,
			expired:  2,
			expiring: 3,
			overdue:  4,
			wantTypes: map[string]alert.Severity{
				alert.TypeEvidenceExpired:    alert.SeverityError,
				alert.TypeEvidenceExpiring:   alert.SeverityWarning,
				alert.TypeRemediationOverdue: alert.SeverityWarning,
			},
		},
		{
			name:      "many overdue tasks is an error",
			baseline:  80,
			current:   80,
			overdue:   6,
			wantTypes: map[string]alert.Severity{alert.TypeRemediationOverdue: alert.SeverityError},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			fx := newMonitoringFixture()
			base := fx.assessment(t, "base", tt.baseline, 48*time.Hour)
			if _, err := fx.service.CaptureBaseline(ctx, base.ID, "system"); err != nil {
				t.Fatalf("CaptureBaseline() error = %v", err)
			}
			fx.assessment(t, "current", tt.current, time.Hour)

			fx.evidence.ExpiredN = tt.expired
			for i := 0; i < tt.expiring; i++ {
				exp := time.Now().Add(24 * time.Hour)
				fx.evidence.Expiring = append(fx.evidence.Expiring, &evidence.Evidence{
					ID:                fmt.Sprintf("ev-%d", i),
					CollectedEvidence: adapter.CollectedEvidence{ExpiresAt: &exp},
				})
			}
			past := time.Now().Add(-48 * time.Hour)
			for i := 0; i < tt.overdue; i++ {
				_ = fx.remediation.Create(ctx, &remediation.Task{TenantID: "t1", Status: remediation.StatusOpen, DueDate: &past})
			}

			result, err := fx.service.RunScheduledCheck(ctx, "t1", "soc2")
			if err != nil {
				t.Fatalf("RunScheduledCheck() error = %v", err)
			}
			if result.AlertsCreated != len(tt.wantTypes) {
				t.Errorf("AlertsCreated = %d, want %d", result.AlertsCreated, len(tt.wantTypes))
			}
			for typ, sev := range tt.wantTypes {
				got := fx.alerts.ByType(typ)
				if len(got) != 1 || got[0].Severity != sev {
					t.Errorf("%s alerts = %+v, want one %s", typ, got, sev)
				}
			}
			if result.ExpiredEvidence != tt.expired || result.ExpiringEvidence != tt.expiring || result.OverdueRemediations != tt.overdue {
				t.Errorf("counts = %d/%d/%d, want %d/%d/%d", result.ExpiredEvidence, result.ExpiringEvidence,
					result.OverdueRemediations, tt.expired, tt.expiring, tt.overdue)
			}
		})
	}
}

func TestMonitoringService_RunScheduledCheck_NoBaseline(t *testing.T) {
	fx := newMonitoringFixture()
	fx.assessment(t, "a1", 40, time.Hour, finding("CC1.1", compliance.StatusNonCompliant, compliance.RiskCritical, 0))

	result, err := fx.service.RunScheduledCheck(context.Background(), "t1", "soc2")
	if err != nil {
		t.Fatalf("RunScheduledCheck() error = %v", err)
	}
	if result.PreviousScore != 40 || result.ScoreDelta != 0 || len(result.Drift) != 0 {
		t.Errorf("result = %+v, want zero drift against the current score", result)
	}
	if result.AlertsCreated != 0 {
		t.Errorf("AlertsCreated = %d, want 0", result.AlertsCreated)
	}
}

func TestMonitoringService_RunScheduledCheck_CollaboratorFailures(t *testing.T) {
	fx := newMonitoringFixture()
	fx.assessment(t, "a1", 70, time.Hour)
	fx.evidence.ExpireError = fmt.Errorf("evidence store down")
	fx.remediation.CountError = fmt.Errorf("remediation store down")
	fx.alerts.CreateError = fmt.Errorf("alerting down")
	fx.evidence.Expiring = []*evidence.Evidence{{ID: "ev-1"}}

	result, err := fx.service.RunScheduledCheck(context.Background(), "t1", "soc2")
	if err != nil {
		t.Fatalf("RunScheduledCheck() error = %v", err)
	}
	if len(result.Errors) != 3 {
		t.Errorf("Errors = %v, want expiry, remediation and alert failures", result.Errors)
	}
	if result.AlertsCreated != 0 {
		t.Errorf("AlertsCreated = %d, want 0", result.AlertsCreated)
	}
	if len(fx.checks.Checks) != 1 {
		t.Error("check should still be persisted")
	}
}

func TestMonitoringService_RunScheduledCheck_AssessmentStoreDown(t *testing.T) {
	fx := newMonitoringFixture()
	fx.assessments.GetError = errors.DatabaseError("query failed", fmt.Errorf("timeout"))

	if _, err := fx.service.RunScheduledCheck(context.Background(), "t1", "soc2"); err == nil {
		t.Fatal("RunScheduledCheck() error = nil, want the store error")
	}
	if len(fx.checks.Checks) != 0 {
		t.Error("no check should be persisted when the assessment lookup fails")
	}
}

func TestMonitoringService_GetComplianceTrend(t *testing.T) {
	fx := newMonitoringFixture()
	fx.assessment(t, "old", 50, 60*24*time.Hour)
	fx.assessment(t, "mid", 70, 20*24*time.Hour)
	fx.assessment(t, "new", 80, 24*time.Hour)

	points, err := fx.service.GetComplianceTrend(context.Background(), "t1", "soc2", 30)
	if err != nil {
		t.Fatalf("GetComplianceTrend() error = %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("GetComplianceTrend() = %d points, want 2", len(points))
	}
	if points[0].AssessmentID != "mid" || points[1].AssessmentID != "new" {
		t.Errorf("points = %+v, want mid then new", points)
	}

	points, _ = fx.service.GetComplianceTrend(context.Background(), "t1", "soc2", 0)
	if len(points) != 2 {
		t.Errorf("default window returned %d points, want 2", len(points))
	}
}

func TestMonitoringService_GetMonitoringHealth(t *testing.T) {
	tests := []struct {
		name     string
		baseline float64
		current  float64
		before   compliance.FindingStatus
		after    compliance.FindingStatus
		risk     string
		alert    bool
		want     string
	}{
		{"stable", 80, 80, compliance.StatusCompliant, compliance.StatusCompliant, "", false, monitoring.HealthHealthy},
		{"unresolved alert", 80, 80, compliance.StatusCompliant, compliance.StatusCompliant, "", true, monitoring.HealthWarning},
		{"degraded control", 80, 78, compliance.StatusCompliant, compliance.StatusPartial, compliance.RiskLow, false, monitoring.HealthCritical},
		{"score drop", 80, 65, compliance.StatusCompliant, compliance.StatusCompliant, "", false, monitoring.HealthWarning},
		{"large score drop", 90, 60, compliance.StatusCompliant, compliance.StatusCompliant, "", false, monitoring.HealthCritical},
		{"critical drift", 80, 79, compliance.StatusCompliant, compliance.StatusNonCompliant, compliance.RiskCritical, false, monitoring.HealthCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			fx := newMonitoringFixture()
			base := fx.assessment(t, "base", tt.baseline, 48*time.Hour, finding("CC1.1", tt.before, tt.risk, 1))
			if _, err := fx.service.CaptureBaseline(ctx, base.ID, "system"); err != nil {
				t.Fatalf("CaptureBaseline() error = %v", err)
			}
			fx.assessment(t, "current", tt.current, time.Hour, finding("CC1.1", tt.after, tt.risk, 1))
			if tt.alert {
				_, _ = fx.alerts.CreateAlert(ctx, alert.Context{TenantID: "t1", Framework: "soc2"},
					alert.Input{Type: alert.TypeEvidenceExpiring, Severity: alert.SeverityWarning, Title: "x"})
			}

			h, err := fx.service.GetMonitoringHealth(ctx, "t1", "soc2")
			if err != nil {
				t.Fatalf("GetMonitoringHealth() error = %v", err)
			}
			if h.Status != tt.want {
				t.Errorf("Status = %s, want %s (health %+v)", h.Status, tt.want, h)
			}
			if h.CurrentScore == nil || *h.CurrentScore != tt.current {
				t.Errorf("CurrentScore = %v, want %v", h.CurrentScore, tt.current)
			}
		})
	}
}

func TestMonitoringService_GetMonitoringHealth_Unknown(t *testing.T) {
	fx := newMonitoringFixture()
	h, err := fx.service.GetMonitoringHealth(context.Background(), "t1", "soc2")
	if err != nil {
		t.Fatalf("GetMonitoringHealth() error = %v", err)
	}
	if h.Status != monitoring.HealthUnknown || h.CurrentScore != nil {
		t.Errorf("health = %+v, want unknown without score", h)
	}
}
