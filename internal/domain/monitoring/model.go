package monitoring

import "time"

// Classification of a per-control drift
type Classification string

const (
	Improved  Classification = "improved"
	Degraded  Classification = "degraded"
	Unchanged Classification = "unchanged"
)

// DriftSeverity is only assigned to degraded drift
type DriftSeverity string

const (
	DriftCritical DriftSeverity = "critical"
	DriftHigh     DriftSeverity = "high"
	DriftMedium   DriftSeverity = "medium"
	DriftLow      DriftSeverity = "low"
)

// Alerting thresholds of the scheduled check
const (
	// ScoreDropAlert is the overall score drop that raises an alert
	ScoreDropAlert = 10.0
	// ScoreDropCritical is the drop above which that alert is critical
	ScoreDropCritical = 25.0
	// ExpiryWindowDays is how far ahead expiring evidence is reported
	ExpiryWindowDays = 30
	// OverdueErrorThreshold is the overdue task count above which the alert is an error
	OverdueErrorThreshold = 5
)

// DriftResult compares one control against its baseline entry
type DriftResult struct {
	ControlID             string         `json:"control_id"`
	PreviousStatus        string         `json:"previous_status"`
	CurrentStatus         string         `json:"current_status"`
	PreviousScore         float64        `json:"previous_score"`
	CurrentScore          float64        `json:"current_score"`
	Delta                 float64        `json:"delta"`
	Classification        Classification `json:"classification"`
	EvidenceCountChanged  bool           `json:"evidence_count_changed"`
	PreviousEvidenceCount int            `json:"previous_evidence_count"`
	CurrentEvidenceCount  int            `json:"current_evidence_count"`
	RiskCategory          string         `json:"risk_category,omitempty"`
	Severity              DriftSeverity  `json:"severity,omitempty"`
}

// CheckResult is the audit record of one composite monitoring check
type CheckResult struct {
	ID                  string        `json:"id"`
	TenantID            string        `json:"tenant_id"`
	Framework           string        `json:"framework"`
	AssessmentID        string        `json:"assessment_id,omitempty"`
	BaselineID          string        `json:"baseline_id,omitempty"`
	CurrentScore        float64       `json:"current_score"`
	PreviousScore       float64       `json:"previous_score"`
	ScoreDelta          float64       `json:"score_delta"`
	Drift               []DriftResult `json:"drift"`
	DegradedControls    int           `json:"degraded_controls"`
	ImprovedControls    int           `json:"improved_controls"`
	ExpiringEvidence    int           `json:"expiring_evidence"`
	ExpiredEvidence     int           `json:"expired_evidence"`
	OverdueRemediations int           `json:"overdue_remediations"`
	AlertsCreated       int           `json:"alerts_created"`
	Errors              []string      `json:"errors,omitempty"`
	CheckedAt           time.Time     `json:"checked_at"`
	Duration            time.Duration `json:"duration"`
}

// TrendPoint is one completed assessment score in a trend window
type TrendPoint struct {
	Date         time.Time `json:"date"`
	Score        float64   `json:"score"`
	AssessmentID string    `json:"assessment_id"`
}

// Health states
const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
	HealthUnknown  = "unknown"
)

// Health summarizes the monitoring posture of a tenant and framework
type Health struct {
	TenantID         string     `json:"tenant_id"`
	Framework        string     `json:"framework"`
	Status           string     `json:"status"`
	CurrentScore     *float64   `json:"current_score,omitempty"`
	BaselineScore    *float64   `json:"baseline_score,omitempty"`
	ScoreDelta       float64    `json:"score_delta"`
	DegradedControls int        `json:"degraded_controls"`
	CriticalDrifts   int        `json:"critical_drifts"`
	UnresolvedAlerts int        `json:"unresolved_alerts"`
	LastCheckAt      *time.Time `json:"last_check_at,omitempty"`
	LastBaselineAt   *time.Time `json:"last_baseline_at,omitempty"`
}
