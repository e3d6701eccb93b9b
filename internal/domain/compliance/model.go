package compliance

import "time"

// Framework identifiers
const (
	FrameworkSOC2     = "soc2"
	FrameworkISO27001 = "iso27001"
	FrameworkPCIDSS   = "pci_dss"
	FrameworkHIPAA    = "hipaa"
	FrameworkNIST     = "nist_800_53"
)

// Assessment status constants
const (
	AssessmentStatusInProgress = "in_progress"
	AssessmentStatusCompleted  = "completed"
	AssessmentStatusFailed     = "failed"
)

// Risk categories of a finding
const (
	RiskCritical = "critical"
	RiskHigh     = "high"
	RiskMedium   = "medium"
	RiskLow      = "low"
)

// FindingStatus is the assessed status of one control
type FindingStatus string

const (
	StatusCompliant     FindingStatus = "compliant"
	StatusNonCompliant  FindingStatus = "non_compliant"
	StatusPartial       FindingStatus = "partial"
	StatusNotApplicable FindingStatus = "not_applicable"
)

// Score maps a finding status onto 0..100. Unknown statuses score 0.
func (s FindingStatus) Score() float64 {
	switch s {
	case StatusCompliant, StatusNotApplicable:
		return 100
	case StatusPartial:
		return 50
	default:
		return 0
	}
}

// Assessment is one compliance assessment of a tenant against a framework
type Assessment struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	Framework    string     `json:"framework"`
	Status       string     `json:"status"`
	OverallScore float64    `json:"overall_score"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// IsCompleted reports whether the assessment reached the completed state
func (a *Assessment) IsCompleted() bool {
	return a.Status == AssessmentStatusCompleted
}

// Finding is the assessed status of one control within one assessment
type Finding struct {
	ID            string        `json:"id"`
	AssessmentID  string        `json:"assessment_id"`
	ControlID     string        `json:"control_id"`
	Status        FindingStatus `json:"status"`
	RiskCategory  string        `json:"risk_category,omitempty"`
	EvidenceCount int           `json:"evidence_count"`
}
