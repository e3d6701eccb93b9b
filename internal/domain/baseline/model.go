package baseline

import (
	"time"

	"github.com/pratik-mahalle/complyflow/internal/domain/compliance"
)

// ControlSnapshot is the captured state of one control
type ControlSnapshot struct {
	Status        compliance.FindingStatus `json:"status"`
	Score         float64                  `json:"score"`
	EvidenceCount int                      `json:"evidence_count"`
}

// ComplianceBaseline is an immutable snapshot of a completed assessment.
// Later baselines for the same tenant and framework supersede it.
type ComplianceBaseline struct {
	ID           string                     `json:"id"`
	TenantID     string                     `json:"tenant_id"`
	Framework    string                     `json:"framework"`
	AssessmentID string                     `json:"assessment_id"`
	OverallScore float64                    `json:"overall_score"`
	Controls     map[string]ControlSnapshot `json:"controls"`
	CapturedAt   time.Time                  `json:"captured_at"`
	CapturedBy   string                     `json:"captured_by"`
}
