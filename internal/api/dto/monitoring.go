package dto

// CaptureBaselineRequest is the body of POST /monitoring/baselines
type CaptureBaselineRequest struct {
	AssessmentID string `json:"assessment_id" validate:"required"`
	CapturedBy   string `json:"captured_by" validate:"required"`
}
