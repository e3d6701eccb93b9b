package compliance

import (
	"context"
	"time"
)

// AssessmentRepository defines the assessment store
type AssessmentRepository interface {
	// Create stores an assessment together with its findings
	Create(ctx context.Context, assessment *Assessment, findings []*Finding) error

	// Get retrieves an assessment by id
	Get(ctx context.Context, id string) (*Assessment, error)

	// GetLatestCompleted returns the most recently completed assessment
	GetLatestCompleted(ctx context.Context, tenantID, framework string) (*Assessment, error)

	// GetFindings returns the findings of an assessment ordered by control id
	GetFindings(ctx context.Context, assessmentID string) ([]*Finding, error)

	// ListCompletedSince returns completed assessments in ascending completion order
	ListCompletedSince(ctx context.Context, tenantID, framework string, since time.Time) ([]*Assessment, error)
}
