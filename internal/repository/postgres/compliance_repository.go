package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/pratik-mahalle/complyflow/internal/domain/compliance"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
)

// AssessmentRepository implements compliance.AssessmentRepository
type AssessmentRepository struct {
	db *sql.DB
}

// NewAssessmentRepository creates a new assessment repository
func NewAssessmentRepository(db *sql.DB) compliance.AssessmentRepository {
	return &AssessmentRepository{db: db}
}

const assessmentColumns = `id, tenant_id, framework, status, overall_score, completed_at, created_at`

func (r *AssessmentRepository) Create(ctx context.Context, a *compliance.Assessment, findings []*compliance.Finding) error {
	defer observe("insert", "assessments", time.Now())

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("Failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO assessments (`+assessmentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.TenantID, a.Framework, a.Status, a.OverallScore,
		formatTimePtr(a.CompletedAt), formatTime(a.CreatedAt))
	if err != nil {
		return errors.DatabaseError("Failed to create assessment", err)
	}

	for _, f := range findings {
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		f.AssessmentID = a.ID
		_, err := tx.ExecContext(ctx,
			`INSERT INTO assessment_findings (id, assessment_id, control_id, status, risk_category, evidence_count)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			f.ID, f.AssessmentID, f.ControlID, string(f.Status), f.RiskCategory, f.EvidenceCount)
		if err != nil {
			return errors.DatabaseError("Failed to create finding", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("Failed to commit assessment", err)
	}
	return nil
}

func (r *AssessmentRepository) Get(ctx context.Context, id string) (*compliance.Assessment, error) {
	defer observe("select", "assessments", time.Now())

	row := r.db.QueryRowContext(ctx, `SELECT `+assessmentColumns+` FROM assessments WHERE id = $1`, id)
	a, err := scanAssessment(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Assessment")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get assessment", err)
	}
	return a, nil
}

func (r *AssessmentRepository) GetLatestCompleted(ctx context.Context, tenantID, framework string) (*compliance.Assessment, error) {
	defer observe("select", "assessments", time.Now())

	query := `SELECT ` + assessmentColumns + ` FROM assessments
	          WHERE tenant_id = $1 AND framework = $2 AND status = $3 AND completed_at IS NOT NULL
	          ORDER BY completed_at DESC
	          LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, tenantID, framework, compliance.AssessmentStatusCompleted)
	a, err := scanAssessment(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Completed assessment")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get latest assessment", err)
	}
	return a, nil
}

func (r *AssessmentRepository) GetFindings(ctx context.Context, assessmentID string) ([]*compliance.Finding, error) {
	defer observe("select", "assessment_findings", time.Now())

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, assessment_id, control_id, status, risk_category, evidence_count
		 FROM assessment_findings WHERE assessment_id = $1 ORDER BY control_id`, assessmentID)
	if err != nil {
		return nil, errors.DatabaseError("Failed to list findings", err)
	}
	defer rows.Close()

	findings := []*compliance.Finding{}
	for rows.Next() {
		var f compliance.Finding
		var status string
		if err := rows.Scan(&f.ID, &f.AssessmentID, &f.ControlID, &status, &f.RiskCategory, &f.EvidenceCount); err != nil {
			return nil, errors.DatabaseError("Failed to scan finding", err)
		}
		f.Status = compliance.FindingStatus(status)
		findings = append(findings, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("Failed to list findings", err)
	}
	return findings, nil
}

func (r *AssessmentRepository) ListCompletedSince(ctx context.Context, tenantID, framework string, since time.Time) ([]*compliance.Assessment, error) {
	defer observe("select", "assessments", time.Now())

	query := `SELECT ` + assessmentColumns + ` FROM assessments
	          WHERE tenant_id = $1 AND framework = $2 AND status = $3
	            AND completed_at IS NOT NULL AND completed_at >= $4
	          ORDER BY completed_at ASC`
	rows, err := r.db.QueryContext(ctx, query, tenantID, framework, compliance.AssessmentStatusCompleted, formatTime(since))
	if err != nil {
		return nil, errors.DatabaseError("Failed to list assessments", err)
	}
	defer rows.Close()

	out := []*compliance.Assessment{}
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, errors.DatabaseError("Failed to scan assessment", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("Failed to list assessments", err)
	}
	return out, nil
}

func scanAssessment(row scanner) (*compliance.Assessment, error) {
	var a compliance.Assessment
	var completedAt sql.NullString
	var createdAt string
	if err := row.Scan(&a.ID, &a.TenantID, &a.Framework, &a.Status, &a.OverallScore, &completedAt, &createdAt); err != nil {
		return nil, err
	}
	a.CompletedAt = parseNullTime(completedAt)
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}
