package alert

import "time"

// Severity of an alert
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Rank orders severities from info (0) to critical (3)
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Escalated returns the next severity up, critical stays critical
func (s Severity) Escalated() Severity {
	switch s {
	case SeverityInfo:
		return SeverityWarning
	case SeverityWarning:
		return SeverityError
	default:
		return SeverityCritical
	}
}

// Alert types
const (
	TypeScoreDegradation   = "score_degradation"
	TypeControlDrift       = "control_drift"
	TypeEvidenceExpiring   = "evidence_expiring"
	TypeEvidenceExpired    = "evidence_expired"
	TypeRemediationOverdue = "remediation_overdue"
	TypeAdapterUnhealthy   = "adapter_unhealthy"
)

// Alert status
const (
	StatusOpen         = "open"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
)

// Alert represents a compliance or operational alert
type Alert struct {
	ID              string                 `json:"id"`
	TenantID        string                 `json:"tenant_id"`
	Framework       string                 `json:"framework,omitempty"`
	Source          string                 `json:"source,omitempty"`
	Type            string                 `json:"type"`
	Severity        Severity               `json:"severity"`
	Title           string                 `json:"title"`
	Message         string                 `json:"message"`
	Details         map[string]interface{} `json:"details,omitempty"`
	Status          string                 `json:"status"`
	EscalationLevel int                    `json:"escalation_level"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	ResolvedAt      *time.Time             `json:"resolved_at,omitempty"`
}

// Context identifies where an alert comes from
type Context struct {
	TenantID  string
	Framework string
	Source    string
}

// Input is the content of a new alert
type Input struct {
	Type     string
	Severity Severity
	Title    string
	Message  string
	Details  map[string]interface{}
}
