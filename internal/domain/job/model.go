package job

import "time"

// Job identifiers
const (
	EvidenceCollection   = "evidence_collection"
	ComplianceMonitoring = "compliance_monitoring"
	AdapterHealth        = "adapter_health"
	AlertEscalation      = "alert_escalation"
)

// Definition is one entry of the scheduler job table
type Definition struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Enabled     bool          `json:"enabled"`
	Interval    time.Duration `json:"interval"`
}

// Result is one job execution record
type Result struct {
	ID          string                 `json:"id"`
	JobID       string                 `json:"job_id"`
	JobName     string                 `json:"job_name"`
	Trigger     string                 `json:"trigger"` // schedule, startup, manual
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at"`
	Duration    time.Duration          `json:"duration"`
	Success     bool                   `json:"success"`
	Error       string                 `json:"error,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// Triggers
const (
	TriggerSchedule = "schedule"
	TriggerStartup  = "startup"
	TriggerManual   = "manual"
)

// JobStatus describes one job in the scheduler status
type JobStatus struct {
	Definition
	RunCount int        `json:"run_count"`
	LastRun  *Result    `json:"last_run,omitempty"`
	NextRun  *time.Time `json:"next_run,omitempty"`
}

// SchedulerStatus is the read-only view of the scheduler
type SchedulerStatus struct {
	Running     bool        `json:"running"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	Jobs        []JobStatus `json:"jobs"`
	HistorySize int         `json:"history_size"`
}

// FanOutSummary counts one job body's per-tenant work
type FanOutSummary struct {
	Tenants   int `json:"tenants"`
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}
