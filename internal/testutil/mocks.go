package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
	"github.com/pratik-mahalle/complyflow/internal/domain/alert"
	"github.com/pratik-mahalle/complyflow/internal/domain/baseline"
	"github.com/pratik-mahalle/complyflow/internal/domain/compliance"
	"github.com/pratik-mahalle/complyflow/internal/domain/evidence"
	"github.com/pratik-mahalle/complyflow/internal/domain/job"
	"github.com/pratik-mahalle/complyflow/internal/domain/monitoring"
	"github.com/pratik-mahalle/complyflow/internal/domain/remediation"
	"github.com/pratik-mahalle/complyflow/internal/domain/tenant"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
)

// MockAdapterConfigRepository is a mock implementation of adapter.ConfigRepository
type MockAdapterConfigRepository struct {
	mu          sync.Mutex
	Configs     map[string]*adapter.Config
	order       []string
	Health      map[string]adapter.HealthStatus
	Collections map[string]time.Time
	ListError   error
	UpdateError error
}

func NewMockAdapterConfigRepository(cfgs ...*adapter.Config) *MockAdapterConfigRepository {
	m := &MockAdapterConfigRepository{
		Configs:     make(map[string]*adapter.Config),
		Health:      make(map[string]adapter.HealthStatus),
		Collections: make(map[string]time.Time),
	}
	for _, c := range cfgs {
		_ = m.Upsert(context.Background(), c)
	}
	return m
}

func (m *MockAdapterConfigRepository) ListEnabled(ctx context.Context, tenantID string) ([]*adapter.Config, error) {
	all, err := m.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var out []*adapter.Config
	for _, c := range all {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockAdapterConfigRepository) List(ctx context.Context, tenantID string) ([]*adapter.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListError != nil {
		return nil, m.ListError
	}
	var out []*adapter.Config
	for _, id := range m.order {
		if c := m.Configs[id]; c.TenantID == tenantID {
			cp := c.Clone()
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockAdapterConfigRepository) Get(ctx context.Context, id string) (*adapter.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Configs[id]
	if !ok {
		return nil, errors.NotFound("Adapter configuration")
	}
	cp := c.Clone()
	return &cp, nil
}

func (m *MockAdapterConfigRepository) Upsert(ctx context.Context, cfg *adapter.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Configs[cfg.ID]; !ok {
		m.order = append(m.order, cfg.ID)
	}
	cp := cfg.Clone()
	m.Configs[cfg.ID] = &cp
	return nil
}

func (m *MockAdapterConfigRepository) UpdateHealth(ctx context.Context, adapterID string, status adapter.HealthStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.Health[adapterID] = status
	if c, ok := m.Configs[adapterID]; ok {
		h := status.Healthy
		at := status.Timestamp
		c.LastHealthy = &h
		c.LastHealthAt = &at
		c.LastHealthMessage = status.Message
	}
	return nil
}

func (m *MockAdapterConfigRepository) UpdateLastCollectionTime(ctx context.Context, adapterID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.Collections[adapterID] = at
	if c, ok := m.Configs[adapterID]; ok {
		c.LastCollectionAt = &at
	}
	return nil
}

// HealthOf returns the last stored probe of an adapter
func (m *MockAdapterConfigRepository) HealthOf(adapterID string) (adapter.HealthStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.Health[adapterID]
	return h, ok
}

// MockEvidenceRepository is a mock implementation of evidence.Repository
type MockEvidenceRepository struct {
	mu          sync.Mutex
	Items       map[string]*evidence.Evidence
	Expiring    []*evidence.Evidence
	ExpiredN    int
	UpsertError error
	ExpireError error
	ListError   error
	Upserts     int
}

func NewMockEvidenceRepository() *MockEvidenceRepository {
	return &MockEvidenceRepository{Items: make(map[string]*evidence.Evidence)}
}

func evidenceKey(tenantID, source, externalID string) string {
	return tenantID + "|" + source + "|" + externalID
}

func (m *MockEvidenceRepository) Upsert(ctx context.Context, tenantID string, ev adapter.CollectedEvidence, sourceAdapterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.Upserts++
	key := evidenceKey(tenantID, sourceAdapterID, ev.ExternalID)
	now := time.Now()
	if cur, ok := m.Items[key]; ok {
		cur.CollectedEvidence = ev
		cur.UpdatedAt = now
		return nil
	}
	m.Items[key] = &evidence.Evidence{
		ID:                uuid.NewString(),
		TenantID:          tenantID,
		SourceAdapterID:   sourceAdapterID,
		CollectedEvidence: ev,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	return nil
}

func (m *MockEvidenceRepository) MarkExpired(ctx context.Context, tenantID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ExpireError != nil {
		return 0, m.ExpireError
	}
	return m.ExpiredN, nil
}

func (m *MockEvidenceRepository) ListExpiringWithin(ctx context.Context, tenantID string, days int) ([]*evidence.Evidence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListError != nil {
		return nil, m.ListError
	}
	return m.Expiring, nil
}

func (m *MockEvidenceRepository) ListBySource(ctx context.Context, tenantID, sourceAdapterID string) ([]*evidence.Evidence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListError != nil {
		return nil, m.ListError
	}
	out := []*evidence.Evidence{}
	for _, e := range m.Items {
		if e.TenantID == tenantID && e.SourceAdapterID == sourceAdapterID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, nil
}

// Count returns the number of stored evidence items
func (m *MockEvidenceRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Items)
}

// MockAssessmentRepository is a mock implementation of compliance.AssessmentRepository
type MockAssessmentRepository struct {
	mu          sync.Mutex
	Assessments map[string]*compliance.Assessment
	Findings    map[string][]*compliance.Finding
	GetError    error
}

func NewMockAssessmentRepository() *MockAssessmentRepository {
	return &MockAssessmentRepository{
		Assessments: make(map[string]*compliance.Assessment),
		Findings:    make(map[string][]*compliance.Finding),
	}
}

func (m *MockAssessmentRepository) Create(ctx context.Context, a *compliance.Assessment, findings []*compliance.Finding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	for _, f := range findings {
		f.AssessmentID = a.ID
	}
	m.Assessments[a.ID] = a
	m.Findings[a.ID] = findings
	return nil
}

func (m *MockAssessmentRepository) Get(ctx context.Context, id string) (*compliance.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetError != nil {
		return nil, m.GetError
	}
	a, ok := m.Assessments[id]
	if !ok {
		return nil, errors.NotFound("Assessment")
	}
	return a, nil
}

func (m *MockAssessmentRepository) GetLatestCompleted(ctx context.Context, tenantID, framework string) (*compliance.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetError != nil {
		return nil, m.GetError
	}
	var latest *compliance.Assessment
	for _, a := range m.completed(tenantID, framework) {
		if latest == nil || a.CompletedAt.After(*latest.CompletedAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, errors.NotFound("Completed assessment")
	}
	return latest, nil
}

func (m *MockAssessmentRepository) GetFindings(ctx context.Context, assessmentID string) ([]*compliance.Finding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]*compliance.Finding(nil), m.Findings[assessmentID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].ControlID < out[j].ControlID })
	return out, nil
}

func (m *MockAssessmentRepository) ListCompletedSince(ctx context.Context, tenantID, framework string, since time.Time) ([]*compliance.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*compliance.Assessment{}
	for _, a := range m.completed(tenantID, framework) {
		if !a.CompletedAt.Before(since) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.Before(*out[j].CompletedAt) })
	return out, nil
}

func (m *MockAssessmentRepository) completed(tenantID, framework string) []*compliance.Assessment {
	var out []*compliance.Assessment
	for _, a := range m.Assessments {
		if a.TenantID == tenantID && a.Framework == framework && a.IsCompleted() && a.CompletedAt != nil {
			out = append(out, a)
		}
	}
	return out
}

// MockBaselineRepository is a mock implementation of baseline.Repository
type MockBaselineRepository struct {
	mu          sync.Mutex
	Baselines   []*baseline.ComplianceBaseline
	CreateError error
	GetError    error
}

func NewMockBaselineRepository() *MockBaselineRepository {
	return &MockBaselineRepository{}
}

func (m *MockBaselineRepository) Create(ctx context.Context, b *baseline.ComplianceBaseline) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateError != nil {
		return m.CreateError
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	m.Baselines = append(m.Baselines, b)
	return nil
}

func (m *MockBaselineRepository) GetByID(ctx context.Context, id string) (*baseline.ComplianceBaseline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.Baselines {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, errors.NotFound("Baseline")
}

func (m *MockBaselineRepository) GetLatest(ctx context.Context, tenantID, framework string) (*baseline.ComplianceBaseline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetError != nil {
		return nil, m.GetError
	}
	var latest *baseline.ComplianceBaseline
	for _, b := range m.Baselines {
		if b.TenantID != tenantID || b.Framework != framework {
			continue
		}
		if latest == nil || !b.CapturedAt.Before(latest.CapturedAt) {
			latest = b
		}
	}
	if latest == nil {
		return nil, errors.NotFound("Baseline")
	}
	return latest, nil
}

func (m *MockBaselineRepository) List(ctx context.Context, tenantID, framework string, limit int) ([]*baseline.ComplianceBaseline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*baseline.ComplianceBaseline{}
	for i := len(m.Baselines) - 1; i >= 0; i-- {
		b := m.Baselines[i]
		if b.TenantID == tenantID && b.Framework == framework {
			out = append(out, b)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MockAlertRepository is a mock implementation of alert.Repository
type MockAlertRepository struct {
	mu          sync.Mutex
	Alerts      map[string]*alert.Alert
	CreateError error
}

func NewMockAlertRepository() *MockAlertRepository {
	return &MockAlertRepository{Alerts: make(map[string]*alert.Alert)}
}

func (m *MockAlertRepository) Create(ctx context.Context, a *alert.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateError != nil {
		return m.CreateError
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	m.Alerts[a.ID] = a
	return nil
}

func (m *MockAlertRepository) GetByID(ctx context.Context, id string) (*alert.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Alerts[id]
	if !ok {
		return nil, errors.NotFound("Alert")
	}
	cp := *a
	return &cp, nil
}

func (m *MockAlertRepository) ListUnresolved(ctx context.Context, tenantID string) ([]*alert.Alert, error) {
	return m.ListUnresolvedBefore(ctx, tenantID, time.Now().Add(24*365*time.Hour))
}

func (m *MockAlertRepository) ListUnresolvedBefore(ctx context.Context, tenantID string, cutoff time.Time) ([]*alert.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*alert.Alert{}
	for _, a := range m.Alerts {
		if a.TenantID != tenantID || a.Status == alert.StatusResolved {
			continue
		}
		if a.UpdatedAt.Before(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MockAlertRepository) UpdateSeverity(ctx context.Context, id string, severity alert.Severity, level int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Alerts[id]
	if !ok {
		return errors.NotFound("Alert")
	}
	a.Severity = severity
	a.EscalationLevel = level
	a.UpdatedAt = time.Now()
	return nil
}

func (m *MockAlertRepository) UpdateStatus(ctx context.Context, id string, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Alerts[id]
	if !ok {
		return errors.NotFound("Alert")
	}
	a.Status = status
	a.UpdatedAt = time.Now()
	return nil
}

// MockAlertService is a mock implementation of alert.Service that records alerts
type MockAlertService struct {
	mu          sync.Mutex
	Created     []*alert.Alert
	Escalated   map[string]int
	CreateError error
}

func NewMockAlertService() *MockAlertService {
	return &MockAlertService{Escalated: make(map[string]int)}
}

func (m *MockAlertService) CreateAlert(ctx context.Context, actx alert.Context, in alert.Input) (*alert.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateError != nil {
		return nil, m.CreateError
	}
	now := time.Now()
	a := &alert.Alert{
		ID:        uuid.NewString(),
		TenantID:  actx.TenantID,
		Framework: actx.Framework,
		Source:    actx.Source,
		Type:      in.Type,
		Severity:  in.Severity,
		Title:     in.Title,
		Message:   in.Message,
		Details:   in.Details,
		Status:    alert.StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.Created = append(m.Created, a)
	return a, nil
}

func (m *MockAlertService) ListUnresolved(ctx context.Context, tenantID string) ([]*alert.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*alert.Alert{}
	for _, a := range m.Created {
		if a.TenantID == tenantID && a.Status != alert.StatusResolved {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MockAlertService) EscalateStale(ctx context.Context, tenantID string, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Escalated[tenantID]++
	return 0, nil
}

func (m *MockAlertService) Acknowledge(ctx context.Context, tenantID, id string) error {
	return m.setStatus(tenantID, id, alert.StatusAcknowledged)
}

func (m *MockAlertService) Resolve(ctx context.Context, tenantID, id string) error {
	return m.setStatus(tenantID, id, alert.StatusResolved)
}

func (m *MockAlertService) setStatus(tenantID, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.Created {
		if a.ID == id && a.TenantID == tenantID {
			a.Status = status
			return nil
		}
	}
	return errors.NotFound("Alert")
}

// ByType returns the recorded alerts of one type
func (m *MockAlertService) ByType(alertType string) []*alert.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*alert.Alert
	for _, a := range m.Created {
		if a.Type == alertType {
			out = append(out, a)
		}
	}
	return out
}

// MockNotifier records delivered alerts
type MockNotifier struct {
	mu    sync.Mutex
	Sent  []*alert.Alert
	Error error
}

func (m *MockNotifier) Notify(ctx context.Context, a *alert.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Error != nil {
		return m.Error
	}
	m.Sent = append(m.Sent, a)
	return nil
}

// Count returns the number of delivered alerts
func (m *MockNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// MockRemediationRepository is a mock implementation of remediation.Repository
type MockRemediationRepository struct {
	mu         sync.Mutex
	Tasks      map[string]*remediation.Task
	CountError error
}

func NewMockRemediationRepository() *MockRemediationRepository {
	return &MockRemediationRepository{Tasks: make(map[string]*remediation.Task)}
}

func (m *MockRemediationRepository) Create(ctx context.Context, t *remediation.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	m.Tasks[t.ID] = t
	return nil
}

func (m *MockRemediationRepository) UpdateStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Tasks[id]
	if !ok {
		return errors.NotFound("Remediation task")
	}
	t.Status = status
	return nil
}

func (m *MockRemediationRepository) CountOverdue(ctx context.Context, tenantID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CountError != nil {
		return 0, m.CountError
	}
	now := time.Now()
	n := 0
	for _, t := range m.Tasks {
		if t.TenantID == tenantID && t.IsOverdue(now) {
			n++
		}
	}
	return n, nil
}

// MockMonitoringRepository is a mock implementation of monitoring.Repository
type MockMonitoringRepository struct {
	mu        sync.Mutex
	Checks    []*monitoring.CheckResult
	SaveError error
}

func NewMockMonitoringRepository() *MockMonitoringRepository {
	return &MockMonitoringRepository{}
}

func (m *MockMonitoringRepository) SaveCheck(ctx context.Context, check *monitoring.CheckResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveError != nil {
		return m.SaveError
	}
	if check.ID == "" {
		check.ID = uuid.NewString()
	}
	m.Checks = append(m.Checks, check)
	return nil
}

func (m *MockMonitoringRepository) GetLatestCheck(ctx context.Context, tenantID, framework string) (*monitoring.CheckResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Checks) - 1; i >= 0; i-- {
		if c := m.Checks[i]; c.TenantID == tenantID && c.Framework == framework {
			return c, nil
		}
	}
	return nil, errors.NotFound("Monitoring check")
}

func (m *MockMonitoringRepository) ListChecksSince(ctx context.Context, tenantID, framework string, since time.Time) ([]*monitoring.CheckResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*monitoring.CheckResult{}
	for i := len(m.Checks) - 1; i >= 0; i-- {
		c := m.Checks[i]
		if c.TenantID == tenantID && c.Framework == framework && !c.CheckedAt.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

// MockJobRepository is a mock implementation of job.Repository
type MockJobRepository struct {
	mu          sync.Mutex
	Executions  []*job.Result
	CreateError error
}

func NewMockJobRepository() *MockJobRepository {
	return &MockJobRepository{}
}

func (m *MockJobRepository) CreateExecution(ctx context.Context, res *job.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateError != nil {
		return m.CreateError
	}
	m.Executions = append(m.Executions, res)
	return nil
}

func (m *MockJobRepository) ListExecutions(ctx context.Context, jobID string, limit int) ([]*job.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*job.Result{}
	for i := len(m.Executions) - 1; i >= 0; i-- {
		if r := m.Executions[i]; jobID == "" || r.JobID == jobID {
			out = append(out, r)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Count returns the number of recorded executions
func (m *MockJobRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Executions)
}

// MockTenantRepository is a mock implementation of tenant.Repository
type MockTenantRepository struct {
	mu               sync.Mutex
	Tenants          []*tenant.Tenant
	AdapterTenants   []string
	AssessmentScopes []tenant.FrameworkScope
	AlertTenants     []string
	ScopeError       error
}

func NewMockTenantRepository() *MockTenantRepository {
	return &MockTenantRepository{}
}

func (m *MockTenantRepository) Upsert(ctx context.Context, t *tenant.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tenants = append(m.Tenants, t)
	return nil
}

func (m *MockTenantRepository) List(ctx context.Context) ([]*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Tenants, nil
}

func (m *MockTenantRepository) ListWithEnabledAdapters(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ScopeError != nil {
		return nil, m.ScopeError
	}
	return m.AdapterTenants, nil
}

func (m *MockTenantRepository) ListWithRecentAssessments(ctx context.Context, since time.Time) ([]tenant.FrameworkScope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ScopeError != nil {
		return nil, m.ScopeError
	}
	return m.AssessmentScopes, nil
}

func (m *MockTenantRepository) ListWithUnresolvedAlerts(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ScopeError != nil {
		return nil, m.ScopeError
	}
	return m.AlertTenants, nil
}
