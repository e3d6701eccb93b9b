package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pratik-mahalle/complyflow/internal/domain/alert"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
	"github.com/pratik-mahalle/complyflow/internal/pkg/metrics"
)

// AlertService implements alert.Service
type AlertService struct {
	repo        alert.Repository
	notifier    alert.Notifier
	minSeverity alert.Severity
	logger      *logger.Logger
	now         func() time.Time
}

// NewAlertService creates a new alert service. Alerts at or above
// minSeverity are handed to notifier when one is set.
func NewAlertService(repo alert.Repository, notifier alert.Notifier, minSeverity alert.Severity, log *logger.Logger) alert.Service {
	if minSeverity == "" {
		minSeverity = alert.SeverityError
	}
	if log == nil {
		log = logger.Nop()
	}
	return &AlertService{
		repo:        repo,
		notifier:    notifier,
		minSeverity: minSeverity,
		logger:      log,
		now:         time.Now,
	}
}

// CreateAlert persists an alert and dispatches a notification
func (s *AlertService) CreateAlert(ctx context.Context, actx alert.Context, in alert.Input) (*alert.Alert, error) {
	if actx.TenantID == "" {
		return nil, errors.BadRequest("alert needs a tenant")
	}
	if in.Type == "" || in.Title == "" {
		return nil, errors.BadRequest("alert needs a type and a title")
	}
	severity := in.Severity
	if severity == "" {
		severity = alert.SeverityInfo
	}

	now := s.now().UTC()
	a := &alert.Alert{
		ID:        uuid.NewString(),
		TenantID:  actx.TenantID,
		Framework: actx.Framework,
		Source:    actx.Source,
		Type:      in.Type,
		Severity:  severity,
		Title:     in.Title,
		Message:   in.Message,
		Details:   in.Details,
		Status:    alert.StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, a); err != nil {
		s.logger.ErrorWithErr(err, "Failed to create alert")
		return nil, err
	}
	metrics.RecordAlertCreated(a.Type, string(a.Severity))

	s.logger.WithFields(map[string]interface{}{
		"alert_id":  a.ID,
		"tenant_id": a.TenantID,
		"framework": a.Framework,
		"severity":  a.Severity,
		"type":      a.Type,
	}).Info("Alert created")

	s.notify(ctx, a)
	return a, nil
}

func (s *AlertService) notify(ctx context.Context, a *alert.Alert) {
	if s.notifier == nil || a.Severity.Rank() < s.minSeverity.Rank() {
		return
	}
	if err := s.notifier.Notify(ctx, a); err != nil {
		s.logger.With("alert_id", a.ID).WarnWithErr(err, "Failed to deliver alert notification")
	}
}

// ListUnresolved returns open and acknowledged alerts of a tenant
func (s *AlertService) ListUnresolved(ctx context.Context, tenantID string) ([]*alert.Alert, error) {
	return s.repo.ListUnresolved(ctx, tenantID)
}

// EscalateStale raises each unresolved alert untouched for olderThan by one
// severity step. Critical alerts are left alone.
func (s *AlertService) EscalateStale(ctx context.Context, tenantID string, olderThan time.Duration) (int, error) {
	stale, err := s.repo.ListUnresolvedBefore(ctx, tenantID, s.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}

	escalated := 0
	for _, a := range stale {
		if a.Severity == alert.SeverityCritical {
			continue
		}
		prev := a.Severity
		next := prev.Escalated()
		level := a.EscalationLevel + 1
		if err := s.repo.UpdateSeverity(ctx, a.ID, next, level); err != nil {
			s.logger.With("alert_id", a.ID).ErrorWithErr(err, "Failed to escalate alert")
			continue
		}
		a.Severity = next
		a.EscalationLevel = level
		escalated++

		s.logger.WithFields(map[string]interface{}{
			"alert_id":  a.ID,
			"tenant_id": tenantID,
			"from":      prev,
			"to":        next,
			"level":     a.EscalationLevel,
		}).Info("Alert escalated")

		if prev.Rank() < s.minSeverity.Rank() {
			s.notify(ctx, a)
		}
	}
	return escalated, nil
}

// Acknowledge marks an alert of tenantID as seen
func (s *AlertService) Acknowledge(ctx context.Context, tenantID, id string) error {
	a, err := s.tenantAlert(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if a.Status == alert.StatusResolved {
		return errors.PreconditionFailed("alert is already resolved")
	}
	return s.repo.UpdateStatus(ctx, id, alert.StatusAcknowledged)
}

// Resolve closes an alert of tenantID
func (s *AlertService) Resolve(ctx context.Context, tenantID, id string) error {
	if _, err := s.tenantAlert(ctx, tenantID, id); err != nil {
		return err
	}
	return s.repo.UpdateStatus(ctx, id, alert.StatusResolved)
}

// tenantAlert loads an alert, reporting alerts of other tenants as missing
func (s *AlertService) tenantAlert(ctx context.Context, tenantID, id string) (*alert.Alert, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.TenantID != tenantID {
		return nil, errors.NotFound("Alert")
	}
	return a, nil
}
