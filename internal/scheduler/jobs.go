package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pratik-mahalle/complyflow/internal/config"
	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
	"github.com/pratik-mahalle/complyflow/internal/domain/alert"
	"github.com/pratik-mahalle/complyflow/internal/domain/evidence"
	"github.com/pratik-mahalle/complyflow/internal/domain/job"
	"github.com/pratik-mahalle/complyflow/internal/domain/monitoring"
	"github.com/pratik-mahalle/complyflow/internal/domain/tenant"
	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
)

// JobDeps are the collaborators of the built-in jobs
type JobDeps struct {
	Tenants    tenant.Repository
	Collector  evidence.Collector
	Monitoring monitoring.Service
	Alerts     alert.Service

	// AssessmentWindow bounds which tenant/framework pairs are monitored
	AssessmentWindow time.Duration
	// EscalateAfter is the age at which unresolved alerts escalate
	EscalateAfter time.Duration
	Logger        *logger.Logger
	now           func() time.Time
}

// DefaultJobs builds the job table from configuration
func DefaultJobs(cfg config.SchedulerConfig, deps JobDeps) []Job {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.now == nil {
		deps.now = time.Now
	}
	if deps.AssessmentWindow <= 0 {
		deps.AssessmentWindow = 30 * 24 * time.Hour
	}
	if deps.EscalateAfter <= 0 {
		deps.EscalateAfter = 72 * time.Hour
	}

	return []Job{
		{
			Definition: job.Definition{
				ID:          job.EvidenceCollection,
				Name:        "Evidence collection",
				Description: "Collect evidence from every enabled adapter of every tenant",
				Enabled:     cfg.EvidenceCollection.Enabled,
				Interval:    cfg.EvidenceCollection.Interval,
			},
			Run: deps.collectEvidence,
		},
		{
			Definition: job.Definition{
				ID:          job.ComplianceMonitoring,
				Name:        "Compliance monitoring",
				Description: "Run the scheduled compliance check for recently assessed frameworks",
				Enabled:     cfg.ComplianceMonitoring.Enabled,
				Interval:    cfg.ComplianceMonitoring.Interval,
			},
			Run: deps.monitorCompliance,
		},
		{
			Definition: job.Definition{
				ID:          job.AdapterHealth,
				Name:        "Adapter health",
				Description: "Probe every adapter and alert on newly unhealthy ones",
				Enabled:     cfg.AdapterHealth.Enabled,
				Interval:    cfg.AdapterHealth.Interval,
			},
			Run: deps.checkAdapterHealth,
		},
		{
			Definition: job.Definition{
				ID:          job.AlertEscalation,
				Name:        "Alert escalation",
				Description: "Escalate unresolved alerts past their age threshold",
				Enabled:     cfg.AlertEscalation.Enabled,
				Interval:    cfg.AlertEscalation.Interval,
			},
			Run: deps.escalateAlerts,
		},
	}
}

// fanOut runs fn for every item sequentially. A failing item is counted and
// logged; the job fails only when it is cancelled or every item failed.
func fanOut[T any](ctx context.Context, items []T, key func(T) string, fn func(context.Context, T) error, log *logger.Logger) (job.FanOutSummary, error) {
	summary := job.FanOutSummary{Tenants: len(items)}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := fn(ctx, item); err != nil {
			summary.Errors++
			log.With("scope", key(item)).WarnWithErr(err, "Tenant run failed")
			continue
		}
		summary.Processed++
	}
	if summary.Tenants > 0 && summary.Errors == summary.Tenants {
		return summary, fmt.Errorf("all %d tenants failed", summary.Tenants)
	}
	return summary, nil
}

func summaryDetails(s job.FanOutSummary, extra map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{
		"tenants":   s.Tenants,
		"processed": s.Processed,
		"errors":    s.Errors,
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func tenantKey(id string) string { return id }

func (d JobDeps) collectEvidence(ctx context.Context) (map[string]interface{}, error) {
	tenants, err := d.Tenants.ListWithEnabledAdapters(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}

	collected, persisted, failedAdapters := 0, 0, 0
	summary, err := fanOut(ctx, tenants, tenantKey, func(ctx context.Context, tenantID string) error {
		res, err := d.Collector.Collect(ctx, tenantID, adapter.CollectionOptions{})
		if err != nil {
			return err
		}
		collected += res.Bulk.TotalEvidence
		persisted += res.Persisted
		failedAdapters += res.Bulk.FailedAdapters
		return nil
	}, d.Logger.With("job_id", job.EvidenceCollection))

	return summaryDetails(summary, map[string]interface{}{
		"evidence_collected": collected,
		"evidence_persisted": persisted,
		"failed_adapters":    failedAdapters,
	}), err
}

func (d JobDeps) monitorCompliance(ctx context.Context) (map[string]interface{}, error) {
	scopes, err := d.Tenants.ListWithRecentAssessments(ctx, d.now().Add(-d.AssessmentWindow))
	if err != nil {
		return nil, fmt.Errorf("list assessed tenants: %w", err)
	}

	alerts, degraded := 0, 0
	key := func(s tenant.FrameworkScope) string { return s.TenantID + "/" + s.Framework }
	summary, err := fanOut(ctx, scopes, key, func(ctx context.Context, s tenant.FrameworkScope) error {
		res, err := d.Monitoring.RunScheduledCheck(ctx, s.TenantID, s.Framework)
		if err != nil {
			return err
		}
		alerts += res.AlertsCreated
		degraded += res.DegradedControls
		return nil
	}, d.Logger.With("job_id", job.ComplianceMonitoring))

	return summaryDetails(summary, map[string]interface{}{
		"alerts_created":    alerts,
		"degraded_controls": degraded,
	}), err
}

func (d JobDeps) checkAdapterHealth(ctx context.Context) (map[string]interface{}, error) {
	tenants, err := d.Tenants.ListWithEnabledAdapters(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}

	unhealthy, alerts := 0, 0
	summary, err := fanOut(ctx, tenants, tenantKey, func(ctx context.Context, tenantID string) error {
		report, err := d.Collector.CheckHealth(ctx, tenantID)
		if err != nil {
			return err
		}
		for _, status := range report.Statuses {
			if !status.Healthy {
				unhealthy++
			}
		}
		for _, adapterID := range report.NewlyUnhealthy {
			status := report.Statuses[adapterID]
			_, err := d.Alerts.CreateAlert(ctx,
				alert.Context{TenantID: tenantID, Source: job.AdapterHealth},
				alert.Input{
					Type:     alert.TypeAdapterUnhealthy,
					Severity: alert.SeverityError,
					Title:    fmt.Sprintf("Adapter %s is unhealthy", adapterID),
					Message:  status.Message,
					Details: map[string]interface{}{
						"adapter_id": adapterID,
						"latency_ms": status.Latency.Milliseconds(),
					},
				})
			if err != nil {
				return err
			}
			alerts++
		}
		return nil
	}, d.Logger.With("job_id", job.AdapterHealth))

	return summaryDetails(summary, map[string]interface{}{
		"unhealthy_adapters": unhealthy,
		"alerts_created":     alerts,
	}), err
}

func (d JobDeps) escalateAlerts(ctx context.Context) (map[string]interface{}, error) {
	tenants, err := d.Tenants.ListWithUnresolvedAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}

	escalated := 0
	summary, err := fanOut(ctx, tenants, tenantKey, func(ctx context.Context, tenantID string) error {
		n, err := d.Alerts.EscalateStale(ctx, tenantID, d.EscalateAfter)
		escalated += n
		return err
	}, d.Logger.With("job_id", job.AlertEscalation))

	return summaryDetails(summary, map[string]interface{}{
		"escalated": escalated,
	}), err
}
