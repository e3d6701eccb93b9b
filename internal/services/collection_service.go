package services

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
	"github.com/pratik-mahalle/complyflow/internal/domain/evidence"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
	"github.com/pratik-mahalle/complyflow/internal/registry"
)

// CollectionService runs tenant registries and persists the evidence they return
type CollectionService struct {
	store    *registry.Store
	configs  adapter.ConfigRepository
	evidence evidence.Repository
	lookback time.Duration
	logger   *logger.Logger
	now      func() time.Time
}

// NewCollectionService creates a new collection service. Runs without an
// explicit start time collect the last lookback of evidence.
func NewCollectionService(store *registry.Store, configs adapter.ConfigRepository, repo evidence.Repository, lookback time.Duration, log *logger.Logger) evidence.Collector {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CollectionService{
		store:    store,
		configs:  configs,
		evidence: repo,
		lookback: lookback,
		logger:   log,
		now:      time.Now,
	}
}

func (s *CollectionService) registryFor(ctx context.Context, tenantID string) (*registry.Registry, error) {
	reg := s.store.GetOrCreate(tenantID)
	if err := reg.Initialize(ctx); err != nil {
		return nil, err
	}
	return reg, nil
}

// Collect pulls evidence from every adapter of the tenant and upserts it
func (s *CollectionService) Collect(ctx context.Context, tenantID string, opts adapter.CollectionOptions) (*evidence.CollectionSummary, error) {
	start := s.now()
	log := s.logger.WithTenant(tenantID)

	reg, err := s.registryFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if opts.Since == nil {
		since := start.Add(-s.lookback)
		opts.Since = &since
	}

	bulk := reg.CollectAllEvidence(ctx, opts)
	summary := &evidence.CollectionSummary{
		TenantID: tenantID,
		Bulk:     bulk,
	}

	for adapterID, res := range bulk.Results {
		if !res.Success && len(res.Errors) > 0 {
			last := res.Errors[len(res.Errors)-1]
			fault := errors.CollectionFault(adapterID, stderrors.New(last.Message))
			log.WithFields(map[string]interface{}{
				"adapter_id": adapterID,
				"error_code": last.Code,
			}).WarnWithErr(fault, "Adapter collection failed")
		}

		for _, ev := range res.Evidence {
			if err := s.evidence.Upsert(ctx, tenantID, ev, adapterID); err != nil {
				summary.PersistErrors++
				log.WithFields(map[string]interface{}{
					"adapter_id":  adapterID,
					"external_id": ev.ExternalID,
				}).WarnWithErr(err, "Failed to persist evidence")
				continue
			}
			summary.Persisted++
		}

		if res.Success && s.configs != nil {
			at := res.Metadata.CompletedAt
			if at.IsZero() {
				at = s.now()
			}
			if err := s.configs.UpdateLastCollectionTime(ctx, adapterID, at); err != nil {
				log.With("adapter_id", adapterID).WarnWithErr(err, "Failed to stamp collection time")
			}
		}
	}

	summary.Duration = s.now().Sub(start)
	log.WithFields(map[string]interface{}{
		"adapters":       bulk.TotalAdapters,
		"failed":         bulk.FailedAdapters,
		"evidence":       bulk.TotalEvidence,
		"persisted":      summary.Persisted,
		"persist_errors": summary.PersistErrors,
		"duration_ms":    summary.Duration.Milliseconds(),
	}).Info("Evidence collection completed")

	return summary, nil
}

// CheckHealth probes every adapter of the tenant and reports the ones that
// went from healthy to unhealthy since their previous probe.
func (s *CollectionService) CheckHealth(ctx context.Context, tenantID string) (*evidence.HealthReport, error) {
	reg, err := s.registryFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	previous := make(map[string]bool)
	for _, a := range reg.GetAdapters() {
		if h := a.LastHealth(); h != nil {
			previous[a.ID()] = h.Healthy
			continue
		}
		if cfg := a.Config(); cfg.LastHealthy != nil {
			previous[a.ID()] = *cfg.LastHealthy
		}
	}

	statuses := reg.HealthCheckAll(ctx)
	report := &evidence.HealthReport{
		TenantID: tenantID,
		Statuses: statuses,
	}
	for _, id := range reg.AdapterIDs() {
		status, ok := statuses[id]
		if !ok || status.Healthy {
			continue
		}
		if wasHealthy, known := previous[id]; known && wasHealthy {
			report.NewlyUnhealthy = append(report.NewlyUnhealthy, id)
		}
	}

	if len(report.NewlyUnhealthy) > 0 {
		s.logger.WithTenant(tenantID).With("adapters", report.NewlyUnhealthy).Warn("Adapters became unhealthy")
	}
	return report, nil
}
