package registry

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/pratik-mahalle/complyflow/internal/adapters"
	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
	"github.com/pratik-mahalle/complyflow/internal/pkg/metrics"
)

// DefaultBatchSize caps simultaneous collections per registry call
const DefaultBatchSize = 5

// State is the lifecycle state of a tenant registry
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateInitialized   State = "initialized"
)

// Options tune bulk collection
type Options struct {
	BatchSize int
	// BreakerFailures consecutive failed collections open an adapter's
	// breaker for BreakerCooldown. Zero disables breaking.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize < 1 {
		o.BatchSize = DefaultBatchSize
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 5 * time.Minute
	}
	return o
}

var errCollectionFailed = stderrors.New("collection failed")

type entry struct {
	adapter adapter.Adapter
	breaker *gobreaker.CircuitBreaker
}

// Registry owns the adapters of one tenant
type Registry struct {
	tenantID string
	configs  adapter.ConfigRepository
	catalog  *adapters.Catalog
	deps     adapters.Deps
	opts     Options
	log      *logger.Logger

	initMu sync.Mutex

	mu        sync.RWMutex
	state     State
	initErr   error
	entries   map[string]*entry
	order     []string
	regErrors map[string]string
}

// New creates an empty registry for a tenant
func New(tenantID string, configs adapter.ConfigRepository, catalog *adapters.Catalog, deps adapters.Deps, opts Options, log *logger.Logger) *Registry {
	if catalog == nil {
		catalog = adapters.NewCatalog()
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithTenant(tenantID)
	if deps.Logger == nil {
		deps.Logger = log
	}
	return &Registry{
		tenantID:  tenantID,
		configs:   configs,
		catalog:   catalog,
		deps:      deps,
		opts:      opts.withDefaults(),
		log:       log,
		state:     StateUninitialized,
		entries:   make(map[string]*entry),
		regErrors: make(map[string]string),
	}
}

// TenantID returns the owning tenant
func (r *Registry) TenantID() string { return r.tenantID }

// State returns the lifecycle state
func (r *Registry) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// InitializationError returns the error of the last failed configuration load
func (r *Registry) InitializationError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initErr
}

func (r *Registry) setState(s State, err error) {
	r.mu.Lock()
	r.state = s
	r.initErr = err
	r.mu.Unlock()
}

// Initialize loads the enabled configurations of the tenant and registers
// each one independently. Adapters that fail to register are logged and
// skipped. A second call is a no-op.
func (r *Registry) Initialize(ctx context.Context) error {
	r.initMu.Lock()
	defer r.initMu.Unlock()

	if r.State() == StateInitialized {
		r.log.Debug("Registry already initialized")
		return nil
	}
	r.setState(StateInitializing, nil)

	if r.configs == nil {
		err := errors.Internal("registry has no configuration store", nil)
		r.setState(StateUninitialized, err)
		return err
	}

	cfgs, err := r.configs.ListEnabled(ctx, r.tenantID)
	if err != nil {
		appErr := errors.DatabaseError("failed to load adapter configurations", err)
		r.setState(StateUninitialized, appErr)
		r.log.ErrorWithErr(err, "Registry initialization failed")
		return appErr
	}

	registered := 0
	for _, cfg := range cfgs {
		if cfg == nil || !cfg.Enabled {
			continue
		}
		if _, err := r.RegisterAdapter(ctx, *cfg); err != nil {
			r.log.WithFields(map[string]interface{}{
				"adapter_id":   cfg.ID,
				"adapter_kind": cfg.Kind,
				"error_code":   errors.Code(err),
			}).WarnWithErr(err, "Skipping adapter that failed to register")
			continue
		}
		registered++
	}

	r.setState(StateInitialized, nil)
	r.log.WithFields(map[string]interface{}{
		"configured": len(cfgs),
		"registered": registered,
	}).Info("Adapter registry initialized")
	return nil
}

// RegisterAdapter builds, initializes and stores the adapter of cfg. An
// existing adapter with the same id is replaced.
func (r *Registry) RegisterAdapter(ctx context.Context, cfg adapter.Config) (adapter.Adapter, error) {
	if cfg.TenantID != r.tenantID {
		err := errors.ConfigurationError(cfg.ID, "tenant_id",
			fmt.Sprintf("belongs to tenant %q, not %q", cfg.TenantID, r.tenantID))
		r.recordRegistrationError(cfg.ID, err)
		return nil, err
	}

	a, err := r.catalog.Build(cfg, r.deps)
	if err != nil {
		r.recordRegistrationError(cfg.ID, err)
		return nil, err
	}
	if err := a.Initialize(ctx); err != nil {
		r.recordRegistrationError(cfg.ID, err)
		return nil, err
	}

	r.mu.Lock()
	if _, exists := r.entries[cfg.ID]; !exists {
		r.order = append(r.order, cfg.ID)
	}
	r.entries[cfg.ID] = &entry{adapter: a, breaker: r.newBreaker(cfg.ID)}
	delete(r.regErrors, cfg.ID)
	r.mu.Unlock()

	r.log.WithFields(map[string]interface{}{
		"adapter_id":   cfg.ID,
		"adapter_kind": cfg.Kind,
	}).Info("Adapter registered")
	return a, nil
}

func (r *Registry) recordRegistrationError(id string, err error) {
	r.mu.Lock()
	r.regErrors[id] = err.Error()
	r.mu.Unlock()
}

func (r *Registry) newBreaker(adapterID string) *gobreaker.CircuitBreaker {
	if r.opts.BreakerFailures == 0 {
		return nil
	}
	threshold := r.opts.BreakerFailures
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    r.tenantID + "/" + adapterID,
		Timeout: r.opts.BreakerCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.log.WithFields(map[string]interface{}{
				"adapter_id": adapterID,
				"from":       from.String(),
				"to":         to.String(),
			}).Warn("Adapter circuit breaker changed state")
		},
	})
}

// UnregisterAdapter removes an adapter; it reports whether one was removed
func (r *Registry) UnregisterAdapter(id string) bool {
	r.mu.Lock()
	_, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
		for i, v := range r.order {
			if v == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if ok {
		metrics.DeleteAdapterHealth(r.tenantID, id)
		r.log.With("adapter_id", id).Info("Adapter unregistered")
	}
	return ok
}

// GetAdapter returns a registered adapter
func (r *Registry) GetAdapter(id string) (adapter.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.adapter, true
}

// GetAdapters returns the registered adapters in registration order
func (r *Registry) GetAdapters() []adapter.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]adapter.Adapter, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].adapter)
	}
	return out
}

func (r *Registry) snapshot() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id])
	}
	return out
}

// Partition splits items into consecutive batches of at most size. No items
// yield one empty batch.
func Partition[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	if len(items) == 0 {
		return [][]T{{}}
	}
	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}

// CollectAllEvidence collects from every registered adapter, one batch at a
// time with the adapters of a batch running concurrently. Every adapter id
// appears exactly once in the result.
func (r *Registry) CollectAllEvidence(ctx context.Context, opts adapter.CollectionOptions) adapter.BulkCollectionResult {
	start := time.Now()
	entries := r.snapshot()

	bulk := adapter.BulkCollectionResult{
		TotalAdapters: len(entries),
		Results:       make(map[string]adapter.CollectionResult, len(entries)),
		StartedAt:     start,
	}

	for n, batch := range Partition(entries, r.opts.BatchSize) {
		results := make([]adapter.CollectionResult, len(batch))

		if ctx.Err() != nil {
			for i, e := range batch {
				results[i] = cancelledResult(e.adapter, ctx.Err())
			}
		} else {
			var g errgroup.Group
			g.SetLimit(r.opts.BatchSize)
			for i, e := range batch {
				g.Go(func() error {
					results[i] = r.collectOne(ctx, e, opts)
					return nil
				})
			}
			_ = g.Wait()
		}

		for i, e := range batch {
			res := results[i]
			res.Metadata.AdapterID = e.adapter.ID()
			bulk.Results[e.adapter.ID()] = res
			bulk.TotalEvidence += len(res.Evidence)
			if res.Success {
				bulk.SuccessfulAdapters++
			} else {
				bulk.FailedAdapters++
			}
		}

		r.log.WithFields(map[string]interface{}{
			"batch":   n + 1,
			"size":    len(batch),
			"elapsed": time.Since(start).String(),
		}).Debug("Collection batch finished")
	}

	bulk.Success = bulk.FailedAdapters == 0
	bulk.Duration = time.Since(start)
	metrics.RecordBulkCollection(bulk.Success)

	r.log.WithFields(map[string]interface{}{
		"total":      bulk.TotalAdapters,
		"successful": bulk.SuccessfulAdapters,
		"failed":     bulk.FailedAdapters,
		"evidence":   bulk.TotalEvidence,
		"duration":   bulk.Duration.String(),
	}).Info("Bulk evidence collection finished")
	return bulk
}

// collectOne runs one adapter behind its breaker. Panics become a failed result.
func (r *Registry) collectOne(ctx context.Context, e *entry, opts adapter.CollectionOptions) adapter.CollectionResult {
	run := func() adapter.CollectionResult {
		return safeCollect(ctx, e.adapter, opts, r.log)
	}
	if e.breaker == nil {
		return run()
	}

	out, err := e.breaker.Execute(func() (interface{}, error) {
		res := run()
		if !res.Success {
			return res, errCollectionFailed
		}
		return res, nil
	})
	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		return adapter.FailedResult(metaFor(e.adapter), adapter.ErrCodeCircuitOpen,
			"adapter circuit breaker is open", map[string]interface{}{"breaker_state": e.breaker.State().String()})
	}
	return out.(adapter.CollectionResult)
}

func safeCollect(ctx context.Context, a adapter.Adapter, opts adapter.CollectionOptions, log *logger.Logger) (res adapter.CollectionResult) {
	meta := metaFor(a)
	defer func() {
		if rec := recover(); rec != nil {
			log.With("adapter_id", a.ID()).Errorf("Adapter panicked during collection: %v", rec)
			res = adapter.FailedResult(meta, adapter.ErrCodeAdapterPanic, fmt.Sprintf("adapter panicked: %v", rec), nil)
		}
	}()
	return a.CollectEvidence(ctx, opts)
}

func cancelledResult(a adapter.Adapter, err error) adapter.CollectionResult {
	return adapter.FailedResult(metaFor(a), adapter.ErrCodeCancelled, err.Error(), nil)
}

func metaFor(a adapter.Adapter) adapter.CollectionMetadata {
	return adapter.CollectionMetadata{AdapterID: a.ID(), AdapterKind: a.Kind(), StartedAt: time.Now()}
}

// HealthCheckAll probes every adapter, batched like collection, and stores
// each status in the configuration store.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]adapter.HealthStatus {
	entries := r.snapshot()
	out := make(map[string]adapter.HealthStatus, len(entries))

	for _, batch := range Partition(entries, r.opts.BatchSize) {
		statuses := make([]adapter.HealthStatus, len(batch))
		var g errgroup.Group
		for i, e := range batch {
			g.Go(func() error {
				statuses[i] = safeHealth(ctx, e.adapter)
				return nil
			})
		}
		_ = g.Wait()
		for i, e := range batch {
			out[e.adapter.ID()] = statuses[i]
		}
	}

	if r.configs != nil {
		for id, status := range out {
			if err := r.configs.UpdateHealth(ctx, id, status); err != nil {
				r.log.With("adapter_id", id).WarnWithErr(err, "Failed to store adapter health")
			}
		}
	}
	return out
}

func safeHealth(ctx context.Context, a adapter.Adapter) (status adapter.HealthStatus) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			status = adapter.HealthStatus{
				Healthy:   false,
				Timestamp: start,
				Latency:   time.Since(start),
				Message:   fmt.Sprintf("health probe panicked: %v", rec),
			}
		}
	}()
	return a.HealthCheck(ctx)
}

// AdapterHealth is the cached view of one adapter
type AdapterHealth struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Kind        adapter.Kind          `json:"kind"`
	Initialized bool                  `json:"initialized"`
	Breaker     string                `json:"breaker,omitempty"`
	Health      *adapter.HealthStatus `json:"health,omitempty"`
}

// HealthSummary aggregates the cached health of a registry
type HealthSummary struct {
	TenantID            string                   `json:"tenant_id"`
	State               State                    `json:"state"`
	InitializationError string                   `json:"initialization_error,omitempty"`
	TotalAdapters       int                      `json:"total_adapters"`
	HealthyAdapters     int                      `json:"healthy_adapters"`
	UnhealthyAdapters   int                      `json:"unhealthy_adapters"`
	UnknownAdapters     int                      `json:"unknown_adapters"`
	Adapters            map[string]AdapterHealth `json:"adapters"`
	RegistrationErrors  map[string]string        `json:"registration_errors,omitempty"`
}

// GetHealth summarizes the last known health without probing
func (r *Registry) GetHealth() HealthSummary {
	r.mu.RLock()
	summary := HealthSummary{
		TenantID:           r.tenantID,
		State:              r.state,
		TotalAdapters:      len(r.entries),
		Adapters:           make(map[string]AdapterHealth, len(r.entries)),
		RegistrationErrors: make(map[string]string, len(r.regErrors)),
	}
	if r.initErr != nil {
		summary.InitializationError = r.initErr.Error()
	}
	for id, msg := range r.regErrors {
		summary.RegistrationErrors[id] = msg
	}
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	for _, e := range entries {
		cfg := e.adapter.Config()
		h := AdapterHealth{
			ID:          e.adapter.ID(),
			Name:        cfg.Name,
			Kind:        e.adapter.Kind(),
			Initialized: e.adapter.IsInitialized(),
			Health:      e.adapter.LastHealth(),
		}
		if e.breaker != nil {
			h.Breaker = e.breaker.State().String()
		}
		switch {
		case h.Health == nil:
			summary.UnknownAdapters++
		case h.Health.Healthy:
			summary.HealthyAdapters++
		default:
			summary.UnhealthyAdapters++
		}
		summary.Adapters[h.ID] = h
	}
	return summary
}

// AdapterIDs returns the registered ids sorted
func (r *Registry) AdapterIDs() []string {
	r.mu.RLock()
	ids := append([]string(nil), r.order...)
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Close unregisters every adapter
func (r *Registry) Close() {
	for _, id := range r.AdapterIDs() {
		r.UnregisterAdapter(id)
	}
	r.setState(StateUninitialized, nil)
}
