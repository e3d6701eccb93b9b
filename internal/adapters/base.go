package adapters

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
	"github.com/pratik-mahalle/complyflow/internal/pkg/metrics"
	"github.com/pratik-mahalle/complyflow/internal/pkg/validator"
)

// Deps are the shared collaborators handed to every adapter constructor
type Deps struct {
	Logger    *logger.Logger
	Policy    RetryPolicy
	RateLimit rate.Limit // 0 disables client-side limiting
	RateBurst int
	// Transport replaces the pooled base transport, mostly for tests
	Transport http.RoundTripper
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Policy == (RetryPolicy{}) {
		d.Policy = DefaultRetryPolicy()
	}
	if d.RateBurst < 1 {
		d.RateBurst = 1
	}
	return d
}

// driver is the vendor-specific half of an adapter
type driver interface {
	// checkConfig validates fields beyond the shared credential rules
	checkConfig() error
	probe(ctx context.Context) (map[string]interface{}, error)
	collect(ctx context.Context, opts adapter.CollectionOptions) batch
}

// batch is what a driver produced in one collection
type batch struct {
	evidence  []adapter.CollectedEvidence
	errs      []adapter.CollectionError
	processed int
	skipped   int
	// fatal ends the collection as failed; partial evidence is kept
	fatal *adapter.CollectionError
}

func (b *batch) recordError(code, message string, details map[string]interface{}) {
	b.errs = append(b.errs, adapter.CollectionError{Code: code, Message: message, Details: details})
	b.skipped++
}

// fetchFailure converts a transport or API error into a collection error
func fetchFailure(err error) *adapter.CollectionError {
	ce := &adapter.CollectionError{Code: adapter.ErrCodeFetchFailed, Message: err.Error()}
	var he *HTTPError
	if stderrors.As(err, &he) {
		ce.Details = map[string]interface{}{
			"status_code": he.StatusCode,
			"attempts":    he.Attempts,
		}
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		ce.Code = adapter.ErrCodeCancelled
	}
	return ce
}

func parseFailure(err error) *adapter.CollectionError {
	return &adapter.CollectionError{Code: adapter.ErrCodeParseFailed, Message: err.Error()}
}

// Base carries the lifecycle shared by every adapter: configuration
// validation, the health probe, result bookkeeping and the retrying
// HTTP executors.
type Base struct {
	cfg     adapter.Config
	deps    Deps
	log     *logger.Logger
	exec    *Executor
	probeEx *Executor
	headers http.Header
	drv     driver

	mu          sync.RWMutex
	initialized bool
	lastHealth  *adapter.HealthStatus
}

func newBase(cfg adapter.Config, deps Deps) (*Base, error) {
	deps = deps.withDefaults()
	cfg = cfg.Clone()

	b := &Base{
		cfg:     cfg,
		deps:    deps,
		headers: AuthHeaders(cfg.Credentials),
		log: deps.Logger.WithFields(map[string]interface{}{
			"adapter_id":   cfg.ID,
			"adapter_kind": cfg.Kind,
			"tenant_id":    cfg.TenantID,
		}),
	}

	transport := deps.Transport
	if transport == nil {
		rt, err := authTransport(cfg, newBaseTransport())
		if err != nil {
			return nil, errors.ConfigurationError(cfg.ID, "credentials", err.Error())
		}
		transport = rt
	}

	opts := []ExecutorOption{WithTransport(transport), WithExecutorLogger(b.log)}
	if deps.RateLimit > 0 {
		opts = append(opts, WithRateLimit(rate.NewLimiter(deps.RateLimit, deps.RateBurst)))
	}
	b.exec = NewExecutor(deps.Policy, opts...)

	probePolicy := deps.Policy
	probePolicy.MaxRetries = 0
	b.probeEx = NewExecutor(probePolicy, WithTransport(transport), WithExecutorLogger(b.log))

	return b, nil
}

// ID returns the configuration id
func (b *Base) ID() string { return b.cfg.ID }

// Kind returns the adapter kind
func (b *Base) Kind() adapter.Kind { return b.cfg.Kind }

// Config returns a copy of the adapter configuration
func (b *Base) Config() adapter.Config { return b.cfg.Clone() }

// IsInitialized reports whether Initialize succeeded
func (b *Base) IsInitialized() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initialized
}

// LastHealth returns the result of the latest probe, nil before the first
func (b *Base) LastHealth() *adapter.HealthStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.lastHealth == nil {
		return nil
	}
	h := *b.lastHealth
	return &h
}

// Backoff exposes the retry schedule of the adapter
func (b *Base) Backoff(attempt int) time.Duration {
	return b.deps.Policy.Delay(attempt)
}

// AuthHeaders returns a copy of the static auth headers
func (b *Base) AuthHeaders() http.Header {
	return b.headers.Clone()
}

func (b *Base) validate() error {
	if errs := validator.Validate(b.cfg); len(errs) > 0 {
		return errors.ConfigurationError(b.cfg.ID, errs[0].Field, errs[0].Message)
	}
	if field := b.cfg.Credentials.MissingField(); field != "" {
		return errors.ConfigurationError(b.cfg.ID, "credentials."+field,
			fmt.Sprintf("required for auth type %q", b.cfg.Credentials.AuthType))
	}
	if b.drv != nil {
		return b.drv.checkConfig()
	}
	return nil
}

// Initialize validates the configuration and runs exactly one health probe.
// An unhealthy probe fails initialization.
func (b *Base) Initialize(ctx context.Context) error {
	if err := b.validate(); err != nil {
		return err
	}

	status := b.HealthCheck(ctx)
	if !status.Healthy {
		return errors.ConnectivityError(b.cfg.ID, status.Message)
	}

	b.mu.Lock()
	b.initialized = true
	b.mu.Unlock()

	b.log.With("latency_ms", status.Latency.Milliseconds()).Info("Adapter initialized")
	return nil
}

// HealthCheck probes the external system. Failures are reported in the
// returned status.
func (b *Base) HealthCheck(ctx context.Context) (status adapter.HealthStatus) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			status = adapter.HealthStatus{
				Healthy:   false,
				Timestamp: start,
				Latency:   time.Since(start),
				Message:   fmt.Sprintf("health probe panicked: %v", r),
			}
		}
		b.mu.Lock()
		h := status
		b.lastHealth = &h
		b.mu.Unlock()
		metrics.SetAdapterHealth(b.cfg.TenantID, b.cfg.ID, status.Healthy)
	}()

	details, err := b.drv.probe(ctx)
	status = adapter.HealthStatus{
		Healthy:   err == nil,
		Timestamp: start,
		Latency:   time.Since(start),
		Details:   details,
	}
	if err != nil {
		status.Message = err.Error()
	}
	return status
}

// CollectEvidence runs the driver and folds every failure into the result
func (b *Base) CollectEvidence(ctx context.Context, opts adapter.CollectionOptions) (result adapter.CollectionResult) {
	meta := adapter.CollectionMetadata{
		AdapterID:   b.cfg.ID,
		AdapterKind: b.cfg.Kind,
		StartedAt:   time.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			b.log.Errorf("Adapter panicked during collection: %v", r)
			result = adapter.FailedResult(meta, adapter.ErrCodeAdapterPanic, fmt.Sprintf("adapter panicked: %v", r), nil)
		}
		metrics.RecordAdapterCollection(string(b.cfg.Kind), result.Success, len(result.Evidence), result.Metadata.Duration)
	}()

	if !b.IsInitialized() {
		return adapter.FailedResult(meta, adapter.ErrCodeNotInitialized, "adapter is not initialized", nil)
	}

	out := b.drv.collect(ctx, opts)

	evidence := make([]adapter.CollectedEvidence, 0, len(out.evidence))
	for _, ev := range out.evidence {
		evidence = append(evidence, b.finalize(ev, meta.StartedAt))
	}
	if opts.Limit > 0 && len(evidence) > opts.Limit {
		evidence = evidence[:opts.Limit]
	}

	meta.CompletedAt = time.Now()
	meta.Duration = meta.CompletedAt.Sub(meta.StartedAt)
	meta.ItemsProcessed = out.processed
	meta.ItemsSkipped = out.skipped

	errs := out.errs
	if out.fatal != nil {
		errs = append(errs, *out.fatal)
		b.log.With("error_code", out.fatal.Code).Warn("Evidence collection failed: " + out.fatal.Message)
	}

	return adapter.CollectionResult{
		Success:  out.fatal == nil,
		Evidence: evidence,
		Errors:   errs,
		Metadata: meta,
	}
}

// finalize fills defaults on an evidence item
func (b *Base) finalize(ev adapter.CollectedEvidence, collectedAt time.Time) adapter.CollectedEvidence {
	if ev.CollectedAt.IsZero() {
		ev.CollectedAt = collectedAt
	}
	if ev.SourceSystem == "" {
		ev.SourceSystem = b.sourceSystem()
	}
	if ev.Status == "" {
		ev.Status = adapter.EvidenceValid
	}
	ev.ControlIDs = normalizeControls(ev.ControlIDs)
	return ev
}

func (b *Base) sourceSystem() string {
	if impl := b.cfg.Implementation(); impl != "" {
		return impl
	}
	return string(b.cfg.Kind)
}

// endpoint joins the base URL with a path
func (b *Base) endpoint(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(b.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// callTimeout bounds one SDK call by the request timeout of the policy
func (b *Base) callTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.deps.Policy.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.deps.Policy.RequestTimeout)
}

func normalizeControls(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
