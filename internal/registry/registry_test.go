package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pratik-mahalle/complyflow/internal/adapters"
	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
	"github.com/pratik-mahalle/complyflow/internal/testutil"
)

// behavior drives one fake adapter
type behavior struct {
	failInit  bool
	panics    bool
	fail      bool
	unhealthy bool
	evidence  int
	delay     time.Duration
}

type tracker struct {
	mu       sync.Mutex
	inflight int
	max      int
	calls    map[string]int
}

func (t *tracker) enter(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight++
	if t.inflight > t.max {
		t.max = t.inflight
	}
	t.calls[id]++
}

func (t *tracker) leave() {
	t.mu.Lock()
	t.inflight--
	t.mu.Unlock()
}

type fakeAdapter struct {
	cfg         adapter.Config
	b           behavior
	tr          *tracker
	initialized atomic.Bool
	last        atomic.Pointer[adapter.HealthStatus]
}

func (f *fakeAdapter) ID() string             { return f.cfg.ID }
func (f *fakeAdapter) Kind() adapter.Kind     { return f.cfg.Kind }
func (f *fakeAdapter) Config() adapter.Config { return f.cfg.Clone() }
func (f *fakeAdapter) IsInitialized() bool    { return f.initialized.Load() }

func (f *fakeAdapter) LastHealth() *adapter.HealthStatus { return f.last.Load() }

func (f *fakeAdapter) Initialize(ctx context.Context) error {
	if f.b.failInit {
		return errors.ConnectivityError(f.cfg.ID, "probe refused")
	}
	f.HealthCheck(ctx)
	f.initialized.Store(true)
	return nil
}

func (f *fakeAdapter) HealthCheck(ctx context.Context) adapter.HealthStatus {
	s := adapter.HealthStatus{Healthy: !f.b.unhealthy, Timestamp: time.Now()}
	f.last.Store(&s)
	return s
}

func (f *fakeAdapter) CollectEvidence(ctx context.Context, opts adapter.CollectionOptions) adapter.CollectionResult {
	f.tr.enter(f.cfg.ID)
	defer f.tr.leave()

	if f.b.delay > 0 {
		select {
		case <-time.After(f.b.delay):
		case <-ctx.Done():
		}
	}
	if f.b.panics {
		panic("boom")
	}
	meta := adapter.CollectionMetadata{AdapterID: f.cfg.ID, AdapterKind: f.cfg.Kind, StartedAt: time.Now()}
	if f.b.fail {
		return adapter.FailedResult(meta, adapter.ErrCodeFetchFailed, "upstream down", nil)
	}
	res := adapter.CollectionResult{Success: true, Metadata: meta}
	for i := 0; i < f.b.evidence; i++ {
		res.Evidence = append(res.Evidence, adapter.CollectedEvidence{
			ExternalID: fmt.Sprintf("%s-%d", f.cfg.ID, i),
			Status:     adapter.EvidenceValid,
		})
	}
	return res
}

func (f *fakeAdapter) MapToControls(records []adapter.Record) []string { return []string{} }

type fixture struct {
	configs *testutil.MockAdapterConfigRepository
	catalog *adapters.Catalog
	tr      *tracker
	plan    map[string]behavior
}

func newFixture() *fixture {
	fx := &fixture{
		configs: testutil.NewMockAdapterConfigRepository(),
		catalog: adapters.NewCatalog(),
		tr:      &tracker{calls: make(map[string]int)},
		plan:    make(map[string]behavior),
	}
	fx.catalog.Register(adapter.KindSIEM, "fake", func(cfg adapter.Config, deps adapters.Deps) (adapter.Adapter, error) {
		return &fakeAdapter{cfg: cfg, b: fx.plan[cfg.ID], tr: fx.tr}, nil
	}, false)
	return fx
}

func (fx *fixture) add(tenantID, id string, b behavior) adapter.Config {
	fx.plan[id] = b
	cfg := adapter.Config{
		ID:          id,
		TenantID:    tenantID,
		Name:        id,
		Kind:        adapter.KindSIEM,
		Enabled:     true,
		Credentials: adapter.Credentials{AuthType: adapter.AuthAPIKey, APIKey: "k"},
		Metadata:    map[string]string{adapter.MetadataImplementation: "fake"},
	}
	_ = fx.configs.Upsert(context.Background(), &cfg)
	return cfg
}

func (fx *fixture) registry(tenantID string, opts Options) *Registry {
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	return New(tenantID, fx.configs, fx.catalog, adapters.Deps{}, opts, log)
}

func TestPartition(t *testing.T) {
	tests := []struct {
		n    int
		want []int
	}{
		{0, []int{0}},
		{1, []int{1}},
		{5, []int{5}},
		{6, []int{5, 1}},
		{11, []int{5, 5, 1}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d items", tt.n), func(t *testing.T) {
			items := make([]int, tt.n)
			for i := range items {
				items[i] = i
			}
			batches := Partition(items, 5)
			if len(batches) != len(tt.want) {
				t.Fatalf("got %d batches, want %d", len(batches), len(tt.want))
			}
			next := 0
			for i, b := range batches {
				if len(b) != tt.want[i] {
					t.Errorf("batch %d size = %d, want %d", i, len(b), tt.want[i])
				}
				for _, v := range b {
					if v != next {
						t.Errorf("order broken: got %d, want %d", v, next)
					}
					next++
				}
			}
		})
	}
}

func TestRegistry_InitializeSkipsFailures(t *testing.T) {
	fx := newFixture()
	fx.add("tenant-a", "ok-1", behavior{})
	fx.add("tenant-a", "broken", behavior{failInit: true})
	fx.add("tenant-a", "ok-2", behavior{})
	fx.add("tenant-b", "elsewhere", behavior{})

	r := fx.registry("tenant-a", Options{})
	if err := r.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if r.State() != StateInitialized {
		t.Errorf("State() = %s", r.State())
	}
	if got := len(r.GetAdapters()); got != 2 {
		t.Errorf("registered = %d, want 2", got)
	}
	if _, ok := r.GetAdapter("broken"); ok {
		t.Error("broken adapter registered")
	}

	health := r.GetHealth()
	if health.RegistrationErrors["broken"] == "" {
		t.Error("registration error not reported")
	}
	if health.HealthyAdapters != 2 {
		t.Errorf("HealthyAdapters = %d, want 2", health.HealthyAdapters)
	}

	// Idempotent
	if err := r.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize() error = %v", err)
	}
	if got := len(r.GetAdapters()); got != 2 {
		t.Errorf("registered after second init = %d, want 2", got)
	}
}

func TestRegistry_InitializeConfigLoadFailure(t *testing.T) {
	fx := newFixture()
	fx.configs.ListError = fmt.Errorf("connection refused")

	r := fx.registry("tenant-a", Options{})
	err := r.Initialize(context.Background())
	if !errors.HasCode(err, errors.ErrCodeDatabase) {
		t.Fatalf("Initialize() error = %v, want DATABASE_ERROR", err)
	}
	if r.State() != StateUninitialized {
		t.Errorf("State() = %s, want uninitialized", r.State())
	}
	if r.InitializationError() == nil {
		t.Error("InitializationError() = nil")
	}

	fx.configs.ListError = nil
	if err := r.Initialize(context.Background()); err != nil {
		t.Fatalf("retry Initialize() error = %v", err)
	}
	if r.InitializationError() != nil {
		t.Error("InitializationError() kept after success")
	}
}

func TestRegistry_RegisterRejectsForeignTenant(t *testing.T) {
	fx := newFixture()
	cfg := fx.add("tenant-b", "foreign", behavior{})

	r := fx.registry("tenant-a", Options{})
	_, err := r.RegisterAdapter(context.Background(), cfg)
	if !errors.HasCode(err, errors.ErrCodeConfiguration) {
		t.Fatalf("RegisterAdapter() error = %v, want CONFIGURATION_ERROR", err)
	}
}

func TestRegistry_RegisterUnknownKind(t *testing.T) {
	fx := newFixture()
	cfg := fx.add("tenant-a", "mystery", behavior{})
	cfg.Kind = "mainframe"

	r := fx.registry("tenant-a", Options{})
	_, err := r.RegisterAdapter(context.Background(), cfg)
	if !errors.HasCode(err, errors.ErrCodeUnknownAdapterKind) {
		t.Fatalf("RegisterAdapter() error = %v, want UNKNOWN_ADAPTER_KIND", err)
	}
}

func TestRegistry_CollectAllEvidence(t *testing.T) {
	fx := newFixture()
	for i := 0; i < 11; i++ {
		fx.add("tenant-a", fmt.Sprintf("a-%02d", i), behavior{evidence: 2, delay: 20 * time.Millisecond})
	}
	fx.plan["a-03"] = behavior{panics: true}
	fx.plan["a-07"] = behavior{fail: true}

	r := fx.registry("tenant-a", Options{})
	if err := r.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	bulk := r.CollectAllEvidence(context.Background(), adapter.CollectionOptions{})

	if bulk.TotalAdapters != 11 || len(bulk.Results) != 11 {
		t.Fatalf("TotalAdapters = %d, results = %d", bulk.TotalAdapters, len(bulk.Results))
	}
	if bulk.SuccessfulAdapters+bulk.FailedAdapters != bulk.TotalAdapters {
		t.Errorf("counts do not add up: %+v", bulk)
	}
	if bulk.FailedAdapters != 2 || bulk.Success {
		t.Errorf("FailedAdapters = %d, Success = %v", bulk.FailedAdapters, bulk.Success)
	}
	if bulk.TotalEvidence != 9*2 {
		t.Errorf("TotalEvidence = %d, want 18", bulk.TotalEvidence)
	}

	panicked := bulk.Results["a-03"]
	if panicked.Success || panicked.Errors[0].Code != adapter.ErrCodeAdapterPanic {
		t.Errorf("panic result = %+v", panicked)
	}
	if bulk.Results["a-07"].Errors[0].Code != adapter.ErrCodeFetchFailed {
		t.Errorf("failure result = %+v", bulk.Results["a-07"])
	}

	fx.tr.mu.Lock()
	defer fx.tr.mu.Unlock()
	if fx.tr.max > DefaultBatchSize {
		t.Errorf("max in-flight = %d, want <= %d", fx.tr.max, DefaultBatchSize)
	}
	for id, n := range fx.tr.calls {
		if n != 1 {
			t.Errorf("adapter %s collected %d times", id, n)
		}
	}
}

func TestRegistry_CollectEmpty(t *testing.T) {
	fx := newFixture()
	r := fx.registry("tenant-a", Options{})
	_ = r.Initialize(context.Background())

	bulk := r.CollectAllEvidence(context.Background(), adapter.CollectionOptions{})
	if !bulk.Success || bulk.TotalAdapters != 0 || len(bulk.Results) != 0 {
		t.Errorf("empty registry result = %+v", bulk)
	}
}

func TestRegistry_CollectCancelled(t *testing.T) {
	fx := newFixture()
	for i := 0; i < 3; i++ {
		fx.add("tenant-a", fmt.Sprintf("a-%d", i), behavior{evidence: 1})
	}
	r := fx.registry("tenant-a", Options{})
	_ = r.Initialize(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bulk := r.CollectAllEvidence(ctx, adapter.CollectionOptions{})

	if bulk.FailedAdapters != 3 {
		t.Fatalf("FailedAdapters = %d, want 3", bulk.FailedAdapters)
	}
	for id, res := range bulk.Results {
		if res.Errors[0].Code != adapter.ErrCodeCancelled {
			t.Errorf("%s code = %s, want CANCELLED", id, res.Errors[0].Code)
		}
	}
}

func TestRegistry_CircuitBreakerOpens(t *testing.T) {
	fx := newFixture()
	fx.add("tenant-a", "flaky", behavior{fail: true})

	r := fx.registry("tenant-a", Options{BreakerFailures: 2, BreakerCooldown: time.Hour})
	_ = r.Initialize(context.Background())

	for i := 0; i < 2; i++ {
		res := r.CollectAllEvidence(context.Background(), adapter.CollectionOptions{}).Results["flaky"]
		if res.Errors[0].Code != adapter.ErrCodeFetchFailed {
			t.Fatalf("run %d code = %s", i, res.Errors[0].Code)
		}
	}
	res := r.CollectAllEvidence(context.Background(), adapter.CollectionOptions{}).Results["flaky"]
	if res.Errors[0].Code != adapter.ErrCodeCircuitOpen {
		t.Errorf("code = %s, want CIRCUIT_OPEN", res.Errors[0].Code)
	}
	if fx.tr.calls["flaky"] != 2 {
		t.Errorf("adapter called %d times, want 2", fx.tr.calls["flaky"])
	}
	if r.GetHealth().Adapters["flaky"].Breaker != "open" {
		t.Errorf("breaker = %q", r.GetHealth().Adapters["flaky"].Breaker)
	}
}

func TestRegistry_HealthCheckAllStoresStatus(t *testing.T) {
	fx := newFixture()
	fx.add("tenant-a", "up", behavior{})
	fx.add("tenant-a", "down", behavior{})

	r := fx.registry("tenant-a", Options{})
	_ = r.Initialize(context.Background())
	a, _ := r.GetAdapter("down")
	a.(*fakeAdapter).b.unhealthy = true

	statuses := r.HealthCheckAll(context.Background())
	if len(statuses) != 2 {
		t.Fatalf("statuses = %d, want 2", len(statuses))
	}
	if !statuses["up"].Healthy || statuses["down"].Healthy {
		t.Errorf("statuses = %+v", statuses)
	}
	if h, ok := fx.configs.HealthOf("down"); !ok || h.Healthy {
		t.Errorf("stored health = %+v, %v", h, ok)
	}
	if summary := r.GetHealth(); summary.UnhealthyAdapters != 1 || summary.HealthyAdapters != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRegistry_UnregisterAndClose(t *testing.T) {
	fx := newFixture()
	fx.add("tenant-a", "one", behavior{})
	fx.add("tenant-a", "two", behavior{})

	r := fx.registry("tenant-a", Options{})
	_ = r.Initialize(context.Background())

	if !r.UnregisterAdapter("one") {
		t.Error("UnregisterAdapter(one) = false")
	}
	if r.UnregisterAdapter("one") {
		t.Error("second UnregisterAdapter(one) = true")
	}
	if ids := r.AdapterIDs(); len(ids) != 1 || ids[0] != "two" {
		t.Errorf("AdapterIDs() = %v", ids)
	}

	r.Close()
	if len(r.GetAdapters()) != 0 || r.State() != StateUninitialized {
		t.Errorf("Close() left %d adapters in state %s", len(r.GetAdapters()), r.State())
	}
}

func TestStore_GetOrCreate(t *testing.T) {
	fx := newFixture()
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	s := NewStore(fx.configs, fx.catalog, adapters.Deps{}, Options{}, log)

	var wg sync.WaitGroup
	got := make([]*Registry, 20)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = s.GetOrCreate("tenant-a")
		}()
	}
	wg.Wait()
	for i := range got {
		if got[i] != got[0] {
			t.Fatal("GetOrCreate returned different registries for one tenant")
		}
	}
	if s.GetOrCreate("tenant-b") == got[0] {
		t.Error("tenants share a registry")
	}
	if tenants := s.Tenants(); len(tenants) != 2 {
		t.Errorf("Tenants() = %v", tenants)
	}

	if !s.Clear("tenant-a") {
		t.Error("Clear(tenant-a) = false")
	}
	if _, ok := s.Get("tenant-a"); ok {
		t.Error("registry kept after Clear")
	}
	if s.GetOrCreate("tenant-a") == got[0] {
		t.Error("cleared registry reused")
	}

	s.ClearAll()
	if len(s.Tenants()) != 0 {
		t.Errorf("Tenants() after ClearAll = %v", s.Tenants())
	}
}
