package router

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pratik-mahalle/complyflow/internal/api/handlers"
	"github.com/pratik-mahalle/complyflow/internal/config"
	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
	"github.com/pratik-mahalle/complyflow/internal/domain/alert"
	"github.com/pratik-mahalle/complyflow/internal/domain/baseline"
	"github.com/pratik-mahalle/complyflow/internal/domain/evidence"
	"github.com/pratik-mahalle/complyflow/internal/domain/job"
	"github.com/pratik-mahalle/complyflow/internal/domain/monitoring"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
	"github.com/pratik-mahalle/complyflow/internal/pkg/utils"
	"github.com/pratik-mahalle/complyflow/internal/registry"
	"github.com/pratik-mahalle/complyflow/internal/testutil"
)

const testToken = "s3cret"

type fakePinger struct{ err error }

func (p fakePinger) PingContext(ctx context.Context) error { return p.err }

type fakeRunner struct {
	triggered []string
}

func (f *fakeRunner) GetStatus() job.SchedulerStatus {
	return job.SchedulerStatus{Running: true, HistorySize: 100, Jobs: []job.JobStatus{
		{Definition: job.Definition{ID: job.AdapterHealth, Enabled: true, Interval: time.Minute}},
	}}
}

func (f *fakeRunner) History(jobID string, limit int) []*job.Result { return nil }

func (f *fakeRunner) TriggerJob(ctx context.Context, jobID string) (*job.Result, error) {
	if jobID != job.AdapterHealth {
		return nil, errors.NotFound("job " + jobID)
	}
	f.triggered = append(f.triggered, jobID)
	return &job.Result{JobID: jobID, Trigger: job.TriggerManual, Success: true}, nil
}

func (f *fakeRunner) RunAllChecks(ctx context.Context) []*job.Result { return nil }

type fakeMonitoring struct {
	monitoring.Service
	baseline *baseline.ComplianceBaseline
}

func (f *fakeMonitoring) GetLatestBaseline(ctx context.Context, tenantID, framework string) (*baseline.ComplianceBaseline, error) {
	return f.baseline, nil
}

func (f *fakeMonitoring) GetMonitoringHealth(ctx context.Context, tenantID, framework string) (*monitoring.Health, error) {
	return &monitoring.Health{TenantID: tenantID, Framework: framework, Status: monitoring.HealthUnknown}, nil
}

func (f *fakeMonitoring) RunScheduledCheck(ctx context.Context, tenantID, framework string) (*monitoring.CheckResult, error) {
	panic("check exploded")
}

type fakeCollector struct {
	tenants []string
}

func (f *fakeCollector) Collect(ctx context.Context, tenantID string, opts adapter.CollectionOptions) (*evidence.CollectionSummary, error) {
	f.tenants = append(f.tenants, tenantID)
	return &evidence.CollectionSummary{TenantID: tenantID, Persisted: 3}, nil
}

func (f *fakeCollector) CheckHealth(ctx context.Context, tenantID string) (*evidence.HealthReport, error) {
	return &evidence.HealthReport{TenantID: tenantID}, nil
}

type noRegistries struct{}

func (noRegistries) Get(tenantID string) (*registry.Registry, bool) { return nil, false }

type fixture struct {
	handler   http.Handler
	runner    *fakeRunner
	collector *fakeCollector
	alerts    *testutil.MockAlertService
}

func newFixture(t *testing.T, pingErr error) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := logger.Nop()
	fx := &fixture{
		runner:    &fakeRunner{},
		collector: &fakeCollector{},
		alerts:    testutil.NewMockAlertService(),
	}
	fx.handler = New(ctx, config.ServerConfig{
		AllowedOrigins: []string{"*"},
		APIToken:       testToken,
		RateLimit:      1000,
		RateBurst:      1000,
	}, log, &Handlers{
		Health:     handlers.NewHealthHandler(fakePinger{err: pingErr}, log),
		Scheduler:  handlers.NewSchedulerHandler(fx.runner, log),
		Monitoring: handlers.NewMonitoringHandler(&fakeMonitoring{}, log),
		Adapters:   handlers.NewAdapterHandler(fx.collector, noRegistries{}, log),
		Alerts:     handlers.NewAlertHandler(fx.alerts, log),
	})
	return fx
}

func (fx *fixture) do(t *testing.T, method, path, body string, auth bool) (*httptest.ResponseRecorder, utils.Envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if auth {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)

	var env utils.Envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return rec, env
}

func TestRouter_Probes(t *testing.T) {
	fx := newFixture(t, nil)

	rec, env := fx.do(t, http.MethodGet, "/healthz", "", false)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("healthz = %d %+v", rec.Code, env)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}

	rec, _ = fx.do(t, http.MethodGet, "/metrics", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "complyflow_http_requests_total") {
		t.Error("metrics output is missing the request counter")
	}

	down := newFixture(t, stderrors.New("connection refused"))
	rec, env = down.do(t, http.MethodGet, "/readyz", "", false)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz = %d, want 503", rec.Code)
	}
	if env.Error == nil || env.Error.Code != errors.ErrCodeServiceUnavailable {
		t.Errorf("readyz error = %+v", env.Error)
	}
}

func TestRouter_RequiresToken(t *testing.T) {
	fx := newFixture(t, nil)

	rec, env := fx.do(t, http.MethodGet, "/api/v1/scheduler/status", "", false)
	if rec.Code != http.StatusUnauthorized || env.Error.Code != errors.ErrCodeUnauthorized {
		t.Fatalf("no token: %d %+v", rec.Code, env.Error)
	}

	rec, env = fx.do(t, http.MethodGet, "/api/v1/scheduler/status", "", true)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("with token: %d %+v", rec.Code, env)
	}
	status := env.Data.(map[string]interface{})
	if status["running"] != true {
		t.Errorf("status = %v", status)
	}
}

func TestRouter_Scheduler(t *testing.T) {
	fx := newFixture(t, nil)

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantErr  string
	}{
		{"known job", "/api/v1/scheduler/jobs/adapter_health/trigger", http.StatusOK, ""},
		{"unknown job", "/api/v1/scheduler/jobs/nope/trigger", http.StatusNotFound, errors.ErrCodeNotFound},
		{"run all", "/api/v1/scheduler/run-all", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := fx.do(t, http.MethodPost, tt.path, "", true)
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantErr != "" && (env.Error == nil || env.Error.Code != tt.wantErr) {
				t.Errorf("error = %+v, want %s", env.Error, tt.wantErr)
			}
		})
	}

	if len(fx.runner.triggered) != 1 {
		t.Errorf("triggered = %v", fx.runner.triggered)
	}

	rec, env := fx.do(t, http.MethodGet, "/api/v1/scheduler/history?limit=x", "", true)
	if rec.Code != http.StatusBadRequest || env.Error.Code != errors.ErrCodeBadRequest {
		t.Errorf("bad limit: %d %+v", rec.Code, env.Error)
	}
}

func TestRouter_Monitoring(t *testing.T) {
	fx := newFixture(t, nil)

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"health", http.MethodGet, "/api/v1/monitoring/t1/soc2/health", "", http.StatusOK, ""},
		{"no baseline", http.MethodGet, "/api/v1/monitoring/t1/soc2/baseline", "", http.StatusNotFound, errors.ErrCodeNotFound},
		{"drift needs assessment", http.MethodGet, "/api/v1/monitoring/t1/soc2/drift", "", http.StatusBadRequest, errors.ErrCodeBadRequest},
		{"bad trend window", http.MethodGet, "/api/v1/monitoring/t1/soc2/trend?days=-3", "", http.StatusBadRequest, errors.ErrCodeBadRequest},
		{"capture without body", http.MethodPost, "/api/v1/monitoring/baselines", "", http.StatusBadRequest, errors.ErrCodeBadRequest},
		{"capture missing fields", http.MethodPost, "/api/v1/monitoring/baselines", `{"assessment_id":"a1"}`, http.StatusBadRequest, errors.ErrCodeValidation},
		{"capture unknown field", http.MethodPost, "/api/v1/monitoring/baselines", `{"assessment":"a1"}`, http.StatusBadRequest, errors.ErrCodeBadRequest},
		{"panicking check", http.MethodPost, "/api/v1/monitoring/t1/soc2/check", "", http.StatusInternalServerError, errors.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := fx.do(t, tt.method, tt.path, tt.body, true)
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantErr != "" && (env.Error == nil || env.Error.Code != tt.wantErr) {
				t.Errorf("error = %+v, want %s", env.Error, tt.wantErr)
			}
		})
	}
}

func TestRouter_AdaptersAndAlerts(t *testing.T) {
	fx := newFixture(t, nil)

	rec, env := fx.do(t, http.MethodPost, "/api/v1/adapters/t1/collect", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("collect = %d %s", rec.Code, rec.Body.String())
	}
	if got := env.Data.(map[string]interface{})["persisted"]; got != float64(3) {
		t.Errorf("persisted = %v", got)
	}
	if len(fx.collector.tenants) != 1 || fx.collector.tenants[0] != "t1" {
		t.Errorf("collected tenants = %v", fx.collector.tenants)
	}

	rec, _ = fx.do(t, http.MethodPost, "/api/v1/adapters/t1/collect", `{"limit":-1}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit = %d", rec.Code)
	}

	rec, _ = fx.do(t, http.MethodGet, "/api/v1/adapters/t1/health", "", true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("health of unknown registry = %d", rec.Code)
	}

	a, _ := fx.alerts.CreateAlert(context.Background(),
		alert.Context{TenantID: "t1", Framework: "soc2", Source: "test"},
		alert.Input{Type: alert.TypeControlDrift, Severity: alert.SeverityError, Title: "drift"})

	rec, env = fx.do(t, http.MethodGet, "/api/v1/alerts/t1", "", true)
	if rec.Code != http.StatusOK || len(env.Data.([]interface{})) != 1 {
		t.Fatalf("list alerts = %d %+v", rec.Code, env.Data)
	}

	rec, _ = fx.do(t, http.MethodPost, "/api/v1/alerts/t1/"+a.ID+"/resolve", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve = %d", rec.Code)
	}
	_, env = fx.do(t, http.MethodGet, "/api/v1/alerts/t1", "", true)
	if len(env.Data.([]interface{})) != 0 {
		t.Errorf("resolved alert still listed: %+v", env.Data)
	}

	rec, env = fx.do(t, http.MethodPost, "/api/v1/alerts/t1/missing/acknowledge", "", true)
	if rec.Code != http.StatusNotFound || env.Error.Code != errors.ErrCodeNotFound {
		t.Errorf("acknowledge missing = %d %+v", rec.Code, env.Error)
	}
}

func TestRouter_AlertTransitionsScopedToTenant(t *testing.T) {
	fx := newFixture(t, nil)

	a, _ := fx.alerts.CreateAlert(context.Background(),
		alert.Context{TenantID: "tenant-b", Framework: "soc2", Source: "test"},
		alert.Input{Type: alert.TypeControlDrift, Severity: alert.SeverityError, Title: "drift"})

	for _, action := range []string{"acknowledge", "resolve"} {
		rec, env := fx.do(t, http.MethodPost, "/api/v1/alerts/tenant-a/"+a.ID+"/"+action, "", true)
		if rec.Code != http.StatusNotFound || env.Error.Code != errors.ErrCodeNotFound {
			t.Errorf("%s under another tenant = %d %+v, want 404", action, rec.Code, env.Error)
		}
	}

	_, env := fx.do(t, http.MethodGet, "/api/v1/alerts/tenant-b", "", true)
	listed := env.Data.([]interface{})
	if len(listed) != 1 || listed[0].(map[string]interface{})["status"] != alert.StatusOpen {
		t.Errorf("tenant-b alerts = %+v, want the open alert untouched", env.Data)
	}
}

func TestRouter_RequestIDPropagation(t *testing.T) {
	fx := newFixture(t, nil)

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"caller id kept", "abc-123", true},
		{"control characters replaced", "abc\x01def", false},
		{"oversized replaced", strings.Repeat("x", 65), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.Header.Set("X-Request-ID", tt.incoming)
			rec := httptest.NewRecorder()
			fx.handler.ServeHTTP(rec, req)

			got := rec.Header().Get("X-Request-ID")
			if got == "" {
				t.Fatal("response has no request id")
			}
			if (got == tt.incoming) != tt.keep {
				t.Errorf("request id = %q, incoming %q, keep %v", got, tt.incoming, tt.keep)
			}
		})
	}
}
