package client

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", Token: "tok"})
}

func TestClient_TriggerDecodesEnvelope(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/scheduler/jobs/adapter_health/trigger" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"job_id":"adapter_health","trigger":"manual","success":true}}`))
	})

	result, err := c.Scheduler().Trigger(context.Background(), "adapter_health")
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if result.JobID != "adapter_health" || !result.Success {
		t.Errorf("result = %+v", result)
	}
}

func TestClient_APIError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		notFound bool
	}{
		{"envelope error", http.StatusNotFound, `{"success":false,"error":{"code":"NOT_FOUND","message":"job x not found"}}`, "NOT_FOUND", true},
		{"plain text", http.StatusBadGateway, "upstream down", "", false},
		{"envelope without error", http.StatusUnauthorized, `{"success":false}`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.Scheduler().Trigger(context.Background(), "x")
			var apiErr *APIError
			if !stderrors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *APIError", err)
			}
			if apiErr.StatusCode != tt.status || apiErr.Code != tt.wantCode {
				t.Errorf("apiErr = %+v", apiErr)
			}
			if apiErr.IsNotFound() != tt.notFound {
				t.Errorf("IsNotFound = %v", apiErr.IsNotFound())
			}
		})
	}
}

func TestClient_CollectSendsOptions(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var opts adapter.CollectionOptions
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if opts.Limit != 50 || len(opts.Types) != 1 {
			t.Errorf("opts = %+v", opts)
		}
		w.Write([]byte(`{"success":true,"data":{"tenant_id":"t 1","persisted":7}}`))
	})

	summary, err := c.Adapters().Collect(context.Background(), "t 1", adapter.CollectionOptions{Limit: 50, Types: []string{"vulnerability"}})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if summary.Persisted != 7 || summary.TenantID != "t 1" {
		t.Errorf("summary = %+v", summary)
	}
}
