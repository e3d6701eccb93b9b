package adapters

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		BaseDelay:      time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		MaxJitter:      time.Millisecond,
		RequestTimeout: 2 * time.Second,
	}
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := DefaultRetryPolicy()

	tests := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{0, time.Second, 2 * time.Second},
		{1, 2 * time.Second, 3 * time.Second},
		{2, 4 * time.Second, 5 * time.Second},
		{3, 8 * time.Second, 9 * time.Second},
		{4, 16 * time.Second, 17 * time.Second},
		{5, 30 * time.Second, 30 * time.Second},
		{6, 30 * time.Second, 30 * time.Second},
		{64, 30 * time.Second, 30 * time.Second},
	}

	for _, tt := range tests {
		for i := 0; i < 20; i++ {
			got := p.Delay(tt.attempt)
			if got < tt.min || got > tt.max {
				t.Fatalf("Delay(%d) = %s, want within [%s, %s]", tt.attempt, got, tt.min, tt.max)
			}
			if tt.min != tt.max && got == tt.max {
				t.Fatalf("Delay(%d) = %s, jitter must stay below 1s", tt.attempt, got)
			}
		}
	}
}

func TestRetryPolicy_WaitForRetryAfter(t *testing.T) {
	p := DefaultRetryPolicy()

	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
	resp.Header.Set("Retry-After", "5")
	if got := p.waitFor(0, resp); got != 5*time.Second {
		t.Errorf("waitFor() = %s, want 5s", got)
	}

	resp.Header.Set("Retry-After", "120")
	if got := p.waitFor(0, resp); got != p.MaxDelay {
		t.Errorf("waitFor() = %s, want cap %s", got, p.MaxDelay)
	}

	resp.Header.Del("Retry-After")
	if got := p.waitFor(0, resp); got < time.Second || got >= 2*time.Second {
		t.Errorf("waitFor() without header = %s, want backoff schedule", got)
	}

	// Retry-After on a 503 is not honored
	resp = &http.Response{StatusCode: http.StatusServiceUnavailable, Header: http.Header{"Retry-After": {"7"}}}
	if got := p.waitFor(0, resp); got >= 2*time.Second {
		t.Errorf("waitFor() on 503 = %s, want backoff schedule", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		value  string
		want   time.Duration
		wantOK bool
	}{
		{"seconds", "3", 3 * time.Second, true},
		{"zero", "0", 0, true},
		{"http date", now.Add(10 * time.Second).Format(http.TimeFormat), 10 * time.Second, true},
		{"date in past", now.Add(-time.Minute).Format(http.TimeFormat), 0, true},
		{"negative", "-1", 0, false},
		{"garbage", "soon", 0, false},
		{"empty", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseRetryAfter(tt.value, now)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %s, %v; want %s, %v", tt.value, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestExecutor_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	ex := NewExecutor(fastPolicy())
	var out struct {
		OK bool `json:"ok"`
	}
	if err := ex.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil, &out); err != nil {
		t.Fatalf("DoJSON() error = %v", err)
	}
	if !out.OK {
		t.Error("response not decoded")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestExecutor_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer srv.Close()

	ex := NewExecutor(fastPolicy())
	err := ex.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil, nil)

	var he *HTTPError
	if !stderrors.As(err, &he) {
		t.Fatalf("error = %v, want *HTTPError", err)
	}
	if he.StatusCode != http.StatusNotFound || he.Retryable() {
		t.Errorf("HTTPError = %+v", he)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestExecutor_ExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	ex := NewExecutor(fastPolicy())
	err := ex.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil, nil)

	var he *HTTPError
	if !stderrors.As(err, &he) {
		t.Fatalf("error = %v, want *HTTPError", err)
	}
	if he.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d", he.StatusCode)
	}
	if he.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", he.Attempts)
	}
	if got := atomic.LoadInt32(&calls); got != 4 {
		t.Errorf("calls = %d, want 1 + 3 retries", got)
	}
}

func TestExecutor_HonorsRetryAfter(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := fastPolicy()
	p.MaxDelay = 2 * time.Second
	ex := NewExecutor(p)

	start := time.Now()
	if err := ex.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil, nil); err != nil {
		t.Fatalf("DoJSON() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("elapsed = %s, want at least the advertised 1s", elapsed)
	}
}

func TestExecutor_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := NewExecutor(fastPolicy())
	err := ex.DoJSON(ctx, http.MethodGet, srv.URL, nil, nil, nil)
	if !stderrors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
