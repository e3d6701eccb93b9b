package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
	"github.com/pratik-mahalle/complyflow/internal/pkg/metrics"
)

// RetryPolicy controls how outbound adapter requests are retried.
//
// The wait before attempt k+1 (k counted from 0) is
// min(BaseDelay*2^k + jitter, MaxDelay) with jitter uniform in [0, MaxJitter).
// A 429 carrying Retry-After waits for the advertised time instead, capped at
// MaxDelay.
type RetryPolicy struct {
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	MaxJitter      time.Duration
	RequestTimeout time.Duration
}

// DefaultRetryPolicy returns the platform retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		MaxJitter:      time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// Delay returns the backoff before the attempt following attempt k
func (p RetryPolicy) Delay(k int) time.Duration {
	if k < 0 {
		k = 0
	}
	var jitter time.Duration
	if p.MaxJitter > 0 {
		jitter = rand.N(p.MaxJitter)
	}
	// shifting past 30 overflows for second-scale delays
	if k > 30 {
		return p.MaxDelay
	}
	d := p.BaseDelay*time.Duration(1<<uint(k)) + jitter
	if d > p.MaxDelay || d < 0 {
		return p.MaxDelay
	}
	return d
}

// waitFor picks the wait before the next attempt given the last response
func (p RetryPolicy) waitFor(k int, resp *http.Response) time.Duration {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		if d, ok := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
			if d > p.MaxDelay {
				return p.MaxDelay
			}
			return d
		}
	}
	return p.Delay(k)
}

// parseRetryAfter accepts delay-seconds or an HTTP date
func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// checkRetry retries transport errors, 429 and 5xx. Other statuses are final.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		// lets the library skip unrecoverable transport errors (bad TLS, redirects)
		retry, checkErr := retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		if retry {
			metrics.RecordRetry("transport")
		}
		return retry, checkErr
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		metrics.RecordRetry("rate_limited")
		return true, nil
	case resp.StatusCode >= 500:
		metrics.RecordRetry("server_error")
		return true, nil
	default:
		return false, nil
	}
}

// HTTPError is returned for a final non-2xx response
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Attempts   int
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	return msg
}

// Retryable reports whether the status would have been retried
func (e *HTTPError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

const maxErrorBody = 2048

func httpErrorFrom(resp *http.Response, attempts int) *HTTPError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	he := &HTTPError{
		StatusCode: resp.StatusCode,
		Body:       string(bytes.TrimSpace(body)),
		Attempts:   attempts,
	}
	if resp.Request != nil {
		he.Method = resp.Request.Method
		he.URL = resp.Request.URL.Redacted()
	}
	return he
}

// Executor sends adapter requests under a RetryPolicy. It keeps no state
// between calls apart from its connection pool and rate limiter.
type Executor struct {
	client  *retryablehttp.Client
	policy  RetryPolicy
	limiter *rate.Limiter
}

// ExecutorOption configures an Executor
type ExecutorOption func(*executorOptions)

type executorOptions struct {
	transport http.RoundTripper
	limiter   *rate.Limiter
	log       *logger.Logger
}

// WithTransport sets the base round tripper (auth, TLS or test transports)
func WithTransport(rt http.RoundTripper) ExecutorOption {
	return func(o *executorOptions) { o.transport = rt }
}

// WithRateLimit waits on limiter before every attempt
func WithRateLimit(limiter *rate.Limiter) ExecutorOption {
	return func(o *executorOptions) { o.limiter = limiter }
}

// WithExecutorLogger routes retry logging to log
func WithExecutorLogger(log *logger.Logger) ExecutorOption {
	return func(o *executorOptions) { o.log = log }
}

// NewExecutor builds an Executor on top of go-retryablehttp
func NewExecutor(policy RetryPolicy, opts ...ExecutorOption) *Executor {
	o := executorOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.transport == nil {
		o.transport = cleanhttp.DefaultPooledTransport()
	}
	if o.log == nil {
		o.log = logger.Nop()
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{
		Transport: o.transport,
		Timeout:   policy.RequestTimeout,
	}
	rc.RetryMax = policy.MaxRetries
	rc.RetryWaitMin = policy.BaseDelay
	rc.RetryWaitMax = policy.MaxDelay
	rc.Logger = leveledLogger{log: o.log}
	rc.CheckRetry = checkRetry
	rc.Backoff = func(_, _ time.Duration, attempt int, resp *http.Response) time.Duration {
		return policy.waitFor(attempt, resp)
	}
	rc.ErrorHandler = func(resp *http.Response, err error, attempts int) (*http.Response, error) {
		if resp != nil {
			return nil, httpErrorFrom(resp, attempts)
		}
		return nil, fmt.Errorf("giving up after %d attempt(s): %w", attempts, err)
	}
	if o.limiter != nil {
		limiter := o.limiter
		rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, _ int) {
			// a cancelled context surfaces from the request itself
			_ = limiter.Wait(req.Context())
		}
	}

	return &Executor{client: rc, policy: policy, limiter: o.limiter}
}

// Policy returns the retry policy of the executor
func (e *Executor) Policy() RetryPolicy {
	return e.policy
}

// Do sends req, retrying per policy. Any final status >= 400 is returned as
// *HTTPError with the body consumed.
func (e *Executor) Do(req *http.Request) (*http.Response, error) {
	rreq, err := retryablehttp.FromRequest(req)
	if err != nil {
		return nil, fmt.Errorf("prepare request: %w", err)
	}
	resp, err := e.client.Do(rreq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, httpErrorFrom(resp, 1)
	}
	return resp, nil
}

// DoJSON sends an optional JSON body and decodes a JSON response into out
func (e *Executor) DoJSON(ctx context.Context, method, url string, headers http.Header, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// leveledLogger adapts the zerolog wrapper to retryablehttp.LeveledLogger
type leveledLogger struct {
	log *logger.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) {
	z := l.log.GetZerolog()
	z.Warn().Fields(kv).Msg(msg)
}

func (l leveledLogger) Info(msg string, kv ...interface{}) {
	z := l.log.GetZerolog()
	z.Info().Fields(kv).Msg(msg)
}

func (l leveledLogger) Debug(msg string, kv ...interface{}) {
	z := l.log.GetZerolog()
	z.Debug().Fields(kv).Msg(msg)
}

func (l leveledLogger) Warn(msg string, kv ...interface{}) {
	z := l.log.GetZerolog()
	z.Warn().Fields(kv).Msg(msg)
}
