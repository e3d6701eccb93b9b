package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "complyflow"

var (
	// HTTP metrics for the ops server
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// Adapter metrics
	adapterCollectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "collections_total",
			Help:      "Total number of adapter evidence collections",
		},
		[]string{"kind", "status"},
	)

	adapterCollectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "collection_duration_seconds",
			Help:      "Duration of a single adapter collection in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)

	evidenceCollectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "evidence_collected_total",
			Help:      "Total number of evidence items collected",
		},
		[]string{"kind"},
	)

	adapterHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "healthy",
			Help:      "Whether the last health probe of an adapter succeeded (1) or not (0)",
		},
		[]string{"tenant", "adapter"},
	)

	adapterRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "retries_total",
			Help:      "Total number of retried outbound adapter requests",
		},
		[]string{"reason"},
	)

	bulkCollectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "bulk_collections_total",
			Help:      "Total number of registry bulk collection runs",
		},
		[]string{"status"},
	)

	// Scheduler metrics
	jobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Total number of scheduled job executions",
		},
		[]string{"job", "status"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled job executions in seconds",
			Buckets:   []float64{.1, 1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"job"},
	)

	// Monitoring metrics
	driftResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitoring",
			Name:      "drift_results_total",
			Help:      "Total number of per-control drift results",
		},
		[]string{"classification", "severity"},
	)

	scheduledChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitoring",
			Name:      "scheduled_checks_total",
			Help:      "Total number of composite monitoring checks",
		},
		[]string{"framework"},
	)

	alertsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "created_total",
			Help:      "Total number of alerts created",
		},
		[]string{"type", "severity"},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "table"},
	)
)

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns a middleware that records Prometheus metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := strconv.Itoa(rec.statusCode)

		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordAdapterCollection records one adapter collection outcome
func RecordAdapterCollection(kind string, success bool, items int, duration time.Duration) {
	adapterCollectionsTotal.WithLabelValues(kind, statusLabel(success)).Inc()
	adapterCollectionDuration.WithLabelValues(kind).Observe(duration.Seconds())
	evidenceCollectedTotal.WithLabelValues(kind).Add(float64(items))
}

// SetAdapterHealth sets the health gauge of one adapter
func SetAdapterHealth(tenantID, adapterID string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	adapterHealthy.WithLabelValues(tenantID, adapterID).Set(v)
}

// DeleteAdapterHealth removes the health gauge of an unregistered adapter
func DeleteAdapterHealth(tenantID, adapterID string) {
	adapterHealthy.DeleteLabelValues(tenantID, adapterID)
}

// RecordRetry records a retried outbound request
func RecordRetry(reason string) {
	adapterRetriesTotal.WithLabelValues(reason).Inc()
}

// RecordBulkCollection records a registry bulk collection run
func RecordBulkCollection(success bool) {
	bulkCollectionsTotal.WithLabelValues(statusLabel(success)).Inc()
}

// RecordJobRun records a scheduler job execution
func RecordJobRun(jobID string, success bool, duration time.Duration) {
	jobRunsTotal.WithLabelValues(jobID, statusLabel(success)).Inc()
	jobDuration.WithLabelValues(jobID).Observe(duration.Seconds())
}

// RecordDrift records a per-control drift result
func RecordDrift(classification, severity string) {
	if severity == "" {
		severity = "none"
	}
	driftResultsTotal.WithLabelValues(classification, severity).Inc()
}

// RecordScheduledCheck records a composite monitoring check
func RecordScheduledCheck(framework string) {
	scheduledChecksTotal.WithLabelValues(framework).Inc()
}

// RecordAlertCreated records an alert creation
func RecordAlertCreated(alertType, severity string) {
	alertsCreatedTotal.WithLabelValues(alertType, severity).Inc()
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation, table string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}
