package router

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pratik-mahalle/complyflow/internal/api/handlers"
	"github.com/pratik-mahalle/complyflow/internal/api/middleware"
	"github.com/pratik-mahalle/complyflow/internal/config"
	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
	"github.com/pratik-mahalle/complyflow/internal/pkg/metrics"
)

type Handlers struct {
	Health     *handlers.HealthHandler
	Scheduler  *handlers.SchedulerHandler
	Monitoring *handlers.MonitoringHandler
	Adapters   *handlers.AdapterHandler
	Alerts     *handlers.AlertHandler
}

// New builds the ops API. ctx bounds background work owned by middleware.
func New(ctx context.Context, cfg config.ServerConfig, log *logger.Logger, h *Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(metrics.Middleware)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Probes and scrape
	r.Get("/healthz", h.Health.Healthz)
	r.Get("/readyz", h.Health.Readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.BearerToken(cfg.APIToken))
		if cfg.RateLimit > 0 {
			r.Use(middleware.RateLimit(ctx, cfg.RateLimit, cfg.RateBurst))
		}

		r.Route("/scheduler", func(r chi.Router) {
			r.Get("/status", h.Scheduler.Status)
			r.Get("/history", h.Scheduler.History)
			r.Post("/jobs/{id}/trigger", h.Scheduler.Trigger)
			r.Post("/run-all", h.Scheduler.RunAll)
		})

		r.Route("/monitoring", func(r chi.Router) {
			r.Post("/baselines", h.Monitoring.CaptureBaseline)
			r.Route("/{tenant}/{framework}", func(r chi.Router) {
				r.Get("/health", h.Monitoring.Health)
				r.Get("/trend", h.Monitoring.Trend)
				r.Get("/baseline", h.Monitoring.Baseline)
				r.Get("/drift", h.Monitoring.Drift)
				r.Post("/check", h.Monitoring.Check)
			})
		})

		r.Route("/adapters/{tenant}", func(r chi.Router) {
			r.Get("/health", h.Adapters.Health)
			r.Post("/health", h.Adapters.Probe)
			r.Post("/collect", h.Adapters.Collect)
		})

		r.Route("/alerts/{tenant}", func(r chi.Router) {
			r.Get("/", h.Alerts.ListUnresolved)
			r.Post("/{id}/acknowledge", h.Alerts.Acknowledge)
			r.Post("/{id}/resolve", h.Alerts.Resolve)
		})
	})

	return r
}
