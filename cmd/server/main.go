package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/time/rate"

	"github.com/pratik-mahalle/complyflow/internal/adapterfile"
	"github.com/pratik-mahalle/complyflow/internal/adapters"
	"github.com/pratik-mahalle/complyflow/internal/api/handlers"
	"github.com/pratik-mahalle/complyflow/internal/api/router"
	"github.com/pratik-mahalle/complyflow/internal/config"
	"github.com/pratik-mahalle/complyflow/internal/domain/alert"
	"github.com/pratik-mahalle/complyflow/internal/pkg/crypto"
	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
	"github.com/pratik-mahalle/complyflow/internal/registry"
	"github.com/pratik-mahalle/complyflow/internal/repository/postgres"
	"github.com/pratik-mahalle/complyflow/internal/scheduler"
	"github.com/pratik-mahalle/complyflow/internal/services"
	"github.com/pratik-mahalle/complyflow/migrations"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "complyflow: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	log.WithFields(map[string]interface{}{
		"environment": cfg.Server.Environment,
		"db_driver":   cfg.Database.Driver,
	}).Info("Starting complyflow")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := postgres.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if _, err := postgres.RunMigrations(db, migrations.Files, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	sealer, err := crypto.NewSealer(cfg.Security.CredentialKey)
	if err != nil {
		return err
	}
	if !sealer.Enabled() {
		log.Warn("CREDENTIAL_KEY is not set, adapter credentials are stored unsealed")
	}

	// Repositories
	configRepo := postgres.NewAdapterConfigRepository(db, sealer)
	evidenceRepo := postgres.NewEvidenceRepository(db)
	assessmentRepo := postgres.NewAssessmentRepository(db)
	baselineRepo := postgres.NewBaselineRepository(db)
	remediationRepo := postgres.NewRemediationRepository(db)
	alertRepo := postgres.NewAlertRepository(db)
	monitoringRepo := postgres.NewMonitoringRepository(db)
	tenantRepo := postgres.NewTenantRepository(db)
	jobRepo := postgres.NewJobRepository(db)

	if path := cfg.Collection.AdapterFile; path != "" {
		cfgs, err := adapterfile.Load(path, adapterfile.Environ())
		if err != nil {
			return err
		}
		if _, err := adapterfile.Import(ctx, configRepo, cfgs, log); err != nil {
			return err
		}
	}

	// Adapter registries
	policy := adapters.RetryPolicy{
		MaxRetries:     cfg.Collection.MaxRetries,
		BaseDelay:      cfg.Collection.BaseDelay,
		MaxDelay:       cfg.Collection.MaxDelay,
		MaxJitter:      cfg.Collection.MaxJitter,
		RequestTimeout: cfg.Collection.RequestTimeout,
	}
	store := registry.NewStore(configRepo, adapters.NewCatalog(), adapters.Deps{
		Logger:    log.With("component", "adapter"),
		Policy:    policy,
		RateLimit: rate.Limit(cfg.Collection.RateLimit),
		RateBurst: cfg.Collection.RateBurst,
	}, registry.Options{
		BatchSize:       cfg.Collection.BatchSize,
		BreakerFailures: cfg.Collection.BreakerFailures,
		BreakerCooldown: cfg.Collection.BreakerCooldown,
	}, log.With("component", "registry"))
	defer store.ClearAll()

	// Services
	var notifier alert.Notifier
	if slack := services.NewSlackNotifier(cfg.Notification.SlackWebhookURL, cfg.Notification.SlackChannel,
		adapters.NewExecutor(policy, adapters.WithExecutorLogger(log)), log); slack != nil {
		notifier = slack
	}
	alertService := services.NewAlertService(alertRepo, notifier, alert.Severity(cfg.Notification.MinSeverity), log)
	collector := services.NewCollectionService(store, configRepo, evidenceRepo, cfg.Collection.DefaultLookback, log)
	monitoringService := services.NewMonitoringService(services.MonitoringDeps{
		Assessments:       assessmentRepo,
		Baselines:         baselineRepo,
		Evidence:          evidenceRepo,
		Remediation:       remediationRepo,
		Alerts:            alertService,
		Checks:            monitoringRepo,
		Logger:            log,
		ExpiryWarningDays: cfg.Monitoring.ExpiryWarningDays,
	})

	// Scheduler
	jobs := scheduler.DefaultJobs(cfg.Scheduler, scheduler.JobDeps{
		Tenants:          tenantRepo,
		Collector:        collector,
		Monitoring:       monitoringService,
		Alerts:           alertService,
		AssessmentWindow: cfg.Monitoring.AssessmentWindow,
		EscalateAfter:    cfg.Monitoring.EscalateAfter,
		Logger:           log,
	})
	sched := scheduler.New(jobs, scheduler.Options{
		StartupDelay: cfg.Scheduler.StartupDelay,
		HistorySize:  cfg.Scheduler.HistorySize,
		Recorder:     jobRepo,
	}, log.With("component", "scheduler"))

	if cfg.Scheduler.Enabled {
		if err := sched.Start(); err != nil {
			return err
		}
	} else {
		log.Info("Scheduler disabled, jobs run on manual trigger only")
	}

	// Ops API
	h := &router.Handlers{
		Health:     handlers.NewHealthHandler(db, log),
		Scheduler:  handlers.NewSchedulerHandler(sched, log),
		Monitoring: handlers.NewMonitoringHandler(monitoringService, log),
		Adapters:   handlers.NewAdapterHandler(collector, store, log),
		Alerts:     handlers.NewAlertHandler(alertService, log),
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.New(ctx, cfg.Server, log, h),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("Ops API listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			log.ErrorWithErr(err, "Ops API stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.ErrorWithErr(err, "Ops API shutdown failed")
	}

	if sched.IsRunning() {
		select {
		case <-sched.Stop().Done():
			log.Info("Scheduler stopped")
		case <-shutdownCtx.Done():
			log.Warn("Scheduler did not stop before the shutdown timeout")
		}
	}

	log.Info("complyflow stopped")
	return nil
}
