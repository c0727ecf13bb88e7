package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/ppac/pkg/analytics"
	"github.com/platinummonkey/ppac/pkg/api"
	"github.com/platinummonkey/ppac/pkg/async"
	"github.com/platinummonkey/ppac/pkg/auth"
	"github.com/platinummonkey/ppac/pkg/config"
	"github.com/platinummonkey/ppac/pkg/observability"
	"github.com/platinummonkey/ppac/pkg/storage"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create logger")
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Agent stopped with error")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.WithFields(logrus.Fields{
		"version": version,
		"storage": cfg.Storage.Type,
		"auth":    cfg.Auth.Mode,
	}).Info("Starting ppac agent")

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	tp, err := observability.InitTracing(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	var (
		registry = prometheus.NewRegistry()
		metrics  *observability.Metrics
	)
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	kv, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}

	health := observability.NewHealthChecker(version)
	if hc, ok := kv.(storage.HealthChecker); ok {
		health.Register("storage", true, hc.HealthCheck)
	}

	tokens, err := tokenProvider(ctx, cfg.Auth, logger)
	if err != nil {
		kv.Close()
		return fmt.Errorf("failed to create token provider: %w", err)
	}

	configProvider, fileProvider, err := configurationProvider(cfg.AppConfig, logger)
	if err != nil {
		kv.Close()
		return fmt.Errorf("failed to load app configuration: %w", err)
	}
	if fileProvider != nil {
		if err := fileProvider.Watch(ctx); err != nil {
			logger.WithError(err).Warn("App configuration hot reload disabled")
		}
	}
	health.Register("appconfig", false, func(ctx context.Context) error {
		_, err := configProvider.CurrentConfiguration(ctx)
		return err
	})

	tr, err := httpTransport(cfg.Submission, logger)
	if err != nil {
		kv.Close()
		return fmt.Errorf("failed to create transport: %w", err)
	}

	opts, err := serviceOptions(cfg.Submission)
	if err != nil {
		kv.Close()
		return err
	}
	svc, err := analytics.NewService(analytics.Dependencies{
		KV:        kv,
		Config:    configProvider,
		Tokens:    tokens,
		Transport: tr,
		Logger:    logger,
		Metrics:   metrics,
	}, opts...)
	if err != nil {
		kv.Close()
		return fmt.Errorf("failed to create analytics service: %w", err)
	}

	scheduler := cron.New()
	if cfg.Submission.Schedule != "" {
		if err := scheduleSubmissions(scheduler, cfg.Submission.Schedule, svc, cfg.Submission.Timeout, logger); err != nil {
			kv.Close()
			return err
		}
		scheduler.Start()
		logger.WithField("schedule", cfg.Submission.Schedule).Info("Periodic submissions scheduled")
	}

	var gatherer prometheus.Gatherer
	if metrics != nil {
		gatherer = registry
	}
	apiServer := &http.Server{
		Addr: net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewServer(svc, api.Options{
			Logger:   logger,
			Audit:    auth.NewAuditLogger(logger),
			Metrics:  metrics,
			Gatherer: gatherer,

			ForcedSubmissionLimit:  cfg.Server.ForcedSubmissionLimit,
			ForcedSubmissionPeriod: cfg.Server.ForcedSubmissionPeriod,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	if gatherer != nil {
		healthMux.Handle("/metrics", observability.MetricsHandler(gatherer))
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	servers := async.NewGroup(logger, 0)
	for name, srv := range map[string]*http.Server{"api": apiServer, "health": healthServer} {
		srv := srv
		log := logger.WithFields(logrus.Fields{"server": name, "addr": srv.Addr})
		servers.Go(ctx, name+" server", func(ctx context.Context) error {
			log.Info("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("HTTP server failed")
				return err
			}
			return nil
		})
	}

	// Steps run in registration order
	shutdown.Register("api server", apiServer.Shutdown)
	shutdown.Register("scheduler", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdown.Register("analytics service", svc.Close)
	shutdown.Register("app config watcher", func(context.Context) error {
		cancel()
		return nil
	})
	shutdown.Register("storage", func(context.Context) error {
		return kv.Close()
	})
	shutdown.Register("health server", healthServer.Shutdown)
	shutdown.Register("server goroutines", servers.Close)
	if tp != nil {
		shutdown.Register("tracing", func(ctx context.Context) error {
			return observability.ShutdownTracing(ctx, tp, logger)
		})
	}

	return shutdown.WaitForShutdown()
}
