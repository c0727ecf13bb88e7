// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Structured Logging
//
// Loggers are logrus loggers; components accept logrus.FieldLogger:
//
//	logger, err := observability.NewLogger("info", observability.FormatJSON, os.Stdout)
//	logger.WithField("attempt_id", id).Info("Analytics submission succeeded")
//
// Request scoped fields travel in the context:
//
//	ctx = observability.WithRequestID(ctx, reqID)
//	observability.FromContext(ctx).Warn("Event rejected")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordSubmission("success", "", time.Since(start))
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// The Record helpers are no-ops on a nil *Metrics so libraries can run unmetered.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version)
//	checker.Register("storage", true, kv.HealthCheck)
//	router.HandleFunc("/healthz", checker.Readiness)
//
// # OpenTelemetry
//
//	tp, err := observability.InitTracing(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "ppac-agent",
//	}, logger)
//	defer observability.ShutdownTracing(ctx, tp, logger)
//
// # Related Packages
//
//   - pkg/config: observability configuration
//   - pkg/analytics: submission spans and metrics
package observability
