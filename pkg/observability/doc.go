// Package observability provides the gateway's structured logging,
// Prometheus metrics, OpenTelemetry setup, health probes and graceful
// shutdown.
//
// # Logging
//
// Logger wraps logrus with a JSON formatter:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("user_id", rec.ID).Info("login succeeded")
//
// FromContext returns the request logger annotated with request, session
// and user identifiers.
//
// # Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RegisterRouteCache(cache.Stats)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//
// # Health
//
//	checker := observability.NewHealthChecker(auditDB, redisClient)
//	checker.AddCheck("backend", false, backendClient.Ping)
//
// # Shutdown
//
// ShutdownManager runs registered steps in reverse order under one deadline.
package observability
