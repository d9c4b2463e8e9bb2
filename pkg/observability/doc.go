// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("cookbook_id", id).WithError(err).Error("membership update failed")
//
// Request-scoped loggers are attached by httputil.LoggingMiddleware and
// recovered with FromContext, which adds request, user and trace IDs.
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//	metrics.RecordMembership("cookbook", "add", len(members), err)
//
// All recorder helpers tolerate a nil *Metrics so packages can be used
// without instrumentation in tests.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	checker.AddCheck("objectstore", store.Ping)
//	observability.RegisterHealthRoutes(router, checker)
//
// The database is required; redis and registered checks only degrade.
package observability
