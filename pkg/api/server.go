package api

import (
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/larder/pkg/config"
	"github.com/platinummonkey/larder/pkg/httputil"
	"github.com/platinummonkey/larder/pkg/observability"
)

// NewServer wraps handler in an http.Server configured from cfg. With
// tracing enabled every request gets a server span.
func NewServer(cfg config.ServerConfig, handler http.Handler, tracing bool) *http.Server {
	if tracing {
		handler = otelhttp.NewHandler(handler, "larder")
	}
	return &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// NewHealthServer serves the health probes and, when registry is set,
// /metrics on cfg.HealthPort
func NewHealthServer(cfg config.ServerConfig, checker *observability.HealthChecker, registry *prometheus.Registry) *http.Server {
	router := mux.NewRouter()
	observability.RegisterHealthRoutes(router, checker)
	if registry != nil {
		router.Handle("/metrics", observability.MetricsHandler(registry)).Methods(http.MethodGet)
	}
	return &http.Server{
		Addr:        net.JoinHostPort(cfg.Host, cfg.HealthPort),
		Handler:     httputil.Chain(httputil.RequestIDMiddleware, httputil.RecoveryMiddleware)(router),
		ReadTimeout: cfg.ReadTimeout,
		IdleTimeout: cfg.IdleTimeout,
	}
}
