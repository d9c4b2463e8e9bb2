package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/larder/pkg/ai"
	"github.com/platinummonkey/larder/pkg/api"
	"github.com/platinummonkey/larder/pkg/auth"
	"github.com/platinummonkey/larder/pkg/authz"
	"github.com/platinummonkey/larder/pkg/config"
	"github.com/platinummonkey/larder/pkg/cookbooks"
	"github.com/platinummonkey/larder/pkg/membership"
	"github.com/platinummonkey/larder/pkg/middleware"
	"github.com/platinummonkey/larder/pkg/objectstore"
	"github.com/platinummonkey/larder/pkg/observability"
	"github.com/platinummonkey/larder/pkg/quota"
	"github.com/platinummonkey/larder/pkg/recipes"
	"github.com/platinummonkey/larder/pkg/sso"
	"github.com/platinummonkey/larder/pkg/storage/cache"
	"github.com/platinummonkey/larder/pkg/storage/postgres"
	"github.com/platinummonkey/larder/pkg/users"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("larder exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: version,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	conns, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: cfg.Database.ReplicaURLs,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	db := conns.Primary()
	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, db, logger); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	conns.StartMaintenanceRoutine(ctx, time.Minute, metrics)

	redisClient, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	store, err := objectstore.New(ctx, cfg.ObjectStore, metrics)
	if err != nil {
		return fmt.Errorf("failed to create object store: %w", err)
	}
	images := objectstore.NewImages(store, cfg.ObjectStore)
	if err := images.EnsureBuckets(ctx); err != nil {
		return fmt.Errorf("failed to prepare image buckets: %w", err)
	}

	providers, err := sso.NewRegistryFromConfig(ctx, cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to configure identity providers: %w", err)
	}
	logger.WithField("providers", providers.Names()).Info("Identity providers configured")

	generator, watcher, err := newGenerator(cfg.AI, metrics, logger)
	if err != nil {
		return err
	}
	if watcher != nil {
		go watcher.Run(ctx)
	}

	userService := users.NewService(users.NewStore(db, conns.Replica), images)
	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	authService := auth.NewService(providers, userService, tokens,
		auth.NewSessionStore(redisClient), auth.NewStateStore(redisClient))
	userService.SetSessionRevoker(authService)

	members := membership.NewService(db, metrics)
	quotas := quota.NewService(db, quota.DefaultsFromConfig(cfg.Quota), metrics)
	recipeService := recipes.NewService(db, members, images, quotas, generator)

	deps := api.Dependencies{
		Logger:         logger,
		Metrics:        metrics,
		Auth:           authService,
		Users:          userService,
		Members:        members,
		Guard:          authz.NewGuard(db, metrics),
		Cookbooks:      cookbooks.NewService(db, members, recipeService, images),
		Recipes:        recipeService,
		Quotas:         quotas,
		FrontendURL:    cfg.Auth.FrontendURL,
		SecureCookies:  cfg.Auth.SecureCookies,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		PageSize:       cfg.Server.DefaultPageSize,
	}
	if cfg.Server.RateLimitPerMinute > 0 {
		deps.RateLimiter = middleware.NewDistributedRateLimiter(redisClient.Client(),
			middleware.PerMinute(cfg.Server.RateLimitPerMinute), "larder")
	}

	server := api.NewServer(cfg.Server, api.NewRouter(deps), cfg.Observability.OTelEnabled)

	checker := observability.NewHealthChecker(db, redisClient.Client(), version)
	checker.AddCheck("objectstore", images.Ping)
	checker.AddCheck("database_replicas", conns.HealthCheck)
	var metricsRegistry *prometheus.Registry
	if cfg.Observability.MetricsEnabled {
		metricsRegistry = registry
	}
	healthServer := api.NewHealthServer(cfg.Server, checker, metricsRegistry)

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(healthServer.Shutdown)
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		cancel()
		return nil
	})
	if watcher != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error { return watcher.Close() })
	}
	shutdown.RegisterShutdownFunc(func(context.Context) error { return redisClient.Close() })
	shutdown.RegisterShutdownFunc(func(context.Context) error { return conns.Close() })
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})

	errCh := make(chan error, 2)
	go serve(healthServer, "health", logger, errCh)
	go serve(server, "api", logger, errCh)

	// a failing server cancels the wait, which runs the same shutdown path
	waitCtx, stopWaiting := context.WithCancel(ctx)
	defer stopWaiting()
	done := make(chan error, 1)
	go func() { done <- shutdown.WaitForShutdown(waitCtx) }()

	select {
	case err := <-errCh:
		stopWaiting()
		<-done
		return err
	case err := <-done:
		return err
	}
}

func serve(srv *http.Server, name string, logger *observability.Logger, errCh chan<- error) {
	logger.WithFields(map[string]interface{}{
		"server": name,
		"addr":   srv.Addr,
	}).Info("Starting HTTP server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("%s server: %w", name, err)
	}
}

// newGenerator returns the AI recipe generator. With AI disabled it has no
// model and every generation fails as an upstream error. A configured
// prompt file is watched and hot-reloaded.
func newGenerator(cfg config.AIConfig, metrics *observability.Metrics, logger *observability.Logger) (*ai.RecipeGenerator, *ai.PromptWatcher, error) {
	if !cfg.Enabled {
		logger.Info("AI recipe generation is disabled")
		return ai.NewRecipeGenerator(nil, nil, metrics), nil, nil
	}
	client, err := ai.NewGeminiClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if cfg.PromptFile == "" {
		return ai.NewRecipeGenerator(client, nil, metrics), nil, nil
	}
	watcher, err := ai.NewPromptWatcher(cfg.PromptFile, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load prompt file: %w", err)
	}
	return ai.NewRecipeGenerator(client, watcher, metrics), watcher, nil
}
