package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mnzioki/dukabook/pkg/api"
	"github.com/mnzioki/dukabook/pkg/auth"
	"github.com/mnzioki/dukabook/pkg/config"
	"github.com/mnzioki/dukabook/pkg/middleware"
	"github.com/mnzioki/dukabook/pkg/notifications"
	"github.com/mnzioki/dukabook/pkg/observability"
	"github.com/mnzioki/dukabook/pkg/storage/postgres"
	"github.com/mnzioki/dukabook/pkg/subscriptions"
	"github.com/mnzioki/dukabook/pkg/usage"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dukabook: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("version", version).Info("Starting DukaBook API server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var otelProviders *observability.OTelProviders
	if cfg.Observability.OTelEnabled {
		otelProviders, err = observability.InitOTel(ctx, observability.OTelConfig{
			Enabled:        cfg.Observability.OTelEnabled,
			Endpoint:       cfg.Observability.OTelEndpoint,
			ServiceName:    cfg.Observability.OTelServiceName,
			ServiceVersion: version,
			Insecure:       cfg.Observability.OTelInsecure,
		}, logger)
		if err != nil {
			return fmt.Errorf("init otel: %w", err)
		}
	}

	store, err := postgres.NewStore(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("connect storage: %w", err)
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenLifetime)
	if err != nil {
		return fmt.Errorf("init token manager: %w", err)
	}
	users := auth.NewUserStore(store.DB())

	usageSvc := usage.NewPostgresService(store.DB())
	subsSvc := subscriptions.NewPostgresService(store.DB())

	journal := notifications.NewStore(store.DB())
	hub := notifications.NewHub(logger)
	dispatcher := &notifications.LogDispatcher{Logger: logger}
	notifier := notifications.NewNotifier(journal, hub, dispatcher, logger)

	var rateLimit func(http.Handler) http.Handler
	if redisClient := store.Redis(); redisClient != nil {
		distributed := middleware.NewDistributedRateLimitMiddleware(redisClient.GetClient(), logger)
		rateLimit = distributed.Handler
		logger.Info("Rate limiting: Redis fixed window")
	} else {
		local := middleware.NewRateLimitMiddleware()
		local.StartCleanup(ctx)
		rateLimit = local.Handler
		logger.Info("Rate limiting: in-memory token bucket")
	}

	var receipts api.ReceiptStore
	if s3 := store.S3(); s3 != nil {
		receipts = s3
	} else {
		logger.Warn("S3 not configured, receipt attachments disabled")
	}

	server := api.NewServer(api.Config{
		Store:         store,
		Users:         users,
		Tokens:        tokens,
		Usage:         usageSvc,
		Subscriptions: subsSvc,
		Notifier:      notifier,
		Journal:       journal,
		Hub:           hub,
		Receipts:      receipts,
		RateLimit:     rateLimit,
		Logger:        logger,
	})

	var handler http.Handler = server
	var registry *prometheus.Registry
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		metrics := observability.NewMetrics(registry)
		handler = observability.HTTPMetricsMiddleware(metrics)(handler)
	}
	if otelProviders != nil {
		handler = otelhttp.NewHandler(handler, "dukabook-api")
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	checker := healthChecker(store, version)
	observability.RegisterHealthRoutes(healthMux, checker)
	if registry != nil {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:      healthMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	// Signal handling and cleanup run on the shutdown manager so both
	// servers and the backing stores drain before exit.
	sm := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(sctx context.Context) error {
		return healthServer.Shutdown(sctx)
	})
	sm.RegisterShutdownFunc(func(context.Context) error {
		hub.Close()
		return nil
	})
	sm.RegisterShutdownFunc(func(context.Context) error {
		return store.Close()
	})
	if otelProviders != nil {
		sm.RegisterShutdownFunc(func(sctx context.Context) error {
			return observability.ShutdownOTel(sctx, otelProviders, logger)
		})
	}

	shutdownErr := make(chan error, 1)
	go func() {
		shutdownErr <- sm.WaitForShutdown()
	}()

	select {
	case err := <-shutdownErr:
		cancel()
		if werr := g.Wait(); werr != nil {
			return werr
		}
		return err
	case <-gctx.Done():
		// A server failed before any shutdown signal arrived.
		return g.Wait()
	}
}

func healthChecker(store *postgres.Store, version string) *observability.HealthChecker {
	if redisClient := store.Redis(); redisClient != nil {
		return observability.NewHealthChecker(store.DB(), redisClient.GetClient(), version)
	}
	return observability.NewHealthChecker(store.DB(), nil, version)
}
