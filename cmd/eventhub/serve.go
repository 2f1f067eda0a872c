package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/eventhub/eventhub/internal/cache"
	"github.com/eventhub/eventhub/internal/config"
	"github.com/eventhub/eventhub/internal/handler"
	"github.com/eventhub/eventhub/internal/metrics"
	"github.com/eventhub/eventhub/internal/middleware"
	"github.com/eventhub/eventhub/internal/repository"
	"github.com/eventhub/eventhub/internal/server"
	"github.com/eventhub/eventhub/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(cfg, os.Stdout)

	repo, err := repository.New(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		logger.Error("database_connect_failed",
			"error", sanitizeError(err, cfg.DatabaseURL),
			"database_url", redactURL(cfg.DatabaseURL),
		)
		return fmt.Errorf("connect to database: %s", sanitizeError(err, cfg.DatabaseURL))
	}
	logger.Info("database_connected", "database_url", redactURL(cfg.DatabaseURL))

	// eventCache stays a nil interface when caching is disabled.
	var (
		eventCache  service.EventCache
		cacheHealth handler.HealthChecker
		cacheClient *cache.Cache
	)
	if cfg.CacheEnabled() {
		cacheClient, err = cache.New(ctx, cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			repo.Close()
			logger.Error("redis_connect_failed",
				"error", sanitizeError(err, cfg.RedisURL),
				"redis_url", redactURL(cfg.RedisURL),
			)
			return fmt.Errorf("connect to redis: %s", sanitizeError(err, cfg.RedisURL))
		}
		eventCache, cacheHealth = cacheClient, cacheClient
		logger.Info("redis_connected", "redis_url", redactURL(cfg.RedisURL), "ttl", cfg.CacheTTL)
	} else {
		logger.Info("cache_disabled")
	}

	registry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheus(registry)

	eventService := service.NewEventService(repo, eventCache, recorder, logger)

	router := newRouter(cfg, logger, routerDeps{
		events: handler.NewEventHandler(eventService, logger),
		health: handler.NewHealthHandler(logger,
			handler.Dependency{Name: "postgres", Checker: repo},
			handler.Dependency{Name: "redis", Checker: cacheHealth},
		),
		registry: registry,
	})

	srv := server.New(router, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	srv.OnShutdown("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})
	if cacheClient != nil {
		srv.OnShutdown("redis", func(context.Context) error {
			return cacheClient.Close()
		})
	}

	logger.Info("server_starting",
		"port", cfg.AppPort,
		"request_timeout", cfg.RequestTimeout,
	)
	return srv.Run(ctx)
}

type routerDeps struct {
	events   *handler.EventHandler
	health   *handler.HealthHandler
	registry *prometheus.Registry
}

// newRouter assembles middleware and routes.
func newRouter(cfg *config.Config, logger *slog.Logger, deps routerDeps) *chi.Mux {
	h := handler.New(logger)
	r := chi.NewRouter()

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))
	r.Use(middleware.CORS(cors))

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	r.Get("/", h.Hello)
	r.Get("/healthz", deps.health.Healthz)
	r.Get("/readyz", deps.health.Readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.registry, promhttp.HandlerOpts{Registry: deps.registry}))

	r.With(
		middleware.MaxBodySize(cfg.MaxRequestBodySize),
		chimiddleware.Timeout(cfg.RequestTimeout),
	).Mount("/events", deps.events.Routes())

	return r
}
