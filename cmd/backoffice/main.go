package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/backoffice/pkg/api"
	"github.com/platinummonkey/backoffice/pkg/audit"
	"github.com/platinummonkey/backoffice/pkg/backend"
	"github.com/platinummonkey/backoffice/pkg/catalog"
	"github.com/platinummonkey/backoffice/pkg/config"
	"github.com/platinummonkey/backoffice/pkg/middleware"
	"github.com/platinummonkey/backoffice/pkg/observability"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("gateway stopped")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	telemetry, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return err
	}
	shutdown.Register("telemetry", telemetry.Shutdown)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	client, err := backend.New(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout,
		Metrics: metrics,
	})
	if err != nil {
		return err
	}

	cat, err := loadCatalog(cfg.Navigation.CatalogPath)
	if err != nil {
		return err
	}

	redisClient, err := openRedis(ctx, cfg.Session)
	if err != nil {
		return err
	}
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}

	db, store, err := openAudit(cfg.Audit)
	if err != nil {
		return err
	}
	sinks := []audit.Logger{audit.NewLogSink(logger)}
	var searcher api.AuditSearcher
	if store != nil {
		sinks = append(sinks, store)
		searcher = store
	}
	sink := audit.NewMultiLogger(sinks...)
	sink.SetAsync(true, func(err error) {
		logger.WithError(err).Warn("audit write failed")
	})
	recorder := audit.NewRecorder(sink, metrics, logger)
	shutdown.Register("audit", func(context.Context) error { return recorder.Close() })

	if store != nil {
		retention, err := newRetention(ctx, cfg.Audit, store, logger, metrics)
		if err != nil {
			return err
		}
		retention.Start()
		shutdown.Register("audit retention", retention.Stop)
	}

	srv, err := api.NewServer(api.Options{
		Backend:     client,
		Catalog:     cat,
		Audit:       recorder,
		AuditSearch: searcher,
		Metrics:     metrics,
		Logger:      logger,
		Redis:       redisClient,
		Limiter:     newLimiter(ctx, cfg.Session, redisClient),
		Cookie: middleware.CookieConfig{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.CookieSecure,
		},
		MaxSessions:    cfg.Session.MaxSessions,
		IdleTTL:        cfg.Session.IdleTTL,
		RouteCacheSize: cfg.Navigation.RouteCacheSize,
		RouteCacheTTL:  cfg.Navigation.RouteCacheTTL,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		RequestTimeout: cfg.Server.WriteTimeout,
	})
	if err != nil {
		return err
	}

	health := observability.NewHealthChecker(db, redisClient)
	health.SetVersion(version)
	health.AddCheck("backend", false, client.Ping)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Navigation.WatchCatalog {
		watcher, err := catalog.Watch(cfg.Navigation.CatalogPath, 500*time.Millisecond,
			func(next *catalog.Catalog) {
				if err := srv.SetCatalog(next); err != nil {
					logger.WithError(err).Error("catalog reload rejected")
					return
				}
				logger.WithField("path", cfg.Navigation.CatalogPath).Info("catalog reloaded")
			},
			func(err error) {
				logger.WithError(err).Warn("catalog reload failed")
			})
		if err != nil {
			return err
		}
		shutdown.Register("catalog watcher", func(context.Context) error { return watcher.Close() })
		g.Go(func() error {
			if err := watcher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if db != nil && cfg.Observability.MetricsEnabled {
		g.Go(func() error {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					metrics.ObserveDBStats(db.Stats())
				}
			}
		})
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux(health, registry, cfg.Observability.MetricsEnabled),
		ReadHeaderTimeout: 5 * time.Second,
	}
	// registered last so the listeners stop before their dependencies
	shutdown.Register("health server", healthServer.Shutdown)
	shutdown.Register("api server", apiServer.Shutdown)

	g.Go(func() error { return serve(apiServer) })
	g.Go(func() error { return serve(healthServer) })
	g.Go(func() error {
		err := shutdown.WaitForShutdown(gctx)
		cancel()
		return err
	})

	logger.WithFields(map[string]interface{}{
		"addr":        apiServer.Addr,
		"health_addr": healthServer.Addr,
		"backend":     cfg.Backend.BaseURL,
		"version":     version,
	}).Info("backoffice gateway started")

	return g.Wait()
}

func serve(s *http.Server) error {
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", s.Addr, err)
	}
	return nil
}

func healthMux(health *observability.HealthChecker, registry *prometheus.Registry, withMetrics bool) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", health.Liveness)
	mux.HandleFunc("/health/ready", health.Readiness)
	if withMetrics {
		mux.Handle("/metrics", observability.MetricsHandler(registry))
	}
	return mux
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.LoadFile(path)
}

func openRedis(ctx context.Context, cfg config.SessionConfig) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB != 0 {
		opts.DB = cfg.RedisDB
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func newLimiter(ctx context.Context, cfg config.SessionConfig, redisClient *redis.Client) middleware.Limiter {
	if cfg.LoginRateLimit == 0 {
		return nil
	}
	limits := middleware.LoginRateLimitConfig(cfg.LoginRateLimit)
	if redisClient != nil {
		return middleware.NewDistributedRateLimiter(redisClient, limits, "")
	}
	limiter := middleware.NewRateLimiter(limits)
	limiter.StartCleanup(ctx)
	return limiter
}

func openAudit(cfg config.AuditConfig) (*sql.DB, *audit.DBLogger, error) {
	if cfg.Driver == "" {
		return nil, nil, nil
	}
	db, dialect, err := audit.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	store, err := audit.NewDBLogger(db, dialect)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, store, nil
}

func newRetention(ctx context.Context, cfg config.AuditConfig, store *audit.DBLogger, logger *observability.Logger, metrics *observability.Metrics) (*audit.RetentionScheduler, error) {
	policy := audit.RetentionPolicy{MaxAge: cfg.RetentionMaxAge, Schedule: cfg.RetentionSchedule}
	if cfg.ArchiveBucket == "" {
		return audit.NewRetentionScheduler(store, policy, logger, metrics)
	}

	archiver, err := audit.NewS3Archiver(ctx, audit.S3Config{
		Bucket:       cfg.ArchiveBucket,
		Prefix:       cfg.ArchivePrefix,
		Region:       cfg.S3Region,
		Endpoint:     cfg.S3Endpoint,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		UsePathStyle: cfg.S3UsePathStyle,
	})
	if err != nil {
		return nil, err
	}
	return audit.NewRetentionScheduler(audit.NewArchivingPruner(store, archiver, 0), policy, logger, metrics)
}
