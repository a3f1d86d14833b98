package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/gatekeeper/pkg/alerting"
	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/config"
	"github.com/platinummonkey/gatekeeper/pkg/gate"
	"github.com/platinummonkey/gatekeeper/pkg/guildconfig"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/roles"
	"github.com/platinummonkey/gatekeeper/pkg/verifycache"
)

func main() {
	startupLog := setupStartupLogger()
	startupLog.Info("Starting Gatekeeper access-control service")

	cfg, err := config.LoadConfig()
	if err != nil {
		startupLog.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
	}

	// Postgres
	db, err := connectDatabase(cfg.Database)
	if err != nil {
		startupLog.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	startupLog.Info("Connected to PostgreSQL")

	// Redis-backed verification cache
	cache, err := verifycache.Dial(cfg.Redis.URL,
		verifycache.WithTTL(cfg.Gate.VerificationTTL),
		verifycache.WithRetention(cfg.Gate.VerificationRetention),
	)
	if err != nil {
		startupLog.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer cache.Close()
	startupLog.Info("Connected to Redis")

	// Stores
	configStore, err := guildconfig.NewPostgresService(db)
	if err != nil {
		startupLog.Fatalf("Failed to initialize guild config store: %v", err)
	}
	configs := guildconfig.NewCachedService(configStore,
		guildconfig.WithCacheTTL(cfg.Gate.ConfigCacheTTL),
		guildconfig.WithCacheSize(cfg.Gate.ConfigCacheSize),
	)

	denials, err := audit.NewPostgresStore(db)
	if err != nil {
		startupLog.Fatalf("Failed to initialize denial audit store: %v", err)
	}

	// Role verification provider
	provider := roles.NewAPIProvider(cfg.Provider.BaseURL, cfg.Provider.BotToken,
		roles.WithRequestTimeout(cfg.Provider.RequestTimeout),
	)

	// Gate
	gateOpts := []gate.Option{
		gate.WithProviderTimeout(cfg.Provider.RequestTimeout),
	}
	if metrics != nil {
		gateOpts = append(gateOpts, gate.WithMetrics(metrics))
	}
	if !cfg.Gate.SingleFlight {
		gateOpts = append(gateOpts, gate.WithoutSingleFlight())
	}
	g := gate.New(configs, provider, cache, denials, logger, gateOpts...)

	// Alerting
	var scheduler *alerting.Scheduler
	if cfg.Alerting.Enabled {
		alerter := alerting.NewAlerter(db, logger,
			alerting.WithDenialSpike(cfg.Alerting.DenialSpikeThreshold, cfg.Alerting.DenialSpikeWindow),
			alerting.WithUnavailableBurst(cfg.Alerting.UnavailableThreshold, cfg.Alerting.UnavailableWindow),
		)
		scheduler, err = alerting.NewScheduler(alerter, logger, cfg.Alerting.Schedule)
		if err != nil {
			startupLog.Fatalf("Failed to schedule alert checks: %v", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		startupLog.Infof("Alert checks scheduled: %s", cfg.Alerting.Schedule)
	}

	// Admin HTTP surface
	server := NewServer(g, configs, cache, denials, logger)
	adminSrv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health + metrics on a separate port for k8s probes
	healthSrv := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthRoutes(db, cache, metrics),
	}

	errCh := make(chan error, 2)
	go func() {
		startupLog.Infof("Admin API listening on %s", adminSrv.Addr)
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("admin server: %w", err)
		}
	}()
	go func() {
		startupLog.Infof("Health/metrics listening on %s", healthSrv.Addr)
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("health server: %w", err)
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		startupLog.Infof("Received %v, shutting down", sig)
	case err := <-errCh:
		startupLog.Errorf("Server failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		startupLog.Errorf("Admin server shutdown: %v", err)
	}
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		startupLog.Errorf("Health server shutdown: %v", err)
	}
	startupLog.Info("Shutdown complete")
}

func setupStartupLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(os.Getenv("GATEKEEPER_LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func connectDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

func healthRoutes(db *sql.DB, cache *verifycache.Cache, metrics *observability.Metrics) http.Handler {
	checker := observability.NewHealthChecker(db, cache.Client())

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", checker.Liveness)
	mux.HandleFunc("/readyz", checker.Readiness)
	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}
	return mux
}
