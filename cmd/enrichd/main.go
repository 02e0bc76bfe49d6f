// Command enrichd runs the candle enrichment daemon: it fetches, validates,
// computes features for, and persists enriched OHLCV candles for every
// active symbol on a daily schedule, and serves a Prometheus metrics
// endpoint when metrics are enabled. A resumable backfill runner is
// constructed but is not reachable from outside the process.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/candlewarehouse/engine/internal/app/aggregator"
	"github.com/candlewarehouse/engine/internal/app/features"
	"github.com/candlewarehouse/engine/internal/app/metrics"
	"github.com/candlewarehouse/engine/internal/app/providers"
	"github.com/candlewarehouse/engine/internal/app/providers/cryptofutures"
	"github.com/candlewarehouse/engine/internal/app/providers/fallbackprovider"
	"github.com/candlewarehouse/engine/internal/app/providers/richprovider"
	"github.com/candlewarehouse/engine/internal/app/ratelimit"
	"github.com/candlewarehouse/engine/internal/app/resilience"
	"github.com/candlewarehouse/engine/internal/app/scheduler"
	"github.com/candlewarehouse/engine/internal/app/storage"
	"github.com/candlewarehouse/engine/internal/app/storage/memory"
	"github.com/candlewarehouse/engine/internal/app/storage/postgres"
	"github.com/candlewarehouse/engine/internal/app/system"
	"github.com/candlewarehouse/engine/internal/platform/config"
	"github.com/candlewarehouse/engine/internal/platform/database"
	"github.com/candlewarehouse/engine/internal/platform/migrations"
	"github.com/candlewarehouse/engine/internal/platform/seed"
	"github.com/candlewarehouse/engine/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "enrichd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logger.New(logger.Config{Service: "enrichd", Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	candles, backfills, statuses, audits, closeStore, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closeStore()

	symbols := seed.Table()

	breakers := resilience.NewRegistry(resilience.DefaultConfig())
	limiters := ratelimit.NewRegistry(map[string]ratelimit.Config{
		"rich": {
			RequestsPerSecond: float64(cfg.RichRequestsPerSecond),
			RequestsPerMinute: float64(cfg.RichRequestsPerMinute),
			BurstSize:         cfg.RichRequestsPerSecond,
		},
		"crypto-futures": {
			RequestsPerSecond: float64(cfg.CryptoRequestsPerSecond),
			RequestsPerMinute: float64(cfg.CryptoRequestsPerMinute),
			BurstSize:         cfg.CryptoRequestsPerSecond,
		},
	})

	richClient := richprovider.New(richprovider.Config{BaseURL: cfg.RichBaseURL, APIKey: cfg.RichAPIKey, Timeout: cfg.RichTimeout})
	throttledRich := providers.NewThrottledCandleProvider(richClient, limiters.Get("rich"))

	cryptoClient := cryptofutures.New(cryptofutures.Config{BaseURL: cfg.CryptoBaseURL, APIKey: cfg.CryptoAPIKey, Timeout: cfg.CryptoTimeout})
	throttledCrypto := providers.NewThrottled(cryptoClient, limiters.Get("crypto-futures"))

	fallbackClient := fallbackprovider.New(fallbackprovider.Config{BaseURL: cfg.FallbackBaseURL, Timeout: cfg.FallbackTimeout})

	agg := aggregator.New(symbols, aggregator.Config{
		RichProvider:          throttledRich,
		FallbackProvider:      fallbackClient,
		CryptoFuturesProvider: throttledCrypto,
		Breakers:              breakers,
		Audit:                 audits,
		Log:                   log,
	})

	retry := resilience.RetryConfig{
		MaxAttempts:  cfg.RetryMaxAttempts,
		InitialDelay: cfg.RetryInitialDelay,
		MaxDelay:     cfg.RetryMaxDelay,
	}

	pipeline := &scheduler.Pipeline{
		Aggregator: agg,
		Calendar:   features.NYSECalendar{},
		Candles:    candles,
		Statuses:   statuses,
		Audits:     audits,
		Retry:      retry,
		Log:        log,
		Hooks:      metrics.EnrichmentHooks(),
	}

	sched := scheduler.New(symbols, pipeline, scheduler.Config{
		CronSchedule:  cfg.DailySweepSchedule,
		Lookback:      24 * time.Hour,
		MaxConcurrent: cfg.SchedulerConcurrency,
	}, log)

	backfillRunner := scheduler.NewBackfillRunner(pipeline, backfills, log)
	_ = backfillRunner // constructed but not invoked anywhere in this build

	manager := system.NewManager()
	if err := manager.Register(sched); err != nil {
		return fmt.Errorf("register scheduler: %w", err)
	}

	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		metricsServer = startMetricsServer(cfg.MetricsPort, log)
	}

	log.WithFields(logFields(cfg)).Info("enrichd starting")

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	for _, d := range manager.Descriptors() {
		log.WithField("service", d.Name).WithField("layer", string(d.Layer)).Info("service registered")
	}

	<-ctx.Done()
	log.Info("enrichd shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := manager.Stop(stopCtx); err != nil {
		log.WithError(err).Warn("services stopped with errors")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(stopCtx); err != nil {
			log.WithError(err).Warn("metrics server shutdown failed")
		}
	}
	return nil
}

func openStores(ctx context.Context, cfg *config.Config) (storage.CandleStore, storage.BackfillStore, storage.StatusStore, storage.AuditStore, func(), error) {
	if cfg.StorageDriver == "postgres" {
		db, err := database.Open(ctx, database.Config{
			DSN:             cfg.PostgresDSN,
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, nil, nil, nil, err
		}
		if err := migrations.Apply(ctx, db); err != nil {
			db.Close()
			return nil, nil, nil, nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
		store := postgres.New(db)
		return store, store, store, store, func() { db.Close() }, nil
	}

	store := memory.New()
	return store, store, store, store, func() {}, nil
}

func startMetricsServer(port int, log *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server failed")
		}
	}()
	log.WithField("port", port).Info("metrics server listening")
	return srv
}

func logFields(cfg *config.Config) map[string]interface{} {
	return map[string]interface{}{
		"env":            string(cfg.Env),
		"storage_driver": cfg.StorageDriver,
		"sweep_schedule": cfg.DailySweepSchedule,
	}
}
