package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/stocktrail/stocktrail/internal/app"
	"github.com/stocktrail/stocktrail/internal/batch"
	"github.com/stocktrail/stocktrail/internal/insights"
	"github.com/stocktrail/stocktrail/internal/migrate"
	"github.com/stocktrail/stocktrail/internal/observability"
	"github.com/stocktrail/stocktrail/internal/platform/cache"
	"github.com/stocktrail/stocktrail/internal/platform/db"
	"github.com/stocktrail/stocktrail/internal/stock"
	"github.com/stocktrail/stocktrail/jobs"
)

const historyCacheTTL = 10 * time.Minute

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// The side map and history cache degrade gracefully without redis.
		logger.Warn("redis unavailable", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	sideCache := batch.NewSideCache(redisClient, historyCacheTTL)

	itemRepo := stock.NewRepository(pool)
	itemService := stock.NewService(itemRepo, sideCache)

	batchRepo := batch.NewRepository(pool)
	batchService := batch.NewService(batchRepo, itemRepo, sideCache)
	reconciler := batch.NewReconciler(itemRepo, batchRepo, sideCache, metrics)

	var enqueuer stock.ReconcileEnqueuer
	var backfill batch.Backfill
	if cfg.ReconcileEnabled {
		client := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("asynq client close", slog.Any("error", err))
			}
		}()
		enqueuer = client
		backfill = reconciler
	}

	itemHandler := stock.NewHandler(logger, itemService, enqueuer, metrics)
	batchHandler := batch.NewHandler(logger, batchService, backfill, metrics)
	insightsHandler := insights.NewHandler(logger, insights.NewService(itemRepo))
	migrateHandler := migrate.NewHandler(logger, migrate.NewService(itemRepo, batchRepo, sideCache))

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		ItemsHandler:    itemHandler,
		BatchesHandler:  batchHandler,
		InsightsHandler: insightsHandler,
		MigrateHandler:  migrateHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
