package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/app"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/auth"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/inventory"
	jobmetrics "github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/jobs"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/platform/db"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/shared"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)

	// Purging needs no identity provider; only the session rows are touched.
	authService := auth.NewService(nil, nil, auth.NewRepository(pool), logger)
	inventoryService := inventory.NewService(inventory.NewRepository(pool), shared.NopAudit{}, logger)

	purgeJob := jobs.NewSessionsPurgeJob(authService, logger, metrics)
	lowStockJob := jobs.NewLowStockJob(inventoryService, logger, metrics)

	purgeTask, err := jobs.NewSessionsPurgeTask()
	if err != nil {
		logger.Error("build purge task", slog.Any("error", err))
		os.Exit(1)
	}
	lowStockTask, err := jobs.NewLowStockTask(cfg.LowStockThreshold)
	if err != nil {
		logger.Error("build low stock task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSessionsPurge, Handler: purgeJob.Handle},
			{Type: jobs.TaskInventoryLowStock, Handler: lowStockJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/30 * * * *", Task: purgeTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 7 * * *", Task: lowStockTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{})}
	go func() {
		logger.Info("starting worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		_ = metricsServer.Close()
	}()

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
