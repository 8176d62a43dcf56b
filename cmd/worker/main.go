package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/nyumbani/nyumbani-access/internal/access"
	"github.com/nyumbani/nyumbani-access/internal/app"
	"github.com/nyumbani/nyumbani-access/internal/audit"
	"github.com/nyumbani/nyumbani-access/internal/platform/cache"
	"github.com/nyumbani/nyumbani-access/internal/platform/db"
	"github.com/nyumbani/nyumbani-access/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditRecorder := audit.NewRecorder(pool)
	accessRepo := access.NewRepository(pool)
	// Seed writes go through the same service the API uses so cache bumps
	// reach every instance over pub/sub.
	effectiveCache := access.NewCache(redisClient, cfg.EffectiveCacheTTL)
	accessService := access.NewService(accessRepo, auditRecorder, effectiveCache)

	integrityJob := jobs.NewCatalogIntegrityJob(pool, logger)
	seedJob := jobs.NewSeedSyncJob(accessService, logger)

	integrityTask, err := jobs.NewCatalogIntegrityTask(false)
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	seedTask, err := jobs.NewSeedSyncTask(access.DefaultsVersion)
	if err != nil {
		logger.Error("build seed task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCatalogIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskSeedSync, Handler: seedJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 2 * * *", Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "15 3 * * *", Task: seedTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
