package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-dms/odyssey-dms/internal/access"
	"github.com/odyssey-dms/odyssey-dms/internal/app"
	jobmetrics "github.com/odyssey-dms/odyssey-dms/internal/jobs"
	"github.com/odyssey-dms/odyssey-dms/internal/platform/cache"
	"github.com/odyssey-dms/odyssey-dms/internal/platform/db"
	"github.com/odyssey-dms/odyssey-dms/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, "odyssey-worker")
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
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

	accessMetrics := access.NewMetrics(prometheus.DefaultRegisterer)
	repo := access.NewRepository(pool, logger)
	resolver := access.NewResolver(repo, repo, access.NewCache(redisClient, cfg.AccessCache(), logger, accessMetrics), logger, accessMetrics)

	invalidateJob := jobs.NewAccessInvalidateJob(resolver, logger, jobmetrics.NewMetrics(nil))

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAccessInvalidate, Handler: invalidateJob.Handle},
			{Type: jobs.TaskAccessFlush, Handler: invalidateJob.HandleFlush},
		},
		// Flush alongside the local midnight quota rollover.
		Cron: []jobs.CronRegistration{
			{Spec: "0 0 * * *", Task: jobs.NewAccessFlushTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
		Location: cfg.QuotaLocation(),
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
