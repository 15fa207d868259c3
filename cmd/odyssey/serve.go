package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-dms/odyssey-dms/internal/access"
	"github.com/odyssey-dms/odyssey-dms/internal/app"
	"github.com/odyssey-dms/odyssey-dms/internal/observability"
	"github.com/odyssey-dms/odyssey-dms/internal/platform/cache"
	"github.com/odyssey-dms/odyssey-dms/internal/platform/db"
	"github.com/odyssey-dms/odyssey-dms/internal/shared"
	"github.com/odyssey-dms/odyssey-dms/jobs"
)

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, "odyssey")
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return err
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	accessMetrics := access.NewMetrics(metrics.Registerer())

	accessRepo := access.NewRepository(dbpool, logger)
	accessCache := access.NewCache(redisClient, cfg.AccessCache(), logger, accessMetrics)
	if err := accessCache.Listen(ctx); err != nil {
		logger.Error("subscribe access invalidations", slog.Any("error", err))
		return err
	}
	resolver := access.NewResolver(accessRepo, accessRepo, accessCache, logger, accessMetrics)
	gate := access.NewGate(resolver, accessRepo, access.GateOptions{
		Policy:  cfg.EmptyPolicy(),
		Quota:   access.NewQuota(redisClient, cfg.QuotaLocation()),
		Logger:  logger,
		Metrics: accessMetrics,
	})
	logger.Info("access engine ready", slog.String("empty_restriction", string(gate.Policy())))

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		AccessHandler:  access.NewHandler(logger, gate),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
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
		return err
	}
	return nil
}
