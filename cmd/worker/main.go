package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/salesregister/internal/app"
	jobmetrics "github.com/odyssey-erp/salesregister/internal/jobs"
	"github.com/odyssey-erp/salesregister/internal/platform/cache"
	"github.com/odyssey-erp/salesregister/internal/platform/db"
	"github.com/odyssey-erp/salesregister/internal/salesregister"
	"github.com/odyssey-erp/salesregister/internal/salesregister/export"
	"github.com/odyssey-erp/salesregister/jobs"
	"github.com/odyssey-erp/salesregister/report"
)

func main() {
	if app.SkipStartup("worker") {
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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, AppName: "salesregister-worker"})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	registerCache := salesregister.NewCache(redisClient, cfg.RegisterCacheTTL)
	registerRepo := salesregister.NewRepository(pool)
	registerService := salesregister.NewService(registerRepo, registerCache, logger, cfg.RegisterOptions())

	metrics := jobmetrics.NewMetrics(nil)
	renderer := export.NewPDFExporter(report.NewClient(cfg.GotenbergURL))
	snapshotJob := jobs.NewRegisterSnapshotJob(registerService, registerRepo, renderer, cfg.RegisterSnapshotDir, logger, metrics)
	bumpJob := &jobs.CacheBumpJob{Cache: registerCache, Logger: logger}

	snapshotTask, err := jobs.NewRegisterSnapshotTask(jobs.RegisterSnapshotPayload{})
	if err != nil {
		logger.Error("build snapshot task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:       asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:          logger,
		Concurrency:     cfg.WorkerConcurrency,
		ShutdownTimeout: cfg.WorkerShutdownDeadline,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRegisterSnapshot, Handler: snapshotJob.Handle},
			{Type: jobs.TaskRegisterCacheBump, Handler: bumpJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RegisterSnapshotCron, Task: snapshotTask, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}},
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
