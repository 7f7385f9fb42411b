package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/salesregister/internal/app"
	"github.com/odyssey-erp/salesregister/internal/observability"
	"github.com/odyssey-erp/salesregister/internal/platform/cache"
	"github.com/odyssey-erp/salesregister/internal/platform/db"
	"github.com/odyssey-erp/salesregister/internal/salesregister"
	"github.com/odyssey-erp/salesregister/internal/salesregister/export"
	registerhttp "github.com/odyssey-erp/salesregister/internal/salesregister/http"
	"github.com/odyssey-erp/salesregister/jobs"
	"github.com/odyssey-erp/salesregister/report"
)

func main() {
	if app.SkipStartup("api") {
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, AppName: "salesregister-api"})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	var registerCache *salesregister.Cache
	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Warn("redis unavailable, register cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		registerCache = salesregister.NewCache(redisClient, cfg.RegisterCacheTTL)
		if err := registerCache.ListenForInvalidation(ctx, salesregister.InvalidationChannel); err != nil {
			logger.Warn("register cache invalidation listener", slog.Any("error", err))
		}
	}

	metrics := observability.NewMetrics()

	registerRepo := salesregister.NewRepository(dbpool)
	registerService := salesregister.NewService(registerRepo, registerCache, logger, cfg.RegisterOptions())
	registerService.WithRecorder(metrics)

	reportClient := report.NewClient(cfg.GotenbergURL)
	reportHandler := report.NewHandler(reportClient, logger)

	var bumper registerhttp.CacheBumper
	if registerCache != nil {
		bumper = registerCache
	}
	registerHandler := registerhttp.NewHandler(logger, registerService, bumper, export.NewPDFExporter(reportClient))
	registerHandler.WithTimeout(cfg.AppRequestTimeout)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		RegisterHandler: registerHandler,
		ReportHandler:   reportHandler,
		JobHandler:      jobHandler,
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
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
