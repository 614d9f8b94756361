package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/garnizeh/campusfix/api"
	"github.com/garnizeh/campusfix/internal/catalog"
	"github.com/garnizeh/campusfix/internal/config"
	"github.com/garnizeh/campusfix/internal/gamification"
	"github.com/garnizeh/campusfix/internal/issues"
	"github.com/garnizeh/campusfix/internal/jobs"
	"github.com/garnizeh/campusfix/internal/logging"
	"github.com/garnizeh/campusfix/internal/ratelimit"
	"github.com/garnizeh/campusfix/internal/repository/backend"
	"github.com/garnizeh/campusfix/internal/rewards"
	"github.com/garnizeh/campusfix/internal/users"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, slog.Any("err", err))
	os.Exit(1)
}

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fatal(slog.Default(), "Failed to load config", err)
	}
	if err := cfg.Validate(); err != nil {
		fatal(slog.Default(), "Invalid config", err)
	}

	logger := logging.Setup(cfg.Env, cfg.LogLevel)
	api.SetLogger(logger)
	logger.Info("Starting campusfix server", slog.String("version", version), slog.String("buildTime", buildTime))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Spans are only used to correlate log records; no exporter is registered.
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	be, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		fatal(logger, "Failed to open store", err)
	}
	store := be.Store

	cat, err := catalog.NewLoader(ctx, cfg.Gamification.CatalogPath)
	if err != nil {
		fatal(logger, "Failed to load gamification catalog", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		fatal(logger, "Invalid time zone", err)
	}

	engine := gamification.New(store, cat, logger, gamification.WithLocation(loc))
	ledger := issues.New(store, logger)
	directory := users.New(store, logger)

	var (
		dispatcher rewards.Dispatcher
		pool       *jobs.WorkerPool
	)
	if cfg.Jobs.Enabled {
		pool = jobs.NewWorkerPool(jobs.NewRepository(be.DB), rewards.Handlers(engine), logger, cfg.Jobs.Workers)
		pool.Start(ctx)
		dispatcher = rewards.NewQueued(pool, cfg.Jobs.MaxAttempts, logger)
	} else {
		dispatcher = rewards.NewInline(engine, logger)
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		if be.Redis != nil {
			limiter = ratelimit.NewRedis(be.Redis, backend.RateLimitNamespace, cfg.RateLimit.IssuesPerDay, cfg.RateLimit.Window)
		} else {
			limiter = ratelimit.NewMemory(cfg.RateLimit.IssuesPerDay, cfg.RateLimit.Window)
		}
	}

	handler := api.SetupRoutes(cfg, version, buildTime, api.Deps{
		Ledger:       ledger,
		Users:        directory,
		Gamification: engine,
		Rewards:      dispatcher,
		Catalog:      cat,
		Limiter:      limiter,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.APITimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", slog.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "Server failed to start", err)
		}
	}()

	// SIGHUP reloads the catalog; SIGINT and SIGTERM shut down.
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
wait:
	for {
		select {
		case <-reload:
			if err := cat.Reload(ctx); err != nil {
				logger.Error("Catalog reload failed, keeping the previous catalog", slog.Any("err", err))
				continue
			}
			logger.Info("Catalog reloaded", slog.String("version", cat.Catalog().Version))
		case <-quit:
			break wait
		}
	}
	logger.Info("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", slog.Any("err", err))
	}

	if pool != nil {
		pool.Stop()
	}
	cancel()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down tracer provider", slog.Any("err", err))
	}
	if err := be.Close(); err != nil {
		logger.Error("Error closing store", slog.Any("err", err))
	}

	logger.Info("Server exited")
}
