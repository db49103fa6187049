package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/app"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/config"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/jobs"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/queue"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/events"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/logger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, "ytsync-worker")
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Quota != nil {
		info, err := a.Quota.GetQuotaInfo(ctx)
		if err != nil {
			logger.Log.Warn("Failed to read quota status", zap.Error(err))
		} else {
			logger.Log.Info("Quota status",
				zap.Int("used", info.QuotaUsed),
				zap.Int("limit", info.QuotaLimit),
				zap.Int("remaining", info.QuotaRemaining),
				zap.Int("operations", info.OperationsCount),
			)
		}
	}

	var publisher *events.Publisher
	if cfg.RabbitMQ.Enabled {
		publisher, err = events.NewPublisher(&cfg.RabbitMQ)
		if err != nil {
			return fmt.Errorf("failed to connect event publisher: %w", err)
		}
		defer func() { _ = publisher.Close() }()
	}

	srv, err := queue.NewServer(cfg.Redis.URL, queue.ServerConfig{
		Queue:           cfg.Jobs.Queue,
		Concurrency:     cfg.Jobs.Concurrency,
		ShutdownTimeout: cfg.Jobs.ShutdownTimeout,
	}, queue.NewHandler(buildJobs(cfg, a, publisher), a.Queue))
	if err != nil {
		return fmt.Errorf("failed to create task server: %w", err)
	}

	metrics := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Log.Info("Metrics listener starting", zap.Int("port", cfg.Metrics.Port))
		if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("Metrics listener failed", zap.Error(err))
		}
	}()

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start task server: %w", err)
	}

	logger.Log.Info("Worker started",
		zap.String("queue", cfg.Jobs.Queue),
		zap.Int("concurrency", cfg.Jobs.Concurrency),
		zap.Duration("execution_budget", cfg.Jobs.ExecutionBudget),
		zap.Bool("events_enabled", publisher != nil),
	)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	sig := <-shutdown
	logger.Log.Info("Shutdown signal received", zap.String("signal", sig.String()))

	srv.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warn("Metrics listener shutdown failed", zap.Error(err))
	}

	logger.Log.Info("Worker stopped gracefully")
	return nil
}

// buildJobs assembles the four jobs. publisher may be nil.
func buildJobs(cfg *config.Config, a *app.App, publisher *events.Publisher) queue.Jobs {
	budget := jobs.Budget{Margin: cfg.Jobs.DeadlineMargin}

	subs := jobs.NewSubscriptionSync(a.Clients, a.Subscriptions, a.Queue, budget)
	imports := jobs.NewVideoImport(a.Clients, a.Videos, budget)
	if cfg.Jobs.InlineTitles {
		subs = subs.WithTitles(a.Titles)
	}
	if a.Quota != nil {
		subs = subs.WithQuota(a.Quota)
		imports = imports.WithQuota(a.Quota)
	}
	if publisher != nil {
		imports = imports.WithPublisher(publisher)
	}

	return queue.Jobs{
		UpdateSubscriptions: jobs.NewFleetUpdate(a.Credentials, a.Queue, budget),
		SyncSubscriptions:   subs,
		ImportVideos:        imports,
		UpdateVideoBuckets:  jobs.NewBucketPropagation(a.Videos, budget),
	}
}
