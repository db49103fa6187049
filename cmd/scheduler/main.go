package main

import (
	"fmt"
	"os"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/config"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/queue"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "scheduler: failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "scheduler: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	scheduler, err := queue.NewScheduler(cfg.Redis.URL, cfg.Jobs.UpdateSchedule, cfg.Jobs.Queue)
	if err != nil {
		logger.Log.Fatal("Failed to create scheduler", zap.Error(err))
	}

	logger.Log.Info("Scheduler starting",
		zap.String("schedule", cfg.Jobs.UpdateSchedule),
		zap.String("queue", cfg.Jobs.Queue),
	)

	// Run blocks until SIGTERM or SIGINT.
	if err := scheduler.Run(); err != nil {
		logger.Log.Fatal("Scheduler stopped with error", zap.Error(err))
	}
}
