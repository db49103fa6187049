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
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/handler"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
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

	if len(cfg.Server.APIKeys) == 0 {
		logger.Log.Warn("No API keys configured - API endpoints will reject all requests",
			zap.String("env_var", "APP_SERVER_APIKEYS"),
		)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, "ytsync-server")
	if err != nil {
		return err
	}
	defer a.Close()

	gin.SetMode(gin.ReleaseMode)
	log := logger.Named("http")
	router := handler.NewRouter(handler.RouterConfig{
		APIKeys: cfg.Server.APIKeys,
		Health: handler.NewHealthHandler(map[string]handler.Checker{
			"database": a.Pool,
			"redis":    handler.CheckerFunc(a.PingRedis),
		}),
		Subscriptions: handler.NewSubscriptionHandler(a.Subscriptions, a.Titles, a.Queue, log),
		Buckets:       handler.NewBucketHandler(a.Buckets, a.Videos, a.Titles, a.Queue, log),
		Logger:        log,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Log.Info("Server starting", zap.Int("port", cfg.Server.Port))
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Log.Error("Graceful shutdown failed", zap.Error(err))
			if err := server.Close(); err != nil {
				logger.Log.Error("Failed to close server", zap.Error(err))
			}
			return err
		}

		logger.Log.Info("Server stopped gracefully")
	}

	return nil
}
