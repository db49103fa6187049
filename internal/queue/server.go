package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/logger"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// ServerConfig controls the worker pool.
type ServerConfig struct {
	Queue           string
	Concurrency     int
	ShutdownTimeout time.Duration
}

// Server wraps asynq server for processing tasks
type Server struct {
	asynqServer *asynq.Server
	mux         *asynq.ServeMux
}

// NewServer creates a new task processing server
func NewServer(redisURL string, cfg ServerConfig, handler *Handler) (*Server, error) {
	// Parse Redis URL to extract connection details (host, password, db, TLS)
	redisOpt, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	if cfg.Queue == "" {
		cfg.Queue = "default"
	}

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.Queue: 10,
			},
			ShutdownTimeout: cfg.ShutdownTimeout,
			Logger:          logger.Named("asynq").Sugar(),
			// Retries are disabled by default; archived tasks serve as the dead letter queue.
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Log.Error("Task failed",
					zap.String("type", task.Type()),
					zap.Int("retried", retried),
					zap.Int("max_retry", maxRetry),
					zap.Error(err),
				)
			}),
		},
	)

	mux := asynq.NewServeMux()
	handler.Register(mux)

	return &Server{
		asynqServer: srv,
		mux:         mux,
	}, nil
}

// Start starts the server
func (s *Server) Start() error {
	logger.Log.Info("Starting task processing server")
	return s.asynqServer.Start(s.mux)
}

// Stop gracefully stops the server
func (s *Server) Stop() {
	logger.Log.Info("Shutting down task processing server")
	s.asynqServer.Shutdown()
}

// NewScheduler registers the periodic fleet sweep on schedule (cron syntax or "@every <duration>").
func NewScheduler(redisURL, schedule, queue string) (*asynq.Scheduler, error) {
	redisOpt, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if queue == "" {
		queue = "default"
	}

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger: logger.Named("scheduler").Sugar(),
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				logger.Log.Error("Failed to enqueue scheduled sweep", zap.Error(err))
				return
			}
			logger.Log.Info("Scheduled sweep enqueued", zap.String("task_id", info.ID))
		},
	})

	task, err := tasks.NewUpdateSubscriptionsTask(tasks.UpdateSubscriptionsPayload{})
	if err != nil {
		return nil, err
	}
	if _, err := scheduler.Register(schedule, task, asynq.Queue(queue)); err != nil {
		return nil, fmt.Errorf("failed to register sweep schedule %q: %w", schedule, err)
	}

	return scheduler, nil
}
