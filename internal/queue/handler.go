package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/jobs"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/credentials"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/quota"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/logger"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Runner is a job that consumes payload P.
type Runner[P any] interface {
	Run(ctx context.Context, p P) (jobs.Result[P], error)
}

// Jobs are the runners served by the worker.
type Jobs struct {
	UpdateSubscriptions Runner[tasks.UpdateSubscriptionsPayload]
	SyncSubscriptions   Runner[tasks.SyncSubscriptionsPayload]
	ImportVideos        Runner[tasks.ImportVideosPayload]
	UpdateVideoBuckets  Runner[tasks.UpdateVideoBucketsPayload]
}

// Continuations enqueues follow-up tasks, optionally held back until a
// point in time.
type Continuations interface {
	jobs.Enqueuer
	At(t time.Time) jobs.Enqueuer
}

// Handler adapts tasks to jobs and schedules their continuations.
type Handler struct {
	jobs  Jobs
	queue Continuations
}

// NewHandler creates a task handler.
func NewHandler(j Jobs, queue Continuations) *Handler {
	return &Handler{jobs: j, queue: queue}
}

// Register mounts a handler for every configured job on mux.
func (h *Handler) Register(mux *asynq.ServeMux) {
	if h.jobs.UpdateSubscriptions != nil {
		mux.HandleFunc(tasks.TypeUpdateSubscriptions, h.HandleUpdateSubscriptions)
	}
	if h.jobs.SyncSubscriptions != nil {
		mux.HandleFunc(tasks.TypeSyncSubscriptions, h.HandleSyncSubscriptions)
	}
	if h.jobs.ImportVideos != nil {
		mux.HandleFunc(tasks.TypeImportVideos, h.HandleImportVideos)
	}
	if h.jobs.UpdateVideoBuckets != nil {
		mux.HandleFunc(tasks.TypeUpdateVideoBuckets, h.HandleUpdateVideoBuckets)
	}
}

func (h *Handler) HandleUpdateSubscriptions(ctx context.Context, task *asynq.Task) error {
	return handle(ctx, task, h.jobs.UpdateSubscriptions, h.queue, jobs.Enqueuer.EnqueueUpdateSubscriptions)
}

func (h *Handler) HandleSyncSubscriptions(ctx context.Context, task *asynq.Task) error {
	return handle(ctx, task, h.jobs.SyncSubscriptions, h.queue, jobs.Enqueuer.EnqueueSyncSubscriptions)
}

func (h *Handler) HandleImportVideos(ctx context.Context, task *asynq.Task) error {
	return handle(ctx, task, h.jobs.ImportVideos, h.queue, jobs.Enqueuer.EnqueueImportVideos)
}

func (h *Handler) HandleUpdateVideoBuckets(ctx context.Context, task *asynq.Task) error {
	return handle(ctx, task, h.jobs.UpdateVideoBuckets, h.queue, jobs.Enqueuer.EnqueueUpdateVideoBuckets)
}

func handle[P any](ctx context.Context, task *asynq.Task, job Runner[P], queue Continuations, requeue func(jobs.Enqueuer, context.Context, P) error) error {
	log := logger.Log.With(zap.String("type", task.Type()))
	if id, ok := asynq.GetTaskID(ctx); ok {
		log = log.With(zap.String("task_id", id))
	}

	var payload P
	if err := tasks.Unmarshal(task, &payload); err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	result, err := job.Run(ctx, payload)
	if err != nil {
		if errors.Is(err, credentials.ErrInvalidCredential) || errors.Is(err, quota.ErrQuotaExhausted) {
			log.Warn("Task failed permanently", zap.Error(err))
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		log.Error("Task failed", zap.Error(err))
		return err
	}

	if result.Status == jobs.Interrupted {
		var target jobs.Enqueuer = queue
		if !result.NotBefore.IsZero() {
			target = queue.At(result.NotBefore)
			log = log.With(zap.Time("not_before", result.NotBefore))
		}
		// The task context is about to expire; the continuation must still be written.
		if err := requeue(target, context.WithoutCancel(ctx), result.Resume); err != nil {
			log.Error("Failed to enqueue continuation", zap.Error(err))
			return fmt.Errorf("failed to enqueue continuation: %w", err)
		}
		log.Info("Task interrupted, continuation enqueued")
		return nil
	}

	log.Debug("Task completed")
	return nil
}
