package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/jobs"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/logger"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// ClientConfig holds the options applied to every enqueued task.
type ClientConfig struct {
	Queue    string
	Timeout  time.Duration
	MaxRetry int
}

// Client enqueues sync tasks.
type Client struct {
	enqueuer  tasks.TaskEnqueuer
	conn      *asynq.Client
	cfg       ClientConfig
	processAt time.Time
}

// NewClient creates a queue client connected to redisURL.
func NewClient(redisURL string, cfg ClientConfig) (*Client, error) {
	// Parse Redis URL to extract connection details (host, password, db, TLS)
	redisOpt, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	asynqClient := asynq.NewClient(redisOpt)
	c := NewClientWithEnqueuer(asynqClient, cfg)
	c.conn = asynqClient
	return c, nil
}

// NewClientWithEnqueuer creates a client on top of an existing enqueuer.
func NewClientWithEnqueuer(enqueuer tasks.TaskEnqueuer, cfg ClientConfig) *Client {
	if cfg.Queue == "" {
		cfg.Queue = "default"
	}
	if cfg.MaxRetry < 0 {
		cfg.MaxRetry = 0
	}
	return &Client{enqueuer: enqueuer, cfg: cfg}
}

// Close closes the client connection
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// At returns a client whose tasks become available at t instead of now.
func (c *Client) At(t time.Time) jobs.Enqueuer {
	delayed := *c
	delayed.processAt = t
	return &delayed
}

func (c *Client) EnqueueUpdateSubscriptions(ctx context.Context, p tasks.UpdateSubscriptionsPayload) error {
	task, err := tasks.NewUpdateSubscriptionsTask(p)
	return c.enqueue(ctx, task, err)
}

func (c *Client) EnqueueSyncSubscriptions(ctx context.Context, p tasks.SyncSubscriptionsPayload) error {
	task, err := tasks.NewSyncSubscriptionsTask(p)
	return c.enqueue(ctx, task, err)
}

func (c *Client) EnqueueImportVideos(ctx context.Context, p tasks.ImportVideosPayload) error {
	task, err := tasks.NewImportVideosTask(p)
	return c.enqueue(ctx, task, err)
}

func (c *Client) EnqueueUpdateVideoBuckets(ctx context.Context, p tasks.UpdateVideoBucketsPayload) error {
	task, err := tasks.NewUpdateVideoBucketsTask(p)
	return c.enqueue(ctx, task, err)
}

func (c *Client) options() []asynq.Option {
	opts := []asynq.Option{
		asynq.Queue(c.cfg.Queue),
		asynq.MaxRetry(c.cfg.MaxRetry),
	}
	if c.cfg.Timeout > 0 {
		opts = append(opts, asynq.Timeout(c.cfg.Timeout))
	}
	if !c.processAt.IsZero() {
		opts = append(opts, asynq.ProcessAt(c.processAt))
	}
	return opts
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, err error) error {
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.enqueuer.EnqueueContext(ctx, task, c.options()...)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s task: %w", task.Type(), err)
	}

	logger.Log.Debug("Enqueued task",
		zap.String("type", task.Type()),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
	)
	return nil
}
