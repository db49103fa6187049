// Package events announces newly imported videos on a RabbitMQ topic exchange.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/config"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db/models"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/logger"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const confirmTimeout = 5 * time.Second

// VideoImported is the message body published for every newly stored video.
type VideoImported struct {
	EventID        uuid.UUID `json:"event_id"`
	OwnerID        int64     `json:"owner_id"`
	VideoID        string    `json:"video_id"`
	YouTubeID      string    `json:"youtube_id"`
	SubscriptionID string    `json:"subscription_id"`
	PublishedAt    time.Time `json:"published_at"`
	BucketIDs      []int64   `json:"bucket_ids"`
	ImportedAt     time.Time `json:"imported_at"`
}

// NewVideoImported builds the event for a stored video.
func NewVideoImported(v *models.Video) *VideoImported {
	buckets := v.BucketIDs
	if buckets == nil {
		buckets = []int64{}
	}
	return &VideoImported{
		EventID:        uuid.New(),
		OwnerID:        v.OwnerID,
		VideoID:        v.ID,
		YouTubeID:      v.YouTubeID,
		SubscriptionID: v.SubscriptionID,
		PublishedAt:    v.PublishedAt,
		BucketIDs:      buckets,
		ImportedAt:     time.Now().UTC(),
	}
}

// Publisher sends events with publisher confirms.
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	confirms chan amqp.Confirmation
	config   *config.RabbitMQConfig
	mu       sync.Mutex
}

// NewPublisher connects and declares the exchange.
func NewPublisher(cfg *config.RabbitMQConfig) (*Publisher, error) {
	p := &Publisher{config: cfg}

	if err := p.connect(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Publisher) connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	connURL := fmt.Sprintf("amqp://%s:%s@%s:%d/",
		p.config.User, p.config.Password, p.config.Host, p.config.Port)

	conn, err := amqp.Dial(connURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	if err := ch.ExchangeDeclare(
		p.config.Exchange, // name
		"topic",           // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.conn = conn
	p.channel = ch
	p.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	logger.Log.Info("Connected to RabbitMQ",
		zap.String("exchange", p.config.Exchange),
		zap.String("routingKey", p.config.RoutingKey),
	)

	return nil
}

// PublishVideoImported announces a newly stored video.
func (p *Publisher) PublishVideoImported(ctx context.Context, video *models.Video) error {
	return p.publish(ctx, NewVideoImported(video))
}

func (p *Publisher) publish(ctx context.Context, event *VideoImported) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// One publish in flight at a time so each confirmation matches its message.
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		return fmt.Errorf("channel is not initialized")
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.config.Exchange,
		p.config.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.ImportedAt,
			MessageId:    event.EventID.String(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	select {
	case confirm, ok := <-p.confirms:
		if !ok {
			return fmt.Errorf("channel closed before publish confirmation")
		}
		if !confirm.Ack {
			return fmt.Errorf("message was not acknowledged by broker")
		}
	case <-time.After(confirmTimeout):
		return fmt.Errorf("timeout waiting for publish confirmation")
	case <-ctx.Done():
		return ctx.Err()
	}

	logger.Log.Debug("Published video event",
		zap.String("eventId", event.EventID.String()),
		zap.String("videoId", event.YouTubeID),
	)

	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing publisher: %v", errs)
	}

	logger.Log.Info("RabbitMQ publisher closed")
	return nil
}

func (p *Publisher) IsHealthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.conn != nil && !p.conn.IsClosed() && p.channel != nil
}
