// Package handler provides the HTTP handlers of the read API.
package handler

import (
	"context"
	"net/http"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db/models"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db/repository"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/tasks"

	"github.com/gin-gonic/gin"
)

// PageSize is the number of videos returned per page.
const PageSize = 10

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SubscriptionStore reads an owner's subscriptions.
type SubscriptionStore interface {
	ListByOwner(ctx context.Context, ownerID int64) ([]*models.Subscription, error)
}

// BucketStore manages buckets and their member subscriptions.
type BucketStore interface {
	Create(ctx context.Context, bucket *models.Bucket) error
	GetByID(ctx context.Context, ownerID, id int64) (*models.Bucket, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]*models.Bucket, error)
	AddSubscription(ctx context.Context, ownerID, bucketID int64, subscriptionID string) (bool, error)
	RemoveSubscription(ctx context.Context, ownerID, bucketID int64, subscriptionID string) (bool, error)
}

// VideoStore pages through bucket videos.
type VideoStore interface {
	ListByBucket(ctx context.Context, ownerID, bucketID int64, cursor repository.Cursor, limit int) ([]*models.Video, error)
	MarkViewed(ctx context.Context, ownerID, bucketID int64, videoID string) error
}

// Enricher loads titles for display.
type Enricher interface {
	Subscriptions(ctx context.Context, subs []*models.Subscription) ([]*models.Subscription, error)
	Videos(ctx context.Context, videos []*models.Video) ([]*models.Video, error)
}

// Enqueuer schedules background work requested through the API.
type Enqueuer interface {
	EnqueueSyncSubscriptions(ctx context.Context, p tasks.SyncSubscriptionsPayload) error
	EnqueueUpdateVideoBuckets(ctx context.Context, p tasks.UpdateVideoBucketsPayload) error
}

func sendError(c *gin.Context, statusCode int, err string, message string) {
	c.JSON(statusCode, ErrorResponse{Error: err, Message: message})
}

func notFound(c *gin.Context, what string) {
	sendError(c, http.StatusNotFound, "not found", what+" not found")
}
