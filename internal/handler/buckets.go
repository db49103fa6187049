package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db/models"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db/repository"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/middleware"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/validation"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/tasks"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// cursorParams maps query parameters onto cursor kinds.
var cursorParams = []struct {
	name string
	kind repository.CursorKind
}{
	{"before", repository.CursorBefore},
	{"after", repository.CursorAfter},
	{"start", repository.CursorStart},
	{"end", repository.CursorEnd},
}

// BucketHandler serves buckets, their membership and their videos.
type BucketHandler struct {
	buckets   BucketStore
	videos    VideoStore
	titles    Enricher
	queue     Enqueuer
	validator *validation.Validator
	logger    *zap.Logger
}

// NewBucketHandler creates a BucketHandler.
func NewBucketHandler(buckets BucketStore, videos VideoStore, titles Enricher, queue Enqueuer, logger *zap.Logger) *BucketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BucketHandler{
		buckets:   buckets,
		videos:    videos,
		titles:    titles,
		queue:     queue,
		validator: validation.New(),
		logger:    logger,
	}
}

// CreateBucketRequest is the body of POST /api/v1/buckets.
type CreateBucketRequest struct {
	Title string `json:"title" binding:"required"`
}

// MarkViewedRequest is the body of POST /api/v1/buckets/:bucket/videos.
// ID is the YouTube video id.
type MarkViewedRequest struct {
	ID string `json:"id" binding:"required"`
}

// VideoPage is one page of a bucket's videos.
type VideoPage struct {
	Bucket *models.Bucket  `json:"bucket"`
	Videos []*models.Video `json:"videos"`
	Next   string          `json:"next,omitempty"`
}

// List handles GET /api/v1/buckets.
func (h *BucketHandler) List(c *gin.Context) {
	ownerID := middleware.OwnerID(c)

	buckets, err := h.buckets.ListByOwner(c.Request.Context(), ownerID)
	if err != nil {
		h.logger.Error("Failed to list buckets", zap.Int64("owner_id", ownerID), zap.Error(err))
		sendError(c, http.StatusInternalServerError, "internal error", "failed to list buckets")
		return
	}
	if buckets == nil {
		buckets = []*models.Bucket{}
	}

	c.JSON(http.StatusOK, gin.H{
		"buckets": buckets,
		"count":   len(buckets),
	})
}

// Create handles POST /api/v1/buckets.
func (h *BucketHandler) Create(c *gin.Context) {
	ownerID := middleware.OwnerID(c)

	var req CreateBucketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	title, err := h.validator.BucketTitle(req.Title)
	if err != nil {
		sendError(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	bucket := models.NewBucket(ownerID, title)
	err = h.buckets.Create(c.Request.Context(), bucket)
	switch {
	case errors.Is(err, db.ErrDuplicateKey):
		sendError(c, http.StatusConflict, "conflict", fmt.Sprintf("bucket %q already exists", title))
		return
	case errors.Is(err, db.ErrCheckViolation):
		sendError(c, http.StatusBadRequest, "validation failed", "invalid bucket title")
		return
	case err != nil:
		h.logger.Error("Failed to create bucket", zap.Int64("owner_id", ownerID), zap.Error(err))
		sendError(c, http.StatusInternalServerError, "internal error", "failed to create bucket")
		return
	}

	c.JSON(http.StatusCreated, bucket)
}

// AddSubscription handles PUT /api/v1/buckets/:bucket/subscriptions/:subscription.
func (h *BucketHandler) AddSubscription(c *gin.Context) {
	h.changeMembership(c, true)
}

// RemoveSubscription handles DELETE /api/v1/buckets/:bucket/subscriptions/:subscription.
func (h *BucketHandler) RemoveSubscription(c *gin.Context) {
	h.changeMembership(c, false)
}

func (h *BucketHandler) changeMembership(c *gin.Context, add bool) {
	ctx := c.Request.Context()
	ownerID := middleware.OwnerID(c)

	bucketID, ok := h.bucketID(c)
	if !ok {
		return
	}
	subscriptionID := c.Param("subscription")
	if !h.validator.IsValidKey(subscriptionID) {
		sendError(c, http.StatusBadRequest, "invalid subscription ID", "")
		return
	}

	change := h.buckets.RemoveSubscription
	if add {
		change = h.buckets.AddSubscription
	}
	changed, err := change(ctx, ownerID, bucketID, subscriptionID)
	if errors.Is(err, db.ErrNotFound) {
		notFound(c, "bucket or subscription")
		return
	}
	if err != nil {
		h.logger.Error("Failed to change bucket membership",
			zap.Int64("bucket_id", bucketID),
			zap.String("subscription_id", subscriptionID),
			zap.Error(err),
		)
		sendError(c, http.StatusInternalServerError, "internal error", "failed to update bucket")
		return
	}

	if changed {
		err := h.queue.EnqueueUpdateVideoBuckets(ctx, tasks.UpdateVideoBucketsPayload{
			SubscriptionID: subscriptionID,
			BucketID:       bucketID,
			Add:            add,
		})
		if err != nil {
			h.logger.Error("Failed to enqueue bucket propagation",
				zap.Int64("bucket_id", bucketID),
				zap.String("subscription_id", subscriptionID),
				zap.Error(err),
			)
			sendError(c, http.StatusServiceUnavailable, "queue unavailable", "membership changed but videos were not updated")
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"bucket_id":       bucketID,
		"subscription_id": subscriptionID,
		"member":          add,
		"changed":         changed,
	})
}

// Videos handles GET /api/v1/buckets/:bucket/videos.
func (h *BucketHandler) Videos(c *gin.Context) {
	ctx := c.Request.Context()
	ownerID := middleware.OwnerID(c)

	bucketID, ok := h.bucketID(c)
	if !ok {
		return
	}
	cursor, err := h.parseCursor(c.Request.URL.Query())
	if err != nil {
		sendError(c, http.StatusBadRequest, "invalid cursor", err.Error())
		return
	}

	bucket, err := h.buckets.GetByID(ctx, ownerID, bucketID)
	if errors.Is(err, db.ErrNotFound) {
		notFound(c, "bucket")
		return
	}
	if err != nil {
		h.logger.Error("Failed to load bucket", zap.Int64("bucket_id", bucketID), zap.Error(err))
		sendError(c, http.StatusInternalServerError, "internal error", "failed to load bucket")
		return
	}

	videos, err := h.videos.ListByBucket(ctx, ownerID, bucketID, cursor, PageSize)
	if err != nil {
		h.logger.Error("Failed to list bucket videos", zap.Int64("bucket_id", bucketID), zap.Error(err))
		sendError(c, http.StatusInternalServerError, "internal error", "failed to list videos")
		return
	}
	if videos == nil {
		videos = []*models.Video{}
	}
	if _, err := h.titles.Videos(ctx, videos); err != nil {
		h.logger.Warn("Serving videos without titles", zap.Int64("bucket_id", bucketID), zap.Error(err))
	}

	page := VideoPage{Bucket: bucket, Videos: videos}
	if len(videos) == PageSize {
		next := url.Values{"after": {videos[len(videos)-1].OrderingKey}}
		page.Next = c.Request.URL.Path + "?" + next.Encode()
	}

	c.JSON(http.StatusOK, page)
}

// MarkViewed handles POST /api/v1/buckets/:bucket/videos.
func (h *BucketHandler) MarkViewed(c *gin.Context) {
	ownerID := middleware.OwnerID(c)

	bucketID, ok := h.bucketID(c)
	if !ok {
		return
	}

	var req MarkViewedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !h.validator.IsValidKey(req.ID) {
		sendError(c, http.StatusBadRequest, "invalid video ID", "")
		return
	}

	videoID := models.VideoKey(ownerID, req.ID)
	err := h.videos.MarkViewed(c.Request.Context(), ownerID, bucketID, videoID)
	if errors.Is(err, db.ErrNotFound) {
		notFound(c, "video")
		return
	}
	if err != nil {
		h.logger.Error("Failed to mark video viewed",
			zap.Int64("bucket_id", bucketID),
			zap.String("video_id", videoID),
			zap.Error(err),
		)
		sendError(c, http.StatusInternalServerError, "internal error", "failed to mark video viewed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": req.ID, "video_id": videoID, "viewed": true})
}

func (h *BucketHandler) bucketID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("bucket"), 10, 64)
	if err != nil || id <= 0 {
		sendError(c, http.StatusBadRequest, "invalid bucket ID", "bucket ID must be a positive integer")
		return 0, false
	}
	return id, true
}

// parseCursor accepts at most one of before, after, start and end.
func (h *BucketHandler) parseCursor(query url.Values) (repository.Cursor, error) {
	cursor := repository.Cursor{Kind: repository.CursorNone}
	for _, p := range cursorParams {
		if !query.Has(p.name) {
			continue
		}
		if cursor.Kind != repository.CursorNone {
			return repository.Cursor{}, fmt.Errorf("only one of before, after, start and end may be given")
		}
		key := query.Get(p.name)
		if !h.validator.IsValidKey(key) {
			return repository.Cursor{}, fmt.Errorf("malformed %s cursor", p.name)
		}
		cursor = repository.Cursor{Kind: p.kind, Key: key}
	}
	return cursor, nil
}
