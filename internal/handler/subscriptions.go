package handler

import (
	"net/http"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db/models"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/middleware"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/tasks"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SubscriptionHandler serves the owner's subscription list and sync requests.
type SubscriptionHandler struct {
	subs   SubscriptionStore
	titles Enricher
	queue  Enqueuer
	logger *zap.Logger
}

// NewSubscriptionHandler creates a SubscriptionHandler.
func NewSubscriptionHandler(subs SubscriptionStore, titles Enricher, queue Enqueuer, logger *zap.Logger) *SubscriptionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionHandler{subs: subs, titles: titles, queue: queue, logger: logger}
}

// List handles GET /api/v1/subscriptions.
func (h *SubscriptionHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	ownerID := middleware.OwnerID(c)

	subs, err := h.subs.ListByOwner(ctx, ownerID)
	if err != nil {
		h.logger.Error("Failed to list subscriptions", zap.Int64("owner_id", ownerID), zap.Error(err))
		sendError(c, http.StatusInternalServerError, "internal error", "failed to list subscriptions")
		return
	}

	if subs == nil {
		subs = []*models.Subscription{}
	}
	if _, err := h.titles.Subscriptions(ctx, subs); err != nil {
		h.logger.Warn("Serving subscriptions without titles", zap.Int64("owner_id", ownerID), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"subscriptions": subs,
		"count":         len(subs),
	})
}

// Sync handles POST /api/v1/sync.
func (h *SubscriptionHandler) Sync(c *gin.Context) {
	ownerID := middleware.OwnerID(c)

	if err := h.queue.EnqueueSyncSubscriptions(c.Request.Context(), tasks.SyncSubscriptionsPayload{OwnerID: ownerID}); err != nil {
		h.logger.Error("Failed to enqueue sync", zap.Int64("owner_id", ownerID), zap.Error(err))
		sendError(c, http.StatusServiceUnavailable, "queue unavailable", "failed to schedule sync")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
