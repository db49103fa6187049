package handler

import (
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterConfig collects everything the router mounts.
type RouterConfig struct {
	APIKeys       []string
	Health        *HealthHandler
	Subscriptions *SubscriptionHandler
	Buckets       *BucketHandler
	Logger        *zap.Logger
}

// NewRouter builds the gin engine for the read API.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))

	r.GET("/health/live", cfg.Health.Liveness)
	r.GET("/health/ready", cfg.Health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.NewAPIKeyAuth(cfg.APIKeys, logger)
	api := r.Group("/api/v1", auth.Handler(), middleware.Owner())

	api.GET("/subscriptions", cfg.Subscriptions.List)
	api.POST("/sync", cfg.Subscriptions.Sync)

	api.GET("/buckets", cfg.Buckets.List)
	api.POST("/buckets", cfg.Buckets.Create)
	api.PUT("/buckets/:bucket/subscriptions/:subscription", cfg.Buckets.AddSubscription)
	api.DELETE("/buckets/:bucket/subscriptions/:subscription", cfg.Buckets.RemoveSubscription)
	api.GET("/buckets/:bucket/videos", cfg.Buckets.Videos)
	api.POST("/buckets/:bucket/videos", cfg.Buckets.MarkViewed)

	return r
}
