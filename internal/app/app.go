// Package app wires the stores and services shared by the server and worker
// binaries from the loaded configuration.
package app

import (
	"context"
	"fmt"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/cache"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/config"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db/repository"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/queue"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/credentials"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/quota"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/titles"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/youtube"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// cachePrefix namespaces cached titles and API responses inside the Redis
// database shared with the task queue.
const cachePrefix = "ytsync:"

// App holds the long-lived connections and the services built on them.
type App struct {
	Pool  *pgxpool.Pool
	Redis redis.UniversalClient

	Subscriptions repository.SubscriptionRepository
	Buckets       repository.BucketRepository
	Videos        repository.VideoRepository
	Credentials   repository.CredentialRepository

	// Quota is nil when quota tracking is disabled.
	Quota   *quota.Manager
	Clients *credentials.Provider
	Titles  *titles.Enricher
	Queue   *queue.Client
}

// New opens Postgres and Redis and builds every shared service. name tags
// the database sessions of the calling binary.
func New(ctx context.Context, cfg *config.Config, name string) (*App, error) {
	pool, err := db.NewPool(ctx, PoolConfig(cfg.Database, name))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	rdb, err := queue.NewRedisClient(cfg.Redis.URL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	q, err := queue.NewClient(cfg.Redis.URL, queue.ClientConfig{
		Queue:    cfg.Jobs.Queue,
		Timeout:  cfg.Jobs.ExecutionBudget,
		MaxRetry: cfg.Jobs.MaxRetry,
	})
	if err != nil {
		_ = rdb.Close()
		pool.Close()
		return nil, fmt.Errorf("failed to create queue client: %w", err)
	}

	a := &App{
		Pool:          pool,
		Redis:         rdb,
		Subscriptions: repository.NewSubscriptionRepository(pool),
		Buckets:       repository.NewBucketRepository(pool),
		Videos:        repository.NewVideoRepository(pool),
		Credentials:   repository.NewCredentialRepository(pool),
		Queue:         q,
	}

	var usage youtube.UsageRecorder
	if cfg.YouTube.QuotaEnabled {
		a.Quota = quota.NewManager(repository.NewQuotaRepository(pool), cfg.YouTube.DailyQuota, cfg.YouTube.QuotaThreshold)
		usage = a.Quota
	}

	store := cache.NewRedisStore(rdb, cachePrefix)
	a.Clients = credentials.NewProvider(a.Credentials, CredentialsConfig(cfg.YouTube), store, usage)
	a.Titles = titles.NewEnricher(a.Clients, store, cfg.Titles.TTL)

	logger.Log.Info("Application services initialized",
		zap.Int32("db_max_conns", pool.Config().MaxConns),
		zap.Bool("quota_enabled", cfg.YouTube.QuotaEnabled),
	)

	return a, nil
}

// PingRedis reports whether Redis answers.
func (a *App) PingRedis(ctx context.Context) error {
	return a.Redis.Ping(ctx).Err()
}

// Close releases every connection. Errors are logged.
func (a *App) Close() {
	if err := a.Queue.Close(); err != nil {
		logger.Log.Warn("Failed to close queue client", zap.Error(err))
	}
	if err := a.Redis.Close(); err != nil {
		logger.Log.Warn("Failed to close redis client", zap.Error(err))
	}
	a.Pool.Close()
}

// PoolConfig maps the database settings onto the pool configuration.
// Unset sizes are left to the db package defaults.
func PoolConfig(c config.DatabaseConfig, name string) db.Config {
	return db.Config{
		URL:             c.DatabaseURL(),
		ApplicationName: name,
		MaxConns:        int32(c.MaxConnections),
		MinConns:        int32(c.MinConnections),
		MaxConnLifetime: c.MaxLifetime,
		MaxConnIdleTime: c.MaxIdleTime,
	}
}

// CredentialsConfig maps the YouTube settings onto the client provider.
func CredentialsConfig(c config.YouTubeConfig) credentials.Config {
	return credentials.Config{
		ClientID:          c.ClientID,
		ClientSecret:      c.ClientSecret,
		RedirectURL:       c.RedirectURL,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
		ResponseCacheTTL:  c.ResponseCacheTTL,
	}
}
