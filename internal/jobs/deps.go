package jobs

import (
	"context"
	"time"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db/models"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/youtube"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/tasks"

	"go.uber.org/zap"
)

// ClientProvider resolves an owner's API handle.
type ClientProvider interface {
	Client(ctx context.Context, ownerID int64, useCache bool) (youtube.API, error)
}

// Enqueuer schedules follow-up and continuation tasks.
type Enqueuer interface {
	EnqueueUpdateSubscriptions(ctx context.Context, p tasks.UpdateSubscriptionsPayload) error
	EnqueueSyncSubscriptions(ctx context.Context, p tasks.SyncSubscriptionsPayload) error
	EnqueueImportVideos(ctx context.Context, p tasks.ImportVideosPayload) error
	EnqueueUpdateVideoBuckets(ctx context.Context, p tasks.UpdateVideoBucketsPayload) error
}

// SubscriptionStore is the subscription persistence used by the sync job.
type SubscriptionStore interface {
	Upsert(ctx context.Context, sub *models.Subscription) (bool, error)
	UpdateMetadata(ctx context.Context, id, title, description string) error
	BucketIDs(ctx context.Context, subscriptionID string) ([]int64, error)
}

// VideoStore is the video persistence used by the import job.
type VideoStore interface {
	CreateIfAbsent(ctx context.Context, video *models.Video) (bool, error)
}

// VideoBucketStore is the persistence used by bucket propagation.
type VideoBucketStore interface {
	ListIDsBySubscription(ctx context.Context, subscriptionID, afterID string, limit int) ([]string, error)
	AddToBucket(ctx context.Context, videoID string, bucketID int64) error
	RemoveFromBucket(ctx context.Context, videoID string, bucketID int64) error
}

// CredentialLister pages through stored credentials by owner id.
type CredentialLister interface {
	ListAfter(ctx context.Context, afterOwnerID int64, limit int) ([]*models.Credential, error)
}

// SubscriptionEnricher loads channel titles.
type SubscriptionEnricher interface {
	Subscriptions(ctx context.Context, subs []*models.Subscription) ([]*models.Subscription, error)
}

// QuotaGate refuses work once the daily API budget is spent.
type QuotaGate interface {
	Reserve(ctx context.Context, units int) error
	// ResetAt is the next time the budget is refilled.
	ResetAt(now time.Time) time.Time
}

// VideoPublisher announces newly imported videos.
type VideoPublisher interface {
	PublishVideoImported(ctx context.Context, video *models.Video) error
}

// reconcile returns the requested ids that have details, in request order
// and without duplicates. Both directions of mismatch are logged and counted.
func reconcile(log *zap.Logger, job string, requested []string, found map[string]bool) []string {
	wanted := make(map[string]bool, len(requested))
	matched := make([]string, 0, len(requested))
	for _, id := range requested {
		if wanted[id] {
			continue
		}
		wanted[id] = true
		if !found[id] {
			reconciliationMismatches.WithLabelValues(job, "missing").Inc()
			log.Info("No details returned for id, skipping", zap.String("id", id))
			continue
		}
		matched = append(matched, id)
	}

	for id := range found {
		if !wanted[id] {
			reconciliationMismatches.WithLabelValues(job, "extra").Inc()
			log.Info("Details returned for unrequested id, ignoring", zap.String("id", id))
		}
	}

	return matched
}
