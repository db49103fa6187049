package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db/models"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/credentials"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/youtube"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/logger"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/tasks"

	"go.uber.org/zap"
)

// Quota reserved before each page: one listing call plus one details call.
const pageCost = 2

// SubscriptionSync mirrors an owner's subscription list and schedules a
// video import for every subscription it touches.
type SubscriptionSync struct {
	clients ClientProvider
	subs    SubscriptionStore
	queue   Enqueuer
	budget  Budget
	titles  SubscriptionEnricher
	quota   QuotaGate
	now     func() time.Time
}

// NewSubscriptionSync creates the job.
func NewSubscriptionSync(clients ClientProvider, subs SubscriptionStore, queue Enqueuer, budget Budget) *SubscriptionSync {
	return &SubscriptionSync{
		clients: clients,
		subs:    subs,
		queue:   queue,
		budget:  budget,
		now:     time.Now,
	}
}

// WithTitles fetches and stores titles of newly created subscriptions inline.
func (j *SubscriptionSync) WithTitles(titles SubscriptionEnricher) *SubscriptionSync {
	j.titles = titles
	return j
}

// WithQuota gates every page on the daily quota.
func (j *SubscriptionSync) WithQuota(quota QuotaGate) *SubscriptionSync {
	j.quota = quota
	return j
}

// Run syncs pages starting at p.PageToken until the list ends or the budget runs out.
func (j *SubscriptionSync) Run(ctx context.Context, p tasks.SyncSubscriptionsPayload) (Result[tasks.SyncSubscriptionsPayload], error) {
	log := logger.Log.With(zap.String("job", jobSyncSubscriptions), zap.Int64("owner_id", p.OwnerID))

	api, err := j.clients.Client(ctx, p.OwnerID, false)
	if errors.Is(err, credentials.ErrNoCredential) {
		log.Debug("No credential stored, skipping sync")
		observeRun(jobSyncSubscriptions, Completed)
		return completed[tasks.SyncSubscriptionsPayload](), nil
	}
	if err != nil {
		observeFailure(jobSyncSubscriptions)
		return Result[tasks.SyncSubscriptionsPayload]{}, fmt.Errorf("failed to resolve client: %w", err)
	}

	token := p.PageToken
	pages := 0
	for {
		resume := tasks.SyncSubscriptionsPayload{OwnerID: p.OwnerID, PageToken: token}
		if j.budget.Exhausted(ctx) {
			log.Info("Execution budget spent, checkpointing", zap.Int("pages", pages), zap.String("page_token", token))
			observeRun(jobSyncSubscriptions, Interrupted)
			return interrupted(resume), nil
		}

		next, err := j.syncPage(ctx, log, api, p.OwnerID, token)
		if isDeadline(err) {
			log.Info("Deadline reached, checkpointing", zap.Int("pages", pages), zap.String("page_token", token))
			observeRun(jobSyncSubscriptions, Interrupted)
			return interrupted(resume), nil
		}
		if isQuotaExhausted(err) {
			until := j.quota.ResetAt(j.now())
			log.Warn("Quota exhausted, deferring until reset",
				zap.Int("pages", pages),
				zap.String("page_token", token),
				zap.Time("not_before", until),
			)
			observeRun(jobSyncSubscriptions, Interrupted)
			return deferred(resume, until), nil
		}
		if err != nil {
			observeFailure(jobSyncSubscriptions)
			return Result[tasks.SyncSubscriptionsPayload]{}, err
		}

		pages++
		pagesProcessed.WithLabelValues(jobSyncSubscriptions).Inc()
		if next == "" {
			break
		}
		token = next
	}

	log.Info("Subscriptions synced", zap.Int("pages", pages))
	observeRun(jobSyncSubscriptions, Completed)
	return completed[tasks.SyncSubscriptionsPayload](), nil
}

// syncPage commits one page and returns the token of the following page.
func (j *SubscriptionSync) syncPage(ctx context.Context, log *zap.Logger, api youtube.API, ownerID int64, token string) (string, error) {
	if j.quota != nil {
		if err := j.quota.Reserve(ctx, pageCost); err != nil {
			return "", err
		}
	}

	page, err := api.ListMySubscriptions(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to list subscriptions: %w", err)
	}
	if len(page.Items) == 0 {
		return page.NextPageToken, nil
	}

	items := make(map[string]youtube.SubscriptionItem, len(page.Items))
	ids := make([]string, 0, len(page.Items))
	for _, item := range page.Items {
		if _, dup := items[item.ChannelID]; !dup {
			ids = append(ids, item.ChannelID)
		}
		items[item.ChannelID] = item
	}

	channels, err := api.ListChannels(ctx, ids)
	if err != nil {
		return "", fmt.Errorf("failed to list channels: %w", err)
	}
	uploads := make(map[string]string, len(channels))
	found := make(map[string]bool, len(channels))
	for _, c := range channels {
		if c.UploadsPlaylistID == "" {
			log.Info("Channel has no uploads playlist", zap.String("channel_id", c.ID))
			continue
		}
		uploads[c.ID] = c.UploadsPlaylistID
		found[c.ID] = true
	}

	matched := reconcile(log, jobSyncSubscriptions, ids, found)
	sort.Strings(matched)

	var created []*models.Subscription
	for _, channelID := range matched {
		sub := models.NewSubscription(ownerID, channelID, uploads[channelID], models.Thumbnails(items[channelID].Thumbnails))
		sub.LastUpdate = j.now()

		isNew, err := j.subs.Upsert(ctx, sub)
		if err != nil {
			return "", fmt.Errorf("failed to upsert subscription %s: %w", channelID, err)
		}

		var bucketIDs []int64
		if isNew {
			recordsWritten.WithLabelValues("subscription", "created").Inc()
			created = append(created, sub)
		} else {
			recordsWritten.WithLabelValues("subscription", "updated").Inc()
			bucketIDs, err = j.subs.BucketIDs(ctx, sub.ID)
			if err != nil {
				return "", fmt.Errorf("failed to load buckets of %s: %w", sub.ID, err)
			}
		}

		err = j.queue.EnqueueImportVideos(ctx, tasks.ImportVideosPayload{
			OwnerID:        ownerID,
			SubscriptionID: sub.ID,
			PlaylistID:     sub.UploadPlaylist,
			BucketIDs:      bucketIDs,
			OnlyFirstPage:  isNew,
		})
		if err != nil {
			return "", fmt.Errorf("failed to enqueue import for %s: %w", sub.ID, err)
		}
	}

	j.storeTitles(ctx, log, created)

	return page.NextPageToken, nil
}

// storeTitles persists titles of new subscriptions. Failures are logged.
func (j *SubscriptionSync) storeTitles(ctx context.Context, log *zap.Logger, subs []*models.Subscription) {
	if j.titles == nil || len(subs) == 0 {
		return
	}

	if _, err := j.titles.Subscriptions(ctx, subs); err != nil {
		log.Warn("Failed to load titles of new subscriptions", zap.Error(err))
		return
	}
	for _, sub := range subs {
		if !sub.HasMetadata() {
			continue
		}
		if err := j.subs.UpdateMetadata(ctx, sub.ID, *sub.Title, *sub.Description); err != nil {
			log.Warn("Failed to store subscription title", zap.String("subscription_id", sub.ID), zap.Error(err))
		}
	}
}
