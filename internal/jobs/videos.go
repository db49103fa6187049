package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db/models"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/credentials"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/youtube"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/logger"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/tasks"

	"go.uber.org/zap"
)

// VideoImport walks a subscription's uploads playlist newest first and stores
// videos it has not seen, stopping at the first page that contains a known one.
type VideoImport struct {
	clients   ClientProvider
	videos    VideoStore
	budget    Budget
	quota     QuotaGate
	publisher VideoPublisher
}

// NewVideoImport creates the job.
func NewVideoImport(clients ClientProvider, videos VideoStore, budget Budget) *VideoImport {
	return &VideoImport{clients: clients, videos: videos, budget: budget}
}

// WithQuota gates every page on the daily quota.
func (j *VideoImport) WithQuota(quota QuotaGate) *VideoImport {
	j.quota = quota
	return j
}

// WithPublisher announces each newly stored video.
func (j *VideoImport) WithPublisher(publisher VideoPublisher) *VideoImport {
	j.publisher = publisher
	return j
}

// Run imports pages starting at p.PageToken.
func (j *VideoImport) Run(ctx context.Context, p tasks.ImportVideosPayload) (Result[tasks.ImportVideosPayload], error) {
	log := logger.Log.With(
		zap.String("job", jobImportVideos),
		zap.Int64("owner_id", p.OwnerID),
		zap.String("subscription_id", p.SubscriptionID),
	)

	// A first-page import is never continued.
	if p.PageToken != "" && p.OnlyFirstPage {
		log.Debug("Ignoring continuation of a first-page import", zap.String("page_token", p.PageToken))
		observeRun(jobImportVideos, Completed)
		return completed[tasks.ImportVideosPayload](), nil
	}

	api, err := j.clients.Client(ctx, p.OwnerID, false)
	if errors.Is(err, credentials.ErrNoCredential) {
		log.Debug("No credential stored, skipping import")
		observeRun(jobImportVideos, Completed)
		return completed[tasks.ImportVideosPayload](), nil
	}
	if err != nil {
		observeFailure(jobImportVideos)
		return Result[tasks.ImportVideosPayload]{}, fmt.Errorf("failed to resolve client: %w", err)
	}

	token := p.PageToken
	pages := 0
	for {
		resume := p
		resume.PageToken = token
		if j.budget.Exhausted(ctx) {
			log.Info("Execution budget spent, checkpointing", zap.Int("pages", pages), zap.String("page_token", token))
			observeRun(jobImportVideos, Interrupted)
			return interrupted(resume), nil
		}

		next, seenBefore, err := j.importPage(ctx, log, api, p, token)
		if isDeadline(err) {
			log.Info("Deadline reached, checkpointing", zap.Int("pages", pages), zap.String("page_token", token))
			observeRun(jobImportVideos, Interrupted)
			return interrupted(resume), nil
		}
		if isQuotaExhausted(err) {
			until := j.quota.ResetAt(time.Now())
			log.Warn("Quota exhausted, deferring until reset",
				zap.Int("pages", pages),
				zap.String("page_token", token),
				zap.Time("not_before", until),
			)
			observeRun(jobImportVideos, Interrupted)
			return deferred(resume, until), nil
		}
		if err != nil {
			observeFailure(jobImportVideos)
			return Result[tasks.ImportVideosPayload]{}, err
		}

		pages++
		pagesProcessed.WithLabelValues(jobImportVideos).Inc()
		if next == "" || seenBefore || p.OnlyFirstPage {
			break
		}
		token = next
	}

	log.Info("Videos imported", zap.Int("pages", pages))
	observeRun(jobImportVideos, Completed)
	return completed[tasks.ImportVideosPayload](), nil
}

// importPage commits one playlist page. It returns the next page token and
// whether any video on the page was already stored.
func (j *VideoImport) importPage(ctx context.Context, log *zap.Logger, api youtube.API, p tasks.ImportVideosPayload, token string) (string, bool, error) {
	if j.quota != nil {
		if err := j.quota.Reserve(ctx, pageCost); err != nil {
			return "", false, err
		}
	}

	page, err := api.ListPlaylistItems(ctx, p.PlaylistID, token)
	if err != nil {
		return "", false, fmt.Errorf("failed to list playlist items: %w", err)
	}
	if len(page.VideoIDs) == 0 {
		return page.NextPageToken, false, nil
	}

	details, err := api.ListVideos(ctx, page.VideoIDs)
	if err != nil {
		return "", false, fmt.Errorf("failed to list videos: %w", err)
	}
	byID := make(map[string]youtube.Video, len(details))
	found := make(map[string]bool, len(details))
	for _, v := range details {
		byID[v.ID] = v
		found[v.ID] = true
	}

	seenBefore := false
	for _, id := range reconcile(log, jobImportVideos, page.VideoIDs, found) {
		v := byID[id]
		video := models.NewVideo(p.OwnerID, p.SubscriptionID, v.ID, v.PublishedAt, models.Thumbnails(v.Thumbnails), p.BucketIDs)

		created, err := j.videos.CreateIfAbsent(ctx, video)
		if err != nil {
			return "", false, fmt.Errorf("failed to store video %s: %w", id, err)
		}
		if !created {
			seenBefore = true
			recordsWritten.WithLabelValues("video", "existing").Inc()
			continue
		}
		recordsWritten.WithLabelValues("video", "created").Inc()

		if j.publisher != nil {
			if err := j.publisher.PublishVideoImported(ctx, video); err != nil {
				log.Warn("Failed to publish imported video", zap.String("video_id", video.ID), zap.Error(err))
			}
		}
	}

	return page.NextPageToken, seenBefore, nil
}
