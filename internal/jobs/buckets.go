package jobs

import (
	"context"
	"fmt"

	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/logger"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/tasks"

	"go.uber.org/zap"
)

const bucketBatchSize = 100

// BucketPropagation applies a subscription's bucket membership change to
// every video already imported for it.
type BucketPropagation struct {
	videos    VideoBucketStore
	budget    Budget
	batchSize int
}

// NewBucketPropagation creates the job.
func NewBucketPropagation(videos VideoBucketStore, budget Budget) *BucketPropagation {
	return &BucketPropagation{videos: videos, budget: budget, batchSize: bucketBatchSize}
}

// Run processes videos with ids after p.LastKey.
func (j *BucketPropagation) Run(ctx context.Context, p tasks.UpdateVideoBucketsPayload) (Result[tasks.UpdateVideoBucketsPayload], error) {
	log := logger.Log.With(
		zap.String("job", jobUpdateVideoBuckets),
		zap.String("subscription_id", p.SubscriptionID),
		zap.Int64("bucket_id", p.BucketID),
		zap.Bool("add", p.Add),
	)

	apply := j.videos.RemoveFromBucket
	if p.Add {
		apply = j.videos.AddToBucket
	}

	resume := p
	updated := 0
	for {
		if j.budget.Exhausted(ctx) {
			log.Info("Execution budget spent, checkpointing", zap.String("last_key", resume.LastKey))
			observeRun(jobUpdateVideoBuckets, Interrupted)
			return interrupted(resume), nil
		}

		ids, err := j.videos.ListIDsBySubscription(ctx, p.SubscriptionID, resume.LastKey, j.batchSize)
		if isDeadline(err) {
			observeRun(jobUpdateVideoBuckets, Interrupted)
			return interrupted(resume), nil
		}
		if err != nil {
			observeFailure(jobUpdateVideoBuckets)
			return Result[tasks.UpdateVideoBucketsPayload]{}, fmt.Errorf("failed to list videos: %w", err)
		}

		for _, id := range ids {
			if err := apply(ctx, id, p.BucketID); err != nil {
				if isDeadline(err) {
					observeRun(jobUpdateVideoBuckets, Interrupted)
					return interrupted(resume), nil
				}
				observeFailure(jobUpdateVideoBuckets)
				return Result[tasks.UpdateVideoBucketsPayload]{}, fmt.Errorf("failed to update video %s: %w", id, err)
			}
			resume.LastKey = id
			updated++
		}
		recordsWritten.WithLabelValues("video_bucket", membershipResult(p.Add)).Add(float64(len(ids)))

		pagesProcessed.WithLabelValues(jobUpdateVideoBuckets).Inc()
		if len(ids) < j.batchSize {
			break
		}
	}

	log.Info("Bucket membership propagated", zap.Int("videos", updated))
	observeRun(jobUpdateVideoBuckets, Completed)
	return completed[tasks.UpdateVideoBucketsPayload](), nil
}

func membershipResult(add bool) string {
	if add {
		return "added"
	}
	return "removed"
}
