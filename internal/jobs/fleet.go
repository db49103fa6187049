package jobs

import (
	"context"
	"fmt"

	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/logger"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/tasks"

	"go.uber.org/zap"
)

const fleetBatchSize = 100

// FleetUpdate enqueues a subscription sync for every active, connected owner.
// It walks owners by ascending id so a resumed sweep never repeats an owner.
type FleetUpdate struct {
	credentials CredentialLister
	queue       Enqueuer
	budget      Budget
	batchSize   int
}

// NewFleetUpdate creates the job.
func NewFleetUpdate(credentials CredentialLister, queue Enqueuer, budget Budget) *FleetUpdate {
	return &FleetUpdate{
		credentials: credentials,
		queue:       queue,
		budget:      budget,
		batchSize:   fleetBatchSize,
	}
}

// Run continues the sweep after p.LastKey.
func (j *FleetUpdate) Run(ctx context.Context, p tasks.UpdateSubscriptionsPayload) (Result[tasks.UpdateSubscriptionsPayload], error) {
	lastKey := p.LastKey
	var after int64
	if lastKey != nil {
		after = *lastKey
	}

	log := logger.Log.With(zap.String("job", jobUpdateSubscriptions))
	checkpoint := func() Result[tasks.UpdateSubscriptionsPayload] {
		fields := []zap.Field{}
		if lastKey != nil {
			fields = append(fields, zap.Int64("last_key", *lastKey))
		}
		log.Info("Checkpointing fleet sweep", fields...)
		observeRun(jobUpdateSubscriptions, Interrupted)
		return interrupted(tasks.UpdateSubscriptionsPayload{LastKey: lastKey})
	}

	enqueued := 0
	for {
		if j.budget.Exhausted(ctx) {
			return checkpoint(), nil
		}

		creds, err := j.credentials.ListAfter(ctx, after, j.batchSize)
		if isDeadline(err) {
			return checkpoint(), nil
		}
		if err != nil {
			observeFailure(jobUpdateSubscriptions)
			return Result[tasks.UpdateSubscriptionsPayload]{}, fmt.Errorf("failed to list credentials: %w", err)
		}

		for _, cred := range creds {
			if j.budget.Exhausted(ctx) {
				return checkpoint(), nil
			}

			if cred.Active {
				err := j.queue.EnqueueSyncSubscriptions(ctx, tasks.SyncSubscriptionsPayload{OwnerID: cred.OwnerID})
				if isDeadline(err) {
					return checkpoint(), nil
				}
				if err != nil {
					observeFailure(jobUpdateSubscriptions)
					return Result[tasks.UpdateSubscriptionsPayload]{}, fmt.Errorf("failed to enqueue sync for owner %d: %w", cred.OwnerID, err)
				}
				enqueued++
			}

			owner := cred.OwnerID
			lastKey = &owner
			after = owner
		}

		pagesProcessed.WithLabelValues(jobUpdateSubscriptions).Inc()
		if len(creds) < j.batchSize {
			break
		}
	}

	log.Info("Fleet sweep finished", zap.Int("enqueued", enqueued))
	observeRun(jobUpdateSubscriptions, Completed)
	return completed[tasks.UpdateSubscriptionsPayload](), nil
}
