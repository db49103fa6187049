package repository

import (
	"context"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubscriptionRepository defines operations on owners' channel subscriptions.
type SubscriptionRepository interface {
	// Upsert inserts the subscription or refreshes the stored copy.
	// It reports whether a new row was created.
	Upsert(ctx context.Context, sub *models.Subscription) (bool, error)

	// GetByID retrieves a subscription by its composite key.
	GetByID(ctx context.Context, id string) (*models.Subscription, error)

	// ListByOwner retrieves every subscription of an owner ordered by channel id.
	ListByOwner(ctx context.Context, ownerID int64) ([]*models.Subscription, error)

	// UpdateMetadata persists the channel title and description.
	UpdateMetadata(ctx context.Context, id, title, description string) error

	// BucketIDs returns the ids of buckets containing the subscription, ascending.
	BucketIDs(ctx context.Context, subscriptionID string) ([]int64, error)
}

type subscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepository creates a new SubscriptionRepository.
func NewSubscriptionRepository(pool *pgxpool.Pool) SubscriptionRepository {
	return &subscriptionRepository{pool: pool}
}

const subscriptionColumns = `
	id, owner_id, channel_id, upload_playlist, title, description, thumbnails,
	last_update, last_viewed, last_watched_video, created_at, updated_at`

func (r *subscriptionRepository) Upsert(ctx context.Context, sub *models.Subscription) (bool, error) {
	// xmax is zero only for rows inserted by this statement.
	query := `
		INSERT INTO subscriptions (
			id, owner_id, channel_id, upload_playlist, thumbnails, last_update
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET upload_playlist = EXCLUDED.upload_playlist,
		    thumbnails = EXCLUDED.thumbnails,
		    last_update = EXCLUDED.last_update,
		    updated_at = NOW()
		RETURNING (xmax = 0), title, description, created_at, updated_at
	`

	var created bool
	err := r.pool.QueryRow(ctx, query,
		sub.ID,
		sub.OwnerID,
		sub.ChannelID,
		sub.UploadPlaylist,
		sub.Thumbnails,
		sub.LastUpdate,
	).Scan(
		&created,
		&sub.Title,
		&sub.Description,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return false, db.WrapError(err, "upsert subscription")
	}

	return created, nil
}

func (r *subscriptionRepository) GetByID(ctx context.Context, id string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`

	sub, err := scanSubscription(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, db.WrapError(err, "get subscription by id")
	}

	return sub, nil
}

func (r *subscriptionRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE owner_id = $1
		ORDER BY channel_id ASC
	`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, db.WrapError(err, "list subscriptions by owner")
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

func (r *subscriptionRepository) UpdateMetadata(ctx context.Context, id, title, description string) error {
	query := `
		UPDATE subscriptions
		SET title = $1, description = $2, updated_at = NOW()
		WHERE id = $3
	`

	tag, err := r.pool.Exec(ctx, query, title, description, id)
	if err != nil {
		return db.WrapError(err, "update subscription metadata")
	}
	if tag.RowsAffected() == 0 {
		return db.WrapError(pgx.ErrNoRows, "update subscription metadata")
	}

	return nil
}

func (r *subscriptionRepository) BucketIDs(ctx context.Context, subscriptionID string) ([]int64, error) {
	query := `
		SELECT bucket_id
		FROM bucket_subscriptions
		WHERE subscription_id = $1
		ORDER BY bucket_id ASC
	`

	rows, err := r.pool.Query(ctx, query, subscriptionID)
	if err != nil {
		return nil, db.WrapError(err, "list subscription buckets")
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, db.WrapError(err, "scan subscription buckets")
	}

	return ids, nil
}

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	sub := &models.Subscription{}
	err := row.Scan(
		&sub.ID,
		&sub.OwnerID,
		&sub.ChannelID,
		&sub.UploadPlaylist,
		&sub.Title,
		&sub.Description,
		&sub.Thumbnails,
		&sub.LastUpdate,
		&sub.LastViewed,
		&sub.LastWatchedVideo,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func scanSubscriptions(rows pgx.Rows) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, db.WrapError(err, "scan subscription")
		}
		subs = append(subs, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, db.WrapError(err, "iterate subscriptions")
	}

	return subs, nil
}
