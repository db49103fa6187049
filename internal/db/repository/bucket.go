package repository

import (
	"context"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BucketRepository defines operations on owner-defined buckets.
type BucketRepository interface {
	// Create inserts a bucket. A duplicate title for the owner yields db.ErrDuplicateKey.
	Create(ctx context.Context, bucket *models.Bucket) error

	// GetByID retrieves an owner's bucket with its member subscription ids.
	GetByID(ctx context.Context, ownerID, id int64) (*models.Bucket, error)

	// ListByOwner retrieves an owner's buckets ordered by title.
	ListByOwner(ctx context.Context, ownerID int64) ([]*models.Bucket, error)

	// AddSubscription puts a subscription into a bucket. It reports whether
	// membership changed and returns db.ErrNotFound when either side does not
	// belong to the owner.
	AddSubscription(ctx context.Context, ownerID, bucketID int64, subscriptionID string) (bool, error)

	// RemoveSubscription takes a subscription out of a bucket.
	RemoveSubscription(ctx context.Context, ownerID, bucketID int64, subscriptionID string) (bool, error)
}

type bucketRepository struct {
	pool *pgxpool.Pool
}

// NewBucketRepository creates a new BucketRepository.
func NewBucketRepository(pool *pgxpool.Pool) BucketRepository {
	return &bucketRepository{pool: pool}
}

const bucketColumns = `
	b.id, b.owner_id, b.title, b.last_update, b.last_viewed, b.last_watched_video, b.created_at,
	COALESCE(ARRAY(SELECT subscription_id FROM bucket_subscriptions bs WHERE bs.bucket_id = b.id ORDER BY subscription_id), '{}')`

func (r *bucketRepository) Create(ctx context.Context, bucket *models.Bucket) error {
	query := `
		INSERT INTO buckets (owner_id, title, last_update, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		bucket.OwnerID,
		bucket.Title,
		bucket.LastUpdate,
		bucket.CreatedAt,
	).Scan(&bucket.ID)
	if err != nil {
		return db.WrapError(err, "create bucket")
	}

	return nil
}

func (r *bucketRepository) GetByID(ctx context.Context, ownerID, id int64) (*models.Bucket, error) {
	query := `SELECT ` + bucketColumns + ` FROM buckets b WHERE b.id = $1 AND b.owner_id = $2`

	bucket, err := scanBucket(r.pool.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		return nil, db.WrapError(err, "get bucket by id")
	}

	return bucket, nil
}

func (r *bucketRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*models.Bucket, error) {
	query := `SELECT ` + bucketColumns + `
		FROM buckets b
		WHERE b.owner_id = $1
		ORDER BY b.title ASC
	`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, db.WrapError(err, "list buckets by owner")
	}
	defer rows.Close()

	var buckets []*models.Bucket
	for rows.Next() {
		bucket, err := scanBucket(rows)
		if err != nil {
			return nil, db.WrapError(err, "scan bucket")
		}
		buckets = append(buckets, bucket)
	}
	if err := rows.Err(); err != nil {
		return nil, db.WrapError(err, "iterate buckets")
	}

	return buckets, nil
}

func (r *bucketRepository) AddSubscription(ctx context.Context, ownerID, bucketID int64, subscriptionID string) (bool, error) {
	return r.changeMembership(ctx, ownerID, bucketID, subscriptionID,
		`INSERT INTO bucket_subscriptions (bucket_id, subscription_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		"add subscription to bucket",
	)
}

func (r *bucketRepository) RemoveSubscription(ctx context.Context, ownerID, bucketID int64, subscriptionID string) (bool, error) {
	return r.changeMembership(ctx, ownerID, bucketID, subscriptionID,
		`DELETE FROM bucket_subscriptions WHERE bucket_id = $1 AND subscription_id = $2`,
		"remove subscription from bucket",
	)
}

func (r *bucketRepository) changeMembership(ctx context.Context, ownerID, bucketID int64, subscriptionID, statement, operation string) (bool, error) {
	changed := false

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var owned bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM buckets WHERE id = $1 AND owner_id = $3)
			   AND EXISTS (SELECT 1 FROM subscriptions WHERE id = $2 AND owner_id = $3)
		`, bucketID, subscriptionID, ownerID).Scan(&owned)
		if err != nil {
			return err
		}
		if !owned {
			return pgx.ErrNoRows
		}

		tag, err := tx.Exec(ctx, statement, bucketID, subscriptionID)
		if err != nil {
			return err
		}
		changed = tag.RowsAffected() > 0

		if changed {
			_, err = tx.Exec(ctx, `UPDATE buckets SET last_update = NOW() WHERE id = $1`, bucketID)
		}
		return err
	})
	if err != nil {
		return false, db.WrapError(err, operation)
	}

	return changed, nil
}

func scanBucket(row pgx.Row) (*models.Bucket, error) {
	bucket := &models.Bucket{}
	err := row.Scan(
		&bucket.ID,
		&bucket.OwnerID,
		&bucket.Title,
		&bucket.LastUpdate,
		&bucket.LastViewed,
		&bucket.LastWatchedVideo,
		&bucket.CreatedAt,
		&bucket.SubscriptionIDs,
	)
	if err != nil {
		return nil, err
	}
	return bucket, nil
}
