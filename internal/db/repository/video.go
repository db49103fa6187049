package repository

import (
	"context"
	"errors"
	"slices"
	"strconv"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CursorKind selects how a page of videos is anchored on an ordering key.
type CursorKind int

const (
	// CursorNone starts at the earliest video.
	CursorNone CursorKind = iota
	// CursorAfter returns videos strictly after the key.
	CursorAfter
	// CursorBefore returns videos strictly before the key.
	CursorBefore
	// CursorStart returns videos from the key onwards, inclusive.
	CursorStart
	// CursorEnd returns videos up to the key, inclusive.
	CursorEnd
)

// Cursor anchors a page of videos on an ordering key.
type Cursor struct {
	Kind CursorKind
	Key  string
}

// VideoRepository defines operations on imported videos.
type VideoRepository interface {
	// CreateIfAbsent inserts the video with its bucket memberships unless a
	// video with the same id exists. Existing rows are left untouched.
	CreateIfAbsent(ctx context.Context, video *models.Video) (bool, error)

	// GetByID retrieves a video by its composite key, with bucket ids.
	GetByID(ctx context.Context, id string) (*models.Video, error)

	// ListIDsBySubscription returns up to limit video ids of a subscription
	// greater than afterID, ascending.
	ListIDsBySubscription(ctx context.Context, subscriptionID, afterID string, limit int) ([]string, error)

	// AddToBucket adds a bucket membership. Adding twice is a no-op.
	AddToBucket(ctx context.Context, videoID string, bucketID int64) error

	// RemoveFromBucket removes a bucket membership. Removing twice is a no-op.
	RemoveFromBucket(ctx context.Context, videoID string, bucketID int64) error

	// ListByBucket returns a page of an owner's videos in a bucket ordered by
	// ordering key ascending.
	ListByBucket(ctx context.Context, ownerID, bucketID int64, cursor Cursor, limit int) ([]*models.Video, error)

	// MarkViewed flags the video as viewed and records it as the bucket's last
	// watched video in one transaction.
	MarkViewed(ctx context.Context, ownerID, bucketID int64, videoID string) error
}

type videoRepository struct {
	pool *pgxpool.Pool
}

// NewVideoRepository creates a new VideoRepository.
func NewVideoRepository(pool *pgxpool.Pool) VideoRepository {
	return &videoRepository{pool: pool}
}

const videoColumns = `
	v.id, v.owner_id, v.subscription_id, v.youtube_id, v.published_at, v.title,
	v.description, v.thumbnails, v.viewed, v.ordering_key, v.created_at`

func (r *videoRepository) CreateIfAbsent(ctx context.Context, video *models.Video) (bool, error) {
	created := false

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			INSERT INTO videos (
				id, owner_id, subscription_id, youtube_id, published_at,
				thumbnails, ordering_key, created_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING
			RETURNING created_at
		`

		err := tx.QueryRow(ctx, query,
			video.ID,
			video.OwnerID,
			video.SubscriptionID,
			video.YouTubeID,
			video.PublishedAt,
			video.Thumbnails,
			video.OrderingKey,
			video.CreatedAt,
		).Scan(&video.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		created = true

		for _, bucketID := range video.BucketIDs {
			_, err := tx.Exec(ctx,
				`INSERT INTO video_buckets (video_id, bucket_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				video.ID, bucketID,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, db.WrapError(err, "create video")
	}

	return created, nil
}

func (r *videoRepository) GetByID(ctx context.Context, id string) (*models.Video, error) {
	query := `SELECT ` + videoColumns + `,
		       COALESCE(ARRAY(SELECT bucket_id FROM video_buckets vb WHERE vb.video_id = v.id ORDER BY bucket_id), '{}')
		FROM videos v
		WHERE v.id = $1
	`

	video := &models.Video{}
	err := r.pool.QueryRow(ctx, query, id).Scan(append(videoScanTargets(video), &video.BucketIDs)...)
	if err != nil {
		return nil, db.WrapError(err, "get video by id")
	}

	return video, nil
}

func (r *videoRepository) ListIDsBySubscription(ctx context.Context, subscriptionID, afterID string, limit int) ([]string, error) {
	query := `
		SELECT id
		FROM videos
		WHERE subscription_id = $1 AND id > $2
		ORDER BY id ASC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, subscriptionID, afterID, limit)
	if err != nil {
		return nil, db.WrapError(err, "list video ids by subscription")
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, db.WrapError(err, "scan video ids")
	}

	return ids, nil
}

func (r *videoRepository) AddToBucket(ctx context.Context, videoID string, bucketID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO video_buckets (video_id, bucket_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		videoID, bucketID,
	)
	if err != nil {
		return db.WrapError(err, "add video to bucket")
	}
	return nil
}

func (r *videoRepository) RemoveFromBucket(ctx context.Context, videoID string, bucketID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM video_buckets WHERE video_id = $1 AND bucket_id = $2`,
		videoID, bucketID,
	)
	if err != nil {
		return db.WrapError(err, "remove video from bucket")
	}
	return nil
}

func (r *videoRepository) ListByBucket(ctx context.Context, ownerID, bucketID int64, cursor Cursor, limit int) ([]*models.Video, error) {
	args := []any{ownerID, bucketID}
	filter, order := "", "ASC"
	switch cursor.Kind {
	case CursorAfter:
		filter = "AND v.ordering_key > $3"
	case CursorBefore:
		filter, order = "AND v.ordering_key < $3", "DESC"
	case CursorStart:
		filter = "AND v.ordering_key >= $3"
	case CursorEnd:
		filter, order = "AND v.ordering_key <= $3", "DESC"
	}
	if filter != "" {
		args = append(args, cursor.Key)
	}
	args = append(args, limit)

	query := `SELECT ` + videoColumns + `
		FROM videos v
		JOIN video_buckets vb ON vb.video_id = v.id
		WHERE v.owner_id = $1 AND vb.bucket_id = $2 ` + filter + `
		ORDER BY v.ordering_key ` + order + `
		LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, db.WrapError(err, "list videos by bucket")
	}
	defer rows.Close()

	var videos []*models.Video
	for rows.Next() {
		video := &models.Video{BucketIDs: []int64{bucketID}}
		if err := rows.Scan(videoScanTargets(video)...); err != nil {
			return nil, db.WrapError(err, "scan video")
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, db.WrapError(err, "iterate videos")
	}

	// Backward pages are fetched newest first; callers always get ascending order.
	if order == "DESC" {
		slices.Reverse(videos)
	}

	return videos, nil
}

func (r *videoRepository) MarkViewed(ctx context.Context, ownerID, bucketID int64, videoID string) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var orderingKey string
		err := tx.QueryRow(ctx, `
			UPDATE videos v
			SET viewed = TRUE
			FROM video_buckets vb
			WHERE v.id = $1 AND v.owner_id = $2
			  AND vb.video_id = v.id AND vb.bucket_id = $3
			RETURNING v.ordering_key
		`, videoID, ownerID, bucketID).Scan(&orderingKey)
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE buckets
			SET last_watched_video = $1, last_viewed = NOW()
			WHERE id = $2 AND owner_id = $3
		`, orderingKey, bucketID, ownerID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	if err != nil {
		return db.WrapError(err, "mark video viewed")
	}

	return nil
}

func videoScanTargets(v *models.Video) []any {
	return []any{
		&v.ID,
		&v.OwnerID,
		&v.SubscriptionID,
		&v.YouTubeID,
		&v.PublishedAt,
		&v.Title,
		&v.Description,
		&v.Thumbnails,
		&v.Viewed,
		&v.OrderingKey,
		&v.CreatedAt,
	}
}
