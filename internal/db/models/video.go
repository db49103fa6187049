package models

import (
	"strconv"
	"time"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db"
)

// orderingLayout is fixed-width so that ordering keys sort chronologically.
// Microsecond precision matches what Postgres stores for timestamptz.
const orderingLayout = "2006-01-02T15:04:05.000000Z"

// Video is an uploaded video discovered through a subscription's playlist.
type Video struct {
	ID             string     `db:"id" json:"id"`
	OwnerID        int64      `db:"owner_id" json:"owner_id"`
	SubscriptionID string     `db:"subscription_id" json:"subscription_id"`
	YouTubeID      string     `db:"youtube_id" json:"youtube_id"`
	PublishedAt    time.Time  `db:"published_at" json:"published_at"`
	Title          *string    `db:"title" json:"title,omitempty"`
	Description    *string    `db:"description" json:"description,omitempty"`
	Thumbnails     Thumbnails `db:"thumbnails" json:"thumbnails"`
	Viewed         bool       `db:"viewed" json:"viewed"`
	OrderingKey    string     `db:"ordering_key" json:"ordering_key"`
	BucketIDs      []int64    `db:"-" json:"bucket_ids"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// VideoKey returns the storage identity of an owner's copy of a video.
func VideoKey(ownerID int64, youtubeID string) string {
	return db.CompositeKey(strconv.FormatInt(ownerID, 10), youtubeID)
}

// OrderingKey builds the sortable key used for chronological pagination.
// Keys order by publish time first and video id second.
func OrderingKey(publishedAt time.Time, youtubeID string) string {
	return db.CompositeKey(publishedAt.UTC().Truncate(time.Microsecond).Format(orderingLayout), youtubeID)
}

// NewVideo builds a video freshly observed on the remote service.
func NewVideo(ownerID int64, subscriptionID, youtubeID string, publishedAt time.Time, thumbnails Thumbnails, bucketIDs []int64) *Video {
	if thumbnails == nil {
		thumbnails = Thumbnails{}
	}
	published := publishedAt.UTC().Truncate(time.Microsecond)
	return &Video{
		ID:             VideoKey(ownerID, youtubeID),
		OwnerID:        ownerID,
		SubscriptionID: subscriptionID,
		YouTubeID:      youtubeID,
		PublishedAt:    published,
		Thumbnails:     thumbnails,
		OrderingKey:    OrderingKey(published, youtubeID),
		BucketIDs:      bucketIDs,
		CreatedAt:      time.Now().UTC(),
	}
}

func (v *Video) Owner() int64 { return v.OwnerID }

func (v *Video) RemoteID() string { return v.YouTubeID }

// SetMetadata stores the human-readable video metadata.
func (v *Video) SetMetadata(title, description string) {
	v.Title = &title
	v.Description = &description
}

// HasMetadata reports whether a non-empty title has been loaded.
func (v *Video) HasMetadata() bool {
	return v.Title != nil && *v.Title != ""
}

func (v *Video) Thumbnail(size string) string {
	return v.Thumbnails.Get(size)
}
