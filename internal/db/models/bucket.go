package models

import "time"

// MaxBucketTitleLength bounds bucket titles, matching the column width.
const MaxBucketTitleLength = 100

// Bucket is an owner-defined group of subscriptions whose videos are browsed together.
type Bucket struct {
	ID               int64      `db:"id" json:"id"`
	OwnerID          int64      `db:"owner_id" json:"owner_id"`
	Title            string     `db:"title" json:"title"`
	SubscriptionIDs  []string   `db:"-" json:"subscription_ids"`
	LastUpdate       time.Time  `db:"last_update" json:"last_update"`
	LastViewed       *time.Time `db:"last_viewed" json:"last_viewed,omitempty"`
	LastWatchedVideo string     `db:"last_watched_video" json:"last_watched_video"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

func NewBucket(ownerID int64, title string) *Bucket {
	now := time.Now().UTC()
	return &Bucket{
		OwnerID:    ownerID,
		Title:      title,
		LastUpdate: now,
		CreatedAt:  now,
	}
}
