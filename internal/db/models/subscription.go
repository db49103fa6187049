package models

import (
	"strconv"
	"time"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db"
)

// Subscription is one owner's subscription to a remote channel.
// Title and Description stay nil until the channel metadata has been loaded.
type Subscription struct {
	ID               string     `db:"id" json:"id"`
	OwnerID          int64      `db:"owner_id" json:"owner_id"`
	ChannelID        string     `db:"channel_id" json:"channel_id"`
	UploadPlaylist   string     `db:"upload_playlist" json:"upload_playlist"`
	Title            *string    `db:"title" json:"title,omitempty"`
	Description      *string    `db:"description" json:"description,omitempty"`
	Thumbnails       Thumbnails `db:"thumbnails" json:"thumbnails"`
	LastUpdate       time.Time  `db:"last_update" json:"last_update"`
	LastViewed       *time.Time `db:"last_viewed" json:"last_viewed,omitempty"`
	LastWatchedVideo string     `db:"last_watched_video" json:"last_watched_video"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// SubscriptionKey returns the storage identity of an owner's channel subscription.
func SubscriptionKey(ownerID int64, channelID string) string {
	return db.CompositeKey(strconv.FormatInt(ownerID, 10), channelID)
}

// NewSubscription builds a subscription freshly observed on the remote service.
func NewSubscription(ownerID int64, channelID, uploadPlaylist string, thumbnails Thumbnails) *Subscription {
	now := time.Now().UTC()
	if thumbnails == nil {
		thumbnails = Thumbnails{}
	}
	return &Subscription{
		ID:             SubscriptionKey(ownerID, channelID),
		OwnerID:        ownerID,
		ChannelID:      channelID,
		UploadPlaylist: uploadPlaylist,
		Thumbnails:     thumbnails,
		LastUpdate:     now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *Subscription) Owner() int64 { return s.OwnerID }

func (s *Subscription) RemoteID() string { return s.ChannelID }

// SetMetadata stores the human-readable channel metadata.
func (s *Subscription) SetMetadata(title, description string) {
	s.Title = &title
	s.Description = &description
}

// HasMetadata reports whether a non-empty title has been loaded.
func (s *Subscription) HasMetadata() bool {
	return s.Title != nil && *s.Title != ""
}

// Thumbnail returns the thumbnail URL for size with fallback.
func (s *Subscription) Thumbnail(size string) string {
	return s.Thumbnails.Get(size)
}
