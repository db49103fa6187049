// Package tasks defines the background task types and their JSON payloads.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task types
const (
	TypeUpdateSubscriptions = "subscriptions:update"
	TypeSyncSubscriptions   = "subscriptions:sync"
	TypeImportVideos        = "videos:import"
	TypeUpdateVideoBuckets  = "videos:buckets"
)

// TaskEnqueuer is implemented by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// UpdateSubscriptionsPayload drives the fleet-wide sweep. LastKey is the
// last owner id already handled; nil starts from the beginning.
type UpdateSubscriptionsPayload struct {
	LastKey *int64 `json:"last_key,omitempty"`
}

// SyncSubscriptionsPayload syncs one owner's subscription list.
type SyncSubscriptionsPayload struct {
	OwnerID   int64  `json:"owner_id"`
	PageToken string `json:"page_token,omitempty"`
}

// ImportVideosPayload imports uploads of one subscription.
type ImportVideosPayload struct {
	OwnerID        int64   `json:"owner_id"`
	SubscriptionID string  `json:"subscription_id"`
	PlaylistID     string  `json:"playlist_id"`
	BucketIDs      []int64 `json:"bucket_ids,omitempty"`
	PageToken      string  `json:"page_token,omitempty"`
	OnlyFirstPage  bool    `json:"only_first_page"`
}

// UpdateVideoBucketsPayload adds or removes a bucket on every video of a subscription.
type UpdateVideoBucketsPayload struct {
	SubscriptionID string `json:"subscription_id"`
	BucketID       int64  `json:"bucket_id"`
	Add            bool   `json:"add"`
	LastKey        string `json:"last_key,omitempty"`
}

// NewUpdateSubscriptionsTask creates a subscriptions:update task.
func NewUpdateSubscriptionsTask(p UpdateSubscriptionsPayload) (*asynq.Task, error) {
	return newTask(TypeUpdateSubscriptions, p)
}

// NewSyncSubscriptionsTask creates a subscriptions:sync task.
func NewSyncSubscriptionsTask(p SyncSubscriptionsPayload) (*asynq.Task, error) {
	if p.OwnerID <= 0 {
		return nil, fmt.Errorf("owner ID is required")
	}
	return newTask(TypeSyncSubscriptions, p)
}

// NewImportVideosTask creates a videos:import task.
func NewImportVideosTask(p ImportVideosPayload) (*asynq.Task, error) {
	if p.OwnerID <= 0 {
		return nil, fmt.Errorf("owner ID is required")
	}
	if p.SubscriptionID == "" || p.PlaylistID == "" {
		return nil, fmt.Errorf("subscription ID and playlist ID are required")
	}
	return newTask(TypeImportVideos, p)
}

// NewUpdateVideoBucketsTask creates a videos:buckets task.
func NewUpdateVideoBucketsTask(p UpdateVideoBucketsPayload) (*asynq.Task, error) {
	if p.SubscriptionID == "" || p.BucketID <= 0 {
		return nil, fmt.Errorf("subscription ID and bucket ID are required")
	}
	return newTask(TypeUpdateVideoBuckets, p)
}

func newTask(typename string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", typename, err)
	}
	return asynq.NewTask(typename, data), nil
}

// Unmarshal decodes a task payload into v.
func Unmarshal(task *asynq.Task, v any) error {
	if err := json.Unmarshal(task.Payload(), v); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %w", task.Type(), err)
	}
	return nil
}
