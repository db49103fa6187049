package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db/models"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/tasks"
)

type memorySubscriptions struct {
	mu      sync.Mutex
	subs    map[string]*models.Subscription
	buckets map[string][]int64
	writes  int
}

func newMemorySubscriptions() *memorySubscriptions {
	return &memorySubscriptions{subs: map[string]*models.Subscription{}, buckets: map[string][]int64{}}
}

func (m *memorySubscriptions) Upsert(_ context.Context, sub *models.Subscription) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if existing, ok := m.subs[sub.ID]; ok {
		existing.UploadPlaylist = sub.UploadPlaylist
		existing.Thumbnails = sub.Thumbnails
		existing.LastUpdate = sub.LastUpdate
		sub.Title, sub.Description = existing.Title, existing.Description
		return false, nil
	}
	stored := *sub
	m.subs[sub.ID] = &stored
	return true, nil
}

func (m *memorySubscriptions) UpdateMetadata(_ context.Context, id, title, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return db.ErrNotFound
	}
	m.writes++
	sub.SetMetadata(title, description)
	return nil
}

func (m *memorySubscriptions) BucketIDs(_ context.Context, id string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := append([]int64(nil), m.buckets[id]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memorySubscriptions) get(ownerID int64, channelID string) *models.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[models.SubscriptionKey(ownerID, channelID)]
}

type memoryVideos struct {
	mu      sync.Mutex
	videos  map[string]*models.Video
	buckets map[string]map[int64]bool
	writes  int
	failAdd func(videoID string) error
}

func newMemoryVideos() *memoryVideos {
	return &memoryVideos{videos: map[string]*models.Video{}, buckets: map[string]map[int64]bool{}}
}

func (m *memoryVideos) CreateIfAbsent(_ context.Context, video *models.Video) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.videos[video.ID]; ok {
		return false, nil
	}
	m.writes++
	stored := *video
	m.videos[video.ID] = &stored
	m.buckets[video.ID] = map[int64]bool{}
	for _, b := range video.BucketIDs {
		m.buckets[video.ID][b] = true
	}
	return true, nil
}

func (m *memoryVideos) ListIDsBySubscription(_ context.Context, subscriptionID, afterID string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, v := range m.videos {
		if v.SubscriptionID == subscriptionID && id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *memoryVideos) AddToBucket(_ context.Context, videoID string, bucketID int64) error {
	if m.failAdd != nil {
		if err := m.failAdd(videoID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[videoID][bucketID] = true
	return nil
}

func (m *memoryVideos) RemoveFromBucket(_ context.Context, videoID string, bucketID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets[videoID], bucketID)
	return nil
}

func (m *memoryVideos) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.videos)
}

func (m *memoryVideos) get(ownerID int64, youtubeID string) *models.Video {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.videos[models.VideoKey(ownerID, youtubeID)]
}

func (m *memoryVideos) inBucket(videoID string, bucketID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buckets[videoID][bucketID]
}

type memoryCredentials struct {
	creds []*models.Credential
	calls int
}

func (m *memoryCredentials) ListAfter(_ context.Context, after int64, limit int) ([]*models.Credential, error) {
	m.calls++
	var out []*models.Credential
	for _, c := range m.creds {
		if c.OwnerID > after {
			out = append(out, c)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type recordingEnqueuer struct {
	mu      sync.Mutex
	updates []tasks.UpdateSubscriptionsPayload
	syncs   []tasks.SyncSubscriptionsPayload
	imports []tasks.ImportVideosPayload
	buckets []tasks.UpdateVideoBucketsPayload

	// failSync, when set, is consulted before recording a sync.
	failSync func(ownerID int64) error
}

func (r *recordingEnqueuer) EnqueueUpdateSubscriptions(_ context.Context, p tasks.UpdateSubscriptionsPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, p)
	return nil
}

func (r *recordingEnqueuer) EnqueueSyncSubscriptions(_ context.Context, p tasks.SyncSubscriptionsPayload) error {
	if r.failSync != nil {
		if err := r.failSync(p.OwnerID); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncs = append(r.syncs, p)
	return nil
}

func (r *recordingEnqueuer) EnqueueImportVideos(_ context.Context, p tasks.ImportVideosPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.imports = append(r.imports, p)
	return nil
}

func (r *recordingEnqueuer) EnqueueUpdateVideoBuckets(_ context.Context, p tasks.UpdateVideoBucketsPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets = append(r.buckets, p)
	return nil
}

// stubQuota fails with err once limit units are reserved; a zero limit
// fails immediately.
type stubQuota struct {
	err      error
	limit    int
	reserved int
	reset    time.Time
}

func (q *stubQuota) Reserve(_ context.Context, units int) error {
	if q.err != nil && q.reserved+units > q.limit {
		return q.err
	}
	q.reserved += units
	return nil
}

func (q *stubQuota) ResetAt(time.Time) time.Time {
	return q.reset
}

type recordingPublisher struct {
	videos []string
}

func (p *recordingPublisher) PublishVideoImported(_ context.Context, v *models.Video) error {
	p.videos = append(p.videos, v.YouTubeID)
	return nil
}

type stubTitles struct {
	titles map[string]string
	err    error
}

func (s *stubTitles) Subscriptions(_ context.Context, subs []*models.Subscription) ([]*models.Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, sub := range subs {
		sub.SetMetadata(s.titles[sub.ChannelID], "")
	}
	return subs, nil
}
