package titles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db/models"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/youtube"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/youtube/youtubetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
	readErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) GetMulti(_ context.Context, keys []string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := map[string][]byte{}
	for _, k := range keys {
		if v, ok := m.entries[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *memoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	values, err := m.GetMulti(ctx, []string{key})
	v, ok := values[key]
	return v, ok, err
}

func (m *memoryStore) SetMulti(_ context.Context, entries map[string][]byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range entries {
		m.entries[k] = v
		m.ttls[k] = ttl
	}
	return nil
}

func (m *memoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return m.SetMulti(ctx, map[string][]byte{key: value}, ttl)
}

func videosFor(owner int64, ids ...string) []*models.Video {
	out := make([]*models.Video, len(ids))
	for i, id := range ids {
		out[i] = models.NewVideo(owner, "sub", id, time.Now(), nil, nil)
	}
	return out
}

func TestEnricher_EmptyInputMakesNoCalls(t *testing.T) {
	api := youtubetest.New()
	provider := &youtubetest.Provider{API: api}
	e := NewEnricher(provider, newMemoryStore(), 0)

	videos, err := e.Videos(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, videos)

	subs, err := e.Subscriptions(context.Background(), []*models.Subscription{})
	require.NoError(t, err)
	assert.Empty(t, subs)

	assert.Zero(t, api.TotalCalls())
	assert.Empty(t, provider.Calls)
}

func TestEnricher_BatchesMissesAndCaches(t *testing.T) {
	api := youtubetest.New()
	ids := make([]string, 120)
	for i := range ids {
		ids[i] = fmt.Sprintf("vid%03d", i)
		api.Snippets[ids[i]] = youtube.Snippet{ID: ids[i], Title: "T" + ids[i], Description: "D" + ids[i]}
	}
	store := newMemoryStore()
	e := NewEnricher(&youtubetest.Provider{API: api}, store, 0)

	videos, err := e.Videos(context.Background(), videosFor(1, ids...))
	require.NoError(t, err)
	require.Len(t, videos, 120)
	for i, v := range videos {
		require.NotNil(t, v.Title)
		assert.Equal(t, "T"+ids[i], *v.Title)
		assert.Equal(t, "D"+ids[i], *v.Description)
	}

	require.Equal(t, 3, api.CallCount(youtubetest.MethodVideoTitles))
	assert.Len(t, api.Calls[0].IDs, 50)
	assert.Len(t, api.Calls[1].IDs, 50)
	assert.Len(t, api.Calls[2].IDs, 20)

	assert.Len(t, store.entries, 120)
	assert.Equal(t, DefaultTTL, store.ttls[VideoPrefix+"vid000"])

	_, err = e.Videos(context.Background(), videosFor(1, ids...))
	require.NoError(t, err)
	assert.Equal(t, 3, api.TotalCalls())
}

func TestEnricher_CacheHitSkipsAPI(t *testing.T) {
	api := youtubetest.New()
	store := newMemoryStore()
	raw, _ := json.Marshal(cachedTitle{Title: "Cached", Description: "From cache"})
	store.entries[SubscriptionPrefix+"UC1"] = raw

	e := NewEnricher(&youtubetest.Provider{API: api}, store, time.Hour)

	subs := []*models.Subscription{models.NewSubscription(1, "UC1", "UU1", nil)}
	out, err := e.Subscriptions(context.Background(), subs)
	require.NoError(t, err)
	assert.Equal(t, "Cached", *out[0].Title)
	assert.Equal(t, "From cache", *out[0].Description)
	assert.Zero(t, api.TotalCalls())
}

func TestEnricher_UnknownRemoteGetsEmptyTitle(t *testing.T) {
	api := youtubetest.New()
	api.Snippets["UC1"] = youtube.Snippet{ID: "UC1", Title: "Known"}
	store := newMemoryStore()
	e := NewEnricher(&youtubetest.Provider{API: api}, store, 0)

	subs := []*models.Subscription{
		models.NewSubscription(1, "UC1", "UU1", nil),
		models.NewSubscription(1, "UCgone", "UUgone", nil),
	}
	out, err := e.Subscriptions(context.Background(), subs)
	require.NoError(t, err)

	assert.Equal(t, "Known", *out[0].Title)
	require.NotNil(t, out[1].Title)
	assert.Equal(t, "", *out[1].Title)
	assert.Equal(t, "", *out[1].Description)
	assert.NotContains(t, store.entries, SubscriptionPrefix+"UCgone")
}

func TestEnricher_ClientModePerKind(t *testing.T) {
	api := youtubetest.New()
	provider := &youtubetest.Provider{API: api}
	e := NewEnricher(provider, nil, 0)

	_, err := e.Subscriptions(context.Background(), []*models.Subscription{models.NewSubscription(5, "UC1", "UU1", nil)})
	require.NoError(t, err)
	_, err = e.Videos(context.Background(), videosFor(5, "v1"))
	require.NoError(t, err)

	require.Len(t, provider.Calls, 2)
	assert.Equal(t, youtubetest.ProviderCall{OwnerID: 5, UseCache: true}, provider.Calls[0])
	assert.Equal(t, youtubetest.ProviderCall{OwnerID: 5, UseCache: false}, provider.Calls[1])
}

func TestEnricher_GroupsByOwner(t *testing.T) {
	api := youtubetest.New()
	provider := &youtubetest.Provider{API: api}
	e := NewEnricher(provider, nil, 0)

	videos := append(videosFor(2, "a", "b"), videosFor(1, "c")...)
	_, err := e.Videos(context.Background(), videos)
	require.NoError(t, err)

	require.Len(t, provider.Calls, 2)
	assert.EqualValues(t, 1, provider.Calls[0].OwnerID)
	assert.EqualValues(t, 2, provider.Calls[1].OwnerID)
}

func TestEnricher_CacheReadFailureFallsBackToAPI(t *testing.T) {
	api := youtubetest.New()
	api.Snippets["v1"] = youtube.Snippet{ID: "v1", Title: "Live"}
	store := newMemoryStore()
	store.readErr = errors.New("connection refused")
	e := NewEnricher(&youtubetest.Provider{API: api}, store, 0)

	out, err := e.Videos(context.Background(), videosFor(1, "v1"))
	require.NoError(t, err)
	assert.Equal(t, "Live", *out[0].Title)
}

func TestEnricher_ClientErrorPropagates(t *testing.T) {
	boom := errors.New("no credential")
	e := NewEnricher(&youtubetest.Provider{Err: boom}, nil, 0)

	_, err := e.Videos(context.Background(), videosFor(1, "v1"))
	assert.ErrorIs(t, err, boom)
}
