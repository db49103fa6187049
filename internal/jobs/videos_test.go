package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db/models"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/credentials"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/quota"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/youtube"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/youtube/youtubetest"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const playlist = "UUchannel"

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func importPayload() tasks.ImportVideosPayload {
	return tasks.ImportVideosPayload{
		OwnerID:        owner,
		SubscriptionID: models.SubscriptionKey(owner, "channel"),
		PlaylistID:     playlist,
		BucketIDs:      []int64{5},
	}
}

// playlistFixture registers pages keyed by token; each page lists ids newest first.
func playlistFixture(api *youtubetest.Fake, pages map[string]*youtube.PlaylistPage) {
	api.PlaylistPages[playlist] = pages
	i := 0
	for _, page := range pages {
		for _, id := range page.VideoIDs {
			api.Videos[id] = youtube.Video{
				ID:          id,
				PublishedAt: epoch.Add(time.Duration(i) * time.Hour),
				Thumbnails:  youtube.Thumbnails{"medium": "https://i.example/" + id + ".jpg"},
			}
			i++
		}
	}
}

func newImportJob(api *youtubetest.Fake) (*VideoImport, *memoryVideos) {
	videos := newMemoryVideos()
	return NewVideoImport(&youtubetest.Provider{API: api}, videos, Budget{}), videos
}

func TestVideoImport_OnlyFirstPageGuard(t *testing.T) {
	api := youtubetest.New()
	provider := &youtubetest.Provider{API: api}
	videos := newMemoryVideos()
	job := NewVideoImport(provider, videos, Budget{})

	p := importPayload()
	p.PageToken = "nonnull"
	p.OnlyFirstPage = true

	result, err := job.Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, Completed, result.Status)
	assert.Zero(t, api.TotalCalls())
	assert.Empty(t, provider.Calls)
	assert.Zero(t, videos.count())
}

func TestVideoImport_NoCredential(t *testing.T) {
	api := youtubetest.New()
	videos := newMemoryVideos()
	job := NewVideoImport(&youtubetest.Provider{API: api, Err: credentials.ErrNoCredential}, videos, Budget{})

	result, err := job.Run(context.Background(), importPayload())
	require.NoError(t, err)

	assert.Equal(t, Completed, result.Status)
	assert.Zero(t, api.TotalCalls())
	assert.Zero(t, videos.writes)
}

func TestVideoImport_Idempotent(t *testing.T) {
	api := youtubetest.New()
	playlistFixture(api, map[string]*youtube.PlaylistPage{
		"":   {VideoIDs: []string{"v1", "v2"}, NextPageToken: "p2"},
		"p2": {VideoIDs: []string{"v3"}},
	})
	job, videos := newImportJob(api)

	_, err := job.Run(context.Background(), importPayload())
	require.NoError(t, err)
	require.Equal(t, 3, videos.count())

	stored := videos.get(owner, "v1")
	stored.SetMetadata("edited", "by hand")
	stored.Viewed = true

	result, err := job.Run(context.Background(), importPayload())
	require.NoError(t, err)

	assert.Equal(t, Completed, result.Status)
	assert.Equal(t, 3, videos.count())
	assert.Equal(t, 3, videos.writes)
	after := videos.get(owner, "v1")
	assert.Equal(t, "edited", *after.Title)
	assert.True(t, after.Viewed)
}

func TestVideoImport_UsesUncachedClient(t *testing.T) {
	api := youtubetest.New()
	playlistFixture(api, map[string]*youtube.PlaylistPage{
		"": {VideoIDs: []string{"v1"}},
	})
	provider := &youtubetest.Provider{API: api}
	job := NewVideoImport(provider, newMemoryVideos(), Budget{})

	_, err := job.Run(context.Background(), importPayload())
	require.NoError(t, err)

	assert.Equal(t, []youtubetest.ProviderCall{{OwnerID: owner, UseCache: false}}, provider.Calls)
}

func TestVideoImport_StoresFields(t *testing.T) {
	api := youtubetest.New()
	playlistFixture(api, map[string]*youtube.PlaylistPage{
		"": {VideoIDs: []string{"v1"}},
	})
	job, videos := newImportJob(api)

	_, err := job.Run(context.Background(), importPayload())
	require.NoError(t, err)

	v := videos.get(owner, "v1")
	require.NotNil(t, v)
	assert.Equal(t, importPayload().SubscriptionID, v.SubscriptionID)
	assert.True(t, v.PublishedAt.Equal(epoch))
	assert.Equal(t, models.OrderingKey(epoch, "v1"), v.OrderingKey)
	assert.Equal(t, "https://i.example/v1.jpg", v.Thumbnail("medium"))
	assert.True(t, videos.inBucket(v.ID, 5))
}

func TestVideoImport_StopsAtSeenVideo(t *testing.T) {
	api := youtubetest.New()
	playlistFixture(api, map[string]*youtube.PlaylistPage{
		"":   {VideoIDs: []string{"new", "old"}, NextPageToken: "p2"},
		"p2": {VideoIDs: []string{"older"}},
	})
	job, videos := newImportJob(api)
	_, err := videos.CreateIfAbsent(context.Background(), models.NewVideo(owner, "s", "old", epoch, nil, nil))
	require.NoError(t, err)

	result, err := job.Run(context.Background(), importPayload())
	require.NoError(t, err)

	assert.Equal(t, Completed, result.Status)
	assert.Equal(t, 1, api.CallCount(youtubetest.MethodPlaylistItems))
	assert.NotNil(t, videos.get(owner, "new"))
	assert.Nil(t, videos.get(owner, "older"))
}

func TestVideoImport_OnlyFirstPage(t *testing.T) {
	api := youtubetest.New()
	playlistFixture(api, map[string]*youtube.PlaylistPage{
		"":   {VideoIDs: []string{"v1"}, NextPageToken: "p2"},
		"p2": {VideoIDs: []string{"v2"}},
	})
	job, videos := newImportJob(api)

	p := importPayload()
	p.OnlyFirstPage = true
	result, err := job.Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, Completed, result.Status)
	assert.Equal(t, 1, api.CallCount(youtubetest.MethodPlaylistItems))
	assert.Equal(t, 1, videos.count())
}

func TestVideoImport_ResumesAtUncommittedPage(t *testing.T) {
	api := youtubetest.New()
	playlistFixture(api, map[string]*youtube.PlaylistPage{
		"":   {VideoIDs: []string{"v1"}, NextPageToken: "p2"},
		"p2": {VideoIDs: []string{"v2"}, NextPageToken: "p3"},
		"p3": {VideoIDs: []string{"v3"}},
	})
	api.Fail = func(method string, callIndex int) error {
		if method == youtubetest.MethodPlaylistItems && callIndex == 4 {
			return context.DeadlineExceeded
		}
		return nil
	}
	job, videos := newImportJob(api)

	result, err := job.Run(context.Background(), importPayload())
	require.NoError(t, err)

	want := importPayload()
	want.PageToken = "p3"
	assert.Equal(t, Interrupted, result.Status)
	assert.Equal(t, want, result.Resume)
	assert.Equal(t, 2, videos.count())
}

func TestVideoImport_DeadlineOnDetailsKeepsPageToken(t *testing.T) {
	api := youtubetest.New()
	playlistFixture(api, map[string]*youtube.PlaylistPage{
		"p2": {VideoIDs: []string{"v2"}},
	})
	api.Fail = func(method string, _ int) error {
		if method == youtubetest.MethodVideos {
			return context.DeadlineExceeded
		}
		return nil
	}
	job, _ := newImportJob(api)

	p := importPayload()
	p.PageToken = "p2"
	result, err := job.Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, Interrupted, result.Status)
	assert.Equal(t, p, result.Resume)
}

func TestVideoImport_QuotaExhaustedKeepsPageToken(t *testing.T) {
	api := youtubetest.New()
	playlistFixture(api, map[string]*youtube.PlaylistPage{
		"":   {VideoIDs: []string{"v1"}, NextPageToken: "p2"},
		"p2": {VideoIDs: []string{"v2"}, NextPageToken: "p3"},
		"p3": {VideoIDs: []string{"v3"}},
	})
	job, videos := newImportJob(api)
	reset := epoch.Add(12 * time.Hour)
	job.WithQuota(&stubQuota{err: quota.ErrQuotaExhausted, limit: pageCost, reset: reset})

	result, err := job.Run(context.Background(), importPayload())
	require.NoError(t, err)

	want := importPayload()
	want.PageToken = "p2"
	assert.Equal(t, Interrupted, result.Status)
	assert.Equal(t, want, result.Resume)
	assert.Equal(t, reset, result.NotBefore)
	assert.Equal(t, 1, videos.count())
	assert.Equal(t, 1, api.CallCount(youtubetest.MethodPlaylistItems))
}

func TestVideoImport_SkipsVideosWithoutDetails(t *testing.T) {
	api := youtubetest.New()
	playlistFixture(api, map[string]*youtube.PlaylistPage{
		"": {VideoIDs: []string{"v1", "v2"}},
	})
	delete(api.Videos, "v1")
	job, videos := newImportJob(api)

	_, err := job.Run(context.Background(), importPayload())
	require.NoError(t, err)

	assert.Nil(t, videos.get(owner, "v1"))
	assert.NotNil(t, videos.get(owner, "v2"))
}

func TestVideoImport_DuplicateIdsInPage(t *testing.T) {
	api := youtubetest.New()
	playlistFixture(api, map[string]*youtube.PlaylistPage{
		"":   {VideoIDs: []string{"v1", "v1"}, NextPageToken: "p2"},
		"p2": {VideoIDs: []string{"v2"}},
	})
	job, videos := newImportJob(api)

	_, err := job.Run(context.Background(), importPayload())
	require.NoError(t, err)

	assert.Equal(t, 2, videos.count())
}

func TestVideoImport_PublishesNewVideos(t *testing.T) {
	api := youtubetest.New()
	playlistFixture(api, map[string]*youtube.PlaylistPage{
		"": {VideoIDs: []string{"v1", "v2"}},
	})
	job, videos := newImportJob(api)
	_, err := videos.CreateIfAbsent(context.Background(), models.NewVideo(owner, "s", "v2", epoch, nil, nil))
	require.NoError(t, err)
	publisher := &recordingPublisher{}
	q := &stubQuota{}
	job.WithPublisher(publisher).WithQuota(q)

	_, err = job.Run(context.Background(), importPayload())
	require.NoError(t, err)

	assert.Equal(t, []string{"v1"}, publisher.videos)
	assert.Equal(t, pageCost, q.reserved)
}
