package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/credentials"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/quota"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/youtube"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/youtube/youtubetest"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = int64(42)

func subscriptionPage(next string, channelIDs ...string) *youtube.SubscriptionPage {
	page := &youtube.SubscriptionPage{NextPageToken: next}
	for _, id := range channelIDs {
		page.Items = append(page.Items, youtube.SubscriptionItem{
			ChannelID:  id,
			Thumbnails: youtube.Thumbnails{"default": "https://i.example/" + id + ".jpg"},
		})
	}
	return page
}

func addChannels(api *youtubetest.Fake, ids ...string) {
	for _, id := range ids {
		api.Channels[id] = youtube.Channel{ID: id, UploadsPlaylistID: "UU" + id}
	}
}

func newSyncJob(api *youtubetest.Fake) (*SubscriptionSync, *memorySubscriptions, *recordingEnqueuer) {
	subs := newMemorySubscriptions()
	queue := &recordingEnqueuer{}
	job := NewSubscriptionSync(&youtubetest.Provider{API: api}, subs, queue, Budget{})
	return job, subs, queue
}

func TestSubscriptionSync_NoCredential(t *testing.T) {
	api := youtubetest.New()
	subs := newMemorySubscriptions()
	queue := &recordingEnqueuer{}
	provider := &youtubetest.Provider{API: api, Err: credentials.ErrNoCredential}
	job := NewSubscriptionSync(provider, subs, queue, Budget{})

	result, err := job.Run(context.Background(), tasks.SyncSubscriptionsPayload{OwnerID: owner})
	require.NoError(t, err)

	assert.Equal(t, Completed, result.Status)
	assert.Zero(t, api.TotalCalls())
	assert.Zero(t, subs.writes)
	assert.Empty(t, queue.imports)
}

func TestSubscriptionSync_InvalidCredential(t *testing.T) {
	provider := &youtubetest.Provider{Err: credentials.ErrInvalidCredential}
	job := NewSubscriptionSync(provider, newMemorySubscriptions(), &recordingEnqueuer{}, Budget{})

	_, err := job.Run(context.Background(), tasks.SyncSubscriptionsPayload{OwnerID: owner})
	assert.ErrorIs(t, err, credentials.ErrInvalidCredential)
}

func TestSubscriptionSync_UsesUncachedClient(t *testing.T) {
	api := youtubetest.New()
	provider := &youtubetest.Provider{API: api}
	job := NewSubscriptionSync(provider, newMemorySubscriptions(), &recordingEnqueuer{}, Budget{})

	_, err := job.Run(context.Background(), tasks.SyncSubscriptionsPayload{OwnerID: owner})
	require.NoError(t, err)

	assert.Equal(t, []youtubetest.ProviderCall{{OwnerID: owner, UseCache: false}}, provider.Calls)
}

func TestSubscriptionSync_SkipsChannelWithoutDetails(t *testing.T) {
	api := youtubetest.New()
	api.SubscriptionPages[""] = subscriptionPage("", "123", "456")
	addChannels(api, "456")
	job, subs, queue := newSyncJob(api)

	result, err := job.Run(context.Background(), tasks.SyncSubscriptionsPayload{OwnerID: owner})
	require.NoError(t, err)
	assert.Equal(t, Completed, result.Status)

	assert.Nil(t, subs.get(owner, "123"))
	stored := subs.get(owner, "456")
	require.NotNil(t, stored)
	assert.Equal(t, "UU456", stored.UploadPlaylist)
	assert.Equal(t, "https://i.example/456.jpg", stored.Thumbnail("default"))

	require.Len(t, queue.imports, 1)
	assert.Equal(t, tasks.ImportVideosPayload{
		OwnerID:        owner,
		SubscriptionID: stored.ID,
		PlaylistID:     "UU456",
		OnlyFirstPage:  true,
	}, queue.imports[0])
}

func TestSubscriptionSync_IgnoresExtraChannels(t *testing.T) {
	api := youtubetest.New()
	api.SubscriptionPages[""] = subscriptionPage("", "456")
	addChannels(api, "456", "789")
	job, subs, _ := newSyncJob(api)

	_, err := job.Run(context.Background(), tasks.SyncSubscriptionsPayload{OwnerID: owner})
	require.NoError(t, err)

	assert.NotNil(t, subs.get(owner, "456"))
	assert.Nil(t, subs.get(owner, "789"))
}

func TestSubscriptionSync_ExistingSubscriptionImportsWithBuckets(t *testing.T) {
	api := youtubetest.New()
	api.SubscriptionPages[""] = subscriptionPage("", "456")
	addChannels(api, "456")
	job, subs, queue := newSyncJob(api)

	_, err := job.Run(context.Background(), tasks.SyncSubscriptionsPayload{OwnerID: owner})
	require.NoError(t, err)
	id := subs.get(owner, "456").ID
	subs.buckets[id] = []int64{7, 3}

	_, err = job.Run(context.Background(), tasks.SyncSubscriptionsPayload{OwnerID: owner})
	require.NoError(t, err)

	require.Len(t, queue.imports, 2)
	assert.True(t, queue.imports[0].OnlyFirstPage)
	assert.False(t, queue.imports[1].OnlyFirstPage)
	assert.Equal(t, []int64{3, 7}, queue.imports[1].BucketIDs)
	assert.Len(t, subs.subs, 1)
}

func TestSubscriptionSync_FollowsPages(t *testing.T) {
	api := youtubetest.New()
	api.SubscriptionPages[""] = subscriptionPage("p2", "a")
	api.SubscriptionPages["p2"] = subscriptionPage("", "b")
	addChannels(api, "a", "b")
	job, subs, queue := newSyncJob(api)

	result, err := job.Run(context.Background(), tasks.SyncSubscriptionsPayload{OwnerID: owner})
	require.NoError(t, err)

	assert.Equal(t, Completed, result.Status)
	assert.Equal(t, 2, api.CallCount(youtubetest.MethodSubscriptions))
	assert.Len(t, subs.subs, 2)
	assert.Len(t, queue.imports, 2)
}

func TestSubscriptionSync_ResumesAtUncommittedPage(t *testing.T) {
	api := youtubetest.New()
	api.SubscriptionPages[""] = subscriptionPage("p2", "a")
	api.SubscriptionPages["p2"] = subscriptionPage("p3", "b")
	api.SubscriptionPages["p3"] = subscriptionPage("", "c")
	addChannels(api, "a", "b", "c")

	// Two pages commit (four calls), the third listing hits the deadline.
	api.Fail = func(method string, callIndex int) error {
		if method == youtubetest.MethodSubscriptions && callIndex == 4 {
			return context.DeadlineExceeded
		}
		return nil
	}
	job, subs, _ := newSyncJob(api)

	result, err := job.Run(context.Background(), tasks.SyncSubscriptionsPayload{OwnerID: owner})
	require.NoError(t, err)

	assert.Equal(t, Interrupted, result.Status)
	assert.Equal(t, tasks.SyncSubscriptionsPayload{OwnerID: owner, PageToken: "p3"}, result.Resume)
	assert.Len(t, subs.subs, 2)
	assert.Nil(t, subs.get(owner, "c"))
}

func TestSubscriptionSync_BudgetExhaustedBeforeFirstPage(t *testing.T) {
	api := youtubetest.New()
	api.SubscriptionPages["tok"] = subscriptionPage("", "a")
	addChannels(api, "a")
	subs := newMemorySubscriptions()
	job := NewSubscriptionSync(&youtubetest.Provider{API: api}, subs, &recordingEnqueuer{}, Budget{Margin: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result, err := job.Run(ctx, tasks.SyncSubscriptionsPayload{OwnerID: owner, PageToken: "tok"})
	require.NoError(t, err)

	assert.Equal(t, Interrupted, result.Status)
	assert.Equal(t, "tok", result.Resume.PageToken)
	assert.Zero(t, api.TotalCalls())
}

func TestSubscriptionSync_StoresInlineTitles(t *testing.T) {
	api := youtubetest.New()
	api.SubscriptionPages[""] = subscriptionPage("", "a", "b")
	addChannels(api, "a", "b")
	job, subs, _ := newSyncJob(api)
	job.WithTitles(&stubTitles{titles: map[string]string{"a": "Channel A"}})

	_, err := job.Run(context.Background(), tasks.SyncSubscriptionsPayload{OwnerID: owner})
	require.NoError(t, err)

	a := subs.get(owner, "a")
	require.NotNil(t, a.Title)
	assert.Equal(t, "Channel A", *a.Title)
	assert.Nil(t, subs.get(owner, "b").Title)
}

func TestSubscriptionSync_TitleFailureIsNotFatal(t *testing.T) {
	api := youtubetest.New()
	api.SubscriptionPages[""] = subscriptionPage("", "a")
	addChannels(api, "a")
	job, subs, _ := newSyncJob(api)
	job.WithTitles(&stubTitles{err: errors.New("boom")})

	result, err := job.Run(context.Background(), tasks.SyncSubscriptionsPayload{OwnerID: owner})
	require.NoError(t, err)
	assert.Equal(t, Completed, result.Status)
	assert.NotNil(t, subs.get(owner, "a"))
}

func TestSubscriptionSync_QuotaExhausted(t *testing.T) {
	api := youtubetest.New()
	job, _, _ := newSyncJob(api)
	reset := time.Date(2024, 5, 2, 7, 0, 0, 0, time.UTC)
	job.WithQuota(&stubQuota{err: quota.ErrQuotaExhausted, reset: reset})

	result, err := job.Run(context.Background(), tasks.SyncSubscriptionsPayload{OwnerID: owner})
	require.NoError(t, err)
	assert.Equal(t, Interrupted, result.Status)
	assert.Equal(t, tasks.SyncSubscriptionsPayload{OwnerID: owner}, result.Resume)
	assert.Equal(t, reset, result.NotBefore)
	assert.Zero(t, api.TotalCalls())
}

func TestSubscriptionSync_QuotaExhaustedMidPagination(t *testing.T) {
	api := youtubetest.New()
	api.SubscriptionPages[""] = subscriptionPage("s2", "a")
	api.SubscriptionPages["s2"] = subscriptionPage("", "b")
	addChannels(api, "a", "b")
	job, subs, _ := newSyncJob(api)
	reset := time.Date(2024, 5, 2, 7, 0, 0, 0, time.UTC)
	job.WithQuota(&stubQuota{err: quota.ErrQuotaExhausted, limit: pageCost, reset: reset})

	result, err := job.Run(context.Background(), tasks.SyncSubscriptionsPayload{OwnerID: owner})
	require.NoError(t, err)

	assert.Equal(t, Interrupted, result.Status)
	assert.Equal(t, "s2", result.Resume.PageToken)
	assert.Equal(t, reset, result.NotBefore)
	assert.NotNil(t, subs.get(owner, "a"))
	assert.Nil(t, subs.get(owner, "b"))
}

func TestSubscriptionSync_EmptyPageSkipsChannelLookup(t *testing.T) {
	api := youtubetest.New()
	job, _, _ := newSyncJob(api)

	result, err := job.Run(context.Background(), tasks.SyncSubscriptionsPayload{OwnerID: owner})
	require.NoError(t, err)

	assert.Equal(t, Completed, result.Status)
	assert.Equal(t, 1, api.TotalCalls())
	assert.Zero(t, api.CallCount(youtubetest.MethodChannels))
}

func TestSubscriptionSync_APIErrorFails(t *testing.T) {
	api := youtubetest.New()
	api.Fail = func(string, int) error { return errors.New("backend error") }
	job, _, _ := newSyncJob(api)

	_, err := job.Run(context.Background(), tasks.SyncSubscriptionsPayload{OwnerID: owner})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, context.DeadlineExceeded))
}
