package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db/models"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db/repository"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/tasks"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
)

const testAPIKey = "test-key"

type MockSubscriptionStore struct{ mock.Mock }

func (m *MockSubscriptionStore) ListByOwner(ctx context.Context, ownerID int64) ([]*models.Subscription, error) {
	args := m.Called(ctx, ownerID)
	subs, _ := args.Get(0).([]*models.Subscription)
	return subs, args.Error(1)
}

type MockBucketStore struct{ mock.Mock }

func (m *MockBucketStore) Create(ctx context.Context, bucket *models.Bucket) error {
	args := m.Called(ctx, bucket)
	return args.Error(0)
}

func (m *MockBucketStore) GetByID(ctx context.Context, ownerID, id int64) (*models.Bucket, error) {
	args := m.Called(ctx, ownerID, id)
	b, _ := args.Get(0).(*models.Bucket)
	return b, args.Error(1)
}

func (m *MockBucketStore) ListByOwner(ctx context.Context, ownerID int64) ([]*models.Bucket, error) {
	args := m.Called(ctx, ownerID)
	b, _ := args.Get(0).([]*models.Bucket)
	return b, args.Error(1)
}

func (m *MockBucketStore) AddSubscription(ctx context.Context, ownerID, bucketID int64, subscriptionID string) (bool, error) {
	args := m.Called(ctx, ownerID, bucketID, subscriptionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockBucketStore) RemoveSubscription(ctx context.Context, ownerID, bucketID int64, subscriptionID string) (bool, error) {
	args := m.Called(ctx, ownerID, bucketID, subscriptionID)
	return args.Bool(0), args.Error(1)
}

type MockVideoStore struct{ mock.Mock }

func (m *MockVideoStore) ListByBucket(ctx context.Context, ownerID, bucketID int64, cursor repository.Cursor, limit int) ([]*models.Video, error) {
	args := m.Called(ctx, ownerID, bucketID, cursor, limit)
	v, _ := args.Get(0).([]*models.Video)
	return v, args.Error(1)
}

func (m *MockVideoStore) MarkViewed(ctx context.Context, ownerID, bucketID int64, videoID string) error {
	args := m.Called(ctx, ownerID, bucketID, videoID)
	return args.Error(0)
}

type MockEnricher struct{ mock.Mock }

func (m *MockEnricher) Subscriptions(ctx context.Context, subs []*models.Subscription) ([]*models.Subscription, error) {
	args := m.Called(ctx, subs)
	return subs, args.Error(0)
}

func (m *MockEnricher) Videos(ctx context.Context, videos []*models.Video) ([]*models.Video, error) {
	args := m.Called(ctx, videos)
	return videos, args.Error(0)
}

type MockEnqueuer struct{ mock.Mock }

func (m *MockEnqueuer) EnqueueSyncSubscriptions(ctx context.Context, p tasks.SyncSubscriptionsPayload) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockEnqueuer) EnqueueUpdateVideoBuckets(ctx context.Context, p tasks.UpdateVideoBucketsPayload) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

type testAPI struct {
	subs    *MockSubscriptionStore
	buckets *MockBucketStore
	videos  *MockVideoStore
	titles  *MockEnricher
	queue   *MockEnqueuer
	router  *gin.Engine
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	api := &testAPI{
		subs:    &MockSubscriptionStore{},
		buckets: &MockBucketStore{},
		videos:  &MockVideoStore{},
		titles:  &MockEnricher{},
		queue:   &MockEnqueuer{},
	}
	api.router = NewRouter(RouterConfig{
		APIKeys:       []string{testAPIKey},
		Health:        NewHealthHandler(nil),
		Subscriptions: NewSubscriptionHandler(api.subs, api.titles, api.queue, nil),
		Buckets:       NewBucketHandler(api.buckets, api.videos, api.titles, api.queue, nil),
	})

	t.Cleanup(func() {
		api.subs.AssertExpectations(t)
		api.buckets.AssertExpectations(t)
		api.videos.AssertExpectations(t)
		api.titles.AssertExpectations(t)
		api.queue.AssertExpectations(t)
	})
	return api
}

func newRecorder() *httptest.ResponseRecorder { return httptest.NewRecorder() }

// do sends an authenticated request as owner 1.
func (a *testAPI) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("X-Owner-ID", "1")

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}
