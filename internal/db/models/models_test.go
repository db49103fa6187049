package models

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThumbnails_Get(t *testing.T) {
	tests := []struct {
		name   string
		thumbs Thumbnails
		size   string
		want   string
	}{
		{name: "exact size", thumbs: Thumbnails{"high": "h", "medium": "m"}, size: "high", want: "h"},
		{name: "falls back to medium", thumbs: Thumbnails{"default": "d", "medium": "m"}, size: "maxres", want: "m"},
		{name: "falls back to smallest key", thumbs: Thumbnails{"standard": "s", "high": "h"}, size: "maxres", want: "h"},
		{name: "empty urls ignored", thumbs: Thumbnails{"high": "", "medium": "", "default": "d"}, size: "high", want: "d"},
		{name: "no thumbnails", thumbs: Thumbnails{}, size: "high", want: ""},
		{name: "nil map", thumbs: nil, size: "medium", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.thumbs.Get(tt.size))
		})
	}
}

func TestOrderingKey_SortsChronologically(t *testing.T) {
	base := time.Date(2023, 12, 31, 23, 59, 59, 999999000, time.UTC)
	inputs := []struct {
		at time.Time
		id string
	}{
		{base.Add(48 * time.Hour), "a"},
		{base, "zzz"},
		{base, "aaa"},
		{base.Add(time.Microsecond), "0"},
		{base.Add(-time.Hour), "zz"},
	}

	keys := make([]string, len(inputs))
	for i, in := range inputs {
		keys[i] = OrderingKey(in.at, in.id)
	}
	sort.Strings(keys)

	want := []string{
		OrderingKey(base.Add(-time.Hour), "zz"),
		OrderingKey(base, "aaa"),
		OrderingKey(base, "zzz"),
		OrderingKey(base.Add(time.Microsecond), "0"),
		OrderingKey(base.Add(48*time.Hour), "a"),
	}
	assert.Equal(t, want, keys)
}

func TestOrderingKey_IgnoresZone(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	other := at.In(time.FixedZone("UTC+3", 3*3600))
	assert.Equal(t, OrderingKey(at, "v"), OrderingKey(other, "v"))
}

func TestNewVideo(t *testing.T) {
	published := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	v := NewVideo(7, "sub", "vid", published, nil, []int64{3})

	assert.Equal(t, VideoKey(7, "vid"), v.ID)
	assert.Equal(t, published.Truncate(time.Microsecond), v.PublishedAt)
	assert.Equal(t, OrderingKey(published, "vid"), v.OrderingKey)
	assert.NotNil(t, v.Thumbnails)
	assert.Equal(t, []int64{3}, v.BucketIDs)
	assert.False(t, v.HasMetadata())

	v.SetMetadata("Title", "")
	require.NotNil(t, v.Title)
	assert.True(t, v.HasMetadata())
}

func TestSubscriptionKey_PerOwner(t *testing.T) {
	assert.NotEqual(t, SubscriptionKey(1, "UC1"), SubscriptionKey(2, "UC1"))
	assert.Equal(t, SubscriptionKey(1, "UC1"), NewSubscription(1, "UC1", "UU1", nil).ID)
}
