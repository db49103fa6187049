// Package youtubetest provides an in-memory YouTube API for tests.
package youtubetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/youtube"
)

// Method names recorded in Fake.Calls.
const (
	MethodSubscriptions = "subscriptions.list"
	MethodChannels      = "channels.list"
	MethodPlaylistItems = "playlistItems.list"
	MethodVideos        = "videos.list"
	MethodChannelTitles = "channels.list/snippet"
	MethodVideoTitles   = "videos.list/snippet"
)

// Call records one API invocation.
type Call struct {
	Method string
	Token  string
	IDs    []string
}

// Fake serves canned pages. Page maps are keyed by page token, "" being the first page.
type Fake struct {
	mu sync.Mutex

	SubscriptionPages map[string]*youtube.SubscriptionPage
	Channels          map[string]youtube.Channel
	PlaylistPages     map[string]map[string]*youtube.PlaylistPage
	Videos            map[string]youtube.Video
	Snippets          map[string]youtube.Snippet

	// Fail, when set, is consulted before every call; a non-nil error aborts it.
	Fail func(method string, callIndex int) error

	Calls []Call
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		SubscriptionPages: map[string]*youtube.SubscriptionPage{},
		Channels:          map[string]youtube.Channel{},
		PlaylistPages:     map[string]map[string]*youtube.PlaylistPage{},
		Videos:            map[string]youtube.Video{},
		Snippets:          map[string]youtube.Snippet{},
	}
}

// CallCount returns how many calls of method were made.
func (f *Fake) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// TotalCalls returns the number of calls of any kind.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

func (f *Fake) begin(method, token string, ids []string) error {
	f.mu.Lock()
	index := len(f.Calls)
	f.Calls = append(f.Calls, Call{Method: method, Token: token, IDs: append([]string(nil), ids...)})
	fail := f.Fail
	f.mu.Unlock()

	if len(ids) > youtube.MaxResults {
		return fmt.Errorf("too many ids: %d", len(ids))
	}
	if fail != nil {
		return fail(method, index)
	}
	return nil
}

func (f *Fake) ListMySubscriptions(_ context.Context, pageToken string) (*youtube.SubscriptionPage, error) {
	if err := f.begin(MethodSubscriptions, pageToken, nil); err != nil {
		return nil, err
	}
	page, ok := f.SubscriptionPages[pageToken]
	if !ok {
		return &youtube.SubscriptionPage{}, nil
	}
	return page, nil
}

func (f *Fake) ListChannels(_ context.Context, ids []string) ([]youtube.Channel, error) {
	if err := f.begin(MethodChannels, "", ids); err != nil {
		return nil, err
	}
	var out []youtube.Channel
	for _, id := range ids {
		if c, ok := f.Channels[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *Fake) ListPlaylistItems(_ context.Context, playlistID, pageToken string) (*youtube.PlaylistPage, error) {
	if err := f.begin(MethodPlaylistItems, pageToken, []string{playlistID}); err != nil {
		return nil, err
	}
	page, ok := f.PlaylistPages[playlistID][pageToken]
	if !ok {
		return &youtube.PlaylistPage{}, nil
	}
	return page, nil
}

func (f *Fake) ListVideos(_ context.Context, ids []string) ([]youtube.Video, error) {
	if err := f.begin(MethodVideos, "", ids); err != nil {
		return nil, err
	}
	var out []youtube.Video
	for _, id := range ids {
		if v, ok := f.Videos[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *Fake) ListChannelSnippets(_ context.Context, ids []string) ([]youtube.Snippet, error) {
	if err := f.begin(MethodChannelTitles, "", ids); err != nil {
		return nil, err
	}
	return f.snippets(ids), nil
}

func (f *Fake) ListVideoSnippets(_ context.Context, ids []string) ([]youtube.Snippet, error) {
	if err := f.begin(MethodVideoTitles, "", ids); err != nil {
		return nil, err
	}
	return f.snippets(ids), nil
}

func (f *Fake) snippets(ids []string) []youtube.Snippet {
	var out []youtube.Snippet
	for _, id := range ids {
		if s, ok := f.Snippets[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// ProviderCall records one client resolution.
type ProviderCall struct {
	OwnerID  int64
	UseCache bool
}

// Provider hands out API for every owner, or fails with Err.
type Provider struct {
	API youtube.API
	Err error

	mu    sync.Mutex
	Calls []ProviderCall
}

func (p *Provider) Client(_ context.Context, ownerID int64, useCache bool) (youtube.API, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, ProviderCall{OwnerID: ownerID, UseCache: useCache})
	p.mu.Unlock()

	if p.Err != nil {
		return nil, p.Err
	}
	return p.API, nil
}
