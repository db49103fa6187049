// Package titles attaches human-readable titles and descriptions to stored
// subscriptions and videos, backed by a cache in front of the remote API.
package titles

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/cache"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db/models"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/youtube"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/logger"

	"go.uber.org/zap"
)

const (
	// SubscriptionPrefix namespaces channel title cache keys.
	SubscriptionPrefix = "sub-title"
	// VideoPrefix namespaces video title cache keys.
	VideoPrefix = "video-title"
	// DefaultTTL is how long a cached title is trusted.
	DefaultTTL = 28 * 24 * time.Hour
)

// Entity is anything that can carry remote metadata.
type Entity interface {
	Owner() int64
	RemoteID() string
	SetMetadata(title, description string)
}

// ClientProvider resolves an owner's API handle.
type ClientProvider interface {
	Client(ctx context.Context, ownerID int64, useCache bool) (youtube.API, error)
}

type cachedTitle struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type lookupFunc func(ctx context.Context, api youtube.API, ids []string) ([]youtube.Snippet, error)

// Enricher loads titles through the cache, falling back to batched API lookups.
type Enricher struct {
	clients ClientProvider
	store   cache.Store
	ttl     time.Duration
}

// NewEnricher creates an Enricher. store may be nil to disable caching.
func NewEnricher(clients ClientProvider, store cache.Store, ttl time.Duration) *Enricher {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Enricher{clients: clients, store: store, ttl: ttl}
}

// Subscriptions sets the channel title and description on every subscription
// and returns the same slice.
func (e *Enricher) Subscriptions(ctx context.Context, subs []*models.Subscription) ([]*models.Subscription, error) {
	entities := make([]Entity, len(subs))
	for i, s := range subs {
		entities[i] = s
	}

	lookup := func(ctx context.Context, api youtube.API, ids []string) ([]youtube.Snippet, error) {
		return api.ListChannelSnippets(ctx, ids)
	}
	if err := e.enrich(ctx, entities, SubscriptionPrefix, true, lookup); err != nil {
		return nil, err
	}
	return subs, nil
}

// Videos sets the video title and description on every video and returns
// the same slice.
func (e *Enricher) Videos(ctx context.Context, videos []*models.Video) ([]*models.Video, error) {
	entities := make([]Entity, len(videos))
	for i, v := range videos {
		entities[i] = v
	}

	lookup := func(ctx context.Context, api youtube.API, ids []string) ([]youtube.Snippet, error) {
		return api.ListVideoSnippets(ctx, ids)
	}
	if err := e.enrich(ctx, entities, VideoPrefix, false, lookup); err != nil {
		return nil, err
	}
	return videos, nil
}

func (e *Enricher) enrich(ctx context.Context, entities []Entity, prefix string, useCache bool, lookup lookupFunc) error {
	if len(entities) == 0 {
		return nil
	}

	keys := make([]string, len(entities))
	for i, ent := range entities {
		keys[i] = prefix + ent.RemoteID()
	}
	cached := e.readCache(ctx, keys)

	missing := make(map[int64][]Entity)
	for i, ent := range entities {
		if raw, ok := cached[keys[i]]; ok {
			var t cachedTitle
			if err := json.Unmarshal(raw, &t); err == nil {
				ent.SetMetadata(t.Title, t.Description)
				continue
			}
		}
		missing[ent.Owner()] = append(missing[ent.Owner()], ent)
	}

	owners := make([]int64, 0, len(missing))
	for owner := range missing {
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })

	fresh := make(map[string][]byte)
	for _, owner := range owners {
		found, err := e.fetch(ctx, owner, missing[owner], useCache, lookup)
		if err != nil {
			return err
		}

		for _, ent := range missing[owner] {
			snippet := found[ent.RemoteID()]
			ent.SetMetadata(snippet.Title, snippet.Description)
		}
		for id, snippet := range found {
			raw, err := json.Marshal(cachedTitle{Title: snippet.Title, Description: snippet.Description})
			if err == nil {
				fresh[prefix+id] = raw
			}
		}
	}

	e.writeCache(ctx, fresh)
	return nil
}

func (e *Enricher) fetch(ctx context.Context, owner int64, ents []Entity, useCache bool, lookup lookupFunc) (map[string]youtube.Snippet, error) {
	seen := make(map[string]bool, len(ents))
	ids := make([]string, 0, len(ents))
	for _, ent := range ents {
		if !seen[ent.RemoteID()] {
			seen[ent.RemoteID()] = true
			ids = append(ids, ent.RemoteID())
		}
	}

	api, err := e.clients.Client(ctx, owner, useCache)
	if err != nil {
		return nil, fmt.Errorf("resolve client for owner %d: %w", owner, err)
	}

	found := make(map[string]youtube.Snippet, len(ids))
	for _, batch := range youtube.BatchIDs(ids, youtube.MaxResults) {
		snippets, err := lookup(ctx, api, batch)
		if err != nil {
			return nil, fmt.Errorf("fetch titles: %w", err)
		}
		for _, s := range snippets {
			found[s.ID] = s
		}
	}

	return found, nil
}

func (e *Enricher) readCache(ctx context.Context, keys []string) map[string][]byte {
	if e.store == nil {
		return nil
	}
	values, err := e.store.GetMulti(ctx, keys)
	if err != nil {
		logger.Log.Warn("Title cache read failed", zap.Error(err))
		return nil
	}
	return values
}

func (e *Enricher) writeCache(ctx context.Context, entries map[string][]byte) {
	if e.store == nil || len(entries) == 0 {
		return
	}
	if err := e.store.SetMulti(ctx, entries, e.ttl); err != nil {
		logger.Log.Warn("Title cache write failed", zap.Error(err))
	}
}
