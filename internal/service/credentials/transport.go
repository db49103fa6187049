package credentials

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/cache"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/logger"

	"go.uber.org/zap"
)

// cachingTransport serves repeated GET requests from the response cache.
// Entries are scoped per owner because responses depend on who is asking.
type cachingTransport struct {
	base    http.RoundTripper
	store   cache.Store
	ttl     time.Duration
	ownerID int64
}

func (t *cachingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.base.RoundTrip(req)
	}

	ctx := req.Context()
	key := fmt.Sprintf("http:%d:%s", t.ownerID, db.GenerateContentHash(req.URL.String()))

	data, ok, err := t.store.Get(ctx, key)
	if err != nil {
		logger.Log.Debug("Response cache read failed", zap.Error(err))
	}
	if ok {
		resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(data)), req)
		if err == nil {
			return resp, nil
		}
		logger.Log.Debug("Discarding unreadable cached response", zap.Error(err))
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		return resp, err
	}

	dump, err := httputil.DumpResponse(resp, true)
	if err != nil {
		logger.Log.Debug("Failed to buffer response for cache", zap.Error(err))
		return resp, nil
	}
	if err := t.store.Set(ctx, key, dump, t.ttl); err != nil {
		logger.Log.Debug("Response cache write failed", zap.Error(err))
	}

	return resp, nil
}
