// Package credentials turns an owner's stored OAuth token into an
// authenticated YouTube API handle.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/cache"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db/models"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/youtube"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
)

var (
	// ErrNoCredential means the owner has not connected an account yet.
	ErrNoCredential = errors.New("no credential stored for owner")

	// ErrInvalidCredential means the stored credential cannot be used.
	ErrInvalidCredential = errors.New("stored credential is invalid")
)

// Scope is the read-only YouTube scope requested during consent.
const Scope = "https://www.googleapis.com/auth/youtube.readonly"

// CredentialStore loads and persists owners' token payloads.
type CredentialStore interface {
	GetByOwner(ctx context.Context, ownerID int64) (*models.Credential, error)
	Save(ctx context.Context, ownerID int64, data string) error
}

// Config holds OAuth client settings and API access limits.
type Config struct {
	ClientID          string
	ClientSecret      string
	RedirectURL       string
	RequestsPerSecond float64
	Burst             int
	ResponseCacheTTL  time.Duration
	// APIEndpoint overrides the YouTube API base URL.
	APIEndpoint string
	// Transport is the base HTTP transport. Defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

// Provider builds per-owner API clients.
type Provider struct {
	store     CredentialStore
	oauth     *oauth2.Config
	responses cache.Store
	cacheTTL  time.Duration
	limiter   *rate.Limiter
	usage     youtube.UsageRecorder
	endpoint  string
	transport http.RoundTripper
}

// NewProvider creates a Provider. responses and usage may be nil.
func NewProvider(store CredentialStore, cfg Config, responses cache.Store, usage youtube.UsageRecorder) *Provider {
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Provider{
		store: store,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{Scope},
		},
		responses: responses,
		cacheTTL:  cfg.ResponseCacheTTL,
		limiter:   limiter,
		usage:     usage,
		endpoint:  cfg.APIEndpoint,
		transport: transport,
	}
}

// Client returns an API handle acting as ownerID. With useCache, successful
// GET responses are served from the response cache while fresh.
func (p *Provider) Client(ctx context.Context, ownerID int64, useCache bool) (youtube.API, error) {
	cred, err := p.store.GetByOwner(ctx, ownerID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}

	token, err := ParseToken(cred.Data)
	if err != nil {
		return nil, err
	}

	base := p.transport
	if useCache && p.responses != nil && p.cacheTTL > 0 {
		base = &cachingTransport{base: base, store: p.responses, ttl: p.cacheTTL, ownerID: ownerID}
	}

	// The refresh call uses the uncached base transport.
	refreshCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, &http.Client{Transport: p.transport})
	source := &persistingTokenSource{
		base:    p.oauth.TokenSource(refreshCtx, token),
		last:    token.AccessToken,
		ownerID: ownerID,
		store:   p.store,
	}

	httpClient := &http.Client{
		Transport: &oauth2.Transport{Source: oauth2.ReuseTokenSource(token, source), Base: base},
	}

	opts := []youtube.Option{}
	if p.limiter != nil {
		opts = append(opts, youtube.WithLimiter(p.limiter))
	}
	if p.usage != nil {
		opts = append(opts, youtube.WithUsageRecorder(p.usage))
	}
	if p.endpoint != "" {
		opts = append(opts, youtube.WithEndpoint(p.endpoint))
	}

	return youtube.NewClient(ctx, httpClient, opts...)
}

// ParseToken decodes a stored token payload. Payloads that carry neither an
// access token nor a refresh token are rejected.
func ParseToken(data string) (*oauth2.Token, error) {
	var token oauth2.Token
	if err := json.Unmarshal([]byte(data), &token); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no access or refresh token", ErrInvalidCredential)
	}
	return &token, nil
}

// persistingTokenSource writes refreshed tokens back to the store.
type persistingTokenSource struct {
	base    oauth2.TokenSource
	store   CredentialStore
	ownerID int64

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
		}
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken == s.last {
		return token, nil
	}
	s.last = token.AccessToken

	data, err := json.Marshal(token)
	if err != nil {
		return token, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.Save(ctx, s.ownerID, string(data)); err != nil {
		logger.Log.Warn("Failed to persist refreshed token",
			zap.Int64("owner_id", s.ownerID),
			zap.Error(err),
		)
	}

	return token, nil
}
