package youtube

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// MaxResults is the largest page and id batch the Data API accepts.
const MaxResults = 50

// Quota cost of one list call in units, regardless of the parts requested here.
const listCost = 1

// Thumbnails maps a size name to an image URL.
type Thumbnails map[string]string

// SubscriptionItem is one entry of the authenticated user's subscription list.
type SubscriptionItem struct {
	ChannelID  string
	Thumbnails Thumbnails
}

// SubscriptionPage is one page of subscriptions.
type SubscriptionPage struct {
	Items         []SubscriptionItem
	NextPageToken string
}

// Channel carries the fields needed to walk a channel's uploads.
type Channel struct {
	ID                string
	UploadsPlaylistID string
}

// PlaylistPage is one page of video ids from a playlist.
type PlaylistPage struct {
	VideoIDs      []string
	NextPageToken string
}

// Video carries the fields stored for an imported video.
type Video struct {
	ID          string
	PublishedAt time.Time
	Thumbnails  Thumbnails
}

// Snippet is the human-readable metadata of a channel or video.
type Snippet struct {
	ID          string
	Title       string
	Description string
}

// API is the subset of the YouTube Data API used by the sync jobs.
// Batch lookups accept at most MaxResults ids.
type API interface {
	ListMySubscriptions(ctx context.Context, pageToken string) (*SubscriptionPage, error)
	ListChannels(ctx context.Context, ids []string) ([]Channel, error)
	ListPlaylistItems(ctx context.Context, playlistID, pageToken string) (*PlaylistPage, error)
	ListVideos(ctx context.Context, ids []string) ([]Video, error)
	ListChannelSnippets(ctx context.Context, ids []string) ([]Snippet, error)
	ListVideoSnippets(ctx context.Context, ids []string) ([]Snippet, error)
}

// UsageRecorder receives the quota cost of each API call.
type UsageRecorder interface {
	RecordQuotaUsage(ctx context.Context, cost int, operation string) error
}

// Client wraps the YouTube Data API v3 service.
type Client struct {
	service  *youtube.Service
	limiter  *rate.Limiter
	usage    UsageRecorder
	endpoint string
}

// Option configures a Client.
type Option func(*Client)

// WithLimiter throttles outgoing calls.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithUsageRecorder reports quota spent per call.
func WithUsageRecorder(r UsageRecorder) Option {
	return func(c *Client) { c.usage = r }
}

// WithEndpoint overrides the API base URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// NewClient creates a client that authenticates through httpClient.
func NewClient(ctx context.Context, httpClient *http.Client, opts ...Option) (*Client, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("http client is required")
	}

	c := &Client{}
	for _, opt := range opts {
		opt(c)
	}

	clientOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(c.endpoint))
	}

	service, err := youtube.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}
	c.service = service

	return c, nil
}

func (c *Client) ListMySubscriptions(ctx context.Context, pageToken string) (*SubscriptionPage, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	call := c.service.Subscriptions.List([]string{"snippet"}).
		Mine(true).
		MaxResults(MaxResults).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	c.record(ctx, "subscriptions.list")

	page := &SubscriptionPage{NextPageToken: resp.NextPageToken}
	for _, item := range resp.Items {
		if item.Snippet == nil || item.Snippet.ResourceId == nil || item.Snippet.ResourceId.ChannelId == "" {
			logger.Log.Debug("Skipping subscription item without channel", zap.String("item_id", item.Id))
			continue
		}
		page.Items = append(page.Items, SubscriptionItem{
			ChannelID:  item.Snippet.ResourceId.ChannelId,
			Thumbnails: convertThumbnails(item.Snippet.Thumbnails),
		})
	}

	return page, nil
}

func (c *Client) ListChannels(ctx context.Context, ids []string) ([]Channel, error) {
	if err := checkBatch(ids); err != nil || len(ids) == 0 {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.service.Channels.List([]string{"contentDetails"}).
		Id(ids...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	c.record(ctx, "channels.list")

	channels := make([]Channel, 0, len(resp.Items))
	for _, item := range resp.Items {
		uploads := ""
		if item.ContentDetails != nil && item.ContentDetails.RelatedPlaylists != nil {
			uploads = item.ContentDetails.RelatedPlaylists.Uploads
		}
		channels = append(channels, Channel{ID: item.Id, UploadsPlaylistID: uploads})
	}

	return channels, nil
}

func (c *Client) ListPlaylistItems(ctx context.Context, playlistID, pageToken string) (*PlaylistPage, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	call := c.service.PlaylistItems.List([]string{"contentDetails"}).
		PlaylistId(playlistID).
		MaxResults(MaxResults).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("list playlist items: %w", err)
	}
	c.record(ctx, "playlistItems.list")

	page := &PlaylistPage{NextPageToken: resp.NextPageToken}
	for _, item := range resp.Items {
		if item.ContentDetails == nil || item.ContentDetails.VideoId == "" {
			continue
		}
		page.VideoIDs = append(page.VideoIDs, item.ContentDetails.VideoId)
	}

	return page, nil
}

func (c *Client) ListVideos(ctx context.Context, ids []string) ([]Video, error) {
	items, err := c.listVideoResources(ctx, ids)
	if err != nil {
		return nil, err
	}

	videos := make([]Video, 0, len(items))
	for _, item := range items {
		if item.Snippet == nil {
			continue
		}
		published, err := parseYouTubeTime(item.Snippet.PublishedAt)
		if err != nil {
			logger.Log.Warn("Skipping video with unparsable publish time",
				zap.String("video_id", item.Id),
				zap.String("published_at", item.Snippet.PublishedAt),
				zap.Error(err),
			)
			continue
		}
		videos = append(videos, Video{
			ID:          item.Id,
			PublishedAt: published,
			Thumbnails:  convertThumbnails(item.Snippet.Thumbnails),
		})
	}

	return videos, nil
}

func (c *Client) ListVideoSnippets(ctx context.Context, ids []string) ([]Snippet, error) {
	items, err := c.listVideoResources(ctx, ids)
	if err != nil {
		return nil, err
	}

	snippets := make([]Snippet, 0, len(items))
	for _, item := range items {
		if item.Snippet == nil {
			continue
		}
		snippets = append(snippets, Snippet{ID: item.Id, Title: item.Snippet.Title, Description: item.Snippet.Description})
	}

	return snippets, nil
}

func (c *Client) ListChannelSnippets(ctx context.Context, ids []string) ([]Snippet, error) {
	if err := checkBatch(ids); err != nil || len(ids) == 0 {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.service.Channels.List([]string{"snippet"}).
		Id(ids...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list channel snippets: %w", err)
	}
	c.record(ctx, "channels.list")

	snippets := make([]Snippet, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Snippet == nil {
			continue
		}
		snippets = append(snippets, Snippet{ID: item.Id, Title: item.Snippet.Title, Description: item.Snippet.Description})
	}

	return snippets, nil
}

func (c *Client) listVideoResources(ctx context.Context, ids []string) ([]*youtube.Video, error) {
	if err := checkBatch(ids); err != nil || len(ids) == 0 {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.service.Videos.List([]string{"snippet"}).
		Id(ids...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	c.record(ctx, "videos.list")

	return resp.Items, nil
}

// wait blocks on the rate limiter. A wait that would overrun the context
// deadline is reported as context.DeadlineExceeded.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return ctx.Err()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return nil
}

func (c *Client) record(ctx context.Context, operation string) {
	apiCalls.WithLabelValues(operation).Inc()
	if c.usage == nil {
		return
	}
	if err := c.usage.RecordQuotaUsage(ctx, listCost, operation); err != nil {
		logger.Log.Warn("Failed to record quota usage", zap.String("operation", operation), zap.Error(err))
	}
}

func checkBatch(ids []string) error {
	if len(ids) > MaxResults {
		return fmt.Errorf("too many ids (max %d, got %d)", MaxResults, len(ids))
	}
	return nil
}

func convertThumbnails(details *youtube.ThumbnailDetails) Thumbnails {
	thumbs := Thumbnails{}
	if details == nil {
		return thumbs
	}
	for size, thumb := range map[string]*youtube.Thumbnail{
		"default":  details.Default,
		"medium":   details.Medium,
		"high":     details.High,
		"standard": details.Standard,
		"maxres":   details.Maxres,
	} {
		if thumb != nil && thumb.Url != "" {
			thumbs[size] = thumb.Url
		}
	}
	return thumbs
}

// parseYouTubeTime parses RFC3339 timestamps from the API.
func parseYouTubeTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// BatchIDs splits ids into consecutive batches of at most batchSize.
func BatchIDs(ids []string, batchSize int) [][]string {
	if batchSize <= 0 || batchSize > MaxResults {
		batchSize = MaxResults
	}

	var batches [][]string
	for i := 0; i < len(ids); i += batchSize {
		end := i + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[i:end])
	}

	return batches
}
