package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/ternarybob/humus/internal/models"
)

// Client is an asset store API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets a custom HTTP timeout. Non-positive values keep the
// default.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient creates a new asset store client. An empty token leaves the
// client unauthenticated, which is only useful against test servers.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		c.httpClient = oauth2.NewClient(context.Background(), ts)
		c.httpClient.Timeout = DefaultTimeout
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// get performs a GET request to the store and decodes the JSON response.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("url", c.baseURL+path).
			Msg("Asset store request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

type listResponse struct {
	Assets []models.CatalogEntry `json:"assets"`
}

// List returns the assets under a path prefix. A failed listing surfaces
// as UnavailableError so callers can degrade to an empty known state.
func (c *Client) List(ctx context.Context, prefix string) ([]models.CatalogEntry, error) {
	params := url.Values{}
	params.Set("parent", prefix)

	var result listResponse
	if err := c.get(ctx, "/assets", params, &result); err != nil {
		return nil, &UnavailableError{Op: "list", Path: prefix, Err: err}
	}

	return result.Assets, nil
}

// Get fetches a single asset's metadata.
func (c *Client) Get(ctx context.Context, assetID string) (*models.AssetMetadata, error) {
	var meta models.AssetMetadata
	if err := c.get(ctx, "/assets/"+url.PathEscape(assetID), nil, &meta); err != nil {
		return nil, fmt.Errorf("failed to get asset %s: %w", assetID, err)
	}
	return &meta, nil
}

// Exists probes a single asset's metadata. Absent assets and failed
// probes both report false (see the package doc).
func (c *Client) Exists(ctx context.Context, assetID string) bool {
	_, err := c.Get(ctx, assetID)
	return err == nil
}

// Download streams an asset's raster content to w.
func (c *Client) Download(ctx context.Context, assetID string, w io.Writer) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	reqURL := c.baseURL + "/assets/" + url.PathEscape(assetID) + "/data"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("asset_id", assetID).
			Msg("Asset download started")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   "/assets/" + assetID + "/data",
		}
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read asset content: %w", err)
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("asset_id", assetID).
			Int64("bytes", n).
			Dur("duration", time.Since(start)).
			Msg("Asset download complete")
	}

	return nil
}
