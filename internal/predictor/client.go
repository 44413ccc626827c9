// Package predictor provides a client for the model/compute service.
// The service runs the actual raster computation (temperature harmonics,
// vegetation indices, the regression model) server-side; this client
// only requests computations and receives opaque artifact references.
package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/ternarybob/humus/internal/models"
)

const (
	// DefaultTimeout covers geometry evaluation, which can be slow.
	DefaultTimeout = 2 * time.Minute

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 5
)

// APIError represents a non-OK response from the compute service.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("predictor service error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Client is a compute service API client.
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

// NewClient creates a new compute service client.
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

// post performs a POST request with a JSON body and decodes the response.
func (c *Client) post(ctx context.Context, path string, payload, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.logger != nil {
		c.logger.Debug().
			Str("url", c.baseURL+path).
			Msg("Predictor service request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

type computeRequest struct {
	Product string `json:"product"`
	Year    int    `json:"year"`
	Month   int    `json:"month,omitempty"`
}

type computeResponse struct {
	Artifact string `json:"artifact"`
}

// Compute requests the model product for one period. The returned
// artifact reference points at a server-side computation handle, not a
// materialized raster.
func (c *Client) Compute(ctx context.Context, product string, period models.Period) (string, error) {
	var result computeResponse
	req := computeRequest{Product: product, Year: period.Year, Month: period.Month}
	if err := c.post(ctx, "/compute", req, &result); err != nil {
		return "", fmt.Errorf("compute %s %s: %w", product, period, err)
	}
	if result.Artifact == "" {
		return "", fmt.Errorf("compute %s %s: empty artifact reference", product, period)
	}
	return result.Artifact, nil
}

type regionRequest struct {
	Region string `json:"region"`
}

type regionResponse struct {
	Coordinates [][]float64 `json:"coordinates"`
}

// ResolveRegion evaluates a named export region to a concrete
// coordinate ring. The region geometry is invariant, so callers resolve
// once per run and reuse the result.
func (c *Client) ResolveRegion(ctx context.Context, regionRef string) ([][]float64, error) {
	var result regionResponse
	if err := c.post(ctx, "/regions/resolve", regionRequest{Region: regionRef}, &result); err != nil {
		return nil, fmt.Errorf("resolve region %s: %w", regionRef, err)
	}
	if len(result.Coordinates) == 0 {
		return nil, fmt.Errorf("resolve region %s: empty coordinates", regionRef)
	}
	return result.Coordinates, nil
}
