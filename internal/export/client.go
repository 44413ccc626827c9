package export

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
	// DefaultTimeout is the default HTTP timeout for submission calls.
	// The export itself runs asynchronously server-side.
	DefaultTimeout = 60 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 5
)

// APIError represents a non-OK response from the export job API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("export API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// JobClient submits asynchronous export jobs to the compute service.
type JobClient struct {
	baseURL    string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// JobClientOption configures the JobClient.
type JobClientOption func(*JobClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) JobClientOption {
	return func(c *JobClient) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) JobClientOption {
	return func(c *JobClient) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) JobClientOption {
	return func(c *JobClient) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets a custom HTTP timeout. Non-positive values keep the
// default.
func WithTimeout(timeout time.Duration) JobClientOption {
	return func(c *JobClient) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewJobClient creates a new export job API client.
func NewJobClient(baseURL, token string, opts ...JobClientOption) *JobClient {
	c := &JobClient{
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

type startExportResponse struct {
	TaskID string `json:"taskId"`
}

// StartExport submits an export job and returns its task id. The call
// is fire-and-forget: it never waits for the job to finish.
func (c *JobClient) StartExport(ctx context.Context, req models.ExportRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode export request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/exports", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if c.logger != nil {
		c.logger.Debug().
			Str("asset_id", req.AssetID).
			Str("description", req.Description).
			Msg("Export job submission")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		return "", &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
			Endpoint:   "/exports",
		}
	}

	var result startExportResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return result.TaskID, nil
}
