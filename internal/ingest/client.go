// Package ingest implements the REST transport to the coordinator's
// ingestion endpoints, shared by job registration and execution
// flushing.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/fusionlabs-tech/chronos-synapse-sub001/pkg/models"
)

const (
	// RegisterPath is the job signature registration endpoint.
	RegisterPath = "/api/ingest/jobs/register"

	// ExecutionsPath is the execution batch ingestion endpoint.
	ExecutionsPath = "/api/ingest/executions/batch"

	// DefaultTimeout is the default per-request HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default request rate limit (requests per second).
	DefaultRateLimit = 10

	// maxAttempts bounds retries for transient failures.
	maxAttempts = 5

	// baseBackoff is the first retry delay; each retry doubles it.
	baseBackoff = 1000 * time.Millisecond

	// maxBackoff caps the retry delay.
	maxBackoff = 8000 * time.Millisecond
)

// Client is the coordinator ingestion API client.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter

	// sleep is swappable so tests can observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
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

// WithSleeper overrides the backoff sleeper. Tests only.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// NewClient creates a new ingestion client. endpoint must already be
// normalized (no trailing slash).
func NewClient(endpoint, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		sleep:   sleepContext,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// RegisterJobs submits one batch of job signatures.
func (c *Client) RegisterJobs(ctx context.Context, jobs []models.JobSignature) error {
	return c.post(ctx, RegisterPath, map[string]interface{}{"jobs": jobs})
}

// SubmitExecutions submits one batch of execution events.
func (c *Client) SubmitExecutions(ctx context.Context, executions []*models.ExecutionEvent) error {
	return c.post(ctx, ExecutionsPath, map[string]interface{}{"executions": executions})
}

// post performs a POST with a JSON body and the credential header,
// retrying transient failures (HTTP 5xx, 429, and network errors) up
// to maxAttempts with exponential backoff. Other non-2xx statuses fail
// immediately with a *models.APIError.
func (c *Client) post(ctx context.Context, path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal ingest payload")
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "rate limiter wait cancelled")
		}

		status, respBody, err := c.doPost(ctx, path, payload)
		if err == nil && status >= 200 && status < 300 {
			return nil
		}

		if err != nil {
			// Network-level failure: retry within the same attempt budget
			lastErr = err
			if c.logger != nil {
				c.logger.Warn().
					Err(err).
					Str("path", path).
					Int("attempt", attempt).
					Msg("Ingest request failed")
			}
		} else {
			apiErr := &models.APIError{
				StatusCode: status,
				Body:       respBody,
				Endpoint:   path,
				Attempts:   attempt,
			}
			if !retryableStatus(status) {
				return apiErr
			}
			lastErr = apiErr
			if c.logger != nil {
				c.logger.Warn().
					Str("path", path).
					Int("status", status).
					Int("attempt", attempt).
					Msg("Ingest request rejected with transient status")
			}
		}

		if attempt == maxAttempts {
			break
		}
		if err := c.sleep(ctx, backoffDelay(attempt)); err != nil {
			return errors.Wrap(err, "backoff wait cancelled")
		}
	}

	var apiErr *models.APIError
	if errors.As(lastErr, &apiErr) {
		apiErr.Attempts = maxAttempts
		return apiErr
	}
	return errors.Wrapf(lastErr, "ingest request to %s failed after %d attempts", path, maxAttempts)
}

func (c *Client) doPost(ctx context.Context, path string, payload []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return 0, "", errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", errors.Wrap(err, "failed to execute request")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return resp.StatusCode, string(body), nil
}

// retryableStatus restricts retries to transient conditions: server
// errors and rate limiting. Other client errors fail immediately.
func retryableStatus(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

// backoffDelay returns min(baseBackoff * 2^(attempt-1), maxBackoff).
func backoffDelay(attempt int) time.Duration {
	delay := baseBackoff << (attempt - 1)
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
