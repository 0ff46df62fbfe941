// Package client provides the Loop Returns HTTP client with API key
// authentication, rate limiting, retries and error classification.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/tap-loopreturns/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for Loop Returns API requests.
var (
	loopRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loop_requests_total",
		Help: "Total Loop Returns API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	loopRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loop_request_duration_seconds",
		Help:    "Loop Returns API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	loopErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loop_errors_total",
		Help: "Total Loop Returns API errors by class",
	}, []string{"class"})
)

// AuthHeader carries the API key on every request.
const AuthHeader = "X-Authorization"

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.loopreturns.com/api/v1"

// maxErrorBody caps how much of an error response body is kept in APIError.
const maxErrorBody = 512

// Client is the Loop Returns API client.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	rateLimiter *ratelimit.Tracker
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root, e.g. https://api.loopreturns.com/api/v1
	BaseURL string

	// APIKey is sent in the X-Authorization header (REQUIRED)
	APIKey string

	// UserAgent header
	UserAgent string

	// Timeout per HTTP request
	Timeout time.Duration

	// Retry overrides. Zero keeps the per-error-class defaults.
	MaxAttempts    int
	InitialBackoff time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		APIKey:    apiKey,
		UserAgent: "tap-loopreturns/0.1.0",
		Timeout:   30 * time.Second,
	}
}

// New creates a new Loop Returns client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	if cfg.MaxAttempts < 0 {
		return nil, fmt.Errorf("max_attempts must be >= 0 (got %d)", cfg.MaxAttempts)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "loop-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		rateLimiter: ratelimit.NewTracker(logger),
		config:      cfg,
		logger:      logger,
	}, nil
}

// Get performs a GET request against path (relative to the base URL) with
// the given query parameters and returns the response body of a 2xx response.
// Server, rate limit and network failures are retried; every other failure is
// returned as an *APIError.
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	var body []byte
	err := c.getDecoded(ctx, path, params, func(b []byte) error {
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// getDecoded performs a GET request and hands each 2xx body to decode inside
// the retry loop. A decode failure is an ErrorClassDecode error and is
// retried like a server error.
func (c *Client) getDecoded(ctx context.Context, path string, params url.Values, decode func([]byte) error) error {
	endpoint := path
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	startTime := time.Now()
	defer func() {
		loopRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	return c.retryWithBackoff(ctx, func() error {
		body, err := c.do(ctx, endpoint, fullURL)
		if err != nil {
			return err
		}
		if err := decode(body); err != nil {
			loopErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Failed to decode response")
			return &APIError{
				StatusCode: http.StatusOK,
				ErrorClass: ErrorClassDecode,
				Message:    "malformed response body",
				Err:        err,
			}
		}
		return nil
	})
}

// do executes a single request attempt.
func (c *Client) do(ctx context.Context, endpoint, fullURL string) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(AuthHeader, c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("query", req.URL.RawQuery).
		Msg("Executing Loop request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// cancellation is the caller's decision, not a transient failure
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		loopErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		loopRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &APIError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	if err := c.rateLimiter.UpdateFromHeaders(resp.Header); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
	}

	status := strconv.Itoa(resp.StatusCode)
	loopRequestsTotal.WithLabelValues(endpoint, status).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		loopErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}

	errClass := classifyStatus(resp.StatusCode)
	if errClass == "" {
		return body, nil
	}

	if errClass == ErrorClassRateLimit {
		delay := c.rateLimiter.UpdateFromRetryAfter(resp.Header)
		c.logger.Warn().Dur("retry_after", delay).Str("endpoint", endpoint).Msg("Rate limited by Loop API")
	}

	loopErrorsTotal.WithLabelValues(string(errClass)).Inc()
	c.logger.Warn().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Str("error_class", string(errClass)).
		Msg("Loop request error")

	message := strings.TrimSpace(string(body))
	if len(message) > maxErrorBody {
		message = message[:maxErrorBody]
	}
	if message == "" {
		message = resp.Status
	}

	return nil, &APIError{
		StatusCode: resp.StatusCode,
		ErrorClass: errClass,
		Message:    message,
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// RateLimiter returns the rate limit tracker (for testing).
func (c *Client) RateLimiter() *ratelimit.Tracker {
	return c.rateLimiter
}
