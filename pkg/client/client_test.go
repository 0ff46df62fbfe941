package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/Sternrassler/tap-loopreturns/internal/testutil"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	cfg := DefaultConfig("test-api-key")
	cfg.BaseURL = baseURL
	cfg.MaxAttempts = 3
	cfg.InitialBackoff = time.Millisecond

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			config: DefaultConfig("secret"),
		},
		{
			name:        "missing api key",
			config:      Config{BaseURL: DefaultBaseURL},
			expectError: true,
			errorMsg:    "api key is required",
		},
		{
			name:        "missing base url",
			config:      Config{APIKey: "secret"},
			expectError: true,
			errorMsg:    "base url is required",
		},
		{
			name:        "relative base url",
			config:      Config{APIKey: "secret", BaseURL: "api/v1"},
			expectError: true,
			errorMsg:    `invalid base url "api/v1"`,
		},
		{
			name:        "negative attempts",
			config:      Config{APIKey: "secret", BaseURL: DefaultBaseURL, MaxAttempts: -1},
			expectError: true,
			errorMsg:    "max_attempts must be >= 0 (got -1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got nil")
					return
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if client == nil {
				t.Error("Client is nil")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("secret")

	if cfg.APIKey != "secret" {
		t.Errorf("APIKey = %q, want secret", cfg.APIKey)
	}
	if cfg.BaseURL != "https://api.loopreturns.com/api/v1" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		t.Errorf("Timeout = %v, should be > 0", cfg.Timeout)
	}
}

func TestGet_SendsAuthAndQuery(t *testing.T) {
	mock := testutil.NewMockLoop()
	defer mock.Close()
	mock.SetResponse(testutil.ReturnsPath, testutil.NewPageResponse(`[]`, ""))

	c := newTestClient(t, mock.URL())

	params := url.Values{"from": {"2024-01-01T00:00:00"}, "pageSize": {"100"}}
	body, err := c.Get(context.Background(), testutil.ReturnsPath, params)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(body) != `{"returns": []}` {
		t.Errorf("body = %s", body)
	}

	if got := mock.LastRequestHeader.Get("X-Authorization"); got != "test-api-key" {
		t.Errorf("X-Authorization = %q, want test-api-key", got)
	}
	if got := mock.LastRequestHeader.Get("Accept"); got != "application/json" {
		t.Errorf("Accept = %q, want application/json", got)
	}

	queries := mock.Queries()
	if len(queries) != 1 {
		t.Fatalf("requests = %d, want 1", len(queries))
	}
	if queries[0].Encode() != params.Encode() {
		t.Errorf("query = %s, want %s", queries[0].Encode(), params.Encode())
	}
}

func TestGet_BaseURLTrailingSlash(t *testing.T) {
	mock := testutil.NewMockLoop()
	defer mock.Close()
	mock.SetResponse(testutil.ReturnsPath, testutil.NewPageResponse(`[]`, ""))

	c := newTestClient(t, mock.URL()+"/")

	if _, err := c.Get(context.Background(), testutil.ReturnsPath, nil); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
}

func TestGet_RetriesServerErrors(t *testing.T) {
	mock := testutil.NewMockLoop()
	defer mock.Close()
	mock.SetSequence(testutil.ReturnsPath,
		testutil.NewServerErrorResponse(),
		testutil.NewServerErrorResponse(),
		testutil.NewPageResponse(`[{"id": 1}]`, ""),
	)

	c := newTestClient(t, mock.URL())

	if _, err := c.Get(context.Background(), testutil.ReturnsPath, nil); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := mock.GetRequestCount(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestGet_RetriesRateLimit(t *testing.T) {
	mock := testutil.NewMockLoop()
	defer mock.Close()
	mock.SetSequence(testutil.ReturnsPath,
		testutil.NewRateLimitResponse(),
		testutil.NewPageResponse(`[]`, ""),
	)

	c := newTestClient(t, mock.URL())

	if _, err := c.Get(context.Background(), testutil.ReturnsPath, nil); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := mock.GetRequestCount(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
	if state := c.RateLimiter().State(); state.Remaining != 100 {
		t.Errorf("rate limit remaining = %d, want 100 after successful response", state.Remaining)
	}
}

func TestGet_ServerErrorsExhausted(t *testing.T) {
	mock := testutil.NewMockLoop()
	defer mock.Close()
	mock.SetResponse(testutil.ReturnsPath, testutil.NewServerErrorResponse())

	c := newTestClient(t, mock.URL())

	_, err := c.Get(context.Background(), testutil.ReturnsPath, nil)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("error = %v, want ErrRetryExhausted", err)
	}
	if got := mock.GetRequestCount(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestGet_ClientErrorNotRetried(t *testing.T) {
	mock := testutil.NewMockLoop()
	defer mock.Close()
	mock.SetResponse(testutil.ReturnsPath, testutil.NewUnauthorizedResponse())

	c := newTestClient(t, mock.URL())

	_, err := c.Get(context.Background(), testutil.ReturnsPath, nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", apiErr.StatusCode)
	}
	if apiErr.ErrorClass != ErrorClassClient {
		t.Errorf("ErrorClass = %s, want client", apiErr.ErrorClass)
	}
	if apiErr.Message != `{"error": "Unauthenticated."}` {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestGet_NetworkError(t *testing.T) {
	mock := testutil.NewMockLoop()
	baseURL := mock.URL()
	mock.Close()

	c := newTestClient(t, baseURL)

	_, err := c.Get(context.Background(), testutil.ReturnsPath, nil)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("error = %v, want ErrRetryExhausted", err)
	}
	if classOf(err) != ErrorClassNetwork {
		t.Errorf("class = %q, want network", classOf(err))
	}
}

func TestGet_ContextCancelled(t *testing.T) {
	mock := testutil.NewMockLoop()
	defer mock.Close()
	mock.SetResponse(testutil.ReturnsPath, testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"returns": []}`,
		Delay:      200 * time.Millisecond,
	})

	c := newTestClient(t, mock.URL())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Get(ctx, testutil.ReturnsPath, nil)
	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("error = %v, want ErrContextCancelled", err)
	}
}

func TestPageFetcher_FetchPage(t *testing.T) {
	mock := testutil.NewMockLoop()
	defer mock.Close()
	mock.SetResponse(testutil.ReturnsPath, testutil.NewPageResponse(
		`[{"id": 1, "updated_at": "2024-01-01T10:00:00"}, {"id": 2, "updated_at": "2024-01-02T10:00:00"}]`,
		mock.URL()+testutil.ReturnsPath+"?pageSize=100&cursor=abc",
	))

	c := newTestClient(t, mock.URL())

	page, err := c.PageFetcher("returns").FetchPage(context.Background(), testutil.ReturnsPath, nil)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(page.Records) != 2 {
		t.Errorf("records = %d, want 2", len(page.Records))
	}
	if page.NextPageURL != mock.URL()+testutil.ReturnsPath+"?pageSize=100&cursor=abc" {
		t.Errorf("NextPageURL = %q", page.NextPageURL)
	}
}

func TestPageFetcher_DecodeError(t *testing.T) {
	mock := testutil.NewMockLoop()
	defer mock.Close()
	mock.SetResponse(testutil.ReturnsPath, testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `<html>maintenance</html>`,
	})

	c := newTestClient(t, mock.URL())

	_, err := c.PageFetcher("returns").FetchPage(context.Background(), testutil.ReturnsPath, nil)
	if !errors.Is(err, ErrDecode) {
		t.Errorf("error = %v, want ErrDecode", err)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("error = %v, want ErrRetryExhausted", err)
	}
	if classOf(err) != ErrorClassDecode {
		t.Errorf("class = %q, want decode", classOf(err))
	}
	if n := mock.GetRequestCount(); n != 3 {
		t.Errorf("requests = %d, want 3", n)
	}
}

func TestPageFetcher_RetriesTruncatedBody(t *testing.T) {
	mock := testutil.NewMockLoop()
	defer mock.Close()
	mock.SetSequence(testutil.ReturnsPath,
		testutil.MockResponse{StatusCode: http.StatusOK, Body: `{"returns": [`},
		testutil.NewPageResponse(`[{"id": 1, "updated_at": "2024-01-01T10:00:00"}]`, ""),
	)

	c := newTestClient(t, mock.URL())

	params := url.Values{"from": {"2024-01-01T00:00:00"}, "to": {"2024-01-02T00:00:00"}}
	page, err := c.PageFetcher("returns").FetchPage(context.Background(), testutil.ReturnsPath, params)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(page.Records) != 1 {
		t.Errorf("records = %d, want 1", len(page.Records))
	}
	if n := mock.GetRequestCount(); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}

	queries := mock.Queries()
	if queries[1].Encode() != params.Encode() {
		t.Errorf("retry query = %q, want %q", queries[1].Encode(), params.Encode())
	}
}
