// Package testutil provides testing utilities for the Loop Returns tap.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"
)

// ReturnsPath is the warehouse returns list endpoint.
const ReturnsPath = "/warehouse/return/list"

// timeLayout matches the from/to format of the API.
const timeLayout = "2006-01-02T15:04:05"

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockLoop is a configurable mock Loop Returns API server for testing.
type MockLoop struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	queries           []url.Values
}

// NewMockLoop creates a new mock Loop Returns server.
func NewMockLoop() *MockLoop {
	mock := &MockLoop{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.queries = append(mock.queries, r.URL.Query())
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockLoop) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockLoop) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockLoop) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.queries = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockLoop) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockLoop) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetSequence serves the given responses in order, repeating the last one
// once the sequence is exhausted.
func (m *MockLoop) SetSequence(path string, responses ...MockResponse) {
	var mu sync.Mutex
	next := 0
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[next]
		if next < len(responses)-1 {
			next++
		}
		mu.Unlock()

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockLoop) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// Queries returns the query parameters of every request, in arrival order.
func (m *MockLoop) Queries() []url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]url.Values, len(m.queries))
	copy(out, m.queries)
	return out
}

// SetReturns serves records through the returns endpoint the way the real
// API does: the from/to query filters on updated_at (inclusive), results are
// paginated by pageSize, and each non-final page carries a nextPageUrl whose
// query holds the full parameter set of the following page.
func (m *MockLoop) SetReturns(records []map[string]any) {
	m.SetHandler(ReturnsPath, NewReturnsHandler(m, records))
}

// NewReturnsHandler returns the handler installed by SetReturns.
func NewReturnsHandler(m *MockLoop, records []map[string]any) http.HandlerFunc {
	sorted := make([]map[string]any, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return fmt.Sprint(sorted[i]["updated_at"]) < fmt.Sprint(sorted[j]["updated_at"])
	})

	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		from, err := time.Parse(timeLayout, query.Get("from"))
		if err != nil {
			http.Error(w, `{"error":"invalid from"}`, http.StatusBadRequest)
			return
		}
		to, err := time.Parse(timeLayout, query.Get("to"))
		if err != nil {
			http.Error(w, `{"error":"invalid to"}`, http.StatusBadRequest)
			return
		}

		pageSize := 100
		if v := query.Get("pageSize"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				pageSize = n
			}
		}
		page := 1
		if v := query.Get("page"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				page = n
			}
		}

		var matched []map[string]any
		for _, rec := range sorted {
			ts, err := time.Parse(timeLayout, fmt.Sprint(rec["updated_at"]))
			if err != nil {
				continue
			}
			if !ts.Before(from) && !ts.After(to) {
				matched = append(matched, rec)
			}
		}

		start := (page - 1) * pageSize
		if start > len(matched) {
			start = len(matched)
		}
		end := start + pageSize
		if end > len(matched) {
			end = len(matched)
		}

		resp := map[string]any{"returns": matched[start:end]}
		if end < len(matched) {
			next := url.Values{}
			next.Set("from", query.Get("from"))
			next.Set("to", query.Get("to"))
			next.Set("paginate", "true")
			next.Set("pageSize", strconv.Itoa(pageSize))
			next.Set("filter", "updated_at")
			next.Set("page", strconv.Itoa(page+1))
			resp["nextPageUrl"] = m.URL() + ReturnsPath + "?" + next.Encode()
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ReturnRecord builds a minimal return record.
func ReturnRecord(id int, updatedAt string) map[string]any {
	return map[string]any{
		"id":         id,
		"state":      "open",
		"updated_at": updatedAt,
	}
}

// NewPageResponse creates a 200 OK response with the given records JSON and
// an optional continuation URL.
func NewPageResponse(recordsJSON, nextPageURL string) MockResponse {
	body := fmt.Sprintf(`{"returns": %s}`, recordsJSON)
	if nextPageURL != "" {
		body = fmt.Sprintf(`{"returns": %s, "nextPageUrl": %q}`, recordsJSON, nextPageURL)
	}
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type":          "application/json",
			"X-RateLimit-Remaining": "100",
			"X-RateLimit-Reset":     "60",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Too Many Attempts."}`,
		Headers: map[string]string{
			"Retry-After":  "0",
			"Content-Type": "application/json",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewUnauthorizedResponse creates a 401 response for a bad API key.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"error": "Unauthenticated."}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}
