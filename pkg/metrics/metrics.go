// Package metrics exposes the Prometheus metrics of the tap over HTTP.
// All metrics are defined in their respective packages (client, ratelimit,
// state, stream) and registered via promauto on the default registry.
//
// This package provides the metrics endpoint and a reference of all metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by the tap.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - loop_rate_limit_remaining (Gauge): Requests remaining in the current rate limit window
//   - loop_rate_limit_blocks_total (Counter): Requests blocked until the limit reset
//   - loop_rate_limit_throttles_total (Counter): Requests delayed because the limit is low
//
// Request Metrics (pkg/client):
//   - loop_requests_total{endpoint, status} (Counter): Total requests by endpoint and HTTP status
//   - loop_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - loop_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//
// Retry Metrics (pkg/client):
//   - loop_retries_total{error_class} (Counter): Retry attempts by error class
//   - loop_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - loop_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// State Metrics (pkg/state):
//   - loop_state_saves_total{backend} (Counter): Persisted checkpoints
//   - loop_state_loads_total{backend, result} (Counter): Bookmark loads (hit, miss)
//   - loop_state_errors_total{backend, operation} (Counter): Store errors
//   - loop_state_cursor_timestamp_seconds{stream} (Gauge): Replication cursor as unix time
//
// Stream Metrics (pkg/stream):
//   - loop_pages_fetched_total{stream} (Counter): Response pages read
//   - loop_records_emitted_total{stream} (Counter): Records handed to the output
//   - loop_records_skipped_total{stream} (Counter): Records dropped before the window start
//   - loop_windows_completed_total{stream} (Counter): Checkpointed windows
//   - loop_window_duration_seconds{stream} (Histogram): Time to fetch and checkpoint a window
//   - loop_runs_total{stream, result} (Counter): Runs by outcome (success, error)
//
// Example Prometheus Queries:
//
//   # Replication lag
//   time() - loop_state_cursor_timestamp_seconds{stream="returns"}
//
//   # Request Error Rate
//   rate(loop_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(loop_request_duration_seconds_bucket[5m]))

// NewMux returns a handler serving /metrics and /health.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// Server serves the metrics endpoint for the duration of a run.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger zerolog.Logger
}

// Listen binds addr and starts serving in the background.
func Listen(addr string, logger zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           NewMux(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:     ln,
		logger: logger,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
