package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loop_rate_limit_remaining",
		Help: "Requests remaining in the current Loop Returns rate limit window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loop_rate_limit_blocks_total",
		Help: "Total number of requests delayed until the rate limit reset",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loop_rate_limit_throttles_total",
		Help: "Total number of requests throttled due to a low rate limit budget",
	})
)

// DefaultThrottleDelay is the pause applied when the budget is low.
const DefaultThrottleDelay = 1 * time.Second

// maxBlock caps how long a single Wait blocks on a reset, protecting against
// absurd reset headers.
const maxBlock = 5 * time.Minute

// Tracker monitors the request budget and gates requests.
type Tracker struct {
	mu     sync.Mutex
	state  State
	logger zerolog.Logger

	// ThrottleDelay is the pause applied in the warning state.
	ThrottleDelay time.Duration

	now func() time.Time
}

// NewTracker creates a new rate limit tracker.
func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{
		state:         unknownState(),
		logger:        logger,
		ThrottleDelay: DefaultThrottleDelay,
		now:           time.Now,
	}
}

// State returns a copy of the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// UpdateFromHeaders records the budget reported in a response.
// Responses without rate limit headers leave the state untouched.
func (t *Tracker) UpdateFromHeaders(headers http.Header) error {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	now := t.now()
	resetAt := now
	if resetStr := headers.Get(HeaderReset); resetStr != "" {
		resetSeconds, err := strconv.Atoi(resetStr)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderReset, err)
		}
		resetAt = now.Add(time.Duration(resetSeconds) * time.Second)
	}

	t.set(State{Remaining: remain, ResetAt: resetAt, LastUpdate: now})
	return nil
}

// UpdateFromRetryAfter handles a 429 response: the budget is exhausted until
// the Retry-After delay elapses. Returns the delay that was applied.
func (t *Tracker) UpdateFromRetryAfter(headers http.Header) time.Duration {
	delay := ParseRetryAfter(headers.Get(HeaderRetryAfter), t.now())
	now := t.now()
	t.set(State{Remaining: 0, ResetAt: now.Add(delay), LastUpdate: now})
	return delay
}

func (t *Tracker) set(state State) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()

	rateLimitRemaining.Set(float64(state.Remaining))

	switch {
	case state.NeedsBlock():
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit exhausted - requests will wait for reset")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Msg("Rate limit low - requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit state updated")
	}
}

// Wait blocks until a request may be sent. It returns early with the
// context error if ctx is cancelled.
func (t *Tracker) Wait(ctx context.Context) error {
	state := t.State()

	var delay time.Duration
	switch {
	case state.NeedsBlock():
		delay = state.TimeUntilReset(t.now())
		if delay > maxBlock {
			delay = maxBlock
		}
		if delay > 0 {
			rateLimitBlocksTotal.Inc()
			t.logger.Warn().Dur("wait_duration", delay).Msg("Waiting for rate limit reset")
		}
	case state.NeedsThrottling():
		delay = t.ThrottleDelay
		rateLimitThrottlesTotal.Inc()
		t.logger.Debug().Int("remaining", state.Remaining).Msg("Throttling request")
	}

	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ParseRetryAfter interprets a Retry-After value given either as seconds or
// as an HTTP date. Unparseable or missing values yield one second.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return time.Second
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return time.Second
}
