// Package ratelimit tracks the Loop Returns API request budget and gates
// outgoing requests. It reads the X-RateLimit-Remaining and X-RateLimit-Reset
// headers of every response and the Retry-After header of 429 responses.
package ratelimit

import (
	"time"
)

// Response headers consulted by the tracker.
const (
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Thresholds for rate limit decisions.
const (
	// RemainingThresholdCritical blocks requests until the window resets.
	RemainingThresholdCritical = 1

	// RemainingThresholdWarning applies throttling below this value.
	RemainingThresholdWarning = 5
)

// State is the most recently observed request budget.
type State struct {
	// Remaining is the number of requests left in the current window.
	// Negative when the API has not reported a budget yet.
	Remaining int

	// ResetAt is when the budget window resets.
	ResetAt time.Time

	// LastUpdate is when this state was last updated from headers.
	LastUpdate time.Time
}

// unknownState is used until the first response with rate limit headers.
func unknownState() State {
	return State{Remaining: -1}
}

// Known reports whether the API has reported a budget.
func (s State) Known() bool {
	return s.Remaining >= 0
}

// NeedsBlock returns true if requests must wait for the reset.
func (s State) NeedsBlock() bool {
	return s.Known() && s.Remaining < RemainingThresholdCritical
}

// NeedsThrottling returns true if requests should be slowed down.
func (s State) NeedsThrottling() bool {
	return s.Known() && s.Remaining < RemainingThresholdWarning && !s.NeedsBlock()
}

// TimeUntilReset returns the duration until the budget resets, or 0 if the
// reset time has already passed.
func (s State) TimeUntilReset(now time.Time) time.Duration {
	d := s.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
