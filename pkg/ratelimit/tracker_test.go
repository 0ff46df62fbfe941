package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestTracker(now time.Time) *Tracker {
	tracker := NewTracker(zerolog.Nop())
	tracker.now = func() time.Time { return now }
	tracker.ThrottleDelay = 10 * time.Millisecond
	return tracker
}

func TestUpdateFromHeaders(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		headers       map[string]string
		wantRemaining int
		wantResetAt   time.Time
		wantErr       bool
	}{
		{
			name:          "no rate limit headers",
			headers:       map[string]string{},
			wantRemaining: -1,
		},
		{
			name:          "remaining and reset",
			headers:       map[string]string{HeaderRemaining: "42", HeaderReset: "30"},
			wantRemaining: 42,
			wantResetAt:   now.Add(30 * time.Second),
		},
		{
			name:          "remaining without reset",
			headers:       map[string]string{HeaderRemaining: "3"},
			wantRemaining: 3,
			wantResetAt:   now,
		},
		{
			name:          "invalid remaining",
			headers:       map[string]string{HeaderRemaining: "lots"},
			wantRemaining: -1,
			wantErr:       true,
		},
		{
			name:          "invalid reset",
			headers:       map[string]string{HeaderRemaining: "10", HeaderReset: "soon"},
			wantRemaining: -1,
			wantErr:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := newTestTracker(now)

			headers := http.Header{}
			for key, value := range tt.headers {
				headers.Set(key, value)
			}

			err := tracker.UpdateFromHeaders(headers)
			if (err != nil) != tt.wantErr {
				t.Fatalf("UpdateFromHeaders() error = %v, wantErr %v", err, tt.wantErr)
			}

			state := tracker.State()
			if state.Remaining != tt.wantRemaining {
				t.Errorf("Remaining = %d, want %d", state.Remaining, tt.wantRemaining)
			}
			if !tt.wantResetAt.IsZero() && !state.ResetAt.Equal(tt.wantResetAt) {
				t.Errorf("ResetAt = %v, want %v", state.ResetAt, tt.wantResetAt)
			}
		})
	}
}

func TestUpdateFromRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tracker := newTestTracker(now)

	headers := http.Header{}
	headers.Set(HeaderRetryAfter, "7")

	delay := tracker.UpdateFromRetryAfter(headers)
	if delay != 7*time.Second {
		t.Errorf("delay = %v, want 7s", delay)
	}

	state := tracker.State()
	if !state.NeedsBlock() {
		t.Error("state should block after 429")
	}
	if !state.ResetAt.Equal(now.Add(7 * time.Second)) {
		t.Errorf("ResetAt = %v, want %v", state.ResetAt, now.Add(7*time.Second))
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "missing", value: "", want: time.Second},
		{name: "seconds", value: "12", want: 12 * time.Second},
		{name: "negative seconds", value: "-3", want: 0},
		{name: "http date", value: now.Add(90 * time.Second).Format(http.TimeFormat), want: 90 * time.Second},
		{name: "past http date", value: now.Add(-time.Hour).Format(http.TimeFormat), want: 0},
		{name: "garbage", value: "tomorrow", want: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseRetryAfter(tt.value, now); got != tt.want {
				t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestWait_Healthy(t *testing.T) {
	tracker := NewTracker(zerolog.Nop())

	start := time.Now()
	if err := tracker.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Wait() took %v for unknown budget, expected no delay", elapsed)
	}
}

func TestWait_Throttled(t *testing.T) {
	tracker := NewTracker(zerolog.Nop())
	tracker.ThrottleDelay = 20 * time.Millisecond

	headers := http.Header{}
	headers.Set(HeaderRemaining, "2")
	if err := tracker.UpdateFromHeaders(headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	start := time.Now()
	if err := tracker.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Wait() returned after %v, expected throttle of at least 20ms", elapsed)
	}
}

func TestWait_BlockedUntilReset(t *testing.T) {
	tracker := NewTracker(zerolog.Nop())

	headers := http.Header{}
	headers.Set(HeaderRemaining, "0")
	headers.Set(HeaderReset, "1")
	if err := tracker.UpdateFromHeaders(headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	start := time.Now()
	if err := tracker.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("Wait() returned after %v, expected to block until reset", elapsed)
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	tracker := NewTracker(zerolog.Nop())

	headers := http.Header{}
	headers.Set(HeaderRemaining, "0")
	headers.Set(HeaderReset, "60")
	if err := tracker.UpdateFromHeaders(headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tracker.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want context.DeadlineExceeded", err)
	}
}
