// Package window plans the bounded date ranges used to query the Loop Returns API.
//
// A replication run converts the open range between the stream cursor and the
// wall clock into a sequence of closed windows. Each window is queried in full
// and checkpointed before the next one is planned.
package window

import (
	"errors"
	"fmt"
	"time"
)

// Layout is the timestamp format the Loop Returns API expects for the from/to
// query parameters: ISO-8601 without a timezone suffix, interpreted as UTC.
const Layout = "2006-01-02T15:04:05"

// ErrInvalidInterval is returned for a negative backfill interval.
var ErrInvalidInterval = errors.New("backfill interval must not be negative")

// Window is one bounded query range. From <= To always holds.
type Window struct {
	From time.Time
	To   time.Time
}

// String renders the window using the API layout.
func (w Window) String() string {
	return fmt.Sprintf("[%s, %s]", w.From.Format(Layout), w.To.Format(Layout))
}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	return w.To.Sub(w.From)
}

// Planner computes windows from a cursor position. It holds no state.
type Planner struct {
	// Interval bounds the size of each window. Zero means a single window
	// reaching all the way to now.
	Interval time.Duration
}

// NewPlanner creates a planner for the given interval.
func NewPlanner(interval time.Duration) (*Planner, error) {
	if interval < 0 {
		return nil, fmt.Errorf("%w (got %s)", ErrInvalidInterval, interval)
	}
	return &Planner{Interval: interval}, nil
}

// DaysToInterval converts a backfill interval given in (possibly fractional)
// days into a duration. Zero stays zero.
func DaysToInterval(days float64) time.Duration {
	return time.Duration(days * float64(24*time.Hour))
}

// Next returns the window starting at cursor. The second return value is false
// when the cursor has caught up with now and nothing remains to be queried.
func (p *Planner) Next(cursor, now time.Time) (Window, bool) {
	if !cursor.Before(now) {
		return Window{}, false
	}

	to := now
	if p.Interval > 0 {
		if end := cursor.Add(p.Interval); end.Before(now) {
			to = end
		}
	}

	return Window{From: cursor, To: to}, true
}

// Plan returns every window between cursor and now, in order. The driver
// plans lazily through Next; Plan exists for inspection and dry runs.
func (p *Planner) Plan(cursor, now time.Time) []Window {
	var windows []Window
	for {
		w, ok := p.Next(cursor, now)
		if !ok {
			return windows
		}
		windows = append(windows, w)
		cursor = w.To
	}
}
