package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/tap-loopreturns/pkg/window"
	"github.com/rs/zerolog"
)

// ResumeOffset is added to a persisted cursor so the record sitting exactly
// on the watermark is not delivered again.
const ResumeOffset = time.Second

var (
	// ErrNoStartingPoint is returned when neither state nor a start date exist.
	ErrNoStartingPoint = errors.New("no persisted state and no start date configured")

	// ErrCursorRegression is returned when Advance would move the cursor backwards.
	ErrCursorRegression = errors.New("cursor must not move backwards")
)

// Tracker holds the replication cursor of one stream.
type Tracker struct {
	stream  string
	store   Store
	cursor  time.Time
	resumed bool
	logger  zerolog.Logger
}

// NewTracker loads the bookmark of stream from store. Without a bookmark the
// cursor starts at startDate.
func NewTracker(ctx context.Context, store Store, stream string, startDate time.Time, logger zerolog.Logger) (*Tracker, error) {
	t := &Tracker{
		stream: stream,
		store:  store,
		logger: logger.With().Str("stream", stream).Logger(),
	}

	bookmark, err := store.Load(ctx, stream)
	switch {
	case err == nil:
		cursor, err := window.ParseTimestamp(bookmark.ReplicationKeyValue)
		if err != nil {
			return nil, fmt.Errorf("%w: stream %s: %v", ErrInvalidBookmark, stream, err)
		}
		t.cursor = cursor
		t.resumed = true
		t.logger.Info().Time("cursor", cursor).Msg("Resuming from persisted state")
	case errors.Is(err, ErrNotFound):
		if startDate.IsZero() {
			return nil, fmt.Errorf("stream %s: %w", stream, ErrNoStartingPoint)
		}
		t.cursor = startDate.UTC()
		t.logger.Info().Time("cursor", t.cursor).Msg("No persisted state, starting from start date")
	default:
		return nil, fmt.Errorf("load state for %s: %w", stream, err)
	}

	CursorTimestamp.WithLabelValues(stream).Set(float64(t.cursor.Unix()))
	return t, nil
}

// Stream returns the stream name.
func (t *Tracker) Stream() string {
	return t.stream
}

// CurrentCursor returns the watermark: the persisted value, the start date,
// or the end of the last window advanced in this run.
func (t *Tracker) CurrentCursor() time.Time {
	return t.cursor
}

// Resumed reports whether the cursor was loaded from persisted state.
func (t *Tracker) Resumed() bool {
	return t.resumed
}

// EffectiveStart returns the lower bound of the first window of a run. A
// persisted cursor is shifted by ResumeOffset; a start date is used as is.
// Callers take it once per run and chain later windows off each window end.
func (t *Tracker) EffectiveStart() time.Time {
	if t.resumed {
		return t.cursor.Add(ResumeOffset)
	}
	return t.cursor
}

// Bookmark returns the bookmark for the current cursor.
func (t *Tracker) Bookmark() Bookmark {
	return Bookmark{ReplicationKeyValue: window.FormatTimestamp(t.cursor)}
}

// Advance moves the cursor to windowEnd and persists it. The in-memory cursor
// only changes once the store has accepted the bookmark.
func (t *Tracker) Advance(ctx context.Context, windowEnd time.Time) error {
	windowEnd = windowEnd.UTC()
	if windowEnd.Before(t.cursor) {
		return fmt.Errorf("%w: %s -> %s", ErrCursorRegression,
			window.FormatTimestamp(t.cursor), window.FormatTimestamp(windowEnd))
	}

	bookmark := Bookmark{ReplicationKeyValue: window.FormatTimestamp(windowEnd)}
	if err := t.store.Save(ctx, t.stream, bookmark); err != nil {
		return fmt.Errorf("persist state for %s: %w", t.stream, err)
	}

	t.cursor = windowEnd
	CursorTimestamp.WithLabelValues(t.stream).Set(float64(windowEnd.Unix()))

	t.logger.Debug().Str("cursor", bookmark.ReplicationKeyValue).Msg("Checkpoint persisted")
	return nil
}
