package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/tap-loopreturns/pkg/state"
	"github.com/Sternrassler/tap-loopreturns/pkg/window"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sink receives the output of a run. WriteState is called once after every
// checkpointed window, with the bookmark that was just persisted.
type Sink interface {
	WriteRecord(stream string, record Record) error
	WriteState(stream string, bookmark state.Bookmark) error
}

// Phase is a state of the replication loop.
type Phase int

const (
	PhasePlanning Phase = iota
	PhaseFetching
	PhaseCheckpointing
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhasePlanning:
		return "planning"
	case PhaseFetching:
		return "fetching"
	case PhaseCheckpointing:
		return "checkpointing"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Result summarises a run.
type Result struct {
	RunID   string
	Now     time.Time
	Windows []window.Window
	Records int
	Cursor  time.Time
}

// Driver runs the replication loop of one stream.
type Driver struct {
	stream  Stream
	planner *window.Planner
	fetcher *Fetcher
	tracker *state.Tracker
	sink    Sink
	logger  zerolog.Logger
	phase   Phase

	// now is replaced in tests
	now func() time.Time
}

// NewDriver wires the components of a run together.
func NewDriver(s Stream, planner *window.Planner, fetcher *Fetcher, tracker *state.Tracker, sink Sink, logger zerolog.Logger) *Driver {
	return &Driver{
		stream:  s,
		planner: planner,
		fetcher: fetcher,
		tracker: tracker,
		sink:    sink,
		logger:  logger.With().Str("stream", s.Name).Logger(),
		phase:   PhasePlanning,
		now:     time.Now,
	}
}

// Phase returns the phase the driver is in, or was in when Run returned.
func (d *Driver) Phase() Phase {
	return d.phase
}

// Run extracts every window between the tracker's effective start and the
// current time. The current time is read once; windows planned later in the
// run never reach past it.
//
// A failure while fetching or emitting a window returns immediately and
// leaves that window uncheckpointed. The returned Result reflects the
// windows completed before the failure.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	result := &Result{
		RunID: uuid.NewString(),
		Now:   d.now().UTC().Truncate(time.Second),
	}
	logger := d.logger.With().Str("run_id", result.RunID).Logger()

	cursor := d.tracker.EffectiveStart()
	result.Cursor = d.tracker.CurrentCursor()

	logger.Info().
		Time("cursor", cursor).
		Time("now", result.Now).
		Bool("resumed", d.tracker.Resumed()).
		Msg("Starting sync")

	for {
		d.phase = PhasePlanning
		if err := ctx.Err(); err != nil {
			Runs.WithLabelValues(d.stream.Name, "error").Inc()
			return result, err
		}

		w, ok := d.planner.Next(cursor, result.Now)
		if !ok {
			break
		}

		started := time.Now()
		n, err := d.fetchWindow(ctx, w, logger)
		result.Records += n
		if err != nil {
			Runs.WithLabelValues(d.stream.Name, "error").Inc()
			logger.Error().Err(err).
				Str("from", w.From.Format(window.Layout)).
				Str("to", w.To.Format(window.Layout)).
				Int("records", n).
				Msg("Window aborted")
			return result, err
		}

		if err := d.checkpoint(ctx, w); err != nil {
			Runs.WithLabelValues(d.stream.Name, "error").Inc()
			return result, err
		}

		WindowsCompleted.WithLabelValues(d.stream.Name).Inc()
		WindowDuration.WithLabelValues(d.stream.Name).Observe(time.Since(started).Seconds())

		result.Windows = append(result.Windows, w)
		result.Cursor = d.tracker.CurrentCursor()
		cursor = w.To

		logger.Info().
			Str("from", w.From.Format(window.Layout)).
			Str("to", w.To.Format(window.Layout)).
			Int("records", n).
			Str("cursor", window.FormatTimestamp(result.Cursor)).
			Msg("Window completed")
	}

	d.phase = PhaseDone
	Runs.WithLabelValues(d.stream.Name, "success").Inc()

	logger.Info().
		Int("windows", len(result.Windows)).
		Int("records", result.Records).
		Str("cursor", window.FormatTimestamp(result.Cursor)).
		Msg("Sync complete")

	return result, nil
}

// fetchWindow streams the records of w to the sink and returns how many
// were emitted.
func (d *Driver) fetchWindow(ctx context.Context, w window.Window, logger zerolog.Logger) (int, error) {
	d.phase = PhaseFetching
	logger.Debug().
		Str("from", w.From.Format(window.Layout)).
		Str("to", w.To.Format(window.Layout)).
		Msg("Fetching window")

	n := 0
	for rec, err := range d.fetcher.Records(ctx, w) {
		if err != nil {
			return n, fmt.Errorf("fetch window %s: %w", w, err)
		}
		if err := d.sink.WriteRecord(d.stream.Name, rec); err != nil {
			return n, fmt.Errorf("emit record: %w", err)
		}
		n++
		RecordsEmitted.WithLabelValues(d.stream.Name).Inc()
	}
	return n, nil
}

// checkpoint persists w.To as the new cursor, then announces it.
func (d *Driver) checkpoint(ctx context.Context, w window.Window) error {
	d.phase = PhaseCheckpointing
	if err := d.tracker.Advance(ctx, w.To); err != nil {
		return fmt.Errorf("checkpoint window %s: %w", w, err)
	}
	if err := d.sink.WriteState(d.stream.Name, d.tracker.Bookmark()); err != nil {
		return fmt.Errorf("emit state: %w", err)
	}
	return nil
}
