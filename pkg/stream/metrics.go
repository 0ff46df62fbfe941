package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesFetched tracks response pages read per stream
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loop_pages_fetched_total",
			Help: "Total number of response pages fetched",
		},
		[]string{"stream"},
	)

	// RecordsEmitted tracks records handed to the sink
	RecordsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loop_records_emitted_total",
			Help: "Total number of records emitted",
		},
		[]string{"stream"},
	)

	// RecordsSkipped tracks records dropped for falling before the window start
	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loop_records_skipped_total",
			Help: "Total number of records dropped because they precede the window",
		},
		[]string{"stream"},
	)

	// WindowsCompleted tracks checkpointed windows
	WindowsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loop_windows_completed_total",
			Help: "Total number of fully fetched and checkpointed windows",
		},
		[]string{"stream"},
	)

	// WindowDuration tracks the time spent fetching and checkpointing one window
	WindowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loop_window_duration_seconds",
			Help:    "Time to fetch and checkpoint one window",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"stream"},
	)

	// Runs tracks driver runs by outcome
	Runs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loop_runs_total",
			Help: "Total number of stream runs",
		},
		[]string{"stream", "result"}, // "success", "error"
	)
)
