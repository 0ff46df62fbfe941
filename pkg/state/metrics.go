package state

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StateSaves tracks persisted checkpoints by backend
	StateSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loop_state_saves_total",
			Help: "Total number of persisted replication checkpoints",
		},
		[]string{"backend"},
	)

	// StateLoads tracks bookmark lookups by backend and result
	StateLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loop_state_loads_total",
			Help: "Total number of bookmark loads",
		},
		[]string{"backend", "result"}, // "hit", "miss"
	)

	// StateErrors tracks store operation errors
	StateErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loop_state_errors_total",
			Help: "Total number of state store operation errors",
		},
		[]string{"backend", "operation"}, // "load", "save"
	)

	// CursorTimestamp is the current cursor of each stream as unix seconds
	CursorTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "loop_state_cursor_timestamp_seconds",
			Help: "Replication cursor of each stream as a unix timestamp",
		},
		[]string{"stream"},
	)
)
