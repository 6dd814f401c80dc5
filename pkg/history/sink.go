package history

import (
	"time"

	"github.com/flightwatch/flightboard/pkg/flight"
)

// State is the serialized form of the rolling history: the full identifier
// to position-sequence mapping plus the auxiliary counters that survive
// restarts.
type State struct {
	SavedAt       time.Time                    `json:"saved_at"`
	Sequences     map[string][]flight.Position `json:"sequences"`
	PeakActive    int                          `json:"peak_active"`
	PeakTime      time.Time                    `json:"peak_time"`
	BaselineCount int                          `json:"baseline_count"`
	BaselineDate  string                       `json:"baseline_date"`
	DelayTotal    int                          `json:"delay_total"`
	CancelTotal   int                          `json:"cancel_total"`
}

// Sink is the durable backing for the rolling history.
// Implementations: file (default, JSON on disk), badger (embedded KV).
type Sink interface {
	// Load reads the persisted state. Returns (nil, nil) when no prior
	// state exists; callers treat parse failures as cold start.
	Load() (*State, error)

	// Store writes the full state, creating the parent container if absent.
	Store(st *State) error

	// Size returns the serialized size in bytes, 0 when no state exists.
	Size() (int64, error)

	// Archive compresses the current persisted state into a named archive.
	// The live state is left in place; rotation rewrites it afterwards.
	Archive(name string) error

	// Close cleanly shuts down the sink.
	Close() error
}
