package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// ErrNotLoaded is returned when historical statistics are requested before a
// successful Load.
var ErrNotLoaded = errors.New("historical statistics not loaded")

// PeriodAggregate holds precomputed on-time-performance figures for one
// calendar period.
type PeriodAggregate struct {
	Flights          float64 `json:"flights"`
	Delays           float64 `json:"delays"`
	Cancellations    float64 `json:"cancellations"`
	MeanDelayMinutes float64 `json:"mean_delay_minutes"`
}

// SiteHistory holds precomputed per-site figures over the dataset's most
// recent reporting period.
type SiteHistory struct {
	SiteID           string  `json:"site_id"`
	Name             string  `json:"name"`
	Flights          float64 `json:"flights"`
	MeanDelayMinutes float64 `json:"mean_delay_minutes"`
	CancellationRate float64 `json:"cancellation_rate"` // 0..1
}

// HistoricalStats is the full precomputed dataset: aggregates keyed by
// calendar month ("2026-07"), quarter ("2026-Q2"), and year ("2026"), plus
// per-site figures.
type HistoricalStats struct {
	GeneratedAt time.Time                  `json:"generated_at"`
	Months      map[string]PeriodAggregate `json:"months"`
	Quarters    map[string]PeriodAggregate `json:"quarters"`
	Years       map[string]PeriodAggregate `json:"years"`
	Sites       []SiteHistory              `json:"sites"`
}

// LatestMonth returns the most recent monthly aggregate, keyed
// lexicographically (keys are zero-padded so this matches chronology).
func (h *HistoricalStats) LatestMonth() (string, PeriodAggregate, bool) {
	return latest(h.Months)
}

// LatestQuarter returns the most recent quarterly aggregate.
func (h *HistoricalStats) LatestQuarter() (string, PeriodAggregate, bool) {
	return latest(h.Quarters)
}

func latest(m map[string]PeriodAggregate) (string, PeriodAggregate, bool) {
	var best string
	for k := range m {
		if k > best {
			best = k
		}
	}
	if best == "" {
		return "", PeriodAggregate{}, false
	}
	return best, m[best], true
}

// HistoricalStore loads precomputed statistics from a static JSON blob and
// caches them for the process lifetime. Reload is manual; the dataset is a
// batch artifact that changes rarely.
type HistoricalStore struct {
	path string

	mu    sync.RWMutex
	stats *HistoricalStats
}

// NewHistoricalStore creates a store backed by the given blob path.
// The blob is not read until Load is called.
func NewHistoricalStore(path string) *HistoricalStore {
	return &HistoricalStore{path: path}
}

// Load reads and parses the blob, replacing any previously cached dataset.
func (s *HistoricalStore) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read historical statistics: %w", err)
	}

	var stats HistoricalStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return fmt.Errorf("failed to parse historical statistics: %w", err)
	}

	s.mu.Lock()
	s.stats = &stats
	s.mu.Unlock()
	return nil
}

// Get returns the cached dataset, or ErrNotLoaded if Load never succeeded.
func (s *HistoricalStore) Get() (*HistoricalStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stats == nil {
		return nil, ErrNotLoaded
	}
	return s.stats, nil
}
