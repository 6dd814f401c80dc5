package history

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/flightwatch/flightboard/pkg/flight"
)

// Store owns the rolling history: a mapping from callsign to an
// ordered-by-time sequence of positions, bounded in age, persisted through a
// Sink. Append and prune are serialized by a single store-level mutex;
// persistence runs on a background worker so the refresh hot path never
// blocks on durable-storage I/O.
type Store struct {
	mu        sync.Mutex
	sequences map[string][]flight.Position

	// Auxiliary counters, persisted alongside the mapping.
	peakActive    int
	peakTime      time.Time
	baselineCount int
	baselineDate  string
	delayTotal    int
	cancelTotal   int

	// sinkMu serializes sink I/O: a rotation's read-compress-truncate
	// sequence must never interleave with a concurrent persist.
	sinkMu sync.Mutex
	sink   Sink

	persistCh chan struct{}
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewStore creates a history store over the given sink and starts the
// background persistence worker.
func NewStore(sink Sink) *Store {
	s := &Store{
		sequences: make(map[string][]flight.Position),
		sink:      sink,
		persistCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.persistWorker()
	return s
}

// Load restores persisted state, discarding positions older than the
// retention window. Missing or corrupt state is a cold start, never fatal.
func (s *Store) Load(retention time.Duration) {
	s.sinkMu.Lock()
	st, err := s.sink.Load()
	s.sinkMu.Unlock()

	if err != nil {
		log.Printf("History load failed, starting empty: %v", err)
		return
	}
	if st == nil {
		log.Println("No prior history found, starting empty")
		return
	}

	cutoff := time.Now().Add(-retention).UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for id, seq := range st.Sequences {
		kept := make([]flight.Position, 0, len(seq))
		for _, p := range seq {
			if p.Timestamp >= cutoff {
				kept = append(kept, p)
			}
		}
		if len(kept) > 0 {
			s.sequences[id] = kept
			restored += len(kept)
		}
	}

	s.peakActive = st.PeakActive
	s.peakTime = st.PeakTime
	s.baselineCount = st.BaselineCount
	s.baselineDate = st.BaselineDate
	s.delayTotal = st.DelayTotal
	s.cancelTotal = st.CancelTotal

	// A state saved on a previous day carries that day's peak counters.
	// Roll them over on restore: yesterday's distinct count becomes the
	// comparison baseline, and the peak restarts from today's activity.
	savedDay := st.SavedAt.Format("2006-01-02")
	if savedDay != time.Now().Format("2006-01-02") {
		s.baselineCount = len(s.sequences)
		s.baselineDate = savedDay
		s.peakActive = 0
		s.peakTime = time.Time{}
		log.Printf("Restored state is from %s, rolled daily counters over (baseline %d aircraft)",
			savedDay, s.baselineCount)
	}

	log.Printf("Restored %d observations across %d aircraft from history (saved %s)",
		restored, len(s.sequences), st.SavedAt.Format(time.RFC3339))
}

// Append adds every position to its callsign's sequence. Late or duplicate
// data is never rejected; readers use most-recent-per-callsign semantics.
// Triggers a fire-and-forget persist after every call.
func (s *Store) Append(positions []flight.Position) {
	if len(positions) == 0 {
		return
	}

	active := 0
	var latest int64
	for _, p := range positions {
		if !p.OnGround {
			active++
		}
		if p.Timestamp > latest {
			latest = p.Timestamp
		}
	}

	s.mu.Lock()
	for _, p := range positions {
		s.sequences[p.Callsign] = append(s.sequences[p.Callsign], p)
	}
	if active > s.peakActive {
		s.peakActive = active
		s.peakTime = time.UnixMilli(latest)
	}
	s.mu.Unlock()

	s.schedulePersist()
}

// Prune removes positions older than now minus the retention window and
// deletes sequences left empty. Safe to call concurrently with Append.
func (s *Store) Prune(retention time.Duration) {
	cutoff := time.Now().Add(-retention).UnixMilli()

	s.mu.Lock()
	s.pruneLocked(cutoff)
	s.mu.Unlock()
}

func (s *Store) pruneLocked(cutoff int64) {
	for id, seq := range s.sequences {
		kept := seq[:0:0]
		for _, p := range seq {
			if p.Timestamp >= cutoff {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			delete(s.sequences, id)
		} else {
			s.sequences[id] = kept
		}
	}
}

// DailyStats is derived on demand from the rolling history plus the current
// snapshot. Only the latest retained position per callsign contributes to
// the activity and altitude/speed figures; every retained position counts
// toward the distinct and total-observation figures.
type DailyStats struct {
	UniqueAircraft    int       `json:"unique_aircraft"`
	CurrentlyFlying   int       `json:"currently_flying"`
	MeanAltitude      float64   `json:"mean_altitude"`
	MeanSpeed         float64   `json:"mean_speed"`
	PeakActive        int       `json:"peak_active"`
	PeakTime          time.Time `json:"peak_time"`
	TotalObservations int       `json:"total_observations"`
}

// DeriveDailyStats recomputes daily statistics from scratch. Pure read apart
// from the monotonic peak counters, which only ever rise until the next
// day-rollover resets them.
func (s *Store) DeriveDailyStats(current []flight.Position) DailyStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := make(map[string]flight.Position, len(s.sequences))
	total := 0
	for id, seq := range s.sequences {
		total += len(seq)
		best := seq[0]
		for _, p := range seq[1:] {
			if p.Timestamp > best.Timestamp {
				best = p
			}
		}
		latest[id] = best
	}

	// The current snapshot supersedes retained history when fresher.
	for _, p := range current {
		if prev, ok := latest[p.Callsign]; !ok || p.Timestamp > prev.Timestamp {
			latest[p.Callsign] = p
		}
	}

	stats := DailyStats{
		UniqueAircraft:    len(latest),
		TotalObservations: total,
	}

	var sumAlt, sumSpeed float64
	var newest int64
	for _, p := range latest {
		if p.Timestamp > newest {
			newest = p.Timestamp
		}
		if p.OnGround {
			continue
		}
		stats.CurrentlyFlying++
		sumAlt += p.Altitude
		sumSpeed += p.Speed
	}
	if stats.CurrentlyFlying > 0 {
		stats.MeanAltitude = sumAlt / float64(stats.CurrentlyFlying)
		stats.MeanSpeed = sumSpeed / float64(stats.CurrentlyFlying)
	}

	if stats.CurrentlyFlying > s.peakActive {
		s.peakActive = stats.CurrentlyFlying
		s.peakTime = time.UnixMilli(newest)
	}
	stats.PeakActive = s.peakActive
	stats.PeakTime = s.peakTime

	return stats
}

// RolloverDay captures today's distinct count as the baseline for tomorrow's
// change-from-previous comparison and resets the peak counters. This is the
// only action that resets them.
func (s *Store) RolloverDay(now time.Time) {
	s.mu.Lock()
	s.baselineCount = len(s.sequences)
	s.baselineDate = now.Format("2006-01-02")
	s.peakActive = 0
	s.peakTime = time.Time{}
	s.mu.Unlock()

	s.schedulePersist()
	log.Printf("Saved daily baseline: %d aircraft on %s", s.baselineCount, now.Format("2006-01-02"))
}

// Baseline returns the stored previous-day distinct count and its date.
func (s *Store) Baseline() (count int, date string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baselineCount, s.baselineDate
}

// RecordDelayTotals caches the aggregator's most recent delay and
// cancellation estimates so they survive restarts.
func (s *Store) RecordDelayTotals(delays, cancellations int) {
	s.mu.Lock()
	s.delayTotal = delays
	s.cancelTotal = cancellations
	s.mu.Unlock()
}

// DelayTotals returns the cached delay and cancellation estimates.
func (s *Store) DelayTotals() (delays, cancellations int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delayTotal, s.cancelTotal
}

// Persist serializes the full mapping plus auxiliary counters to the sink.
// Failure is returned for the caller to log; the in-memory state stays
// authoritative either way.
func (s *Store) Persist() error {
	st := s.snapshotState()

	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	if err := s.sink.Store(st); err != nil {
		return fmt.Errorf("failed to persist history: %w", err)
	}
	return nil
}

// snapshotState copies the store state under the map lock.
func (s *Store) snapshotState() *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	sequences := make(map[string][]flight.Position, len(s.sequences))
	for id, seq := range s.sequences {
		cp := make([]flight.Position, len(seq))
		copy(cp, seq)
		sequences[id] = cp
	}

	return &State{
		SavedAt:       time.Now(),
		Sequences:     sequences,
		PeakActive:    s.peakActive,
		PeakTime:      s.peakTime,
		BaselineCount: s.baselineCount,
		BaselineDate:  s.baselineDate,
		DelayTotal:    s.delayTotal,
		CancelTotal:   s.cancelTotal,
	}
}

// RotateIfOversized archives and rewrites the sink when its serialized size
// exceeds maxBytes. The archive is written before anything is truncated, so
// pre-rotation content is never dropped silently. Runs under the sink mutex
// for its full read-compress-rewrite sequence.
func (s *Store) RotateIfOversized(maxBytes int64, aggressiveRetention time.Duration) (bool, error) {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()

	size, err := s.sink.Size()
	if err != nil {
		return false, fmt.Errorf("failed to check history size: %w", err)
	}
	if size <= maxBytes {
		return false, nil
	}

	name := fmt.Sprintf("history-%s.json.gz", time.Now().Format("20060102-150405"))
	if err := s.sink.Archive(name); err != nil {
		return false, fmt.Errorf("failed to archive history: %w", err)
	}

	// Aggressive prune, then rewrite a fresh, smaller live sink.
	cutoff := time.Now().Add(-aggressiveRetention).UnixMilli()
	s.mu.Lock()
	s.pruneLocked(cutoff)
	s.mu.Unlock()

	if err := s.sink.Store(s.snapshotState()); err != nil {
		return true, fmt.Errorf("failed to rewrite history after rotation: %w", err)
	}

	log.Printf("Rotated history: %d bytes archived to %s", size, name)
	return true, nil
}

// StoreStats summarizes the in-memory and on-disk state of the store.
type StoreStats struct {
	Aircraft          int       `json:"aircraft"`
	TotalObservations int       `json:"total_observations"`
	OldestObservation time.Time `json:"oldest_observation,omitempty"`
	NewestObservation time.Time `json:"newest_observation,omitempty"`
	SizeBytes         int64     `json:"size_bytes"`
}

// Stats returns store statistics.
func (s *Store) Stats() StoreStats {
	s.sinkMu.Lock()
	size, err := s.sink.Size()
	s.sinkMu.Unlock()
	if err != nil {
		size = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stats := StoreStats{
		Aircraft:  len(s.sequences),
		SizeBytes: size,
	}

	var oldest, newest int64
	for _, seq := range s.sequences {
		stats.TotalObservations += len(seq)
		for _, p := range seq {
			if oldest == 0 || p.Timestamp < oldest {
				oldest = p.Timestamp
			}
			if p.Timestamp > newest {
				newest = p.Timestamp
			}
		}
	}
	if oldest > 0 {
		stats.OldestObservation = time.UnixMilli(oldest)
	}
	if newest > 0 {
		stats.NewestObservation = time.UnixMilli(newest)
	}

	return stats
}

// PositionsSince returns a flattened, time-ordered copy of every retained
// position at or after the cutoff. Used by the export surface.
func (s *Store) PositionsSince(cutoff time.Time) []flight.Position {
	cutoffMs := cutoff.UnixMilli()

	s.mu.Lock()
	var out []flight.Position
	for _, seq := range s.sequences {
		for _, p := range seq {
			if p.Timestamp >= cutoffMs {
				out = append(out, p)
			}
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// SequenceLen returns the number of retained positions for one callsign.
func (s *Store) SequenceLen(callsign string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sequences[callsign])
}

// schedulePersist queues a background persist. The queue has depth one, so
// bursts of appends coalesce into a single write.
func (s *Store) schedulePersist() {
	select {
	case s.persistCh <- struct{}{}:
	default:
	}
}

func (s *Store) persistWorker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.persistCh:
			if err := s.Persist(); err != nil {
				log.Printf("History persist failed: %v", err)
			}
		}
	}
}

// Close stops the persistence worker and writes a final state.
func (s *Store) Close() error {
	close(s.stopCh)
	s.wg.Wait()
	if err := s.Persist(); err != nil {
		return err
	}
	return s.sink.Close()
}
