package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flightwatch/flightboard/pkg/flight"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	sink := NewFileSink(filepath.Join(dir, "history.json"), filepath.Join(dir, "archive"))
	store := NewStore(sink)
	t.Cleanup(func() { store.Close() })
	return store, dir
}

func pos(callsign string, ts time.Time, onGround bool) flight.Position {
	return flight.Position{
		Callsign:  callsign,
		Latitude:  40.6413,
		Longitude: -73.7781,
		Altitude:  32000,
		Speed:     450,
		OnGround:  onGround,
		Timestamp: ts.UnixMilli(),
	}
}

func TestStore_AppendNeverDeduplicates(t *testing.T) {
	store, _ := newTestStore(t)

	now := time.Now()
	batch := []flight.Position{pos("UAL123", now, false), pos("UAL123", now, false)}

	store.Append(batch)
	store.Append(batch)

	// Identical observations are retained, not collapsed; readers apply
	// most-recent-per-callsign semantics instead.
	if got := store.SequenceLen("UAL123"); got != 4 {
		t.Errorf("SequenceLen = %d, want 4", got)
	}
}

func TestStore_PruneDropsOldAndDeletesEmpty(t *testing.T) {
	store, _ := newTestStore(t)

	now := time.Now()
	store.Append([]flight.Position{
		pos("OLD1", now.Add(-48*time.Hour), false),
		pos("MIX1", now.Add(-48*time.Hour), false),
		pos("MIX1", now, false),
		pos("NEW1", now, false),
	})

	store.Prune(24 * time.Hour)

	if got := store.SequenceLen("OLD1"); got != 0 {
		t.Errorf("OLD1 SequenceLen = %d, want 0", got)
	}
	if got := store.SequenceLen("MIX1"); got != 1 {
		t.Errorf("MIX1 SequenceLen = %d, want 1", got)
	}
	if got := store.Stats().Aircraft; got != 2 {
		t.Errorf("Aircraft = %d, want 2 (empty sequences deleted)", got)
	}
}

func TestStore_DeriveDailyStats(t *testing.T) {
	store, _ := newTestStore(t)

	now := time.Now()
	var batch []flight.Position
	for i := 0; i < 30; i++ {
		batch = append(batch, pos(str("GND", i), now, true))
	}
	for i := 0; i < 20; i++ {
		p := pos(str("AIR", i), now, false)
		p.Altitude = 30000
		p.Speed = 400
		batch = append(batch, p)
	}
	store.Append(batch)

	stats := store.DeriveDailyStats(nil)
	if stats.UniqueAircraft != 50 {
		t.Errorf("UniqueAircraft = %d, want 50", stats.UniqueAircraft)
	}
	if stats.CurrentlyFlying != 20 {
		t.Errorf("CurrentlyFlying = %d, want 20", stats.CurrentlyFlying)
	}
	if stats.MeanAltitude != 30000 {
		t.Errorf("MeanAltitude = %f, want 30000", stats.MeanAltitude)
	}
	if stats.MeanSpeed != 400 {
		t.Errorf("MeanSpeed = %f, want 400", stats.MeanSpeed)
	}
	if stats.TotalObservations != 50 {
		t.Errorf("TotalObservations = %d, want 50", stats.TotalObservations)
	}
}

func TestStore_LatestPositionWins(t *testing.T) {
	store, _ := newTestStore(t)

	now := time.Now()
	// Older airborne observation, newer on-ground one: the aircraft landed.
	store.Append([]flight.Position{pos("DAL55", now.Add(-10*time.Minute), false)})
	store.Append([]flight.Position{pos("DAL55", now, true)})

	stats := store.DeriveDailyStats(nil)
	if stats.UniqueAircraft != 1 {
		t.Errorf("UniqueAircraft = %d, want 1", stats.UniqueAircraft)
	}
	if stats.CurrentlyFlying != 0 {
		t.Errorf("CurrentlyFlying = %d, want 0 (latest position is on ground)", stats.CurrentlyFlying)
	}
}

func TestStore_CurrentSnapshotOverlay(t *testing.T) {
	store, _ := newTestStore(t)

	now := time.Now()
	store.Append([]flight.Position{pos("SWA99", now.Add(-5*time.Minute), true)})

	// A fresher snapshot position supersedes retained history.
	stats := store.DeriveDailyStats([]flight.Position{pos("SWA99", now, false)})
	if stats.CurrentlyFlying != 1 {
		t.Errorf("CurrentlyFlying = %d, want 1 (snapshot is fresher)", stats.CurrentlyFlying)
	}
}

func TestStore_PeakMonotonicUntilRollover(t *testing.T) {
	store, _ := newTestStore(t)

	now := time.Now()
	store.Append([]flight.Position{
		pos("A1", now, false), pos("A2", now, false), pos("A3", now, false),
	})

	stats := store.DeriveDailyStats(nil)
	if stats.PeakActive != 3 {
		t.Errorf("PeakActive = %d, want 3", stats.PeakActive)
	}

	// Fewer active aircraft never lowers the peak.
	time.Sleep(5 * time.Millisecond)
	store.Prune(0)
	store.Append([]flight.Position{pos("A1", now, false)})
	stats = store.DeriveDailyStats(nil)
	if stats.PeakActive != 3 {
		t.Errorf("PeakActive = %d, want 3 (peak never regresses)", stats.PeakActive)
	}

	store.RolloverDay(now)
	stats = store.DeriveDailyStats(nil)
	if stats.PeakActive != 1 {
		t.Errorf("PeakActive after rollover = %d, want 1", stats.PeakActive)
	}
}

func TestStore_RolloverCapturesBaseline(t *testing.T) {
	store, _ := newTestStore(t)

	now := time.Now()
	store.Append([]flight.Position{pos("B1", now, false), pos("B2", now, false)})

	store.RolloverDay(now)

	count, date := store.Baseline()
	if count != 2 {
		t.Errorf("baseline count = %d, want 2", count)
	}
	if date != now.Format("2006-01-02") {
		t.Errorf("baseline date = %q, want %q", date, now.Format("2006-01-02"))
	}
}

func TestStore_PersistAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")

	store := NewStore(NewFileSink(path, filepath.Join(dir, "archive")))
	now := time.Now()
	store.Append([]flight.Position{
		pos("UAL1", now, false),
		pos("UAL1", now.Add(-time.Minute), false),
		pos("DAL2", now, true),
	})
	store.RecordDelayTotals(12, 3)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reloaded := NewStore(NewFileSink(path, filepath.Join(dir, "archive")))
	defer reloaded.Close()
	reloaded.Load(24 * time.Hour)

	if got := reloaded.SequenceLen("UAL1"); got != 2 {
		t.Errorf("UAL1 SequenceLen = %d, want 2", got)
	}
	if got := reloaded.SequenceLen("DAL2"); got != 1 {
		t.Errorf("DAL2 SequenceLen = %d, want 1", got)
	}
	delays, cancels := reloaded.DelayTotals()
	if delays != 12 || cancels != 3 {
		t.Errorf("DelayTotals = (%d, %d), want (12, 3)", delays, cancels)
	}
}

func TestStore_LoadRollsOverPreviousDayCounters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")
	sink := NewFileSink(path, filepath.Join(dir, "archive"))

	yesterday := time.Now().Add(-24 * time.Hour)
	st := &State{
		SavedAt: yesterday,
		Sequences: map[string][]flight.Position{
			"UAL1": {pos("UAL1", yesterday, false)},
			"DAL2": {pos("DAL2", yesterday, true)},
		},
		PeakActive:    250,
		PeakTime:      yesterday,
		BaselineCount: 7,
		BaselineDate:  yesterday.Add(-24 * time.Hour).Format("2006-01-02"),
	}
	if err := sink.Store(st); err != nil {
		t.Fatalf("Store: %v", err)
	}

	store := NewStore(NewFileSink(path, filepath.Join(dir, "archive")))
	defer store.Close()
	store.Load(7 * 24 * time.Hour)

	// Yesterday's peak must not be served as today's: the restored peak
	// restarts from current activity (one airborne aircraft restored).
	stats := store.DeriveDailyStats(nil)
	if stats.PeakActive != 1 {
		t.Errorf("PeakActive = %d, want 1 (previous day's peak rolled over)", stats.PeakActive)
	}

	// Yesterday's distinct count becomes the change-from-previous baseline.
	count, date := store.Baseline()
	if count != 2 {
		t.Errorf("baseline count = %d, want 2", count)
	}
	if date != yesterday.Format("2006-01-02") {
		t.Errorf("baseline date = %q, want %q", date, yesterday.Format("2006-01-02"))
	}
}

func TestStore_LoadSameDayKeepsPeak(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")

	store := NewStore(NewFileSink(path, filepath.Join(dir, "archive")))
	now := time.Now()
	store.Append([]flight.Position{
		pos("A1", now, false), pos("A2", now, false), pos("A3", now, false),
	})
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reloaded := NewStore(NewFileSink(path, filepath.Join(dir, "archive")))
	defer reloaded.Close()
	reloaded.Load(24 * time.Hour)

	if stats := reloaded.DeriveDailyStats(nil); stats.PeakActive != 3 {
		t.Errorf("PeakActive = %d, want 3 (same-day restore keeps the peak)", stats.PeakActive)
	}
}

func TestStore_LoadDiscardsStale(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")

	store := NewStore(NewFileSink(path, filepath.Join(dir, "archive")))
	now := time.Now()
	store.Append([]flight.Position{
		pos("FRESH", now, false),
		pos("STALE", now.Add(-8*24*time.Hour), false),
	})
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reloaded := NewStore(NewFileSink(path, filepath.Join(dir, "archive")))
	defer reloaded.Close()
	reloaded.Load(7 * 24 * time.Hour)

	if got := reloaded.SequenceLen("FRESH"); got != 1 {
		t.Errorf("FRESH SequenceLen = %d, want 1", got)
	}
	if got := reloaded.SequenceLen("STALE"); got != 0 {
		t.Errorf("STALE SequenceLen = %d, want 0", got)
	}
}

func TestStore_LoadCorruptIsColdStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	store := NewStore(NewFileSink(path, filepath.Join(dir, "archive")))
	defer store.Close()
	store.Load(24 * time.Hour)

	if got := store.Stats().Aircraft; got != 0 {
		t.Errorf("Aircraft = %d, want 0 after corrupt load", got)
	}
}

func TestStore_RotateIfOversized(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")
	archiveDir := filepath.Join(dir, "archive")
	sink := NewFileSink(path, archiveDir)

	store := NewStore(sink)
	defer store.Close()

	now := time.Now()
	var batch []flight.Position
	for i := 0; i < 50; i++ {
		// Old enough that an aggressive prune drops them all.
		batch = append(batch, pos(str("AC", i), now.Add(-48*time.Hour), false))
	}
	store.Append(batch)
	if err := store.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	rotated, err := store.RotateIfOversized(1024, 24*time.Hour)
	if err != nil {
		t.Fatalf("RotateIfOversized: %v", err)
	}
	if !rotated {
		t.Fatal("expected rotation for oversized history")
	}

	entries, err := os.ReadDir(archiveDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("archive count = %d, want 1", len(entries))
	}

	size, err := sink.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size > 1024 {
		t.Errorf("live history size = %d, want <= 1024 after rotation", size)
	}
}

func TestStore_RotateSkipsWhenSmall(t *testing.T) {
	store, dir := newTestStore(t)

	store.Append([]flight.Position{pos("ONE", time.Now(), false)})
	if err := store.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	rotated, err := store.RotateIfOversized(1<<20, 24*time.Hour)
	if err != nil {
		t.Fatalf("RotateIfOversized: %v", err)
	}
	if rotated {
		t.Error("small history should not rotate")
	}
	if _, err := os.ReadDir(filepath.Join(dir, "archive")); !os.IsNotExist(err) {
		t.Error("archive directory should not exist when nothing rotated")
	}
}

func TestStore_PositionsSinceSorted(t *testing.T) {
	store, _ := newTestStore(t)

	now := time.Now()
	store.Append([]flight.Position{
		pos("C1", now, false),
		pos("C2", now.Add(-2*time.Hour), false),
		pos("C1", now.Add(-time.Hour), false),
	})

	out := store.PositionsSince(now.Add(-90 * time.Minute))
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0].Timestamp > out[1].Timestamp {
		t.Error("positions not sorted by timestamp")
	}
}

// str builds deterministic callsigns like GND0, GND1, ...
func str(prefix string, i int) string {
	return prefix + string(rune('A'+i/26)) + string(rune('A'+i%26))
}
