package livecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flightwatch/flightboard/pkg/flight"
	"github.com/flightwatch/flightboard/pkg/provider"
)

// fakeFeed returns canned snapshots or errors, one per call.
type fakeFeed struct {
	snapshots []*provider.FeedSnapshot
	errs      []error
	calls     int
}

func (f *fakeFeed) FetchPositions(ctx context.Context) (*provider.FeedSnapshot, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.snapshots) {
		return f.snapshots[i], nil
	}
	return &provider.FeedSnapshot{CapturedAt: time.Now()}, nil
}

func testConfig() Config {
	return Config{
		Sites: []flight.Site{
			{ID: "KJFK", Name: "John F. Kennedy Intl", Latitude: 40.6413, Longitude: -73.7781},
			{ID: "KLGA", Name: "LaGuardia", Latitude: 40.7769, Longitude: -73.8740},
		},
		RadiusNM:           50,
		RefreshInterval:    time.Minute,
		ProviderTimeout:    time.Second,
		FreshnessThreshold: 2 * time.Minute,
		UnhealthyThreshold: 5,
		DailyQuota:         1000,
	}
}

func TestCache_StartsUninitialized(t *testing.T) {
	c := New(&fakeFeed{}, testConfig())

	st := c.Status()
	if st.State != StateUninitialized {
		t.Errorf("State = %q, want %q", st.State, StateUninitialized)
	}
	if st.IsHealthy {
		t.Error("uninitialized cache should not be healthy")
	}
	if got := c.GetAll(); got != nil {
		t.Errorf("GetAll = %v, want nil before first refresh", got)
	}
}

func TestCache_RefreshPublishesWholeSnapshot(t *testing.T) {
	captured := time.Now()
	feed := &fakeFeed{snapshots: []*provider.FeedSnapshot{{
		CapturedAt: captured,
		Positions: []flight.Position{
			{Callsign: "UAL1", Latitude: 40.64, Longitude: -73.78, Timestamp: captured.UnixMilli()},
			{Callsign: "DAL2", Latitude: 40.65, Longitude: -73.79, Timestamp: captured.UnixMilli()},
		},
	}}}
	c := New(feed, testConfig())

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	got := c.GetAll()
	if len(got) != 2 {
		t.Fatalf("GetAll len = %d, want 2", len(got))
	}
	// Every position in one snapshot shares the same capture cycle.
	for _, p := range got {
		if p.Timestamp != captured.UnixMilli() {
			t.Errorf("position %s timestamp %d, want %d", p.Callsign, p.Timestamp, captured.UnixMilli())
		}
	}
	if !c.CapturedAt().Equal(captured) {
		t.Errorf("CapturedAt = %v, want %v", c.CapturedAt(), captured)
	}

	st := c.Status()
	if st.State != StateHealthy {
		t.Errorf("State = %q, want %q", st.State, StateHealthy)
	}
	if !st.IsFresh {
		t.Error("just-refreshed cache should be fresh")
	}
	if st.TrackedAircraft != 2 {
		t.Errorf("TrackedAircraft = %d, want 2", st.TrackedAircraft)
	}
}

func TestCache_FailureKeepsPreviousSnapshot(t *testing.T) {
	captured := time.Now()
	feed := &fakeFeed{
		snapshots: []*provider.FeedSnapshot{{
			CapturedAt: captured,
			Positions:  []flight.Position{{Callsign: "UAL1", Timestamp: captured.UnixMilli()}},
		}},
		errs: []error{nil, errors.New("upstream down")},
	}
	c := New(feed, testConfig())

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("second Refresh should fail")
	}

	if len(c.GetAll()) != 1 {
		t.Error("failed refresh must not disturb the served snapshot")
	}
	st := c.Status()
	if st.State != StateDegraded {
		t.Errorf("State = %q, want %q", st.State, StateDegraded)
	}
	if !st.IsHealthy {
		t.Error("degraded cache still counts as healthy for serving")
	}
	if st.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", st.ConsecutiveErrors)
	}
}

func TestCache_HealthStateTransitions(t *testing.T) {
	cfg := testConfig()
	errs := make([]error, 7)
	errs[0] = nil // first refresh succeeds
	for i := 1; i < 7; i++ {
		errs[i] = errors.New("boom")
	}
	feed := &fakeFeed{
		snapshots: []*provider.FeedSnapshot{{CapturedAt: time.Now()}},
		errs:      errs,
	}
	c := New(feed, cfg)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if st := c.Status(); st.State != StateHealthy {
		t.Fatalf("State = %q, want healthy", st.State)
	}

	for i := 0; i < cfg.UnhealthyThreshold-1; i++ {
		c.Refresh(context.Background())
	}
	if st := c.Status(); st.State != StateDegraded {
		t.Errorf("State after %d errors = %q, want degraded", cfg.UnhealthyThreshold-1, st.State)
	}

	c.Refresh(context.Background())
	st := c.Status()
	if st.State != StateUnhealthy {
		t.Errorf("State after %d errors = %q, want unhealthy", cfg.UnhealthyThreshold, st.State)
	}
	if st.IsHealthy {
		t.Error("unhealthy cache must report IsHealthy=false")
	}
}

func TestCache_RecoveryResetsErrors(t *testing.T) {
	feed := &fakeFeed{
		snapshots: []*provider.FeedSnapshot{nil, nil, {CapturedAt: time.Now()}},
		errs:      []error{errors.New("a"), errors.New("b"), nil},
	}
	c := New(feed, testConfig())

	c.Refresh(context.Background())
	c.Refresh(context.Background())
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	st := c.Status()
	if st.ConsecutiveErrors != 0 {
		t.Errorf("ConsecutiveErrors = %d, want 0 after recovery", st.ConsecutiveErrors)
	}
	if st.State != StateHealthy {
		t.Errorf("State = %q, want healthy", st.State)
	}
}

func TestCache_DailyQuotaRefusesCalls(t *testing.T) {
	cfg := testConfig()
	cfg.DailyQuota = 2
	feed := &fakeFeed{}
	c := New(feed, cfg)

	c.Refresh(context.Background())
	c.Refresh(context.Background())

	err := c.Refresh(context.Background())
	if !errors.Is(err, provider.ErrQuotaExceeded) {
		t.Fatalf("err = %v, want quota exceeded", err)
	}
	if feed.calls != 2 {
		t.Errorf("feed called %d times, want 2 (quota must refuse before the call)", feed.calls)
	}
}

func TestCache_SiteIndexNearestWins(t *testing.T) {
	captured := time.Now()
	// JFK and LGA are ~10 NM apart; this position is within 50 NM of both
	// but closer to JFK.
	feed := &fakeFeed{snapshots: []*provider.FeedSnapshot{{
		CapturedAt: captured,
		Positions: []flight.Position{
			{Callsign: "NEAR_JFK", Latitude: 40.65, Longitude: -73.78, Timestamp: captured.UnixMilli()},
			{Callsign: "FAR_AWAY", Latitude: 51.47, Longitude: -0.45, Timestamp: captured.UnixMilli()},
		},
	}}}
	c := New(feed, testConfig())

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	jfk := c.GetNearSite("KJFK")
	lga := c.GetNearSite("KLGA")
	if len(jfk) != 1 || jfk[0].Callsign != "NEAR_JFK" {
		t.Errorf("KJFK = %v, want exactly NEAR_JFK", jfk)
	}
	if len(lga) != 0 {
		t.Errorf("KLGA = %v, want empty (nearest site wins, no double counting)", lga)
	}
}

func TestCache_OutOfRangeUnassigned(t *testing.T) {
	index := buildSiteIndex(
		[]flight.Position{{Callsign: "LHR1", Latitude: 51.47, Longitude: -0.45}},
		[]flight.Site{{ID: "KJFK", Latitude: 40.6413, Longitude: -73.7781}},
		50,
	)
	if len(index) != 0 {
		t.Errorf("index = %v, want empty for out-of-range position", index)
	}
}
