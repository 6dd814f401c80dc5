package livecache

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flightwatch/flightboard/pkg/flight"
	"github.com/flightwatch/flightboard/pkg/provider"
)

// Health states for the live snapshot cache. Transitions are driven solely
// by refresh outcomes.
const (
	StateUninitialized = "uninitialized"
	StateHealthy       = "healthy"
	StateDegraded      = "degraded"
	StateUnhealthy     = "unhealthy"
)

// Snapshot is one immutable bulk state: every position shares the same
// capture cycle, and the site index is built before the snapshot is
// published. Refreshes swap the whole snapshot by reference; readers never
// observe a half-updated one.
type Snapshot struct {
	CapturedAt time.Time
	Positions  []flight.Position
	bySite     map[string][]flight.Position
}

// Config holds live cache configuration.
type Config struct {
	Sites              []flight.Site
	RadiusNM           float64
	RefreshInterval    time.Duration
	ProviderTimeout    time.Duration
	FreshnessThreshold time.Duration
	UnhealthyThreshold int
	DailyQuota         int
}

// Cache polls the live-position feed on a fixed interval and serves the
// current snapshot to many concurrent readers without per-request upstream
// calls.
type Cache struct {
	feed provider.LiveFeed
	cfg  Config

	current atomic.Pointer[Snapshot]

	mu                sync.Mutex
	consecutiveErrors int
	lastError         string
	lastUpdate        time.Time
	nextUpdate        time.Time
	callsToday        int
	quotaDay          string
}

// New creates a live snapshot cache. The cache starts empty and unhealthy
// until the first successful refresh.
func New(feed provider.LiveFeed, cfg Config) *Cache {
	return &Cache{feed: feed, cfg: cfg}
}

// Refresh calls the live feed once. On success the new snapshot and its site
// index replace the current one atomically; on failure the previous snapshot
// is retained and the error counter rises.
func (c *Cache) Refresh(ctx context.Context) error {
	if err := c.recordCall(); err != nil {
		c.recordFailure(err)
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProviderTimeout)
	defer cancel()

	feed, err := c.feed.FetchPositions(ctx)
	if err != nil {
		c.recordFailure(err)
		return err
	}

	snap := &Snapshot{
		CapturedAt: feed.CapturedAt,
		Positions:  feed.Positions,
		bySite:     buildSiteIndex(feed.Positions, c.cfg.Sites, c.cfg.RadiusNM),
	}
	c.current.Store(snap)

	c.mu.Lock()
	if c.consecutiveErrors > 0 {
		log.Printf("Live feed recovered after %d errors", c.consecutiveErrors)
	}
	c.consecutiveErrors = 0
	c.lastError = ""
	c.lastUpdate = time.Now()
	c.nextUpdate = c.lastUpdate.Add(c.cfg.RefreshInterval)
	c.mu.Unlock()

	return nil
}

// recordCall enforces the daily call quota, resetting the counter at the
// wall-clock day boundary.
func (c *Cache) recordCall() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	today := time.Now().Format("2006-01-02")
	if c.quotaDay != today {
		c.quotaDay = today
		c.callsToday = 0
	}
	if c.cfg.DailyQuota > 0 && c.callsToday >= c.cfg.DailyQuota {
		return fmt.Errorf("%w: %d calls today", provider.ErrQuotaExceeded, c.callsToday)
	}
	c.callsToday++
	return nil
}

func (c *Cache) recordFailure(err error) {
	c.mu.Lock()
	c.consecutiveErrors++
	c.lastError = err.Error()
	c.nextUpdate = time.Now().Add(c.cfg.RefreshInterval)
	count := c.consecutiveErrors
	c.mu.Unlock()

	log.Printf("Live feed refresh failed (%d consecutive): %v", count, err)
}

// GetAll returns the current snapshot's positions. Empty until the first
// successful refresh. Callers must treat the slice as read-only.
func (c *Cache) GetAll() []flight.Position {
	snap := c.current.Load()
	if snap == nil {
		return nil
	}
	return snap.Positions
}

// GetNearSite returns positions whose nearest-site index entry is siteID.
func (c *Cache) GetNearSite(siteID string) []flight.Position {
	snap := c.current.Load()
	if snap == nil {
		return nil
	}
	return snap.bySite[siteID]
}

// CapturedAt returns the capture time of the current snapshot, zero if none.
func (c *Cache) CapturedAt() time.Time {
	snap := c.current.Load()
	if snap == nil {
		return time.Time{}
	}
	return snap.CapturedAt
}

// Sites returns the configured site table.
func (c *Cache) Sites() []flight.Site {
	return c.cfg.Sites
}

// Status describes cache health and freshness for monitoring and for the
// aggregated response's freshness block.
type Status struct {
	State             string    `json:"state"`
	IsHealthy         bool      `json:"is_healthy"`
	IsFresh           bool      `json:"is_fresh"`
	AgeSeconds        float64   `json:"age_seconds"`
	LastUpdate        time.Time `json:"last_update"`
	NextUpdate        time.Time `json:"next_update"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	LastError         string    `json:"last_error,omitempty"`
	TrackedAircraft   int       `json:"tracked_aircraft"`
	CallsToday        int       `json:"calls_today"`
	DailyQuota        int       `json:"daily_quota"`
}

// Status reports the current health state. Freshness is independent of
// health: a cache can be unhealthy yet still fresh, or healthy but stale.
func (c *Cache) Status() Status {
	snap := c.current.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		LastUpdate:        c.lastUpdate,
		NextUpdate:        c.nextUpdate,
		ConsecutiveErrors: c.consecutiveErrors,
		LastError:         c.lastError,
		CallsToday:        c.callsToday,
		DailyQuota:        c.cfg.DailyQuota,
	}
	if snap != nil {
		st.TrackedAircraft = len(snap.Positions)
	}

	switch {
	case c.lastUpdate.IsZero():
		st.State = StateUninitialized
	case c.consecutiveErrors >= c.cfg.UnhealthyThreshold:
		st.State = StateUnhealthy
	case c.consecutiveErrors > 0:
		st.State = StateDegraded
	default:
		st.State = StateHealthy
	}

	// Degraded still serves stale data; unhealthy is advisory, not a
	// refusal to serve.
	st.IsHealthy = st.State == StateHealthy || st.State == StateDegraded

	if !c.lastUpdate.IsZero() {
		age := time.Since(c.lastUpdate)
		st.AgeSeconds = age.Seconds()
		st.IsFresh = age < c.cfg.FreshnessThreshold
	}

	return st
}
