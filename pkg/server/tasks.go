package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/flightwatch/flightboard/pkg/cache"
	"github.com/flightwatch/flightboard/pkg/config"
	"github.com/flightwatch/flightboard/pkg/history"
	"github.com/flightwatch/flightboard/pkg/livecache"
	"github.com/flightwatch/flightboard/pkg/server/monitor"
)

// RunRefresh polls the live feed on a fixed interval, feeds each snapshot
// into the rolling history store, and rolls the daily baseline over when the
// wall-clock day changes.
func RunRefresh(live *livecache.Cache, store *history.Store, stop chan bool, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(config.RefreshInterval)
	defer ticker.Stop()

	lastDay := time.Now().Format("2006-01-02")

	refresh := func() {
		now := time.Now()
		if day := now.Format("2006-01-02"); day != lastDay {
			store.RolloverDay(now)
			lastDay = day
			log.Printf("Day rollover: new baseline date %s", day)
		}

		if err := live.Refresh(context.Background()); err != nil {
			// The cache keeps serving the previous snapshot and tracks its
			// own health state; nothing more to do here.
			log.Printf("Live refresh failed: %v", err)
			return
		}

		positions := live.GetAll()
		store.Append(positions)
	}

	// Run once on startup so the dashboard has data immediately.
	refresh()

	for {
		select {
		case <-ticker.C:
			refresh()
		case <-stop:
			log.Println("Stopping refresh loop")
			return
		}
	}
}

// RunPrune drops history observations older than the retention window.
func RunPrune(store *history.Store, stop chan bool, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(config.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			before := store.Stats().TotalObservations
			store.Prune(config.DiskRetention)
			after := store.Stats().TotalObservations
			if dropped := before - after; dropped > 0 {
				log.Printf("Pruned %d observations older than %v", dropped, config.DiskRetention)
			}
		case <-stop:
			log.Println("Stopping prune loop")
			return
		}
	}
}

// RunRotation periodically checks the persisted history size and rotates the
// live file into a dated gzip archive when it exceeds maxBytes.
func RunRotation(store *history.Store, rotMonitor *monitor.RotationMonitor, maxBytes int64, stop chan bool, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(config.RotationInterval)
	defer ticker.Stop()

	// Helper function to run the rotation check with retry and exponential backoff
	runWithRetry := func(isInitial bool) {
		maxRetries := 3
		baseDelay := 30 * time.Second

		for attempt := 0; attempt <= maxRetries; attempt++ {
			if attempt > 0 {
				delay := baseDelay * time.Duration(1<<(attempt-1)) // Exponential backoff: 30s, 60s, 120s
				log.Printf("Retrying rotation check in %v (attempt %d/%d)...", delay, attempt+1, maxRetries+1)
				select {
				case <-time.After(delay):
				case <-stop:
					return
				}
			}

			start := time.Now()
			rotated, err := store.RotateIfOversized(maxBytes, config.StatsWindow)

			if err == nil {
				rotMonitor.RecordSuccess(rotated)
				switch {
				case rotated:
					log.Printf("History rotated in %v (archived + aggressive prune)", time.Since(start).Round(time.Millisecond))
				case isInitial:
					log.Printf("Initial rotation check completed in %v", time.Since(start).Round(time.Millisecond))
				}
				return
			}

			// Failure - record and log
			rotMonitor.RecordFailure(err)
			log.Printf("Rotation check failed (attempt %d/%d): %v", attempt+1, maxRetries+1, err)

			// Check if we should alert
			status := rotMonitor.Status()
			if status.ConsecutiveErrors > 3 {
				log.Printf("ALERT: History rotation has been failing! Consecutive errors: %d", status.ConsecutiveErrors)
			}
		}

		log.Printf("Rotation check failed after %d attempts, will retry on next schedule", maxRetries+1)
	}

	// Run once on startup (non-blocking)
	go func() {
		runWithRetry(true)
	}()

	for {
		select {
		case <-ticker.C:
			runWithRetry(false)
		case <-stop:
			log.Println("Stopping rotation scheduler")
			return
		}
	}
}

// RunCacheSweep evicts expired response-cache entries so memory use stays
// bounded even for keys that are never read again.
func RunCacheSweep(respCache *cache.Cache, stop chan bool, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(config.CacheSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := respCache.Cleanup(); removed > 0 {
				log.Printf("Response cache sweep removed %d expired entries", removed)
			}
		case <-stop:
			log.Println("Stopping response cache sweep")
			return
		}
	}
}

// BroadcastPositions periodically pushes the current live snapshot to
// WebSocket clients. Snapshots that have not changed since the last push are
// skipped, as is all work when no clients are connected.
func BroadcastPositions(ctx context.Context, live *livecache.Cache, hub *PositionsHub) {
	ticker := time.NewTicker(config.BroadcastInterval)
	defer ticker.Stop()

	var lastCaptured time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Skip all work if no clients connected - saves resources
			if !hub.HasClients() {
				continue
			}

			captured := live.CapturedAt()
			if !captured.After(lastCaptured) {
				continue
			}

			positions := live.GetAll()
			update := PositionUpdate{
				Type:       "positions_update",
				Timestamp:  time.Now().Unix(),
				CapturedAt: captured,
				Count:      len(positions),
				Aircraft:   positions,
			}

			if err := hub.Broadcast(update); err != nil {
				log.Printf("Failed to broadcast positions: %v", err)
				continue
			}
			lastCaptured = captured
		}
	}
}

// RunBadgerGC runs BadgerDB garbage collection periodically to reclaim disk
// space when the badger history sink is in use. BadgerDB uses LSM trees which
// accumulate deleted data in the value log.
func RunBadgerGC(sink history.Sink, stop chan bool, wg *sync.WaitGroup) {
	defer wg.Done()

	badgerSink, ok := sink.(*history.BadgerSink)
	if !ok {
		return
	}

	// GC runs every 10 minutes
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	log.Println("BadgerDB GC scheduler started (runs every 10m)")

	for {
		select {
		case <-ticker.C:
			start := time.Now()

			// One GC pass per tick; badger reports "no rewrite" through a
			// sentinel error, which is not a failure.
			err := badgerSink.RunGC(0.5)
			switch {
			case err == nil:
				log.Printf("GC completed in %v (disk space reclaimed)", time.Since(start).Round(time.Millisecond))
			case history.IsNoRewrite(err):
				log.Printf("GC completed in %v (no rewrite needed)", time.Since(start).Round(time.Millisecond))
			default:
				log.Printf("GC failed after %v: %v", time.Since(start).Round(time.Millisecond), err)
			}
		case <-stop:
			log.Println("Stopping BadgerDB GC scheduler")
			return
		}
	}
}
