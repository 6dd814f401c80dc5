package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/flightwatch/flightboard/pkg/config"
	"github.com/flightwatch/flightboard/pkg/history"
	"github.com/flightwatch/flightboard/pkg/server"
)

func main() {
	log.Println("🚀 Starting FlightBoard Server...")

	// Read configuration from environment variables
	// FLIGHTBOARD_DATA_DIR:          data directory (default ./data/flightboard)
	// FLIGHTBOARD_SITES_FILE:        site coordinate table (fatal if malformed)
	// FLIGHTBOARD_FEED_URL:          live position feed endpoint
	// FLIGHTBOARD_STATUS_URL:        airspace status feed (optional)
	// FLIGHTBOARD_HISTORICAL_FILE:   historical stats reference file (optional)
	// FLIGHTBOARD_SINK:              history persistence backend (file|badger)
	// FLIGHTBOARD_DAILY_QUOTA:       upstream call budget per day
	// FLIGHTBOARD_MAX_HISTORY_BYTES: rotation threshold for the history file
	cfg := server.LoadConfig()
	log.Printf("⚙️  Configuration: data dir %s, sink %s, daily quota %d", cfg.DataDir, cfg.SinkBackend, cfg.DailyQuota)

	// Site table is the one fatal configuration error: the proximity index
	// cannot function without valid coordinates.
	sites := server.LoadSiteTable(cfg)

	// Initialize history persistence
	sink, err := server.InitializeSink(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize history sink: %v", err)
	}

	store := history.NewStore(sink)
	defer store.Close()

	// Best-effort warm start: a missing or corrupt saved state means a cold
	// start, never a failed one.
	store.Load(config.DiskRetention)
	log.Printf("💾 History store loaded: %d aircraft, %d observations", store.Stats().Aircraft, store.Stats().TotalObservations)

	// Build live cache, aggregator, response cache, export handler, and hub
	live, agg, respCache, exportHandler, hub := server.InitializeComponents(cfg, sites, store)

	// Health monitors
	rotationMonitor, diskMonitor := server.InitializeMonitors(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	log.Println("📡 WebSocket hub started for real-time position streaming")

	wg.Add(1)
	go func() {
		defer wg.Done()
		server.BroadcastPositions(ctx, live, hub)
	}()
	log.Printf("📤 Position broadcaster started (updates every %v)", config.BroadcastInterval)

	// Background loops: feed refresh, retention prune, rotation, cache sweep
	stopRefresh := make(chan bool)
	wg.Add(1)
	go server.RunRefresh(live, store, stopRefresh, &wg)

	stopPrune := make(chan bool)
	wg.Add(1)
	go server.RunPrune(store, stopPrune, &wg)

	stopRotation := make(chan bool)
	wg.Add(1)
	go server.RunRotation(store, rotationMonitor, cfg.MaxHistoryB, stopRotation, &wg)

	stopSweep := make(chan bool)
	wg.Add(1)
	go server.RunCacheSweep(respCache, stopSweep, &wg)

	// BadgerDB value log GC (no-op for the file sink)
	stopGC := make(chan bool)
	wg.Add(1)
	go server.RunBadgerGC(sink, stopGC, &wg)

	// Create router and register routes
	router := mux.NewRouter()
	server.SetupRoutes(router, live, store, agg, respCache, exportHandler, diskMonitor, rotationMonitor, hub, cfg.Port)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🌐 Server starting on http://localhost:%s", cfg.Port)
		log.Println("📡 API endpoints:")
		log.Println("   GET  /v1/dashboard       - Aggregated dashboard (period=current|week|month|quarter)")
		log.Println("   GET  /v1/status          - Live cache health & freshness")
		log.Println("   GET  /v1/sites           - Configured site table")
		log.Println("   GET  /v1/sites/{id}/aircraft - Aircraft near a site")
		log.Println("   GET  /v1/stats           - History store statistics")
		log.Println("   GET  /v1/history/export  - Export history (JSON/CSV)")
		log.Println("   POST /v1/refresh         - Force a live refresh")
		log.Println("✅ Server ready to accept requests")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutdown signal received...")

	// Cancel context FIRST to stop goroutines
	// Must be called before wg.Wait() or we get deadlock!
	log.Println("⏸️  Stopping background tasks...")
	cancel() // Stops hub.Run() and BroadcastPositions() goroutines
	close(stopRefresh)
	close(stopPrune)
	close(stopRotation)
	close(stopSweep)
	close(stopGC)

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer shutdownCancel()

	log.Println("🔄 Gracefully shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  Server shutdown warning: %v", err)
	}

	// Wait for background goroutines to finish
	log.Println("⏳ Waiting for background tasks to complete...")
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	// Wait with timeout to prevent infinite hang
	select {
	case <-done:
		log.Println("✅ All background tasks stopped cleanly")
	case <-time.After(5 * time.Second):
		log.Println("⚠️  Some background tasks did not stop in time (forcing exit)")
	}

	log.Println("👋 FlightBoard server exited cleanly")
}
