package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/flightwatch/flightboard/pkg/aggregate"
	"github.com/flightwatch/flightboard/pkg/cache"
	"github.com/flightwatch/flightboard/pkg/config"
	"github.com/flightwatch/flightboard/pkg/export"
	"github.com/flightwatch/flightboard/pkg/history"
	"github.com/flightwatch/flightboard/pkg/httpx"
	"github.com/flightwatch/flightboard/pkg/livecache"
	"github.com/flightwatch/flightboard/pkg/server/monitor"
)

var startTime = time.Now()

// StorageUsage is the disk-usage breakdown plus the configured ceiling.
type StorageUsage struct {
	monitor.DiskUsage
	MaxBytes int64 `json:"max_bytes"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status   string                 `json:"status"`
	Version  string                 `json:"version"`
	Uptime   string                 `json:"uptime"`
	Live     livecache.Status       `json:"live"`
	Rotation monitor.RotationStatus `json:"rotation"`
}

// StatsResponse combines history store statistics with disk usage.
type StatsResponse struct {
	History      history.StoreStats `json:"history"`
	Storage      StorageUsage       `json:"storage"`
	CacheEntries int                `json:"cache_entries"`
}

// handleDashboard serves the aggregated dashboard for a requested period.
// Responses are cached per period: the current period for a short TTL,
// historical periods for longer since their inputs change rarely.
func handleDashboard(agg *aggregate.Aggregator, respCache *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		period, err := aggregate.ParsePeriod(r.URL.Query().Get("period"))
		if err != nil {
			httpx.RespondError(w, http.StatusBadRequest, err)
			return
		}

		key := cache.Key("dashboard", string(period))
		if cached, ok := respCache.Get(key); ok {
			w.Header().Set("X-Cache", "HIT")
			httpx.RespondJSON(w, http.StatusOK, cached)
			return
		}

		resp := agg.DashboardData(r.Context(), period)

		ttl := config.HistoricalTTL
		if period == aggregate.PeriodCurrent {
			ttl = config.CurrentPeriodTTL
		}
		respCache.Set(key, resp, ttl)

		w.Header().Set("X-Cache", "MISS")
		httpx.RespondJSON(w, http.StatusOK, resp)
	}
}

// handleStatus reports live cache health and freshness.
func handleStatus(live *livecache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.RespondJSON(w, http.StatusOK, live.Status())
	}
}

// handleSites lists the configured site table.
func handleSites(live *livecache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.RespondJSON(w, http.StatusOK, live.Sites())
	}
}

// handleSiteAircraft returns aircraft currently nearest to the given site.
func handleSiteAircraft(live *livecache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		siteID := mux.Vars(r)["id"]

		known := false
		for _, s := range live.Sites() {
			if s.ID == siteID {
				known = true
				break
			}
		}
		if !known {
			httpx.RespondErrorString(w, http.StatusNotFound, fmt.Sprintf("unknown site %q", siteID))
			return
		}

		positions := live.GetNearSite(siteID)
		httpx.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"site_id":     siteID,
			"captured_at": live.CapturedAt(),
			"count":       len(positions),
			"aircraft":    positions,
		})
	}
}

// handleStats returns history store statistics plus disk usage.
func handleStats(store *history.Store, diskMonitor *monitor.DiskMonitor, respCache *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		usage, err := diskMonitor.Usage()
		if err != nil {
			httpx.RespondError(w, http.StatusInternalServerError, err)
			return
		}

		resp := StatsResponse{
			History: store.Stats(),
			Storage: StorageUsage{
				DiskUsage: usage,
				MaxBytes:  diskMonitor.Limit(),
			},
			CacheEntries: respCache.Len(),
		}

		httpx.RespondJSON(w, http.StatusOK, resp)
	}
}

// handleRefresh forces an immediate live cache refresh and invalidates the
// cached current-period dashboard so the next read sees the new snapshot.
func handleRefresh(live *livecache.Cache, respCache *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := live.Refresh(r.Context()); err != nil {
			// The refresh failed but the previous snapshot is still being
			// served; report the failure alongside current status.
			httpx.RespondJSON(w, http.StatusBadGateway, map[string]interface{}{
				"refreshed": false,
				"error":     err.Error(),
				"status":    live.Status(),
			})
			return
		}

		respCache.Invalidate(cache.Key("dashboard", string(aggregate.PeriodCurrent)))
		httpx.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"refreshed": true,
			"status":    live.Status(),
		})
	}
}

// handleHealth returns service health status.
func handleHealth(live *livecache.Cache, rotationMonitor *monitor.RotationMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		liveStatus := live.Status()
		overallStatus := "healthy"
		statusCode := http.StatusOK

		if !rotationMonitor.IsHealthy() || !liveStatus.IsHealthy {
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		response := HealthResponse{
			Status:   overallStatus,
			Version:  "1.0.0",
			Uptime:   time.Since(startTime).String(),
			Live:     liveStatus,
			Rotation: rotationMonitor.Status(),
		}

		httpx.RespondJSON(w, statusCode, response)
	}
}

// SetupRoutes configures all HTTP routes for the server.
func SetupRoutes(
	router *mux.Router,
	live *livecache.Cache,
	store *history.Store,
	agg *aggregate.Aggregator,
	respCache *cache.Cache,
	exportHandler *export.Handler,
	diskMonitor *monitor.DiskMonitor,
	rotationMonitor *monitor.RotationMonitor,
	hub *PositionsHub,
	port string,
) {
	// CORS middleware for API access
	router.Use(corsMiddleware(port))

	// API routes
	api := router.PathPrefix("/v1").Subrouter()

	// Dashboard aggregation and live cache
	api.HandleFunc("/dashboard", handleDashboard(agg, respCache)).Methods("GET")
	api.HandleFunc("/status", handleStatus(live)).Methods("GET")
	api.HandleFunc("/refresh", handleRefresh(live, respCache)).Methods("POST")

	// Sites and proximity lookups
	api.HandleFunc("/sites", handleSites(live)).Methods("GET")
	api.HandleFunc("/sites/{id}/aircraft", handleSiteAircraft(live)).Methods("GET")

	// History and operational stats
	api.HandleFunc("/stats", handleStats(store, diskMonitor, respCache)).Methods("GET")
	api.HandleFunc("/history/export", exportHandler.HandleExport).Methods("GET")
	api.HandleFunc("/health", handleHealth(live, rotationMonitor)).Methods("GET")

	// WebSocket for real-time position updates
	api.HandleFunc("/ws", HandleWebSocket(hub)).Methods("GET")

	// Serve static files from ./web/ directory
	router.PathPrefix("/web/").Handler(http.StripPrefix("/web/", http.FileServer(http.Dir("./web/"))))

	// Root path serves dashboard.html
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./web/dashboard.html")
	}).Methods("GET")
}

// corsMiddleware creates CORS middleware that restricts to localhost origins only.
func corsMiddleware(port string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Allow localhost origins for local development
			allowedOrigins := []string{
				"http://localhost:" + port,
				"http://127.0.0.1:" + port,
				"http://localhost:3000",
				"http://127.0.0.1:3000",
			}

			// Check if origin is allowed
			allowed := false
			for _, allowedOrigin := range allowedOrigins {
				if origin == allowedOrigin {
					allowed = true
					break
				}
			}

			// Only set CORS headers for allowed origins
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
