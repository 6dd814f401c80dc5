package server

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/flightwatch/flightboard/pkg/aggregate"
	"github.com/flightwatch/flightboard/pkg/cache"
	"github.com/flightwatch/flightboard/pkg/config"
	"github.com/flightwatch/flightboard/pkg/export"
	"github.com/flightwatch/flightboard/pkg/flight"
	"github.com/flightwatch/flightboard/pkg/history"
	"github.com/flightwatch/flightboard/pkg/livecache"
	"github.com/flightwatch/flightboard/pkg/provider"
	"github.com/flightwatch/flightboard/pkg/server/monitor"
)

// Config holds server configuration.
type Config struct {
	Port           string
	DataDir        string
	SitesFile      string
	SinkBackend    string
	FeedURL        string
	StatusURL      string
	HistoricalFile string
	DailyQuota     int
	MaxHistoryB    int64
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() Config {
	dataDir := getEnv("FLIGHTBOARD_DATA_DIR", config.DefaultDataDir)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	return Config{
		Port:           getPort(),
		DataDir:        dataDir,
		SitesFile:      getEnv("FLIGHTBOARD_SITES_FILE", config.DefaultSitesFile),
		SinkBackend:    getEnv("FLIGHTBOARD_SINK", "file"),
		FeedURL:        getEnv("FLIGHTBOARD_FEED_URL", config.DefaultFeedURL),
		StatusURL:      getEnv("FLIGHTBOARD_STATUS_URL", ""),
		HistoricalFile: getEnv("FLIGHTBOARD_HISTORICAL_FILE", ""),
		DailyQuota:     int(getEnvInt64("FLIGHTBOARD_DAILY_QUOTA", config.DefaultDailyQuota)),
		MaxHistoryB:    getEnvInt64("FLIGHTBOARD_MAX_HISTORY_BYTES", config.DefaultMaxBytes),
	}
}

// LoadSiteTable loads the site coordinate table. A malformed table is fatal:
// without valid site coordinates the proximity index cannot function.
func LoadSiteTable(cfg Config) []flight.Site {
	sites, err := flight.LoadSites(cfg.SitesFile)
	if err != nil {
		log.Fatalf("Failed to load site table from %s: %v", cfg.SitesFile, err)
	}
	log.Printf("Loaded %d sites from %s", len(sites), cfg.SitesFile)
	return sites
}

// InitializeSink builds the history persistence sink per configuration.
func InitializeSink(cfg Config) (history.Sink, error) {
	switch cfg.SinkBackend {
	case "badger":
		log.Println("Initializing BadgerDB history sink with Snappy compression...")
		sink, err := history.NewBadgerSink(history.BadgerConfig{
			Path: filepath.Join(cfg.DataDir, "badger"),
		})
		if err != nil {
			return nil, err
		}
		log.Println("BadgerDB history sink initialized successfully")
		return sink, nil
	default:
		return history.NewFileSink(
			filepath.Join(cfg.DataDir, config.HistoryFileName),
			filepath.Join(cfg.DataDir, config.ArchiveDirName),
		), nil
	}
}

// InitializeComponents creates the live cache, aggregator, and supporting
// handlers from loaded configuration.
func InitializeComponents(
	cfg Config,
	sites []flight.Site,
	store *history.Store,
) (
	*livecache.Cache,
	*aggregate.Aggregator,
	*cache.Cache,
	*export.Handler,
	*PositionsHub,
) {
	feed := provider.NewADSBClient(cfg.FeedURL, config.ProviderTimeout)
	live := livecache.New(feed, livecache.Config{
		Sites:              sites,
		RadiusNM:           config.ProximityRadiusNM,
		RefreshInterval:    config.RefreshInterval,
		ProviderTimeout:    config.ProviderTimeout,
		FreshnessThreshold: config.FreshnessThreshold,
		UnhealthyThreshold: config.UnhealthyThreshold,
		DailyQuota:         cfg.DailyQuota,
	})
	log.Println("Live snapshot cache created with proximity index")

	// Optional sources: the aggregator degrades per-source when these are
	// absent, reporting caveats instead of failing.
	var statusFeed provider.StatusFeed
	if cfg.StatusURL != "" {
		statusFeed = provider.NewAirspaceClient(cfg.StatusURL, config.ProviderTimeout)
		log.Println("Airspace status feed configured")
	} else {
		log.Println("No airspace status feed configured, delay estimates fall back to heuristics")
	}

	var historical *provider.HistoricalStore
	if cfg.HistoricalFile != "" {
		historical = provider.NewHistoricalStore(cfg.HistoricalFile)
		if err := historical.Load(); err != nil {
			log.Printf("Historical stats unavailable (%v), continuing without", err)
		} else {
			log.Printf("Historical stats loaded from %s", cfg.HistoricalFile)
		}
	}

	agg := aggregate.New(live, store, statusFeed, historical)
	log.Println("Aggregator created")

	respCache := cache.New()
	log.Println("Response cache created (per-period TTLs)")

	exportHandler := export.NewHandler(store)
	log.Println("History export handler created (JSON & CSV)")

	hub := NewPositionsHub()
	log.Println("WebSocket hub created for real-time position streaming")

	return live, agg, respCache, exportHandler, hub
}

// InitializeMonitors creates rotation and disk monitors.
func InitializeMonitors(cfg Config) (*monitor.RotationMonitor, *monitor.DiskMonitor) {
	rotationMonitor := &monitor.RotationMonitor{}
	diskMonitor := monitor.NewDiskMonitor(cfg.DataDir, cfg.MaxHistoryB)
	log.Printf("Rotation monitor ready (checks every %v, max history %d bytes)", config.RotationInterval, cfg.MaxHistoryB)
	return rotationMonitor, diskMonitor
}

// getEnv gets a string from environment variable or returns default.
func getEnv(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

// getEnvInt64 gets an int64 from environment variable or returns default.
func getEnvInt64(key string, defaultValue int64) int64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
		log.Printf("Invalid value for %s: %q, using default %d", key, val, defaultValue)
	}
	return defaultValue
}

// getPort gets the server port from PORT environment variable or returns default.
func getPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return config.DefaultPort
}
