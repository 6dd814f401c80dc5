package config

import "time"

// Server defaults
const (
	DefaultPort      = "8080"
	DefaultDataDir   = "./data/flightboard"
	DefaultSitesFile = "./config/sites.json"

	// Local readsb/dump1090 receiver endpoint; override for hosted feeds.
	DefaultFeedURL = "http://localhost:8081/data/aircraft.json"

	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 10 * time.Second
	ShutdownTimeout    = 30 * time.Second
)

// Live snapshot cache
const (
	RefreshInterval    = 60 * time.Second
	ProviderTimeout    = 10 * time.Second
	FreshnessThreshold = 120 * time.Second
	UnhealthyThreshold = 5
	DefaultDailyQuota  = 1000
	ProximityRadiusNM  = 50.0
)

// Rolling history store
const (
	StatsWindow      = 24 * time.Hour
	DiskRetention    = 7 * 24 * time.Hour
	PruneInterval    = 10 * time.Minute
	RotationInterval = 1 * time.Hour
	DefaultMaxBytes  = 10 * 1024 * 1024
	HistoryFileName  = "history.json"
	ArchiveDirName   = "archive"
)

// Response cache TTLs
const (
	CurrentPeriodTTL   = 30 * time.Second
	HistoricalTTL      = 5 * time.Minute
	CacheSweepInterval = 1 * time.Minute
)

// Export defaults and limits
const (
	DefaultExportWindow = 24 * time.Hour
	MaxExportWindow     = 7 * 24 * time.Hour
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSChannelBuffer   = 10

	// Per-client frame queue. Small on purpose: frames are full snapshots,
	// so a lagging client only ever needs the newest few.
	WSClientQueue = 4
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
	BroadcastInterval = 5 * time.Second
)

// Aggregator
const (
	TopSiteLimit      = 30
	LowAltitudeFeet   = 100.0
	AggregatorTimeout = 5 * time.Second
)
