package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/flightwatch/flightboard/pkg/flight"
)

// ErrQuotaExceeded is returned when the upstream feed rejects a call for
// quota reasons (HTTP 429) or the local daily call budget is exhausted.
var ErrQuotaExceeded = errors.New("provider call quota exceeded")

// LiveFeed fetches one bulk snapshot of all tracked aircraft.
// Implementations are stateless; retry and caching policy belongs to the
// live snapshot cache, not here.
type LiveFeed interface {
	FetchPositions(ctx context.Context) (*FeedSnapshot, error)
}

// FeedSnapshot is a normalized bulk snapshot from the live-position feed.
type FeedSnapshot struct {
	CapturedAt time.Time
	Positions  []flight.Position
}

// BoundingBox optionally restricts the feed query to a geographic area.
type BoundingBox struct {
	MinLat, MinLon float64
	MaxLat, MaxLon float64
}

// ADSBClient calls an ADS-B aggregator endpoint returning aircraft.json-style
// payloads (dump1090 / readsb / adsb.lol family).
type ADSBClient struct {
	endpoint string
	bbox     *BoundingBox
	client   *http.Client
}

// NewADSBClient creates a live-position feed client.
func NewADSBClient(endpoint string, timeout time.Duration) *ADSBClient {
	return &ADSBClient{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBoundingBox restricts subsequent fetches to the given area.
func (c *ADSBClient) SetBoundingBox(box BoundingBox) {
	c.bbox = &box
}

// feedResponse mirrors the upstream wire format. Fields the upstream may omit
// are pointers so absent and zero are distinguishable.
type feedResponse struct {
	Now      float64     `json:"now"`
	Aircraft []feedEntry `json:"aircraft"`
}

type feedEntry struct {
	Hex         string          `json:"hex"`
	Flight      string          `json:"flight"`
	Lat         *float64        `json:"lat"`
	Lon         *float64        `json:"lon"`
	AltBaro     json.RawMessage `json:"alt_baro"` // number, or the string "ground"
	GS          *float64        `json:"gs"`
	Track       *float64        `json:"track"`
	OnGround    *bool           `json:"on_ground"`
	LastContact *float64        `json:"seen"`
}

// FetchPositions calls the feed once and normalizes the result.
func (c *ADSBClient) FetchPositions(ctx context.Context) (*FeedSnapshot, error) {
	url := c.endpoint
	if c.bbox != nil {
		url = fmt.Sprintf("%s?minLat=%f&minLon=%f&maxLat=%f&maxLon=%f",
			c.endpoint, c.bbox.MinLat, c.bbox.MinLon, c.bbox.MaxLat, c.bbox.MaxLon)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call live feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrQuotaExceeded
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("live feed returned status %d", resp.StatusCode)
	}

	var raw feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode live feed response: %w", err)
	}

	captured := time.Now()
	if raw.Now > 0 {
		captured = time.UnixMilli(int64(raw.Now * 1000))
	}

	snap := &FeedSnapshot{
		CapturedAt: captured,
		Positions:  make([]flight.Position, 0, len(raw.Aircraft)),
	}
	for _, a := range raw.Aircraft {
		p, ok := normalizeEntry(a, captured)
		if !ok {
			continue
		}
		snap.Positions = append(snap.Positions, p)
	}

	return snap, nil
}

// normalizeEntry converts one raw feed entry to a Position.
// Entries with no usable identifier or no coordinates are dropped.
func normalizeEntry(a feedEntry, captured time.Time) (flight.Position, bool) {
	id := strings.TrimSpace(a.Flight)
	if id == "" {
		id = strings.TrimSpace(a.Hex)
	}
	if id == "" || a.Lat == nil || a.Lon == nil {
		return flight.Position{}, false
	}

	altitude, altIsGround := parseAltitude(a.AltBaro)

	onGround := altIsGround
	if a.OnGround != nil {
		onGround = *a.OnGround
	}

	p := flight.Position{
		Callsign:  id,
		Latitude:  *a.Lat,
		Longitude: *a.Lon,
		Altitude:  altitude,
		OnGround:  onGround,
		Timestamp: captured.UnixMilli(),
	}
	if a.GS != nil {
		p.Speed = *a.GS
	}
	if a.Track != nil {
		p.Heading = *a.Track
	}
	if a.LastContact != nil {
		// seen is seconds since last message for this aircraft
		p.Timestamp = captured.Add(-time.Duration(*a.LastContact * float64(time.Second))).UnixMilli()
	}

	return p, true
}

// parseAltitude handles the upstream quirk of alt_baro being either a number
// or the literal string "ground".
func parseAltitude(raw json.RawMessage) (altitude float64, onGround bool) {
	if len(raw) == 0 {
		return 0, false
	}
	if bytes.Equal(raw, []byte(`"ground"`)) {
		return 0, true
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, false
}
