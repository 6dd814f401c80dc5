package flight

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Position is one timestamped observation of a single tracked aircraft.
// Immutable once created: refresh cycles build new Positions, never mutate
// existing ones.
type Position struct {
	// Callsign is the stable identifier for the aircraft (trimmed flight
	// number, or the ICAO hex address when no callsign is broadcast).
	Callsign string `json:"callsign"`

	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`

	// Altitude in feet (barometric).
	Altitude float64 `json:"altitude"`

	// Speed is ground speed in knots.
	Speed float64 `json:"speed"`

	// Heading in degrees clockwise from true north.
	Heading float64 `json:"heading"`

	OnGround bool `json:"on_ground"`

	// Timestamp is the capture time in epoch milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// Time returns the capture time as a time.Time.
func (p Position) Time() time.Time {
	return time.UnixMilli(p.Timestamp)
}

// Site is a fixed-location point of interest (an airport) used as a spatial
// grouping anchor for the live snapshot's proximity index.
type Site struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// LoadSites reads the site coordinate table from a JSON file.
// A malformed table is the one unrecoverable configuration error in the
// system: without it the proximity index cannot function, so callers treat
// any error here as fatal at startup.
func LoadSites(path string) ([]Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read site table: %w", err)
	}

	var sites []Site
	if err := json.Unmarshal(data, &sites); err != nil {
		return nil, fmt.Errorf("failed to parse site table: %w", err)
	}

	if len(sites) == 0 {
		return nil, fmt.Errorf("site table %s contains no sites", path)
	}

	seen := make(map[string]bool, len(sites))
	for i, s := range sites {
		if s.ID == "" {
			return nil, fmt.Errorf("site %d has empty id", i)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("duplicate site id %q", s.ID)
		}
		seen[s.ID] = true

		if s.Latitude < -90 || s.Latitude > 90 {
			return nil, fmt.Errorf("site %q has invalid latitude %f", s.ID, s.Latitude)
		}
		if s.Longitude < -180 || s.Longitude > 180 {
			return nil, fmt.Errorf("site %q has invalid longitude %f", s.ID, s.Longitude)
		}
	}

	return sites, nil
}
