package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/flightwatch/flightboard/pkg/flight"
	"github.com/flightwatch/flightboard/pkg/history"
)

// Exporter handles exporting the rolling history to various formats.
type Exporter struct {
	store *history.Store
}

// NewExporter creates a new exporter.
func NewExporter(store *history.Store) *Exporter {
	return &Exporter{store: store}
}

// Options configures the export operation.
type Options struct {
	// Window is how far back from now to export.
	Window time.Duration

	// Callsign filters to one aircraft (empty = all).
	Callsign string

	// Format: "json" or "csv".
	Format string
}

// Result contains stats about the export.
type Result struct {
	PositionsExported int       `json:"positions_exported"`
	Window            string    `json:"window"`
	Format            string    `json:"format"`
	ExportedAt        time.Time `json:"exported_at"`
}

func (e *Exporter) collect(opts Options) []flight.Position {
	positions := e.store.PositionsSince(time.Now().Add(-opts.Window))
	if opts.Callsign == "" {
		return positions
	}
	filtered := positions[:0:0]
	for _, p := range positions {
		if p.Callsign == opts.Callsign {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// ToJSON writes the history as JSON with a metadata envelope.
func (e *Exporter) ToJSON(w io.Writer, opts Options) (*Result, error) {
	positions := e.collect(opts)

	exportData := struct {
		Metadata struct {
			ExportedAt    time.Time `json:"exported_at"`
			Window        string    `json:"window"`
			PositionCount int       `json:"position_count"`
			Format        string    `json:"format"`
			Version       string    `json:"version"`
		} `json:"metadata"`
		Positions []flight.Position `json:"positions"`
	}{
		Positions: positions,
	}

	exportData.Metadata.ExportedAt = time.Now()
	exportData.Metadata.Window = opts.Window.String()
	exportData.Metadata.PositionCount = len(positions)
	exportData.Metadata.Format = "json"
	exportData.Metadata.Version = "1.0"

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(exportData); err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}

	return &Result{
		PositionsExported: len(positions),
		Window:            opts.Window.String(),
		Format:            "json",
		ExportedAt:        exportData.Metadata.ExportedAt,
	}, nil
}

// ToCSV writes the history as CSV, one row per observation.
func (e *Exporter) ToCSV(w io.Writer, opts Options) (*Result, error) {
	positions := e.collect(opts)

	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{"timestamp", "callsign", "lat", "lon", "altitude", "speed", "heading", "on_ground"}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, p := range positions {
		row := []string{
			p.Time().UTC().Format(time.RFC3339),
			p.Callsign,
			strconv.FormatFloat(p.Latitude, 'f', -1, 64),
			strconv.FormatFloat(p.Longitude, 'f', -1, 64),
			strconv.FormatFloat(p.Altitude, 'f', -1, 64),
			strconv.FormatFloat(p.Speed, 'f', -1, 64),
			strconv.FormatFloat(p.Heading, 'f', -1, 64),
			strconv.FormatBool(p.OnGround),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	return &Result{
		PositionsExported: len(positions),
		Window:            opts.Window.String(),
		Format:            "csv",
		ExportedAt:        time.Now(),
	}, nil
}
