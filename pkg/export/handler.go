package export

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/flightwatch/flightboard/pkg/config"
	"github.com/flightwatch/flightboard/pkg/history"
)

// Handler handles history export HTTP endpoints.
type Handler struct {
	exporter *Exporter
}

// NewHandler creates a new export handler.
func NewHandler(store *history.Store) *Handler {
	return &Handler{
		exporter: NewExporter(store),
	}
}

// HandleExport handles GET /v1/history/export
// Query params:
//   - format: "json" or "csv" (default: json)
//   - window: duration to export, e.g. "6h" (default: 24h)
//   - callsign: single-aircraft filter (optional)
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	format := query.Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		http.Error(w, "Invalid format. Must be 'json' or 'csv'", http.StatusBadRequest)
		return
	}

	window := config.DefaultExportWindow
	if raw := query.Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid window. Use a Go duration like '6h'", http.StatusBadRequest)
			return
		}
		window = parsed
	}
	if window > config.MaxExportWindow {
		http.Error(w, fmt.Sprintf("Window too large. Maximum is %v", config.MaxExportWindow), http.StatusBadRequest)
		return
	}

	opts := Options{
		Window:   window,
		Callsign: query.Get("callsign"),
		Format:   format,
	}

	timestamp := time.Now().Format("20060102-150405")
	if format == "json" {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=flightboard-history-%s.json", timestamp))
	} else {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=flightboard-history-%s.csv", timestamp))
	}

	var result *Result
	var err error
	if format == "json" {
		result, err = h.exporter.ToJSON(w, opts)
	} else {
		result, err = h.exporter.ToCSV(w, opts)
	}
	if err != nil {
		log.Printf("Export failed: %v", err)
		http.Error(w, fmt.Sprintf("Export failed: %v", err), http.StatusInternalServerError)
		return
	}

	log.Printf("Exported %d positions (%s, window %s)", result.PositionsExported, format, result.Window)
}
