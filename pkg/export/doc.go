// Package export provides download of the rolling flight history.
//
// # Overview
//
// The export package lets operators pull the retained position history out of
// a running instance as JSON or CSV. This is useful for:
//   - Offline analysis of tracked traffic
//   - Feeding positions into external plotting tools
//   - Ad-hoc backups beyond the store's own rotation archives
//
// # Supported Formats
//
// JSON Format:
//   - Preserves every position field plus an export metadata envelope
//   - Human-readable with pretty-printing
//
// CSV Format:
//   - Flattened rows suitable for spreadsheets and pandas
//   - One row per observation
//
// # HTTP API
//
// Export endpoint: GET /v1/history/export
// Query parameters:
//   - format: "json" or "csv" (default: json)
//   - window: how far back to export, e.g. "24h" (default: 24h, max: 7 days)
//   - callsign: filter to one aircraft (optional)
//
// Example:
//
//	curl "http://localhost:8080/v1/history/export?format=csv&window=6h" \
//	  -o positions.csv
package export
