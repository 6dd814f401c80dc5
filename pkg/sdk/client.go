// Package sdk provides a Go client for the FlightBoard HTTP API.
package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/flightwatch/flightboard/pkg/aggregate"
	"github.com/flightwatch/flightboard/pkg/flight"
	"github.com/flightwatch/flightboard/pkg/livecache"
)

// ClientConfig holds configuration for the FlightBoard client.
type ClientConfig struct {
	Endpoint string        `json:"endpoint"`
	Timeout  time.Duration `json:"timeout"`
}

// Client is a typed client for the FlightBoard API.
type Client struct {
	endpoint string
	http     *http.Client
}

// New creates a new FlightBoard client.
func New(cfg ClientConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:8080"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	return &Client{
		endpoint: cfg.Endpoint,
		http:     &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Dashboard fetches the aggregated dashboard for the given period.
// An empty period defaults to current.
func (c *Client) Dashboard(ctx context.Context, period string) (*aggregate.Response, error) {
	u := c.endpoint + "/v1/dashboard"
	if period != "" {
		u += "?period=" + url.QueryEscape(period)
	}
	var resp aggregate.Response
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status fetches live cache health and freshness.
func (c *Client) Status(ctx context.Context) (*livecache.Status, error) {
	var status livecache.Status
	if err := c.getJSON(ctx, c.endpoint+"/v1/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Sites fetches the configured site table.
func (c *Client) Sites(ctx context.Context) ([]flight.Site, error) {
	var sites []flight.Site
	if err := c.getJSON(ctx, c.endpoint+"/v1/sites", &sites); err != nil {
		return nil, err
	}
	return sites, nil
}

// SiteAircraft holds the aircraft currently nearest to one site.
type SiteAircraft struct {
	SiteID     string            `json:"site_id"`
	CapturedAt time.Time         `json:"captured_at"`
	Count      int               `json:"count"`
	Aircraft   []flight.Position `json:"aircraft"`
}

// AircraftNear fetches aircraft currently nearest to the given site.
func (c *Client) AircraftNear(ctx context.Context, siteID string) (*SiteAircraft, error) {
	u := c.endpoint + "/v1/sites/" + url.PathEscape(siteID) + "/aircraft"
	var resp SiteAircraft
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refresh forces an immediate live feed refresh.
func (c *Client) Refresh(ctx context.Context) (*livecache.Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/refresh", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer httpResp.Body.Close()

	var body struct {
		Refreshed bool             `json:"refreshed"`
		Error     string           `json:"error"`
		Status    livecache.Status `json:"status"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if !body.Refreshed {
		return &body.Status, fmt.Errorf("refresh failed: %s", body.Error)
	}
	return &body.Status, nil
}

// getJSON performs a GET and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
