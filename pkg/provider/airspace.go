package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// StatusFeed fetches per-site current airspace conditions.
type StatusFeed interface {
	FetchConditions(ctx context.Context) ([]SiteCondition, error)
}

// SiteCondition is the normalized per-site record from the airspace status
// feed: the current condition label and the mean departure delay.
type SiteCondition struct {
	SiteID           string  `json:"site_id"`
	Condition        string  `json:"condition"`
	MeanDelayMinutes float64 `json:"mean_delay_minutes"`
}

// AirspaceClient calls a national airspace status endpoint.
type AirspaceClient struct {
	endpoint string
	client   *http.Client
}

// NewAirspaceClient creates an airspace status feed client.
func NewAirspaceClient(endpoint string, timeout time.Duration) *AirspaceClient {
	return &AirspaceClient{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// airspaceResponse mirrors the upstream wire format; optional fields are
// pointers so partial records degrade to explicit zero values.
type airspaceResponse struct {
	Sites []struct {
		ID        string   `json:"id"`
		Airport   string   `json:"airport"` // some vendors use this key instead of id
		Condition string   `json:"condition"`
		AvgDelay  *float64 `json:"avg_delay_minutes"`
	} `json:"sites"`
}

// FetchConditions calls the status feed once and normalizes the result.
func (c *AirspaceClient) FetchConditions(ctx context.Context) ([]SiteCondition, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call airspace feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("airspace feed returned status %d", resp.StatusCode)
	}

	var raw airspaceResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode airspace response: %w", err)
	}

	conditions := make([]SiteCondition, 0, len(raw.Sites))
	for _, s := range raw.Sites {
		id := s.ID
		if id == "" {
			id = s.Airport
		}
		if id == "" {
			continue
		}
		cond := SiteCondition{
			SiteID:    id,
			Condition: s.Condition,
		}
		if s.AvgDelay != nil {
			cond.MeanDelayMinutes = *s.AvgDelay
		}
		conditions = append(conditions, cond)
	}

	return conditions, nil
}
