package sdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flightwatch/flightboard/pkg/aggregate"
	"github.com/flightwatch/flightboard/pkg/flight"
)

func TestClient_Dashboard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/dashboard" {
			t.Errorf("path = %q, want /v1/dashboard", r.URL.Path)
		}
		if got := r.URL.Query().Get("period"); got != "week" {
			t.Errorf("period = %q, want week", got)
		}
		json.NewEncoder(w).Encode(aggregate.Response{Period: aggregate.PeriodWeek})
	}))
	defer srv.Close()

	client, err := New(ClientConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := client.Dashboard(context.Background(), "week")
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if resp.Period != aggregate.PeriodWeek {
		t.Errorf("Period = %q, want week", resp.Period)
	}
}

func TestClient_Sites(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]flight.Site{{ID: "KJFK", Name: "John F. Kennedy Intl"}})
	}))
	defer srv.Close()

	client, err := New(ClientConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sites, err := client.Sites(context.Background())
	if err != nil {
		t.Fatalf("Sites: %v", err)
	}
	if len(sites) != 1 || sites[0].ID != "KJFK" {
		t.Errorf("unexpected sites: %+v", sites)
	}
}

func TestClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := New(ClientConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := client.Status(context.Background()); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestClient_RefreshFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"refreshed": false,
			"error":     "provider call quota exceeded",
		})
	}))
	defer srv.Close()

	client, err := New(ClientConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := client.Refresh(context.Background()); err == nil {
		t.Error("expected error when refresh not performed")
	}
}
