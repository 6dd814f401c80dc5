package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAirspaceClient_FetchConditions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"sites": [
				{"id": "KJFK", "condition": "delays", "avg_delay_minutes": 35.5},
				{"airport": "KLGA", "condition": "normal"},
				{"condition": "orphaned record"}
			]
		}`))
	}))
	defer srv.Close()

	client := NewAirspaceClient(srv.URL, time.Second)
	conditions, err := client.FetchConditions(context.Background())
	if err != nil {
		t.Fatalf("FetchConditions: %v", err)
	}

	if len(conditions) != 2 {
		t.Fatalf("conditions = %d, want 2 (no-id record dropped)", len(conditions))
	}
	if conditions[0].SiteID != "KJFK" || conditions[0].MeanDelayMinutes != 35.5 {
		t.Errorf("first condition = %+v", conditions[0])
	}
	// Vendor "airport" key accepted, absent delay degrades to zero.
	if conditions[1].SiteID != "KLGA" || conditions[1].MeanDelayMinutes != 0 {
		t.Errorf("second condition = %+v", conditions[1])
	}
}

func TestAirspaceClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewAirspaceClient(srv.URL, time.Second)
	if _, err := client.FetchConditions(context.Background()); err == nil {
		t.Error("expected error for 503 response")
	}
}
