package oddsfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	client := NewClient("test_token")

	if client == nil {
		t.Fatal("Expected client to be created")
	}

	if client.apiToken != "test_token" {
		t.Errorf("Expected token to be 'test_token', got '%s'", client.apiToken)
	}

	if client.baseURL != DefaultBaseURL {
		t.Errorf("Expected baseURL to be '%s', got '%s'", DefaultBaseURL, client.baseURL)
	}
}

func TestNewClientWithConfig(t *testing.T) {
	config := Config{
		BaseURL:  "https://custom.api.com",
		APIToken: "custom_token",
		Timeout:  60 * time.Second,
	}

	client := NewClientWithConfig(config)

	if client == nil {
		t.Fatal("Expected client to be created")
	}

	if client.apiToken != "custom_token" {
		t.Errorf("Expected token to be 'custom_token', got '%s'", client.apiToken)
	}

	if client.baseURL != "https://custom.api.com" {
		t.Errorf("Expected baseURL to be 'https://custom.api.com', got '%s'", client.baseURL)
	}

	if client.httpClient.Timeout != 60*time.Second {
		t.Errorf("Expected timeout to be 60s, got %v", client.httpClient.Timeout)
	}
}

func TestGetEvents(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("Expected bearer token header, got '%s'", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{
			"data": [{
				"id": "ev1",
				"league_id": "nba",
				"sport_id": "basketball",
				"starts_at": "2026-01-02T19:00:00Z",
				"status": {"started": true, "live": true, "period": "Q2", "updated_at": "2026-01-02T19:30:00Z"},
				"odds": {"ml_home": {"book1": {"price": "-110", "available": true}}}
			}],
			"next_cursor": "abc"
		}`))
	}))
	defer server.Close()

	client := NewClientWithConfig(Config{BaseURL: server.URL, APIToken: "tok"})

	live := true
	resp, err := client.GetEvents(context.Background(), GetEventsParams{
		EventIDs:     []string{"ev1", "ev2"},
		BookmakerIDs: []string{"book1"},
		Live:         &live,
		Limit:        50,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if gotQuery != "bookmaker_ids=book1&event_ids=ev1%2Cev2&limit=50&live=true" {
		t.Errorf("Unexpected query string: %s", gotQuery)
	}

	if len(resp.Data) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(resp.Data))
	}
	if resp.NextCursor != "abc" {
		t.Errorf("Expected cursor 'abc', got '%s'", resp.NextCursor)
	}

	ev := resp.Data[0]
	if ev.ID != "ev1" || !ev.Status.Live {
		t.Errorf("Unexpected event decode: %+v", ev)
	}
	if ev.Odds["ml_home"]["book1"].Price != "-110" {
		t.Errorf("Unexpected odds decode: %+v", ev.Odds)
	}

	count, last := client.Usage()
	if count != 1 {
		t.Errorf("Expected 1 recorded request, got %d", count)
	}
	if last.IsZero() {
		t.Error("Expected last request time to be set")
	}
}

func TestStatusTickDefaultsMissingFields(t *testing.T) {
	ev := Event{ID: "ev1", StartsAt: "not-a-time"}
	tick := ev.StatusTick(time.Now())

	if tick.StartsAt != nil {
		t.Errorf("Expected invalid starts_at to default to nil, got %v", tick.StartsAt)
	}
	if tick.VendorUpdatedAt != nil {
		t.Errorf("Expected missing updated_at to default to nil, got %v", tick.VendorUpdatedAt)
	}
	if tick.Started || tick.Live {
		t.Error("Expected boolean flags to default to false")
	}
}
