package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"polymarket-feed/internal/config"
	"polymarket-feed/internal/health"
	"polymarket-feed/pkg/types"
)

func TestIsOriginAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		origin  string
		cfg     config.DashboardConfig
		reqHost string
		want    bool
	}{
		{
			name:    "empty origin is allowed",
			origin:  "",
			cfg:     config.DashboardConfig{},
			reqHost: "localhost:8080",
			want:    true,
		},
		{
			name:    "localhost origin allowed by default",
			origin:  "http://localhost:8080",
			cfg:     config.DashboardConfig{},
			reqHost: "localhost:8080",
			want:    true,
		},
		{
			name:    "non-local origin denied by default",
			origin:  "https://evil.example",
			cfg:     config.DashboardConfig{},
			reqHost: "localhost:8080",
			want:    false,
		},
		{
			name:    "allowlist permits exact origin",
			origin:  "https://dash.example.com",
			cfg:     config.DashboardConfig{AllowedOrigins: []string{"https://dash.example.com"}},
			reqHost: "0.0.0.0:8080",
			want:    true,
		},
		{
			name:    "allowlist denies everything else",
			origin:  "https://evil.example",
			cfg:     config.DashboardConfig{AllowedOrigins: []string{"https://dash.example.com"}},
			reqHost: "0.0.0.0:8080",
			want:    false,
		},
		{
			name:    "same host allowed when no allowlist",
			origin:  "https://feed.internal:8080",
			cfg:     config.DashboardConfig{},
			reqHost: "feed.internal:8080",
			want:    true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isOriginAllowed(tt.origin, tt.cfg, tt.reqHost); got != tt.want {
				t.Fatalf("isOriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

// fakeProvider is a canned FeedStateProvider for handler tests.
type fakeProvider struct {
	notifications []types.Notification
	unread        int
	activity      []types.ActivityItem
	volume        string
	connected     bool

	markedRead []string
	allRead    bool
	deleted    []string
}

func (p *fakeProvider) Notifications() []types.Notification { return p.notifications }
func (p *fakeProvider) UnreadCount() int                    { return p.unread }
func (p *fakeProvider) Activity() []types.ActivityItem      { return p.activity }
func (p *fakeProvider) ActivityVolumeUSD() string           { return p.volume }
func (p *fakeProvider) IsConnected() bool                   { return p.connected }
func (p *fakeProvider) StreamHealth() health.State {
	return health.State{Connected: p.connected, Backoff: time.Second}
}

func (p *fakeProvider) MarkRead(_ context.Context, id string) error {
	p.markedRead = append(p.markedRead, id)
	return nil
}
func (p *fakeProvider) MarkAllRead(context.Context) error { p.allRead = true; return nil }
func (p *fakeProvider) DeleteNotification(_ context.Context, id string) error {
	p.deleted = append(p.deleted, id)
	return nil
}

func newTestServer(t *testing.T, provider FeedStateProvider) *httptest.Server {
	t.Helper()
	cfg := config.Config{}
	cfg.Feed.UserAddress = "0x56687bf447db6ffa42ffe2204a05edaa20f55839"
	srv := NewServer(cfg, provider, nil, slog.Default())
	ts := httptest.NewServer(srv.server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestHandleSnapshot(t *testing.T) {
	t.Parallel()
	provider := &fakeProvider{
		notifications: []types.Notification{{ID: "n1", Type: "fill"}},
		unread:        3,
		volume:        "1250.5",
		connected:     true,
	}
	ts := newTestServer(t, provider)

	resp, err := http.Get(ts.URL + "/api/feed")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var snap FeedSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Notifications) != 1 || snap.Notifications[0].ID != "n1" {
		t.Fatalf("notifications = %+v", snap.Notifications)
	}
	if snap.UnreadCount != 3 || snap.VolumeUSD != "1250.5" || !snap.Stream.Connected {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestActionRoutes(t *testing.T) {
	t.Parallel()
	provider := &fakeProvider{}
	ts := newTestServer(t, provider)
	client := ts.Client()

	post := func(path string) int {
		t.Helper()
		resp, err := client.Post(ts.URL+path, "application/json", nil)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := post("/api/notifications/n1/read"); code != http.StatusNoContent {
		t.Fatalf("mark-read status = %d", code)
	}
	if code := post("/api/notifications/read-all"); code != http.StatusNoContent {
		t.Fatalf("read-all status = %d", code)
	}

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/notifications/n2", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	if len(provider.markedRead) != 1 || provider.markedRead[0] != "n1" {
		t.Fatalf("markedRead = %v", provider.markedRead)
	}
	if !provider.allRead {
		t.Fatal("read-all not forwarded")
	}
	if len(provider.deleted) != 1 || provider.deleted[0] != "n2" {
		t.Fatalf("deleted = %v", provider.deleted)
	}
}
