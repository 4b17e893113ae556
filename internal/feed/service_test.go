package feed

import (
	"log/slog"
	"testing"
	"time"

	"polymarket-feed/internal/config"
)

func testConfig() config.Config {
	var cfg config.Config
	cfg.API.RESTBaseURL = "http://127.0.0.1:0"
	cfg.API.WSURL = "ws://127.0.0.1:0/ws"
	cfg.Feed.UserAddress = testAddress
	cfg.Feed.PollInterval = time.Minute
	cfg.Feed.SnapshotLimit = 50
	cfg.Feed.NotificationCap = 50
	cfg.Feed.ActivityCap = 20
	cfg.Feed.DedupWindow = 4 * time.Second
	cfg.Feed.SeedRetention = time.Hour
	cfg.Stream.BackoffBase = time.Second
	cfg.Stream.BackoffMax = 30 * time.Second
	cfg.Stream.MaxRetries = 5
	return cfg
}

func TestServiceAccessorsBeforeStart(t *testing.T) {
	t.Parallel()
	svc, err := New(testConfig(), slog.Default())
	if err != nil {
		t.Fatal(err)
	}

	if n := len(svc.Notifications()); n != 0 {
		t.Fatalf("Notifications() len = %d before start", n)
	}
	if svc.UnreadCount() != 0 {
		t.Fatalf("UnreadCount() = %d before start", svc.UnreadCount())
	}
	if len(svc.Activity()) != 0 {
		t.Fatal("Activity() not empty before start")
	}
	if svc.ActivityVolumeUSD() != "0" {
		t.Fatalf("ActivityVolumeUSD() = %q before start", svc.ActivityVolumeUSD())
	}
	if svc.IsConnected() {
		t.Fatal("IsConnected() true before start")
	}
}

func TestServiceEmitNeverBlocks(t *testing.T) {
	t.Parallel()
	svc, err := New(testConfig(), slog.Default())
	if err != nil {
		t.Fatal(err)
	}

	// Nobody drains Events; overflow must be dropped, not block the feeds.
	for i := 0; i < 2*eventBuffer; i++ {
		svc.emit(Event{Kind: EventActivity})
	}

	if got := len(svc.Events()); got != eventBuffer {
		t.Fatalf("buffered = %d, want %d", got, eventBuffer)
	}
}
