package api

import (
	"time"

	"polymarket-feed/internal/feed"
)

// DashboardEvent is the wrapper for everything pushed over the dashboard
// WebSocket: the initial snapshot and every accepted feed delta after it.
type DashboardEvent struct {
	Type      string    `json:"type"` // "snapshot", "notification", "activity"
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// newDashboardEvent wraps an accepted feed delta for broadcast. The feed
// layer's kind strings double as the wire types.
func newDashboardEvent(ev feed.Event) DashboardEvent {
	return DashboardEvent{
		Type:      ev.Kind,
		Timestamp: time.Now(),
		Data:      ev.Item,
	}
}

// newSnapshotEvent wraps a full snapshot for broadcast.
func newSnapshotEvent(snapshot FeedSnapshot) DashboardEvent {
	return DashboardEvent{
		Type:      "snapshot",
		Timestamp: time.Now(),
		Data:      snapshot,
	}
}
