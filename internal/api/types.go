// Package api serves the local feed dashboard: a JSON snapshot endpoint,
// user-action endpoints, and a WebSocket that mirrors accepted feed deltas
// to connected browsers.
package api

import (
	"time"

	"polymarket-feed/internal/health"
	"polymarket-feed/pkg/types"
)

// FeedSnapshot is the complete dashboard state.
type FeedSnapshot struct {
	Timestamp time.Time `json:"timestamp"`

	// Connection status of the upstream event stream.
	Stream StreamStatus `json:"stream"`

	// Notifications lane
	Notifications []types.Notification `json:"notifications"`
	UnreadCount   int                  `json:"unread_count"`

	// Recent activity lane
	Activity  []types.ActivityItem `json:"activity"`
	VolumeUSD string               `json:"volume_usd"` // total notional of rendered trades

	// Configuration
	Config ConfigSummary `json:"config"`
}

// StreamStatus reports the upstream WebSocket connection health.
type StreamStatus struct {
	Connected     bool      `json:"connected"`
	RetryCount    int       `json:"retry_count"`
	Backoff       string    `json:"backoff"`
	LastAttemptAt time.Time `json:"last_attempt_at,omitempty"`
}

// ConfigSummary is the subset of configuration shown on the dashboard.
type ConfigSummary struct {
	UserAddress     string `json:"user_address"`
	PollInterval    string `json:"poll_interval"`
	SnapshotLimit   int    `json:"snapshot_limit"`
	NotificationCap int    `json:"notification_cap"`
	ActivityCap     int    `json:"activity_cap"`
	DedupWindow     string `json:"dedup_window"`
	RESTBaseURL     string `json:"rest_base_url"`
	WSURL           string `json:"ws_url"`
}

// newStreamStatus converts a health snapshot to its wire form.
func newStreamStatus(s health.State) StreamStatus {
	return StreamStatus{
		Connected:     s.Connected,
		RetryCount:    s.RetryCount,
		Backoff:       s.Backoff.String(),
		LastAttemptAt: s.LastAttemptAt,
	}
}
