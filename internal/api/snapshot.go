package api

import (
	"context"
	"time"

	"polymarket-feed/internal/config"
	"polymarket-feed/internal/health"
	"polymarket-feed/pkg/types"
)

// FeedStateProvider exposes the reconciled feed state and user actions.
// Implemented by the feed service.
type FeedStateProvider interface {
	Notifications() []types.Notification
	UnreadCount() int
	Activity() []types.ActivityItem
	ActivityVolumeUSD() string
	IsConnected() bool
	StreamHealth() health.State

	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id string) error
}

// BuildSnapshot aggregates the provider's state into one dashboard snapshot.
func BuildSnapshot(provider FeedStateProvider, cfg config.Config) FeedSnapshot {
	return FeedSnapshot{
		Timestamp:     time.Now(),
		Stream:        newStreamStatus(provider.StreamHealth()),
		Notifications: provider.Notifications(),
		UnreadCount:   provider.UnreadCount(),
		Activity:      provider.Activity(),
		VolumeUSD:     provider.ActivityVolumeUSD(),
		Config:        newConfigSummary(cfg),
	}
}

func newConfigSummary(cfg config.Config) ConfigSummary {
	return ConfigSummary{
		UserAddress:     cfg.Feed.UserAddress,
		PollInterval:    cfg.Feed.PollInterval.String(),
		SnapshotLimit:   cfg.Feed.SnapshotLimit,
		NotificationCap: cfg.Feed.NotificationCap,
		ActivityCap:     cfg.Feed.ActivityCap,
		DedupWindow:     cfg.Feed.DedupWindow.String(),
		RESTBaseURL:     cfg.API.RESTBaseURL,
		WSURL:           cfg.API.WSURL,
	}
}
