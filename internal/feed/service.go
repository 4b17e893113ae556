package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"polymarket-feed/internal/config"
	"polymarket-feed/internal/gateway"
	"polymarket-feed/internal/health"
	"polymarket-feed/internal/store"
	"polymarket-feed/internal/stream"
	"polymarket-feed/pkg/types"
)

// Event kinds emitted to downstream consumers (the dashboard hub).
const (
	EventNotification = "notification"
	EventActivity     = "activity"
)

// Event is one accepted feed delta, fanned out to the dashboard.
type Event struct {
	Kind string // EventNotification or EventActivity
	Item any
}

const eventBuffer = 256

// Service wires the stream client, the REST gateway, and both reconcilers
// together and owns their lifecycle. REST polling keeps running while the
// stream is down, so the feeds degrade to poll-only rather than going dark;
// a second health tracker backs the poll loop off when REST itself fails.
type Service struct {
	cfg    config.Config
	logger *slog.Logger

	stream        *stream.Client
	gw            *gateway.Client
	notifications *NotificationsFeed
	activity      *ActivityFeed
	restHealth    *health.Tracker
	store         *store.Store // nil when warm-start persistence is disabled

	events chan Event
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs the service and everything it owns. It performs no I/O
// beyond opening the warm-start store when enabled.
func New(cfg config.Config, logger *slog.Logger) (*Service, error) {
	s := &Service{
		cfg:        cfg,
		logger:     logger.With("component", "feed-service"),
		gw:         gateway.NewClient(cfg.API.RESTBaseURL, logger),
		restHealth: health.NewTracker(cfg.Stream.BackoffBase, cfg.Stream.BackoffMax),
		events:     make(chan Event, eventBuffer),
		stopCh:     make(chan struct{}),
	}

	s.stream = stream.NewClient(stream.Config{
		URL:               cfg.API.WSURL,
		HeartbeatInterval: cfg.Stream.HeartbeatInterval,
		ReadTimeout:       cfg.Stream.ReadTimeout,
		BackoffBase:       cfg.Stream.BackoffBase,
		BackoffMax:        cfg.Stream.BackoffMax,
		MaxRetries:        cfg.Stream.MaxRetries,
	}, logger)

	s.notifications = NewNotificationsFeed(NotificationsConfig{
		Address:       cfg.Feed.UserAddress,
		Cap:           cfg.Feed.NotificationCap,
		SnapshotLimit: cfg.Feed.SnapshotLimit,
		DedupWindow:   cfg.Feed.DedupWindow,
		SeedRetention: cfg.Feed.SeedRetention,
	}, s.gw, s.emit, logger)

	s.activity = NewActivityFeed(ActivityConfig{
		Cap:           cfg.Feed.ActivityCap,
		DedupWindow:   cfg.Feed.DedupWindow,
		SeedRetention: cfg.Feed.SeedRetention,
	}, s.gw, s.emit, logger)

	if cfg.Store.Enabled {
		st, err := store.Open(cfg.Store.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		s.store = st
	}

	return s, nil
}

// Start warms the dedup caches, subscribes both feeds, connects the stream,
// loads initial snapshots, and starts the poll loop. A failed initial
// connect or snapshot is logged, not fatal — reconnection and polling
// recover on their own schedule.
func (s *Service) Start(ctx context.Context) error {
	s.warmCaches()

	s.notifications.Subscribe(s.stream)
	s.activity.Subscribe(s.stream)

	if err := s.stream.Connect(ctx); err != nil {
		s.logger.Warn("initial stream connect failed, continuing with REST only", "error", err)
	}

	s.refreshAll(ctx)

	s.wg.Add(1)
	go s.pollLoop()

	s.logger.Info("feed service started",
		"address", s.cfg.Feed.UserAddress,
		"poll_interval", s.cfg.Feed.PollInterval,
	)
	return nil
}

// Stop tears everything down: poll loop, subscriptions, stream connection,
// and (when enabled) the warm-start snapshot of the dedup caches.
func (s *Service) Stop() {
	close(s.stopCh)
	s.wg.Wait()

	s.notifications.Close()
	s.activity.Close()
	if err := s.stream.Disconnect(); err != nil {
		s.logger.Warn("stream close", "error", err)
	}

	if s.store != nil {
		if err := s.store.SaveSignatures("notifications", s.notifications.Cache().Export()); err != nil {
			s.logger.Warn("persist notification signatures", "error", err)
		}
		if err := s.store.SaveSignatures("activity", s.activity.Cache().Export()); err != nil {
			s.logger.Warn("persist activity signatures", "error", err)
		}
		s.store.Close()
	}

	s.logger.Info("feed service stopped")
}

// Events returns the stream of accepted feed deltas for fan-out.
func (s *Service) Events() <-chan Event { return s.events }

// Notifications returns the reconciled notification list.
func (s *Service) Notifications() []types.Notification { return s.notifications.Notifications() }

// UnreadCount returns the derived unread notification count.
func (s *Service) UnreadCount() int { return s.notifications.Unread() }

// Activity returns the reconciled recent-trades list.
func (s *Service) Activity() []types.ActivityItem { return s.activity.Items() }

// ActivityVolumeUSD returns the total notional of the rendered trades.
func (s *Service) ActivityVolumeUSD() string { return s.activity.VolumeUSD().String() }

// IsConnected reports whether the live stream is up.
func (s *Service) IsConnected() bool { return s.stream.IsConnected() }

// StreamHealth returns the stream's connection health snapshot.
func (s *Service) StreamHealth() health.State { return s.stream.Health() }

// MarkRead forwards the user action through the notifications feed.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	return s.notifications.MarkRead(ctx, id)
}

// MarkAllRead forwards the user action through the notifications feed.
func (s *Service) MarkAllRead(ctx context.Context) error {
	return s.notifications.MarkAllRead(ctx)
}

// DeleteNotification forwards the user action through the notifications feed.
func (s *Service) DeleteNotification(ctx context.Context, id string) error {
	return s.notifications.Delete(ctx, id)
}

// emit fans a delta out without ever blocking a feed.
func (s *Service) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("event channel full, dropping delta", "kind", ev.Kind)
	}
}

func (s *Service) warmCaches() {
	if s.store == nil {
		return
	}
	retention := s.cfg.Feed.SeedRetention
	if sigs, err := s.store.LoadSignatures("notifications", retention); err != nil {
		s.logger.Warn("load notification signatures", "error", err)
	} else {
		s.notifications.Cache().Warm(sigs)
	}
	if sigs, err := s.store.LoadSignatures("activity", retention); err != nil {
		s.logger.Warn("load activity signatures", "error", err)
	} else {
		s.activity.Cache().Warm(sigs)
	}
}

// pollLoop re-fetches REST snapshots on a fixed cadence. The rest health
// tracker gates attempts so a failing backend is retried with backoff
// rather than hammered every tick.
func (s *Service) pollLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Feed.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.restHealth.ShouldAttempt() {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Feed.PollInterval)
			s.refreshAll(ctx)
			cancel()
		}
	}
}

// refreshAll loads both snapshots and reports the outcome to the REST
// health tracker. A failed refresh leaves the rendered lists unchanged.
func (s *Service) refreshAll(ctx context.Context) {
	var failed bool
	if err := s.notifications.Refresh(ctx); err != nil {
		s.logger.Warn("notifications refresh failed", "error", err)
		failed = true
	}
	if err := s.activity.Refresh(ctx); err != nil {
		s.logger.Warn("activity refresh failed", "error", err)
		failed = true
	}
	if failed {
		s.restHealth.RecordFailure()
	} else {
		s.restHealth.RecordSuccess()
	}
}
