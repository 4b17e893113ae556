package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"polymarket-feed/internal/dedup"
	"polymarket-feed/internal/gateway"
	"polymarket-feed/internal/stream"
	"polymarket-feed/pkg/types"
)

// NotificationsFeed reconciles a wallet's notifications from the REST
// snapshot endpoint and the per-wallet stream channel into one rendered
// list with a derived unread count.
type NotificationsFeed struct {
	rec     *Reconciler[types.Notification]
	cache   *dedup.Cache
	gw      *gateway.Client
	address string
	channel string
	limit   int
	logger  *slog.Logger
	emit    func(Event)

	mu sync.Mutex
	// unreadOverflow counts unread notifications the server reported beyond
	// what the rendered page holds. The visible unread count is always
	// recomputed from the full list plus this snapshot-derived remainder,
	// never adjusted incrementally.
	unreadOverflow int

	unsub func()
}

// NotificationsConfig bundles the knobs for a notifications feed.
type NotificationsConfig struct {
	Address       string
	Cap           int
	SnapshotLimit int
	DedupWindow   time.Duration
	SeedRetention time.Duration
}

// NewNotificationsFeed creates the feed. emit may be nil.
func NewNotificationsFeed(cfg NotificationsConfig, gw *gateway.Client, emit func(Event), logger *slog.Logger) *NotificationsFeed {
	logger = logger.With("component", "notifications")
	cache := dedup.NewCache(cfg.DedupWindow, cfg.SeedRetention, dedup.DefaultMaxEntries)
	if emit == nil {
		emit = func(Event) {}
	}
	return &NotificationsFeed{
		rec: NewReconciler(cfg.Cap, cache, Funcs[types.Notification]{
			ID:        func(n types.Notification) string { return n.ID },
			Signature: func(n types.Notification) string { return dedup.Signature(n.Type, n.RelatedID, n.Title, n.Message) },
			Time:      func(n types.Notification) time.Time { return n.CreatedAt },
		}, logger),
		cache:   cache,
		gw:      gw,
		address: cfg.Address,
		channel: types.UserChannel(cfg.Address),
		limit:   cfg.SnapshotLimit,
		logger:  logger,
		emit:    emit,
	}
}

// Cache exposes the dedup cache for warm-start persistence.
func (f *NotificationsFeed) Cache() *dedup.Cache { return f.cache }

// Subscribe registers the feed on its wallet channel. Safe to call once;
// the returned disposer is held and invoked by Close.
func (f *NotificationsFeed) Subscribe(c *stream.Client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unsub != nil {
		return
	}
	f.unsub = c.Subscribe(f.channel, f.handleMessage)
}

// Close releases the channel subscription.
func (f *NotificationsFeed) Close() {
	f.mu.Lock()
	unsub := f.unsub
	f.unsub = nil
	f.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Refresh loads the REST snapshot: the rendered list is replaced wholesale,
// retained signatures are registered for dedup, and the unread count is
// reset from the server's authoritative value. On error the rendered list
// is left unchanged.
func (f *NotificationsFeed) Refresh(ctx context.Context) error {
	list, err := f.gw.ListNotifications(ctx, f.address, f.limit, 0)
	if err != nil {
		return fmt.Errorf("notifications snapshot: %w", err)
	}

	valid := make([]types.Notification, 0, len(list.Notifications))
	for _, n := range list.Notifications {
		if err := n.Validate(); err != nil {
			f.logger.Warn("dropping malformed snapshot notification", "error", err)
			continue
		}
		valid = append(valid, n)
	}

	retained := f.rec.Seed(valid)

	visible := 0
	for _, n := range retained {
		if !n.Read {
			visible++
		}
	}
	f.mu.Lock()
	f.unreadOverflow = list.UnreadCount - visible
	if f.unreadOverflow < 0 {
		f.unreadOverflow = 0
	}
	f.mu.Unlock()

	f.logger.Debug("notifications refreshed", "items", len(retained), "unread", list.UnreadCount)
	return nil
}

// handleMessage merges one streamed event. Malformed payloads are dropped,
// never rendered, and never crash the feed.
func (f *NotificationsFeed) handleMessage(msg stream.Message) {
	if msg.Type != types.EventNotification {
		return
	}

	var ev types.NotificationEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		f.logger.Warn("undecodable notification payload", "error", err)
		return
	}
	if ev.ID == "" {
		// Toast-style pushes may omit a server id; the signature is the
		// identity, the id only keys the rendered list.
		ev.ID = "local-" + uuid.NewString()
	}

	n := ev.ToNotification(msg.At)
	if err := n.Validate(); err != nil {
		f.logger.Warn("dropping malformed notification", "error", err)
		return
	}

	if f.rec.Offer(n) {
		f.emit(Event{Kind: EventNotification, Item: n})
	}
}

// Notifications returns the rendered list, newest first.
func (f *NotificationsFeed) Notifications() []types.Notification {
	return f.rec.Items()
}

// Unread recomputes the unread count from the full rendered list plus the
// off-page remainder reported by the last snapshot.
func (f *NotificationsFeed) Unread() int {
	count := 0
	f.rec.Each(func(n types.Notification) {
		if !n.Read {
			count++
		}
	})
	f.mu.Lock()
	defer f.mu.Unlock()
	return count + f.unreadOverflow
}

// MarkRead optimistically marks a notification read locally, then pushes
// the action upstream. The returned error is for user feedback; the local
// state is not rolled back here (the caller decides).
func (f *NotificationsFeed) MarkRead(ctx context.Context, id string) error {
	if !f.rec.Update(id, func(n *types.Notification) { n.Read = true }) {
		return fmt.Errorf("notification %s not found", id)
	}
	if err := f.gw.MarkRead(ctx, f.address, id); err != nil {
		f.logger.Warn("mark-read failed upstream", "id", id, "error", err)
		return err
	}
	return nil
}

// MarkAllRead marks everything read, locally and upstream.
func (f *NotificationsFeed) MarkAllRead(ctx context.Context) error {
	ids := make([]string, 0)
	f.rec.Each(func(n types.Notification) {
		if !n.Read {
			ids = append(ids, n.ID)
		}
	})
	for _, id := range ids {
		f.rec.Update(id, func(n *types.Notification) { n.Read = true })
	}
	f.mu.Lock()
	f.unreadOverflow = 0
	f.mu.Unlock()

	if err := f.gw.MarkAllRead(ctx, f.address); err != nil {
		f.logger.Warn("mark-all-read failed upstream", "error", err)
		return err
	}
	return nil
}

// Delete removes a notification locally and upstream.
func (f *NotificationsFeed) Delete(ctx context.Context, id string) error {
	if !f.rec.Remove(id) {
		return fmt.Errorf("notification %s not found", id)
	}
	if err := f.gw.DeleteNotification(ctx, f.address, id); err != nil {
		f.logger.Warn("delete failed upstream", "id", id, "error", err)
		return err
	}
	return nil
}
