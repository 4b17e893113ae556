package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-feed/internal/dedup"
	"polymarket-feed/internal/gateway"
	"polymarket-feed/internal/stream"
	"polymarket-feed/pkg/types"
)

// ActivityFeed reconciles the public recent-trades lane from the REST
// snapshot endpoint and the global activity channel.
type ActivityFeed struct {
	rec    *Reconciler[types.ActivityItem]
	cache  *dedup.Cache
	gw     *gateway.Client
	limit  int
	logger *slog.Logger
	emit   func(Event)

	mu    sync.Mutex
	unsub func()
}

// ActivityConfig bundles the knobs for the activity feed.
type ActivityConfig struct {
	Cap           int
	DedupWindow   time.Duration
	SeedRetention time.Duration
}

// NewActivityFeed creates the feed. emit may be nil.
func NewActivityFeed(cfg ActivityConfig, gw *gateway.Client, emit func(Event), logger *slog.Logger) *ActivityFeed {
	logger = logger.With("component", "activity")
	cache := dedup.NewCache(cfg.DedupWindow, cfg.SeedRetention, dedup.DefaultMaxEntries)
	if emit == nil {
		emit = func(Event) {}
	}
	return &ActivityFeed{
		rec: NewReconciler(cfg.Cap, cache, Funcs[types.ActivityItem]{
			ID: func(a types.ActivityItem) string { return a.ID },
			Signature: func(a types.ActivityItem) string {
				// A trade's logical identity: market, trader, and what was
				// traded. The stream and the snapshot may report the same
				// fill under different record ids.
				return dedup.Signature("trade", a.MarketID, a.Trader, a.Price.String()+"@"+a.Size.String())
			},
			Time: func(a types.ActivityItem) time.Time { return a.Timestamp },
		}, logger),
		cache:  cache,
		gw:     gw,
		limit:  cfg.Cap,
		logger: logger,
		emit:   emit,
	}
}

// Cache exposes the dedup cache for warm-start persistence.
func (f *ActivityFeed) Cache() *dedup.Cache { return f.cache }

// Subscribe registers the feed on the global activity channel.
func (f *ActivityFeed) Subscribe(c *stream.Client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unsub != nil {
		return
	}
	f.unsub = c.Subscribe(types.ActivityChannel, f.handleMessage)
}

// Close releases the channel subscription.
func (f *ActivityFeed) Close() {
	f.mu.Lock()
	unsub := f.unsub
	f.unsub = nil
	f.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Refresh loads the REST snapshot, dropping rows that would render broken.
// On error the rendered list is left unchanged.
func (f *ActivityFeed) Refresh(ctx context.Context) error {
	items, err := f.gw.ListActivity(ctx, f.limit)
	if err != nil {
		return fmt.Errorf("activity snapshot: %w", err)
	}

	valid := make([]types.ActivityItem, 0, len(items))
	for _, item := range items {
		if err := item.Validate(); err != nil {
			f.logger.Warn("dropping malformed snapshot trade", "error", err)
			continue
		}
		valid = append(valid, item)
	}

	retained := f.rec.Seed(valid)
	f.logger.Debug("activity refreshed", "items", len(retained))
	return nil
}

func (f *ActivityFeed) handleMessage(msg stream.Message) {
	if msg.Type != types.EventActivity {
		return
	}

	var ev types.ActivityEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		f.logger.Warn("undecodable activity payload", "error", err)
		return
	}

	item, err := ev.ToActivityItem(msg.At)
	if err != nil {
		f.logger.Warn("dropping malformed trade", "error", err)
		return
	}
	if err := item.Validate(); err != nil {
		f.logger.Warn("dropping invalid trade", "error", err)
		return
	}

	if f.rec.Offer(item) {
		f.emit(Event{Kind: EventActivity, Item: item})
	}
}

// Items returns the rendered list, newest first.
func (f *ActivityFeed) Items() []types.ActivityItem {
	return f.rec.Items()
}

// VolumeUSD recomputes the total notional of the rendered trades from the
// full list.
func (f *ActivityFeed) VolumeUSD() decimal.Decimal {
	total := decimal.Zero
	f.rec.Each(func(a types.ActivityItem) {
		total = total.Add(a.NotionalUSD())
	})
	return total
}
