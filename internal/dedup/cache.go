package dedup

import (
	"sync"
	"time"
)

const (
	// DefaultMaxEntries bounds the cache; oldest entries are evicted first.
	DefaultMaxEntries = 500

	// DefaultWindow suppresses live-burst duplicates: a streamed event whose
	// signature was processed within this window is dropped.
	DefaultWindow = 4 * time.Second

	// DefaultSeedRetention suppresses streamed duplicates of snapshot-seeded
	// items. Seeded signatures get a much longer window than live ones —
	// a snapshot item can be re-pushed by the stream well after a 4s burst
	// window, and the snapshot is authoritative about its existence.
	DefaultSeedRetention = time.Hour
)

type entry struct {
	lastSeen time.Time
	seeded   bool // true when registered from a REST snapshot
}

// Cache is a bounded, time-windowed map from event signature to the time it
// was last seen. Check-and-record is atomic: two concurrent ShouldProcess
// calls for the same signature cannot both pass.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]entry
	order      []string // insertion order, oldest first
	maxEntries int

	window        time.Duration
	seedRetention time.Duration

	now func() time.Time
}

// NewCache creates a cache with the given live window and seed retention.
// Non-positive arguments fall back to the defaults.
func NewCache(window, seedRetention time.Duration, maxEntries int) *Cache {
	if window <= 0 {
		window = DefaultWindow
	}
	if seedRetention <= 0 {
		seedRetention = DefaultSeedRetention
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		entries:       make(map[string]entry),
		maxEntries:    maxEntries,
		window:        window,
		seedRetention: seedRetention,
		now:           time.Now,
	}
}

// ShouldProcess reports whether an event with this signature should be
// processed. A live entry within its window means duplicate: return false
// and leave the entry untouched. Otherwise the signature is recorded with
// the current timestamp and true is returned. Check and record happen under
// one lock, so near-simultaneous duplicates cannot both pass.
func (c *Cache) ShouldProcess(sig string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.entries[sig]; ok {
		ttl := c.window
		if e.seeded {
			ttl = c.seedRetention
		}
		if now.Sub(e.lastSeen) < ttl {
			return false
		}
	}
	c.record(sig, entry{lastSeen: now})
	return true
}

// Remember records a signature without the accept/reject decision. Used
// when seeding from a REST snapshot so a subsequently streamed duplicate of
// an already-loaded item is suppressed for the seed retention period.
func (c *Cache) Remember(sig string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(sig, entry{lastSeen: at, seeded: true})
}

// record inserts or refreshes an entry and evicts the oldest entries while
// the bound is exceeded. Must be called with the lock held.
func (c *Cache) record(sig string, e entry) {
	if _, exists := c.entries[sig]; !exists {
		c.order = append(c.order, sig)
	}
	c.entries[sig] = e

	for len(c.entries) > c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// Len returns the number of cached signatures.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Export copies out the seeded entries for warm-start persistence.
// Live-window entries are deliberately excluded: they expire in seconds
// and would be stale before any restart completes.
func (c *Cache) Export() map[string]time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]time.Time, len(c.entries))
	for sig, e := range c.entries {
		if e.seeded {
			out[sig] = e.lastSeen
		}
	}
	return out
}

// Warm loads persisted seeded signatures, skipping any already past the
// seed retention. Persistence is a cache warm-up only — every dedup
// guarantee holds with an empty cache.
func (c *Cache) Warm(sigs map[string]time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for sig, at := range sigs {
		if now.Sub(at) >= c.seedRetention {
			continue
		}
		c.record(sig, entry{lastSeen: at, seeded: true})
	}
}
