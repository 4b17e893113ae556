// Package feed merges REST snapshots and live stream pushes of the same
// event class into one bounded, ordered, deduplicated list per feature.
//
// Two concrete feeds are built on the shared reconciler core:
//
//   - Notifications: per-wallet events (fills, resolutions, claims) with an
//     unread count and user actions (mark-read, delete).
//   - Recent activity: the public trade lane shown on the home page.
//
// Each feed owns its reconciler, dedup cache, and rendered list outright —
// no cross-feature sharing, no external mutation.
package feed

import (
	"log/slog"
	"sync"
	"time"

	"polymarket-feed/internal/dedup"
)

// Funcs tells the reconciler how to read an item: its unique id, its dedup
// signature, and its event timestamp.
type Funcs[T any] struct {
	ID        func(T) string
	Signature func(T) string
	Time      func(T) time.Time
}

// Reconciler produces the single ordered list a UI renders from two
// untrusted, overlapping sources: REST snapshots and stream pushes.
// The list is newest-first and never exceeds its cap; no two entries ever
// share a unique id or a signature.
type Reconciler[T any] struct {
	mu     sync.Mutex
	items  []T
	cap    int
	cache  *dedup.Cache
	fns    Funcs[T]
	logger *slog.Logger
	now    func() time.Time
}

// NewReconciler creates a reconciler bounded to maxItems entries.
func NewReconciler[T any](maxItems int, cache *dedup.Cache, fns Funcs[T], logger *slog.Logger) *Reconciler[T] {
	return &Reconciler[T]{
		cap:    maxItems,
		cache:  cache,
		fns:    fns,
		logger: logger,
		now:    time.Now,
	}
}

// Seed replaces the rendered list wholesale from a REST snapshot.
// Items whose signature or unique id repeats within the snapshot are
// dropped (malformed upstream data, kept first-wins), the result is
// truncated to the cap, and every retained signature is registered so a
// subsequently streamed duplicate of an already-loaded item is suppressed.
// Returns the retained items.
func (r *Reconciler[T]) Seed(items []T) []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	seenSig := make(map[string]bool, len(items))
	seenID := make(map[string]bool, len(items))
	retained := make([]T, 0, len(items))
	now := r.now()

	for _, item := range items {
		sig := r.fns.Signature(item)
		id := r.fns.ID(item)
		if seenSig[sig] || seenID[id] {
			r.logger.Debug("dropping repeated snapshot item", "id", id)
			continue
		}
		seenSig[sig] = true
		seenID[id] = true
		retained = append(retained, item)
		if len(retained) == r.cap {
			break
		}
	}

	r.items = retained
	for _, item := range retained {
		r.cache.Remember(r.fns.Signature(item), now)
	}
	return append([]T(nil), retained...)
}

// Offer merges one streamed event into the list. The caller has already
// validated required fields. Returns true when the event was added.
//
// The unique-id scan is separate from the signature check: it guards
// against the dedup window being shorter than a slow network retry.
func (r *Reconciler[T]) Offer(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sig := r.fns.Signature(item)
	if !r.cache.ShouldProcess(sig) {
		r.logger.Debug("dropping duplicate event", "id", r.fns.ID(item))
		return false
	}

	id := r.fns.ID(item)
	for _, existing := range r.items {
		if r.fns.ID(existing) == id {
			r.logger.Debug("dropping already-rendered event", "id", id)
			return false
		}
	}

	r.insertLocked(item)
	return true
}

// insertLocked places the item at its newest-first position without
// reordering anything already rendered, then truncates to the cap.
// Must be called with the lock held.
func (r *Reconciler[T]) insertLocked(item T) {
	at := r.fns.Time(item)
	idx := 0
	for idx < len(r.items) && r.fns.Time(r.items[idx]).After(at) {
		idx++
	}

	r.items = append(r.items, item) // grow by one
	copy(r.items[idx+1:], r.items[idx:])
	r.items[idx] = item

	if len(r.items) > r.cap {
		r.items = r.items[:r.cap]
	}
}

// Update applies a partial update to the item with the given id.
// Position in the list is unchanged. Returns false when no item matches.
func (r *Reconciler[T]) Update(id string, apply func(*T)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.fns.ID(r.items[i]) == id {
			apply(&r.items[i])
			return true
		}
	}
	return false
}

// Remove deletes the item with the given id. Returns false when absent.
func (r *Reconciler[T]) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.fns.ID(r.items[i]) == id {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return true
		}
	}
	return false
}

// Items returns a copy of the rendered list, newest first.
func (r *Reconciler[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.items...)
}

// Each calls fn for every rendered item under the lock, used for
// recomputing derived aggregates from the full list.
func (r *Reconciler[T]) Each(fn func(T)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items {
		fn(item)
	}
}

// Len returns the rendered list length.
func (r *Reconciler[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
