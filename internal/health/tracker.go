// Package health tracks transport success/failure and computes reconnect
// backoff. The tracker performs no I/O itself — the stream client and the
// REST poller consult it before each attempt and report the outcome back.
//
// Backoff is exponential with jitter: base * 2^(failures-1) * (1 + j) where
// j is uniform in [0, 0.1), capped at a hard ceiling. Any success resets it
// to the base value.
package health

import (
	"math/rand"
	"sync"
	"time"
)

const (
	// DefaultBase and DefaultMax bound the reconnect backoff (1s → 30s).
	DefaultBase = time.Second
	DefaultMax  = 30 * time.Second

	jitterFraction = 0.1
)

// State is a point-in-time copy of the tracker's connection state.
type State struct {
	Connected     bool
	RetryCount    int
	Backoff       time.Duration
	LastAttemptAt time.Time
}

// Tracker decides whether a connect/request attempt should proceed now.
// Safe for concurrent use.
type Tracker struct {
	mu          sync.Mutex
	connected   bool
	retryCount  int
	backoff     time.Duration
	lastAttempt time.Time

	base time.Duration
	max  time.Duration

	// Injectable for deterministic tests.
	now    func() time.Time
	jitter func() float64 // returns a fraction in [0, 1)
}

// NewTracker creates a tracker with the given backoff bounds.
// Non-positive arguments fall back to the defaults.
func NewTracker(base, max time.Duration) *Tracker {
	if base <= 0 {
		base = DefaultBase
	}
	if max < base {
		max = DefaultMax
	}
	return &Tracker{
		backoff: base,
		base:    base,
		max:     max,
		now:     time.Now,
		jitter:  rand.Float64,
	}
}

// ShouldAttempt reports whether a connect/request attempt may proceed:
// true on the first attempt ever, or once the current backoff has elapsed
// since the last attempt.
func (t *Tracker) ShouldAttempt() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.retryCount == 0 {
		return true
	}
	return t.now().Sub(t.lastAttempt) >= t.backoff
}

// RecordSuccess marks the transport healthy and resets backoff to base.
func (t *Tracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	t.retryCount = 0
	t.backoff = t.base
	t.lastAttempt = t.now()
}

// RecordFailure marks the transport down and grows the backoff
// exponentially, with jitter, up to the configured ceiling.
func (t *Tracker) RecordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.retryCount++

	next := t.base
	for i := 1; i < t.retryCount; i++ {
		next *= 2
		if next >= t.max {
			next = t.max
			break
		}
	}
	if next < t.max {
		next = time.Duration(float64(next) * (1 + jitterFraction*t.jitter()))
		if next > t.max {
			next = t.max
		}
	}
	// Never shrink across consecutive failures, jitter included.
	if next < t.backoff {
		next = t.backoff
	}
	t.backoff = next
	t.lastAttempt = t.now()
}

// Reset restores the initial state unconditionally. Used on explicit
// teardown, so a later reconnect starts fresh.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.retryCount = 0
	t.backoff = t.base
	t.lastAttempt = time.Time{}
}

// Backoff returns the current backoff delay.
func (t *Tracker) Backoff() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.backoff
}

// RetryCount returns the number of consecutive failures since the last success.
func (t *Tracker) RetryCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.retryCount
}

// Connected reports whether the last attempt succeeded.
func (t *Tracker) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Snapshot returns a copy of the full connection state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{
		Connected:     t.connected,
		RetryCount:    t.retryCount,
		Backoff:       t.backoff,
		LastAttemptAt: t.lastAttempt,
	}
}
