package dedup

import (
	"fmt"
	"testing"
	"time"
)

func newTestCache(window, retention time.Duration, max int) (*Cache, *time.Time) {
	c := NewCache(window, retention, max)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestSignatureStable(t *testing.T) {
	t.Parallel()
	a := Signature("fill", "market-1", "Order filled", "Your BUY filled at 0.55")
	b := Signature("fill", "market-1", "Order filled", "Your BUY filled at 0.55")
	if a != b {
		t.Errorf("same fields produced different signatures: %q vs %q", a, b)
	}
}

func TestSignatureDistinguishesFields(t *testing.T) {
	t.Parallel()
	a := Signature("fill", "market-1", "t", "m")
	b := Signature("fill", "market-2", "t", "m")
	if a == b {
		t.Error("different related ids produced the same signature")
	}
}

func TestSignatureMissingFieldsPlaceholder(t *testing.T) {
	t.Parallel()
	a := Signature("", "", "", "")
	if a == "" {
		t.Fatal("signature for empty event is empty")
	}
	b := Signature("", "", "", "")
	if a != b {
		t.Error("placeholder signature is not deterministic")
	}
	// A genuinely-missing field and an explicit "unknown" collapse to the
	// same signature; that is the documented, consistent fallback.
	if a != Signature("unknown", "unknown", "unknown", "unknown") {
		t.Error("placeholder does not match explicit unknown fields")
	}
}

func TestShouldProcessIdempotence(t *testing.T) {
	t.Parallel()
	c, now := newTestCache(4*time.Second, time.Hour, 500)
	sig := Signature("fill", "m1", "t", "msg")

	if !c.ShouldProcess(sig) {
		t.Fatal("first call should process")
	}
	if c.ShouldProcess(sig) {
		t.Fatal("second call within window should be suppressed")
	}

	*now = now.Add(5 * time.Second)
	if !c.ShouldProcess(sig) {
		t.Fatal("call after window elapsed should process again")
	}
}

func TestRememberSuppressesStreamedDuplicate(t *testing.T) {
	t.Parallel()
	c, now := newTestCache(4*time.Second, time.Hour, 500)
	sig := Signature("fill", "m1", "t", "msg")

	c.Remember(sig, *now)

	// Well past the live window but inside seed retention: still a duplicate.
	*now = now.Add(10 * time.Minute)
	if c.ShouldProcess(sig) {
		t.Error("seeded signature should suppress the stream duplicate")
	}

	// Past seed retention the event is processable again.
	*now = now.Add(time.Hour)
	if !c.ShouldProcess(sig) {
		t.Error("signature past seed retention should process")
	}
}

func TestCacheBoundEvictsOldest(t *testing.T) {
	t.Parallel()
	c, now := newTestCache(4*time.Second, time.Hour, 3)

	for i := 0; i < 5; i++ {
		c.Remember(fmt.Sprintf("sig-%d", i), *now)
	}
	if c.Len() != 3 {
		t.Fatalf("Len = %d, want bound 3", c.Len())
	}

	// sig-0 and sig-1 were evicted; they should process as new.
	if !c.ShouldProcess("sig-0") {
		t.Error("evicted signature should be processable")
	}
	// sig-4 is still cached and seeded.
	if c.ShouldProcess("sig-4") {
		t.Error("retained signature should be suppressed")
	}
}

func TestWarmSkipsStaleEntries(t *testing.T) {
	t.Parallel()
	c, now := newTestCache(4*time.Second, time.Hour, 500)

	c.Warm(map[string]time.Time{
		"fresh": now.Add(-10 * time.Minute),
		"stale": now.Add(-2 * time.Hour),
	})

	if c.ShouldProcess("fresh") {
		t.Error("fresh warm-start entry should suppress")
	}
	if !c.ShouldProcess("stale") {
		t.Error("stale warm-start entry should have been dropped on load")
	}
}

func TestExportOnlySeeded(t *testing.T) {
	t.Parallel()
	c, now := newTestCache(4*time.Second, time.Hour, 500)

	c.Remember("seeded", *now)
	c.ShouldProcess("live")

	out := c.Export()
	if _, ok := out["seeded"]; !ok {
		t.Error("seeded entry missing from export")
	}
	if _, ok := out["live"]; ok {
		t.Error("live-window entry should not be exported")
	}
}
