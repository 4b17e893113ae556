// Package dedup decides "have I already shown this event."
//
// Events reach the feed layer over two overlapping paths — the WebSocket
// stream and periodic REST snapshots — so the same logical event can arrive
// more than once with different unique ids. A signature derived from the
// event's semantic fields identifies the logical event regardless of the
// delivery path; a bounded, time-windowed cache of recently-seen signatures
// suppresses the repeats.
package dedup

import "strings"

// missingField substitutes for any empty signature component so malformed
// events still produce a stable, non-empty signature.
const missingField = "unknown"

// signature separator. Chosen so it cannot collide with field content
// (event types, ids, and titles never contain it back-to-back with a pipe).
const sep = "|#|"

// Signature builds the deterministic identity string for an event from its
// semantic fields. The same logical event must yield the same signature
// whether it arrived via REST snapshot or stream push, so callers must pass
// fields in the fixed (type, relatedID, title, message) order — not
// whatever order the wire format happened to use.
func Signature(eventType, relatedID, title, message string) string {
	return join(eventType, relatedID, title, message)
}

func join(fields ...string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		if f == "" {
			f = missingField
		}
		parts[i] = f
	}
	return strings.Join(parts, sep)
}
