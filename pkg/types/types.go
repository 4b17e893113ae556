// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the feed service — notification
// and activity records, WebSocket envelopes, and control messages. It has no
// dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Channels
// ————————————————————————————————————————————————————————————————————————

// A channel is an opaque topic string that scopes which listeners receive
// which inbound messages. The server side uses two channel families:
// per-wallet notification channels and a global trade activity channel.

// ActivityChannel is the global channel carrying public trade events.
const ActivityChannel = "activity"

// UserChannel returns the per-wallet notification channel for an address.
// The address is checksummed so that differently-cased inputs map to the
// same channel.
func UserChannel(address string) string {
	if common.IsHexAddress(address) {
		address = common.HexToAddress(address).Hex()
	}
	return "user:" + address
}

// ————————————————————————————————————————————————————————————————————————
// WebSocket wire format
// ————————————————————————————————————————————————————————————————————————

// Outbound control message types.
const (
	ControlSubscribe   = "subscribe"
	ControlUnsubscribe = "unsubscribe"
	ControlPing        = "ping"
)

// Inbound envelope types. The client ignores anything it doesn't recognize.
const (
	EventNotification = "notification"
	EventActivity     = "update"
	EventPong         = "pong"
)

// ControlMessage is sent to the server to manage channel subscriptions
// and keep the connection alive.
type ControlMessage struct {
	Type    string `json:"type"`              // "subscribe", "unsubscribe", "ping"
	Channel string `json:"channel,omitempty"` // omitted for ping
}

// Envelope is the wrapper around every inbound WebSocket message.
// Data is left opaque here; the per-channel listener decodes it into
// the event type it expects.
type Envelope struct {
	Type      string          `json:"type"`
	Channel   string          `json:"channel"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp,omitempty"` // unix millis, 0 if absent
}

// EventTime converts the envelope timestamp to a time.Time, falling back
// to the supplied receipt time when the server didn't include one.
func (e Envelope) EventTime(receivedAt time.Time) time.Time {
	if e.Timestamp <= 0 {
		return receivedAt
	}
	return time.UnixMilli(e.Timestamp)
}

// ————————————————————————————————————————————————————————————————————————
// Notifications
// ————————————————————————————————————————————————————————————————————————

// Notification is a user-facing event: an order fill, a market resolution,
// a claimable payout. Delivered both via the REST snapshot endpoint and the
// per-wallet WebSocket channel; the two paths overlap and are reconciled
// by the feed layer.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`       // e.g. "fill", "resolution", "claim"
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	RelatedID string    `json:"related_id"` // market / order the event refers to
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the identifying fields a notification must carry to be
// rendered. Title and Message may legitimately be empty (the dedup layer
// substitutes placeholders), but an event without an ID or type has no
// stable identity and is dropped.
func (n Notification) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("notification missing id")
	}
	if n.Type == "" {
		return fmt.Errorf("notification %s missing type", n.ID)
	}
	return nil
}

// NotificationList is the REST snapshot response: one page of notifications
// plus the authoritative unread count across all pages.
type NotificationList struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unread_count"`
	Total         int            `json:"total"`
}

// NotificationEvent is the streamed payload on a user channel. Timestamps
// arrive as unix millis on the wire; ToNotification converts to time.Time
// with a receipt-time fallback.
type NotificationEvent struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	RelatedID string `json:"related_id"`
	Timestamp int64  `json:"timestamp"` // unix millis
}

// ToNotification converts a streamed event into the rendered record.
// Streamed notifications are always unread.
func (e NotificationEvent) ToNotification(receivedAt time.Time) Notification {
	at := receivedAt
	if e.Timestamp > 0 {
		at = time.UnixMilli(e.Timestamp)
	}
	return Notification{
		ID:        e.ID,
		Type:      e.Type,
		Title:     e.Title,
		Message:   e.Message,
		RelatedID: e.RelatedID,
		Read:      false,
		CreatedAt: at,
	}
}

// ————————————————————————————————————————————————————————————————————————
// Recent activity
// ————————————————————————————————————————————————————————————————————————

// ActivityItem is one public trade in the recent-activity lane.
// Price and Size are decimals because the API returns them as strings
// to preserve precision; a binary-market price is always in (0, 1).
type ActivityItem struct {
	ID        string          `json:"id"`
	MarketID  string          `json:"market_id"`
	Question  string          `json:"question"` // human-readable market title
	Trader    string          `json:"trader"`   // checksummed wallet address
	Side      string          `json:"side"`     // "BUY" or "SELL"
	Outcome   string          `json:"outcome"`  // "Yes" or "No"
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Timestamp time.Time       `json:"timestamp"`
}

// NotionalUSD returns the USD value of the trade (price × size).
func (a ActivityItem) NotionalUSD() decimal.Decimal {
	return a.Price.Mul(a.Size)
}

// Validate rejects rows that would render broken: missing ids, a trader
// that is not a well-formed hex address, or a non-positive price/size.
func (a ActivityItem) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("activity item missing id")
	}
	if a.MarketID == "" {
		return fmt.Errorf("activity %s missing market id", a.ID)
	}
	if !common.IsHexAddress(a.Trader) {
		return fmt.Errorf("activity %s has malformed trader address %q", a.ID, a.Trader)
	}
	if !a.Price.IsPositive() || !a.Size.IsPositive() {
		return fmt.Errorf("activity %s has non-positive price/size", a.ID)
	}
	return nil
}

// ActivityEvent is the streamed payload on the activity channel.
type ActivityEvent struct {
	ID        string `json:"id"`
	MarketID  string `json:"market_id"`
	Question  string `json:"question"`
	Trader    string `json:"trader"`
	Side      string `json:"side"`
	Outcome   string `json:"outcome"`
	Price     string `json:"price"` // decimal string, e.g. "0.55"
	Size      string `json:"size"`  // decimal string, e.g. "120.5"
	Timestamp int64  `json:"timestamp"` // unix millis
}

// ToActivityItem converts a streamed trade into the rendered record,
// parsing decimal strings and checksumming the trader address. Returns an
// error for malformed price/size so callers can drop the row.
func (e ActivityEvent) ToActivityItem(receivedAt time.Time) (ActivityItem, error) {
	price, err := decimal.NewFromString(e.Price)
	if err != nil {
		return ActivityItem{}, fmt.Errorf("activity %s: parse price %q: %w", e.ID, e.Price, err)
	}
	size, err := decimal.NewFromString(e.Size)
	if err != nil {
		return ActivityItem{}, fmt.Errorf("activity %s: parse size %q: %w", e.ID, e.Size, err)
	}

	trader := e.Trader
	if common.IsHexAddress(trader) {
		trader = common.HexToAddress(trader).Hex()
	}

	at := receivedAt
	if e.Timestamp > 0 {
		at = time.UnixMilli(e.Timestamp)
	}

	return ActivityItem{
		ID:        e.ID,
		MarketID:  e.MarketID,
		Question:  e.Question,
		Trader:    trader,
		Side:      e.Side,
		Outcome:   e.Outcome,
		Price:     price,
		Size:      size,
		Timestamp: at,
	}, nil
}
