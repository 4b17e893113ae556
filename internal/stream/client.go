// client.go implements the multiplexed WebSocket client for the live feed.
//
// One Client owns at most one physical connection and multiplexes logical
// channels over it: features register listeners per channel, the client
// sends subscribe/unsubscribe control frames, and dispatches inbound
// messages to every listener on the matching channel.
//
// The connection auto-reconnects with exponential backoff (1s → 30s max,
// driven by the health tracker) and replays a subscribe frame for every
// registered channel on reconnection, so channel state survives a drop
// transparently to callers. After MaxRetries consecutive failures the
// client gives up and stays terminally disconnected — no silent retry
// storms. A read deadline ensures silent server failures are detected
// within ~2 missed pings.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"polymarket-feed/internal/health"
	"polymarket-feed/pkg/types"
)

var (
	// ErrClosed is returned when operating on a terminally-closed client.
	ErrClosed = errors.New("stream client closed")

	// ErrNotConnected is returned when a write is attempted with no transport.
	ErrNotConnected = errors.New("stream not connected")
)

// Message is a decoded inbound event delivered to channel listeners.
// Type is one of the known event variants; unknown wire types never
// reach a listener.
type Message struct {
	Type    string          // types.EventNotification or types.EventActivity
	Channel string
	Data    json.RawMessage
	At      time.Time // server timestamp, or receipt time when absent
}

// Listener receives messages dispatched on a subscribed channel.
type Listener func(msg Message)

// Config tunes the client. Zero values fall back to sensible defaults.
type Config struct {
	URL               string
	HeartbeatInterval time.Duration // ping cadence while open
	ReadTimeout       time.Duration // read deadline per message
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	MaxRetries        int // consecutive failures before giving up
}

type subscription struct {
	channel string
	fn      Listener
}

// Client maintains one multiplexed WebSocket connection.
// Construct explicitly with NewClient and inject it into whichever feature
// needs it; lifecycle is Connect/Disconnect, never implicit.
type Client struct {
	url    string
	dial   Dialer
	health *health.Tracker
	logger *slog.Logger

	heartbeatInterval time.Duration
	readTimeout       time.Duration
	maxRetries        int

	mu        sync.Mutex
	state     State
	conn      Transport
	gen       int // connection generation; stale read loops detect replacement
	listeners map[string][]*subscription
	reconnect *time.Timer
	hbStop    chan struct{}
}

// NewClient creates a stream client. It performs no I/O until Connect.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 25 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	return &Client{
		url:               cfg.URL,
		dial:              Dial,
		health:            health.NewTracker(cfg.BackoffBase, cfg.BackoffMax),
		logger:            logger.With("component", "stream"),
		heartbeatInterval: cfg.HeartbeatInterval,
		readTimeout:       cfg.ReadTimeout,
		maxRetries:        cfg.MaxRetries,
		listeners:         make(map[string][]*subscription),
	}
}

// IsConnected reports whether the transport is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateOpen
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Health returns a snapshot of the connection health state.
func (c *Client) Health() health.State {
	return c.health.Snapshot()
}

// Connect opens the transport. No-op when already open or connecting;
// returns ErrClosed after explicit disconnect or exhausted retries.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateOpen, StateConnecting, StateReconnecting:
		c.mu.Unlock()
		return nil
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	}
	c.state = StateConnecting
	c.mu.Unlock()

	return c.connect(ctx)
}

// connect dials and, on success, transitions to Open, resets backoff, and
// replays subscriptions. On failure it records the failure and either
// schedules a retry or gives up.
func (c *Client) connect(ctx context.Context) error {
	conn, err := c.dial(ctx, c.url)

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		if err == nil {
			conn.Close()
		}
		return ErrClosed
	}
	if err != nil {
		c.failLocked(err)
		c.mu.Unlock()
		return fmt.Errorf("dial: %w", err)
	}

	c.conn = conn
	c.gen++
	gen := c.gen
	c.state = StateOpen
	c.health.RecordSuccess()

	channels := make([]string, 0, len(c.listeners))
	for ch := range c.listeners {
		channels = append(channels, ch)
	}

	hbStop := make(chan struct{})
	c.hbStop = hbStop
	c.mu.Unlock()

	// Replay subscriptions so a reconnect is transparent to callers.
	for _, ch := range channels {
		if err := c.writeControl(types.ControlMessage{Type: types.ControlSubscribe, Channel: ch}); err != nil {
			c.logger.Warn("resubscribe failed", "channel", ch, "error", err)
		}
	}

	go c.readLoop(conn, gen)
	go c.heartbeat(hbStop)

	c.logger.Info("stream connected", "url", c.url, "channels", len(channels))
	return nil
}

// Subscribe registers a listener for a channel and returns its disposer.
// Each call adds exactly one registration; the disposer removes only that
// registration (idempotent — calling it twice is a no-op) and, when the
// channel's listener list empties, sends an unsubscribe control frame.
// Go function values carry no reliable identity, so a caller that wants
// one registration must hold one disposer; accidental double registration
// is harmless downstream, where the dedup cache drops the repeat.
func (c *Client) Subscribe(channel string, fn Listener) func() {
	c.mu.Lock()
	sub := &subscription{channel: channel, fn: fn}
	first := len(c.listeners[channel]) == 0
	c.listeners[channel] = append(c.listeners[channel], sub)
	open := c.state == StateOpen
	c.mu.Unlock()

	if open && first {
		if err := c.writeControl(types.ControlMessage{Type: types.ControlSubscribe, Channel: channel}); err != nil {
			c.logger.Warn("subscribe frame failed", "channel", channel, "error", err)
		}
	}
	return c.disposer(sub)
}

// disposer returns a once-only removal function for a subscription.
func (c *Client) disposer(sub *subscription) func() {
	var once sync.Once
	return func() {
		once.Do(func() { c.removeListener(sub) })
	}
}

func (c *Client) removeListener(sub *subscription) {
	c.mu.Lock()
	subs := c.listeners[sub.channel]
	for i, s := range subs {
		if s == sub {
			c.listeners[sub.channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	empty := len(c.listeners[sub.channel]) == 0
	if empty {
		delete(c.listeners, sub.channel)
	}
	open := c.state == StateOpen
	c.mu.Unlock()

	if empty && open {
		if err := c.writeControl(types.ControlMessage{Type: types.ControlUnsubscribe, Channel: sub.channel}); err != nil {
			c.logger.Warn("unsubscribe frame failed", "channel", sub.channel, "error", err)
		}
	}
}

// Disconnect closes the client for good: cancels the heartbeat and any
// pending reconnect, closes the transport, clears the channel registry,
// and resets the health tracker. No implicit reconnection afterwards.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	c.stopTimersLocked()
	conn := c.conn
	c.conn = nil
	c.listeners = make(map[string][]*subscription)
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	c.health.Reset()
	c.logger.Info("stream disconnected")
	return err
}

// stopTimersLocked cancels the heartbeat and pending reconnect timer.
// Must be called with the lock held.
func (c *Client) stopTimersLocked() {
	if c.hbStop != nil {
		close(c.hbStop)
		c.hbStop = nil
	}
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

// readLoop reads until the transport fails, then hands off to failure
// handling. gen guards against a stale loop acting on a newer connection.
func (c *Client) readLoop(conn Transport, gen int) {
	for {
		conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(gen, err)
			return
		}
		c.dispatch(data)
	}
}

// handleClose reacts to an unexpected transport close.
func (c *Client) handleClose(gen int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state == StateClosed {
		return // stale loop, or explicit disconnect already handled it
	}
	c.stopTimersLocked()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.failLocked(err)
}

// failLocked records a failure and schedules a reconnect, or gives up when
// the retry budget is exhausted. Must be called with the lock held.
func (c *Client) failLocked(err error) {
	c.health.RecordFailure()
	retries := c.health.RetryCount()
	if retries > c.maxRetries {
		c.state = StateClosed
		c.stopTimersLocked()
		c.logger.Error("stream retries exhausted, giving up",
			"error", err,
			"failures", retries,
		)
		return
	}

	backoff := c.health.Backoff()
	c.state = StateReconnecting
	c.logger.Warn("stream disconnected, reconnecting",
		"error", err,
		"backoff", backoff,
		"attempt", retries,
	)
	c.reconnect = time.AfterFunc(backoff, c.tryReconnect)
}

// tryReconnect fires after the backoff delay, re-checking the health gate.
func (c *Client) tryReconnect() {
	c.mu.Lock()
	if c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	if !c.health.ShouldAttempt() {
		// Clock skew between timer and tracker; try again shortly.
		c.reconnect = time.AfterFunc(50*time.Millisecond, c.tryReconnect)
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.mu.Unlock()

	if err := c.connect(context.Background()); err != nil && !errors.Is(err, ErrClosed) {
		c.logger.Warn("reconnect attempt failed", "error", err)
	}
}

// dispatch parses an inbound frame, converts it to a known message variant,
// and invokes every listener registered on its channel. A parse failure or
// a panicking listener never prevents delivery to other listeners or kills
// the read loop.
func (c *Client) dispatch(data []byte) {
	receivedAt := time.Now()

	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Debug("ignoring non-json stream message", "data", string(data))
		return
	}

	switch env.Type {
	case types.EventPong:
		return
	case types.EventNotification, types.EventActivity:
	default:
		c.logger.Debug("ignoring unknown stream message type", "type", env.Type)
		return
	}

	if env.Channel == "" {
		c.logger.Debug("ignoring stream message without channel", "type", env.Type)
		return
	}

	c.mu.Lock()
	subs := append([]*subscription(nil), c.listeners[env.Channel]...)
	c.mu.Unlock()

	msg := Message{
		Type:    env.Type,
		Channel: env.Channel,
		Data:    env.Data,
		At:      env.EventTime(receivedAt),
	}
	for _, s := range subs {
		c.invoke(s, msg)
	}
}

// invoke isolates listener panics so one bad consumer cannot corrupt the
// client or starve its siblings.
func (c *Client) invoke(sub *subscription, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("listener panic",
				"channel", sub.channel,
				"type", msg.Type,
				"panic", r,
			)
		}
	}()
	sub.fn(msg)
}

// heartbeat sends ping control frames while the connection is open.
// A failed write ends the loop; the read deadline handles actual detection.
func (c *Client) heartbeat(stop chan struct{}) {
	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.writeControl(types.ControlMessage{Type: types.ControlPing}); err != nil {
				c.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

// writeControl serializes all transport writes behind the client lock;
// the underlying WebSocket does not tolerate concurrent writers.
func (c *Client) writeControl(msg types.ControlMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteJSON(msg)
}
