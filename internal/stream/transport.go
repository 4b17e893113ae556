package stream

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second // deadline for outgoing messages

// Transport is the minimal surface the client needs from a bidirectional
// message connection. The production implementation wraps gorilla/websocket;
// tests substitute an in-process fake.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v any) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer opens a Transport to the given endpoint.
type Dialer func(ctx context.Context, url string) (Transport, error)

// Dial is the production Dialer.
func Dial(ctx context.Context, url string) (Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	return data, err
}

func (w *wsConn) WriteJSON(v any) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteJSON(v)
}

func (w *wsConn) SetReadDeadline(t time.Time) error {
	return w.conn.SetReadDeadline(t)
}

func (w *wsConn) Close() error {
	return w.conn.Close()
}
