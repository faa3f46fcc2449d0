package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocketTransport frames JSON messages over a *websocket.Conn using
// gorilla/websocket's text-message framing (one JSON value per WebSocket
// message, so no length prefix is needed the way TCPTransport needs one),
// grounded on kadirpekel-hector/a2a/server.go's upgrader.Upgrade +
// conn.ReadJSON/WriteJSON idiom. gorilla/websocket requires at most one
// concurrent reader and one concurrent writer per connection; Send/Recv each
// hold their own mutex to satisfy that without serializing reads behind
// writes.
type WebSocketTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	readMu  sync.Mutex

	mu     sync.Mutex
	closed bool
}

// NewWebSocketTransport wraps an already-established connection (either a
// client dial or a server-side upgrade).
func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{conn: conn}
}

// DialWebSocket connects to a ws:// or wss:// URL and wraps the resulting
// connection.
func DialWebSocket(ctx context.Context, url string) (*WebSocketTransport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocketTransport(conn), nil
}

// Upgrader upgrades an incoming HTTP request to a WebSocketTransport.
// CheckOrigin is left at gorilla's default (same-origin only) unless the
// caller sets one explicitly — unlike kadirpekel-hector's demo server, this
// does not allow-all by default.
type Upgrader struct {
	upgrader websocket.Upgrader
}

// NewUpgrader builds an Upgrader. checkOrigin may be nil to keep gorilla's
// default same-origin check.
func NewUpgrader(checkOrigin func(r *http.Request) bool) *Upgrader {
	return &Upgrader{upgrader: websocket.Upgrader{CheckOrigin: checkOrigin}}
}

// Upgrade upgrades w/r to a WebSocket connection and wraps it as a
// Transport. On failure it has already written an HTTP error response, per
// gorilla/websocket's Upgrade contract.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*WebSocketTransport, error) {
	conn, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocketTransport(conn), nil
}

func (t *WebSocketTransport) Send(ctx context.Context, msg json.RawMessage) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	}

	if err := t.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		t.fail()
		return err
	}
	return nil
}

func (t *WebSocketTransport) Recv(ctx context.Context) (json.RawMessage, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(deadline)
	}

	_, body, err := t.conn.ReadMessage()
	if err != nil {
		t.fail()
		return nil, err
	}
	return json.RawMessage(body), nil
}

// fail marks the transport closed after a framing/IO error, matching
// TCPTransport.fail's reasoning: a WebSocket connection that errored mid
// message is not safely resumable.
func (t *WebSocketTransport) fail() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	_ = t.conn.Close()
}

func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

func (t *WebSocketTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}
