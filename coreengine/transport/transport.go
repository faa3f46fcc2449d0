// Package transport implements a minimal send/recv/close/is_connected
// contract plus three implementations: an in-process mock,
// length-prefixed-JSON TCP, and WebSocket.
package transport

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrClosed is returned by Send/Recv once Close has been called.
var ErrClosed = errors.New("transport: closed")

// Transport is the minimal wire contract every protocol adapter talks to:
// send a message, receive the next one, and report/close the connection.
// Framing and serialization are entirely the implementation's concern —
// callers only ever see json.RawMessage frames.
type Transport interface {
	Send(ctx context.Context, msg json.RawMessage) error
	Recv(ctx context.Context) (json.RawMessage, error)
	Close() error
	IsConnected() bool
}
