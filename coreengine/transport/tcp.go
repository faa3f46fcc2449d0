package transport

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
)

// MaxFrameSize bounds a single frame's length prefix, guarding against a
// corrupt or hostile peer claiming an enormous body and exhausting memory
// before the read even starts.
const MaxFrameSize = 64 * 1024 * 1024

// TCPTransport frames JSON messages over a net.Conn with a 4-byte
// big-endian length prefix. Any framing error (a bad length prefix, a short
// read, a write failure) closes the connection — a desynchronized
// length-prefixed stream can never be safely resynchronized.
type TCPTransport struct {
	conn net.Conn

	writeMu sync.Mutex
	readMu  sync.Mutex

	mu     sync.Mutex
	closed bool
}

// NewTCPTransport wraps an already-established connection.
func NewTCPTransport(conn net.Conn) *TCPTransport {
	return &TCPTransport{conn: conn}
}

// DialTCP connects to addr and wraps the resulting connection.
func DialTCP(ctx context.Context, addr string) (*TCPTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewTCPTransport(conn), nil
}

func (t *TCPTransport) Send(ctx context.Context, msg json.RawMessage) error {
	if len(msg) > MaxFrameSize {
		return fmt.Errorf("transport: frame of %d bytes exceeds max %d", len(msg), MaxFrameSize)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(msg)))
	if _, err := t.conn.Write(header[:]); err != nil {
		t.fail()
		return err
	}
	if _, err := t.conn.Write(msg); err != nil {
		t.fail()
		return err
	}
	return nil
}

func (t *TCPTransport) Recv(ctx context.Context) (json.RawMessage, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(deadline)
	}

	var header [4]byte
	if _, err := io.ReadFull(t.conn, header[:]); err != nil {
		t.fail()
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameSize {
		t.fail()
		return nil, fmt.Errorf("transport: peer announced frame of %d bytes, exceeds max %d", length, MaxFrameSize)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(t.conn, body); err != nil {
		t.fail()
		return nil, err
	}
	return json.RawMessage(body), nil
}

// fail marks the transport closed and releases the underlying connection; a
// framing error leaves the stream in an unrecoverable state so the
// connection is torn down rather than risking a desynchronized read on the
// next call.
func (t *TCPTransport) fail() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	_ = t.conn.Close()
}

func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

func (t *TCPTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}
