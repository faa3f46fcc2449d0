package protocol

import (
	"context"
	"net"

	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/transport"
)

// ListenAndServeTCP listens on addr and, for every accepted connection,
// wraps it in a transport.TCPTransport and runs a ChannelServer against
// engine for channel/kind until the connection closes or ctx is done. The
// accept loop itself runs in the background; ListenAndServeTCP returns the
// listener so the caller can Close it to stop accepting new connections.
func ListenAndServeTCP(ctx context.Context, addr string, channel Channel, kind Kind, engine *Engine, logger Logger) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
				}
				logger.Error("protocol_accept_failed", "channel", string(channel), "error", err.Error())
				return
			}

			t := transport.NewTCPTransport(conn)
			server := NewChannelServer(channel, kind, t, engine, logger)
			go func() {
				if err := server.Serve(ctx); err != nil {
					logger.Debug("protocol_connection_closed", "channel", string(channel), "error", err.Error())
				}
			}()
		}
	}()

	return ln, nil
}
