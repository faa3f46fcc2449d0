package protocol

import (
	"context"
	"encoding/json"

	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/transport"
)

// Logger is the minimal structured-logging surface ChannelServer reports
// through, matching coreengine/grpc.Logger's shape so the same concrete
// logger backs both servers.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// wireFrame is the on-the-wire envelope an LRP-speaking connection
// exchanges: a MessageHeader plus opaque content, matching
// UniversalMessage's Header/Content fields.
type wireFrame struct {
	Header  MessageHeader   `json:"header"`
	Content json.RawMessage `json:"content"`
}

// Kind selects which wire family a ChannelServer decodes frames as.
type Kind int

const (
	// KindLRP decodes frames as wireFrame and dispatches via DispatchLRP.
	// Shell, Stdin, and Control (for shutdown/interrupt) use this kind.
	KindLRP Kind = iota
	// KindLDP decodes frames as DebugRequest and dispatches via
	// DispatchLDP. A Control connection dedicated to debug traffic uses
	// this kind.
	KindLDP
	// KindHeartbeat echoes every received frame back unchanged.
	KindHeartbeat
)

// ChannelServer pumps wire frames between one transport.Transport
// connection and the Engine for a single Channel, the bridge between the
// byte-oriented Transport abstraction and the in-memory Engine/
// MessageProcessor dispatch. Its accept-then-dispatch-then-reply loop
// mirrors coreengine/transport.TCPTransport's own read/write framing split:
// one goroutine per connection, blocking Recv, synchronous handling.
type ChannelServer struct {
	channel   Channel
	kind      Kind
	transport transport.Transport
	engine    *Engine
	logger    Logger
}

// NewChannelServer builds a server that serves one connection for channel,
// decoding frames per kind.
func NewChannelServer(channel Channel, kind Kind, t transport.Transport, engine *Engine, logger Logger) *ChannelServer {
	return &ChannelServer{channel: channel, kind: kind, transport: t, engine: engine, logger: logger}
}

// Serve reads frames from the transport until Recv errors (peer closed,
// context cancellation, framing failure) or ctx is done, dispatching each
// one and writing back its reply. It returns the terminating Recv error.
func (s *ChannelServer) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		raw, err := s.transport.Recv(ctx)
		if err != nil {
			return err
		}
		s.handleFrame(ctx, raw)
	}
}

func (s *ChannelServer) handleFrame(ctx context.Context, raw json.RawMessage) {
	switch s.kind {
	case KindHeartbeat:
		if err := s.transport.Send(ctx, s.engine.Heartbeat(raw)); err != nil {
			s.logger.Error("channel_send_failed", "channel", string(s.channel), "error", err.Error())
		}
	case KindLDP:
		s.handleLDP(ctx, raw)
	default:
		s.handleLRP(ctx, raw)
	}
}

func (s *ChannelServer) handleLRP(ctx context.Context, raw json.RawMessage) {
	var frame wireFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		s.sendError(ctx, MessageHeader{}, err)
		return
	}

	reply, err := s.engine.DispatchLRP(s.channel, frame.Header.MsgType, frame.Content)
	if err != nil {
		s.sendError(ctx, frame.Header, err)
		return
	}
	s.sendReply(ctx, frame.Header, reply)
}

func (s *ChannelServer) handleLDP(ctx context.Context, raw json.RawMessage) {
	var req DebugRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.sendError(ctx, MessageHeader{}, err)
		return
	}

	reply, err := s.engine.DispatchLDP(req)
	if err != nil {
		s.sendError(ctx, MessageHeader{MsgType: req.CapabilityName()}, err)
		return
	}
	s.sendReply(ctx, MessageHeader{MsgType: req.CapabilityName()}, reply)
}

// sendReply wraps reply under header's msg_type with a "_reply" suffix, the
// Jupyter-wire-protocol convention (execute_request -> execute_reply).
func (s *ChannelServer) sendReply(ctx context.Context, header MessageHeader, reply json.RawMessage) {
	header.MsgType = header.MsgType + "_reply"
	out, err := json.Marshal(wireFrame{Header: header, Content: reply})
	if err != nil {
		s.logger.Error("channel_reply_marshal_failed", "channel", string(s.channel), "error", err.Error())
		return
	}
	if err := s.transport.Send(ctx, out); err != nil {
		s.logger.Error("channel_send_failed", "channel", string(s.channel), "error", err.Error())
	}
}

func (s *ChannelServer) sendError(ctx context.Context, header MessageHeader, err error) {
	content, marshalErr := json.Marshal(ErrorReply{Message: err.Error()})
	if marshalErr != nil {
		s.logger.Error("channel_error_marshal_failed", "channel", string(s.channel), "error", marshalErr.Error())
		return
	}
	header.MsgType = "error"
	out, marshalErr := json.Marshal(wireFrame{Header: header, Content: content})
	if marshalErr != nil {
		s.logger.Error("channel_error_marshal_failed", "channel", string(s.channel), "error", marshalErr.Error())
		return
	}
	if sendErr := s.transport.Send(ctx, out); sendErr != nil {
		s.logger.Error("channel_send_failed", "channel", string(s.channel), "error", sendErr.Error())
	}
}
