package protocol

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/transport"
)

type nullLogger struct{}

func (nullLogger) Debug(string, ...any) {}
func (nullLogger) Info(string, ...any)  {}
func (nullLogger) Warn(string, ...any)  {}
func (nullLogger) Error(string, ...any) {}

func TestChannelServer_LRP_DispatchesAndReplies(t *testing.T) {
	e := NewEngine(NewNullProcessor())
	e.RegisterProcessor(NewNullProcessor())

	client, server := transport.NewMockTransportPair(8)
	s := NewChannelServer(ChannelShell, KindLRP, server, e, nullLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Serve(ctx)

	req, err := json.Marshal(map[string]any{
		"header": map[string]any{"msg_type": string(KernelInfoRequestType)},
	})
	require.NoError(t, err)
	require.NoError(t, client.Send(context.Background(), req))

	recvCtx, recvCancel := context.WithTimeout(context.Background(), time.Second)
	defer recvCancel()
	reply, err := client.Recv(recvCtx)
	require.NoError(t, err)

	var frame wireFrame
	require.NoError(t, json.Unmarshal(reply, &frame))
	assert.Equal(t, string(KernelInfoRequestType)+"_reply", frame.Header.MsgType)

	var info KernelInfoReply
	require.NoError(t, json.Unmarshal(frame.Content, &info))
	assert.Equal(t, "llmspellkernel", info.Implementation)
}

func TestChannelServer_LRP_UnknownTypeSendsErrorFrame(t *testing.T) {
	e := NewEngine(NewNullProcessor())
	client, server := transport.NewMockTransportPair(8)
	s := NewChannelServer(ChannelShell, KindLRP, server, e, nullLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Serve(ctx)

	req, err := json.Marshal(map[string]any{
		"header": map[string]any{"msg_type": "totally_unknown_request"},
	})
	require.NoError(t, err)
	require.NoError(t, client.Send(context.Background(), req))

	recvCtx, recvCancel := context.WithTimeout(context.Background(), time.Second)
	defer recvCancel()
	reply, err := client.Recv(recvCtx)
	require.NoError(t, err)

	var frame wireFrame
	require.NoError(t, json.Unmarshal(reply, &frame))
	assert.Equal(t, "error", frame.Header.MsgType)

	var errReply ErrorReply
	require.NoError(t, json.Unmarshal(frame.Content, &errReply))
	assert.NotEmpty(t, errReply.Message)
}

func TestChannelServer_LDP_DispatchesByCapability(t *testing.T) {
	e := NewEngine(NewNullProcessor())
	e.RegisterProcessor(&capturingProcessor{caps: []string{CapabilityExecutionManager}})

	client, server := transport.NewMockTransportPair(8)
	s := NewChannelServer(ChannelControl, KindLDP, server, e, nullLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Serve(ctx)

	req, err := json.Marshal(DebugRequest{
		Capability: CapabilityExecutionManager,
		Content:    DebugRequestBody{Command: "pause"},
	})
	require.NoError(t, err)
	require.NoError(t, client.Send(context.Background(), req))

	recvCtx, recvCancel := context.WithTimeout(context.Background(), time.Second)
	defer recvCancel()
	reply, err := client.Recv(recvCtx)
	require.NoError(t, err)

	var frame wireFrame
	require.NoError(t, json.Unmarshal(reply, &frame))
	assert.Equal(t, CapabilityExecutionManager+"_reply", frame.Header.MsgType)
	assert.JSONEq(t, `{"handled_by":"execution_manager"}`, string(frame.Content))
}

func TestChannelServer_Heartbeat_Echoes(t *testing.T) {
	e := NewEngine(NewNullProcessor())
	client, server := transport.NewMockTransportPair(8)
	s := NewChannelServer(ChannelHeartbeat, KindHeartbeat, server, e, nullLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Serve(ctx)

	require.NoError(t, client.Send(context.Background(), json.RawMessage(`"ping"`)))

	recvCtx, recvCancel := context.WithTimeout(context.Background(), time.Second)
	defer recvCancel()
	reply, err := client.Recv(recvCtx)
	require.NoError(t, err)
	assert.Equal(t, `"ping"`, string(reply))
}

func TestChannelServer_Serve_StopsOnContextCancel(t *testing.T) {
	e := NewEngine(NewNullProcessor())
	_, server := transport.NewMockTransportPair(8)
	s := NewChannelServer(ChannelShell, KindLRP, server, e, nullLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Serve(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
