package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webSocketPipe(t *testing.T) (*WebSocketTransport, *WebSocketTransport) {
	t.Helper()

	serverCh := make(chan *WebSocketTransport, 1)
	upgrader := NewUpgrader(func(r *http.Request) bool { return true })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r)
		require.NoError(t, err)
		serverCh <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := DialWebSocket(context.Background(), url)
	require.NoError(t, err)

	server := <-serverCh
	return client, server
}

func TestWebSocketTransport_SendRecvRoundTrip(t *testing.T) {
	client, server := webSocketPipe(t)
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, client.Send(ctx, json.RawMessage(`{"msg_type":"execute_request"}`)))

	msg, err := server.Recv(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"msg_type":"execute_request"}`, string(msg))
}

func TestWebSocketTransport_MultipleFramesPreserveOrder(t *testing.T) {
	client, server := webSocketPipe(t)
	defer client.Close()
	defer server.Close()

	ctx := context.Background()
	require.NoError(t, client.Send(ctx, json.RawMessage(`1`)))
	require.NoError(t, client.Send(ctx, json.RawMessage(`2`)))
	require.NoError(t, client.Send(ctx, json.RawMessage(`3`)))

	for _, want := range []string{"1", "2", "3"} {
		msg, err := server.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, string(msg))
	}
}

func TestWebSocketTransport_IsConnectedAfterClose(t *testing.T) {
	client, server := webSocketPipe(t)
	defer server.Close()

	assert.True(t, client.IsConnected())
	require.NoError(t, client.Close())
	assert.False(t, client.IsConnected())
}

func TestWebSocketTransport_SendAfterCloseFails(t *testing.T) {
	client, server := webSocketPipe(t)
	defer server.Close()
	require.NoError(t, client.Close())

	err := client.Send(context.Background(), json.RawMessage(`{}`))
	assert.Error(t, err)
}
