package transport

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockTransportPair_SendIsVisibleToOtherSideRecv(t *testing.T) {
	a, b := NewMockTransportPair(4)
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.Send(context.Background(), json.RawMessage(`{"hello":"world"}`)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := b.Recv(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":"world"}`, string(msg))
}

func TestMockTransport_RecvBlocksUntilMessageArrives(t *testing.T) {
	a, b := NewMockTransportPair(4)
	defer a.Close()
	defer b.Close()

	done := make(chan json.RawMessage, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		msg, err := b.Recv(ctx)
		require.NoError(t, err)
		done <- msg
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, a.Send(context.Background(), json.RawMessage(`1`)))

	select {
	case msg := <-done:
		assert.Equal(t, "1", string(msg))
	case <-time.After(time.Second):
		t.Fatal("Recv never unblocked")
	}
}

func TestMockTransport_RecvRespectsContextCancellation(t *testing.T) {
	a := NewMockTransport(4)
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := a.Recv(ctx)
	assert.Error(t, err)
}

func TestMockTransport_CloseUnblocksRecvAndRejectsSend(t *testing.T) {
	a := NewMockTransport(4)

	done := make(chan error, 1)
	go func() {
		_, err := a.Recv(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, a.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Recv never unblocked after Close")
	}

	err := a.Send(context.Background(), json.RawMessage(`1`))
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, a.IsConnected())
}

func TestMockTransport_QueueDropsOldestWhenFull(t *testing.T) {
	a := NewMockTransport(2)
	a.InjectIncoming(json.RawMessage(`1`))
	a.InjectIncoming(json.RawMessage(`2`))
	a.InjectIncoming(json.RawMessage(`3`))

	ctx := context.Background()
	first, err := a.Recv(ctx)
	require.NoError(t, err)
	second, err := a.Recv(ctx)
	require.NoError(t, err)

	assert.Equal(t, "2", string(first))
	assert.Equal(t, "3", string(second))
}
