package async

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageExchangeDeliversWholeMessage(t *testing.T) {
	e := NewMessageExchange("test")
	sendCtl := NewController()
	recvCtl := NewController()

	sendOp := NewSendOperation([]byte("hello"))
	go func() {
		require.True(t, e.Send(sendCtl, sendOp, time.Second))
	}()

	buf := make([]byte, 5)
	recvOp := NewReceiveOperation(buf)
	require.True(t, e.Receive(recvCtl, recvOp, time.Second))
	assert.Equal(t, "hello", string(buf))
}

func TestMessageExchangeTruncatesToShorterReceiveBuffer(t *testing.T) {
	e := NewMessageExchange("test")
	sendCtl := NewController()
	recvCtl := NewController()

	sendOp := NewSendOperation([]byte("hello world"))
	e.SendAsync(sendCtl, sendOp)

	buf := make([]byte, 5)
	recvOp := NewReceiveOperation(buf)
	e.ReceiveAsync(recvCtl, recvOp)

	require.True(t, sendCtl.WaitOp(&sendOp.Operation, time.Second))
	require.True(t, recvCtl.WaitOp(&recvOp.Operation, time.Second))

	assert.Equal(t, "hello", string(buf))
	assert.Equal(t, 5, sendOp.NumSentBytes())
	assert.True(t, recvOp.IsCompleted())
	// The remaining 6 bytes of the message are discarded, not buffered for
	// a later receive.
	assert.False(t, sendOp.IsCompleted())
}

func TestMessageExchangeMatchesOldestSendToOldestReceive(t *testing.T) {
	e := NewMessageExchange("test")
	ctl := NewController()

	first := NewSendOperation([]byte("first"))
	second := NewSendOperation([]byte("second"))
	e.SendAsync(ctl, first)
	e.SendAsync(ctl, second)

	buf1 := make([]byte, 5)
	recv1 := NewReceiveOperation(buf1)
	e.ReceiveAsync(ctl, recv1)
	require.True(t, ctl.WaitOp(&recv1.Operation, time.Second))
	assert.Equal(t, "first", string(buf1))

	buf2 := make([]byte, 6)
	recv2 := NewReceiveOperation(buf2)
	e.ReceiveAsync(ctl, recv2)
	require.True(t, ctl.WaitOp(&recv2.Operation, time.Second))
	assert.Equal(t, "second", string(buf2))
}

func TestMessageExchangeSendTimesOutWithoutReceiver(t *testing.T) {
	e := NewMessageExchange("test")
	ctl := NewController()
	op := NewSendOperation([]byte("x"))
	assert.False(t, e.Send(ctl, op, 10*time.Millisecond))
}

func TestMessageExchangeCancelRemovesQueuedReceive(t *testing.T) {
	e := NewMessageExchange("test")
	ctl := NewController()
	recvOp := NewReceiveOperation(make([]byte, 1))
	e.ReceiveAsync(ctl, recvOp)

	e.Cancel(ctl, &recvOp.Operation)

	// A later send must not match the cancelled receive.
	sendCtl := NewController()
	sendOp := NewSendOperation([]byte("y"))
	assert.False(t, e.Send(sendCtl, sendOp, 10*time.Millisecond))
}
