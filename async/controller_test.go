package async

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerWaitReturnsPostedOperation(t *testing.T) {
	ctl := NewController()
	op := NewOperation()
	ctl.Post(op)

	got := ctl.Wait(Infinite)
	assert.Same(t, op, got)
}

func TestControllerWaitTimesOutWhenNothingPosted(t *testing.T) {
	ctl := NewController()
	got := ctl.Wait(10 * time.Millisecond)
	assert.Nil(t, got)
}

func TestControllerWaitWakesOnConcurrentPost(t *testing.T) {
	ctl := NewController()
	op := NewOperation()

	go func() {
		time.Sleep(10 * time.Millisecond)
		ctl.Post(op)
	}()

	got := ctl.Wait(time.Second)
	require.NotNil(t, got)
	assert.Same(t, op, got)
}

func TestControllerWaitOpIgnoresOtherCompletions(t *testing.T) {
	ctl := NewController()
	other := NewOperation()
	target := NewOperation()

	ctl.Post(other)
	ctl.Post(target)

	require.True(t, ctl.WaitOp(target, time.Second))

	// other is still queued for a plain Wait.
	got := ctl.Wait(0)
	assert.Same(t, other, got)
}

func TestControllerWaitOpTimesOut(t *testing.T) {
	ctl := NewController()
	op := NewOperation()
	assert.False(t, ctl.WaitOp(op, 10*time.Millisecond))
}

func TestControllerRevertPostSwallowsCompletion(t *testing.T) {
	ctl := NewController()
	op := NewOperation()
	ctl.Post(op)
	ctl.RevertPost(op)

	got := ctl.Wait(10 * time.Millisecond)
	assert.Nil(t, got)
}
