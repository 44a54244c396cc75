package async

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutexFreeAcquisitionSucceedsImmediately(t *testing.T) {
	m := NewMutex()
	ctl := NewController()
	assert.True(t, m.Wait(ctl, 0))
}

func TestMutexNestedAcquisitionByOwnerDoesNotBlock(t *testing.T) {
	m := NewMutex()
	ctl := NewController()
	require.True(t, m.Wait(ctl, 0))
	require.True(t, m.Wait(ctl, 0))

	// Two acquisitions, two releases required before another owner gets in.
	other := NewController()
	op := NewOperation()
	m.WaitAsync(other, op)
	assert.False(t, other.WaitOp(op, 10*time.Millisecond))

	m.Post(ctl)
	assert.False(t, other.WaitOp(op, 10*time.Millisecond))

	m.Post(ctl)
	assert.True(t, other.WaitOp(op, time.Second))
}

func TestMutexPostFromNonOwnerIsNoop(t *testing.T) {
	m := NewMutex()
	owner := NewController()
	require.True(t, m.Wait(owner, 0))

	bystander := NewController()
	m.Post(bystander) // must not panic or release owner's hold

	op := NewOperation()
	m.WaitAsync(bystander, op)
	assert.False(t, bystander.WaitOp(op, 10*time.Millisecond))
}

func TestMutexTransfersOwnershipInFIFOOrder(t *testing.T) {
	m := NewMutex()
	first := NewController()
	require.True(t, m.Wait(first, 0))

	second := NewController()
	third := NewController()
	opSecond := NewOperation()
	opThird := NewOperation()
	m.WaitAsync(second, opSecond)
	m.WaitAsync(third, opThird)

	m.Post(first)
	assert.True(t, second.WaitOp(opSecond, time.Second))
	assert.False(t, third.WaitOp(opThird, 10*time.Millisecond))

	m.Post(second)
	assert.True(t, third.WaitOp(opThird, time.Second))
}

func TestMutexCollapsesFurtherWaitsBySameNewOwner(t *testing.T) {
	m := NewMutex()
	first := NewController()
	require.True(t, m.Wait(first, 0))

	second := NewController()
	opA := NewOperation()
	opB := NewOperation()
	m.WaitAsync(second, opA)
	m.WaitAsync(second, opB)

	m.Post(first)

	// Both of second's acquisitions should complete without it ever
	// blocking again: the second was enqueued behind the first by the
	// same controller and must be collapsed into the nesting count.
	require.True(t, second.WaitOp(opA, time.Second))
	require.True(t, second.WaitOp(opB, time.Second))

	third := NewController()
	opC := NewOperation()
	m.WaitAsync(third, opC)
	assert.False(t, third.WaitOp(opC, 10*time.Millisecond))

	m.Post(second)
	assert.False(t, third.WaitOp(opC, 10*time.Millisecond))
	m.Post(second)
	assert.True(t, third.WaitOp(opC, time.Second))
}

func TestMutexWaitTimeoutCancelsQueueEntry(t *testing.T) {
	m := NewMutex()
	owner := NewController()
	require.True(t, m.Wait(owner, 0))

	waiter := NewController()
	assert.False(t, m.Wait(waiter, 10*time.Millisecond))

	// Releasing now must not hand ownership to the timed-out waiter.
	m.Post(owner)
	assert.True(t, m.Wait(NewController(), 0))
}
