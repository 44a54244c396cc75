package async

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphoreWaitSucceedsWhenPositive(t *testing.T) {
	s := NewSemaphore(1)
	ctl := NewController()
	assert.True(t, s.Wait(ctl, 0))
}

func TestSemaphoreWaitBlocksAtZero(t *testing.T) {
	s := NewSemaphore(0)
	ctl := NewController()
	assert.False(t, s.Wait(ctl, 10*time.Millisecond))
}

func TestSemaphorePostWakesOldestWaiterDirectly(t *testing.T) {
	s := NewSemaphore(0)
	a := NewController()
	b := NewController()
	opA := NewOperation()
	opB := NewOperation()

	s.WaitAsync(a, opA)
	s.WaitAsync(b, opB)

	s.Post()
	assert.True(t, a.WaitOp(opA, time.Second))
	assert.False(t, b.WaitOp(opB, 10*time.Millisecond))

	s.Post()
	assert.True(t, b.WaitOp(opB, time.Second))
}

func TestSemaphorePostWithoutWaitersIncrementsValue(t *testing.T) {
	s := NewSemaphore(0)
	s.Post()
	s.Post()

	ctl := NewController()
	assert.True(t, s.Wait(ctl, 0))
	assert.True(t, s.Wait(ctl, 0))
	assert.False(t, s.Wait(ctl, 10*time.Millisecond))
}

func TestSemaphoreCountingAllowsMultipleConcurrentHolders(t *testing.T) {
	s := NewSemaphore(2)
	a, b, c := NewController(), NewController(), NewController()
	require.True(t, s.Wait(a, 0))
	require.True(t, s.Wait(b, 0))
	assert.False(t, s.Wait(c, 10*time.Millisecond))

	s.Post()
	assert.True(t, s.Wait(c, time.Second))
}
