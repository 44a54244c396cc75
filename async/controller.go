package async

import (
	"sync"
	"time"
)

// Infinite is passed to Wait to block until an operation completes, never
// timing out.
const Infinite time.Duration = -1

// Controller is a per-owner-goroutine scheduler. Every goroutine that
// wants to perform asynchronous operations owns exactly one Controller;
// Controllers must never be shared between goroutines that each call
// Wait concurrently. Async objects (Mutex, Semaphore, Timer, sockets, ...)
// enqueue operations against a caller-supplied Controller and, on
// completion, call Post on it — Post and RevertPost are the only methods
// safe to call from a goroutine other than the owner.
type Controller struct {
	mu    sync.Mutex
	ready OperationList[*Operation]
	wake  chan struct{}
}

// NewController creates an idle Controller ready to receive operations.
func NewController() *Controller {
	return &Controller{wake: make(chan struct{}, 1)}
}

// Wait blocks until any operation completes or timeout elapses, returning
// the completed operation. With timeout == Infinite this never returns
// nil. A zero timeout just checks the ready-queue without blocking.
func (c *Controller) Wait(timeout time.Duration) *Operation {
	deadline, hasDeadline := deadlineFor(timeout)
	for {
		c.mu.Lock()
		if op, ok := c.ready.ExtractFront(); ok {
			c.mu.Unlock()
			return op
		}
		c.mu.Unlock()

		if !c.parkUntil(deadline, hasDeadline) {
			return nil
		}
	}
}

// WaitOp blocks until the specific operation op completes, leaving any
// other completions queued for a later Wait/WaitOp call. Returns false on
// timeout.
func (c *Controller) WaitOp(op *Operation, timeout time.Duration) bool {
	deadline, hasDeadline := deadlineFor(timeout)
	for {
		c.mu.Lock()
		if c.ready.Remove(op) {
			c.mu.Unlock()
			return true
		}
		c.mu.Unlock()

		if !c.parkUntil(deadline, hasDeadline) {
			// One last check: the operation may have been posted
			// between our last failed Remove and the timeout firing.
			c.mu.Lock()
			found := c.ready.Remove(op)
			c.mu.Unlock()
			return found
		}
	}
}

// parkUntil waits for a wake signal until the deadline. Returns false if
// the deadline passed first (or timeout was zero and nothing was ready).
func (c *Controller) parkUntil(deadline time.Time, hasDeadline bool) bool {
	if hasDeadline {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		timer := time.NewTimer(remaining)
		defer timer.Stop()
		select {
		case <-c.wake:
			return true
		case <-timer.C:
			return false
		}
	}
	<-c.wake
	return true
}

func deadlineFor(timeout time.Duration) (time.Time, bool) {
	if timeout == Infinite {
		return time.Time{}, false
	}
	return time.Now().Add(timeout), true
}

// Post enqueues op as completed. Safe to call from any goroutine. If the
// owner is currently parked in Wait/WaitOp, it is woken.
func (c *Controller) Post(op *Operation) {
	c.mu.Lock()
	c.ready.PushBack(op)
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// RevertPost removes op from the ready-queue if present, guaranteeing it
// will not be delivered by a subsequent Wait/WaitOp unless re-posted. Used
// by Cancelable implementations to swallow a completion that raced with a
// cancellation.
func (c *Controller) RevertPost(op *Operation) {
	c.mu.Lock()
	c.ready.Remove(op)
	c.mu.Unlock()
}
