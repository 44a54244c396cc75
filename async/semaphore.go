package async

import (
	"sync"
	"time"
)

// Semaphore is a classic counting semaphore: Post increments the count or,
// if someone is already waiting, hands the count straight to the oldest
// waiter instead of ever letting the count go above what is needed.
type Semaphore struct {
	mu      sync.Mutex
	value   int
	waiters OperationList[*Operation]
}

// NewSemaphore returns a Semaphore initialised to value.
func NewSemaphore(value int) *Semaphore {
	return &Semaphore{value: value}
}

// Wait blocks until the semaphore can be decremented or timeout elapses.
func (s *Semaphore) Wait(ctl *Controller, timeout time.Duration) bool {
	op := NewOperation()
	s.WaitAsync(ctl, op)
	if ctl.WaitOp(op, timeout) {
		return true
	}
	s.Cancel(ctl, op)
	return false
}

// WaitAsync submits op against ctl. If the count is positive it is
// decremented and op completes immediately (NotifyDirect); otherwise op
// queues until a matching Post.
func (s *Semaphore) WaitAsync(ctl *Controller, op *Operation) {
	s.mu.Lock()
	if s.value > 0 {
		s.value--
		s.mu.Unlock()
		op.SetController(ctl)
		op.Notifier().NotifyDirect(op)
		return
	}
	op.SetController(ctl)
	s.waiters.PushBack(op)
	s.mu.Unlock()
}

// Post increments the semaphore, or, if a waiter is already queued,
// delivers the increment straight to the oldest one instead.
func (s *Semaphore) Post() {
	s.mu.Lock()
	next, ok := s.waiters.ExtractFront()
	if !ok {
		s.value++
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	next.Notifier().Notify(next)
}

// Cancel withdraws op from the waiter queue and reverts any completion
// that may have already been posted to ctl.
func (s *Semaphore) Cancel(ctl *Controller, op *Operation) {
	s.mu.Lock()
	s.waiters.Remove(op)
	s.mu.Unlock()
	ctl.RevertPost(op)
}
