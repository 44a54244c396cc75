package async

import (
	"sync"
	"time"
)

// MessageExchange is a rendezvous channel between two parties that
// preserves message boundaries: each Send is matched to exactly one
// Receive, never split across several receivers the way a byte stream
// would be. If the receiver's buffer is smaller than the sent message,
// only min(len(message), len(buffer)) bytes are delivered and the rest
// of the message is discarded — truncation, not buffering.
type MessageExchange struct {
	mu              sync.Mutex
	name            string
	pendingSends    OperationList[*SendOperation]
	pendingReceives OperationList[*ReceiveOperation]
}

// NewMessageExchange returns an empty exchange identified by name (used in
// diagnostics and as the Name() of communication errors).
func NewMessageExchange(name string) *MessageExchange {
	return &MessageExchange{name: name}
}

// Name returns the exchange's diagnostic name.
func (e *MessageExchange) Name() string {
	return e.name
}

// Send blocks until op's message has been delivered (possibly truncated)
// to a matching Receive, or until timeout elapses.
func (e *MessageExchange) Send(ctl *Controller, op *SendOperation, timeout time.Duration) bool {
	e.SendAsync(ctl, op)
	if ctl.WaitOp(&op.Operation, timeout) {
		return true
	}
	e.CancelSend(ctl, op)
	return false
}

// SendAsync submits op; it completes once a matching Receive is queued
// (possibly before SendAsync returns, if a Receive is already waiting).
func (e *MessageExchange) SendAsync(ctl *Controller, op *SendOperation) {
	op.SetController(ctl)
	e.mu.Lock()
	e.pendingSends.PushBack(op)
	e.mu.Unlock()
	e.tryMatch()
}

// Receive blocks until a message (possibly truncated) fills op's buffer,
// or until timeout elapses.
func (e *MessageExchange) Receive(ctl *Controller, op *ReceiveOperation, timeout time.Duration) bool {
	e.ReceiveAsync(ctl, op)
	if ctl.WaitOp(&op.Operation, timeout) {
		return true
	}
	e.CancelReceive(ctl, op)
	return false
}

// ReceiveAsync submits op; it completes once a matching Send is queued
// (possibly before ReceiveAsync returns, if a Send is already waiting).
func (e *MessageExchange) ReceiveAsync(ctl *Controller, op *ReceiveOperation) {
	op.SetController(ctl)
	e.mu.Lock()
	e.pendingReceives.PushBack(op)
	e.mu.Unlock()
	e.tryMatch()
}

// tryMatch pairs off the oldest pending send with the oldest pending
// receive, one message at a time, until one side runs dry.
func (e *MessageExchange) tryMatch() {
	for {
		e.mu.Lock()
		send, sok := e.pendingSends.Front()
		recv, rok := e.pendingReceives.Front()
		if !sok || !rok {
			e.mu.Unlock()
			return
		}
		e.pendingSends.ExtractFront()
		e.pendingReceives.ExtractFront()
		e.mu.Unlock()

		recv.CopyFrom(send)
		send.Notifier().Notify(&send.Operation)
		recv.Notifier().Notify(&recv.Operation)
	}
}

// CancelSend withdraws a pending send operation.
func (e *MessageExchange) CancelSend(ctl *Controller, op *SendOperation) {
	e.mu.Lock()
	e.pendingSends.Remove(op)
	e.mu.Unlock()
	ctl.RevertPost(&op.Operation)
}

// CancelReceive withdraws a pending receive operation.
func (e *MessageExchange) CancelReceive(ctl *Controller, op *ReceiveOperation) {
	e.mu.Lock()
	e.pendingReceives.Remove(op)
	e.mu.Unlock()
	ctl.RevertPost(&op.Operation)
}

// Cancel satisfies the Cancelable interface so MessageExchange can be used
// as a CommunicationObject: it withdraws op from whichever of the pending
// queues holds it, identified by its embedded Operation's address.
func (e *MessageExchange) Cancel(ctl *Controller, op *Operation) {
	e.mu.Lock()
	for i, s := range e.pendingSends.items {
		if &s.Operation == op {
			e.pendingSends.items = append(e.pendingSends.items[:i], e.pendingSends.items[i+1:]...)
			e.mu.Unlock()
			ctl.RevertPost(op)
			return
		}
	}
	for i, r := range e.pendingReceives.items {
		if &r.Operation == op {
			e.pendingReceives.items = append(e.pendingReceives.items[:i], e.pendingReceives.items[i+1:]...)
			e.mu.Unlock()
			ctl.RevertPost(op)
			return
		}
	}
	e.mu.Unlock()
	ctl.RevertPost(op)
}
