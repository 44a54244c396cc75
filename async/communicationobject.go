package async

import (
	"fmt"
	"time"
)

// CommunicationObject is the common interface of everything that moves
// bytes asynchronously in one direction at a time: MessageExchange and,
// in package net, Socket. FullSend/FullReceive are the non-virtual helper
// methods afl::async::CommunicationObject provides on top of the
// interface, kept here as free functions since Go has no base-class
// method injection.
type CommunicationObject interface {
	Cancelable

	Send(ctl *Controller, op *SendOperation, timeout time.Duration) bool
	SendAsync(ctl *Controller, op *SendOperation)
	Receive(ctl *Controller, op *ReceiveOperation, timeout time.Duration) bool
	ReceiveAsync(ctl *Controller, op *ReceiveOperation)

	// Name identifies the object in error messages and logs.
	Name() string
}

// StallError reports that FullSend or FullReceive made no progress within
// timeout and gave up.
type StallError struct {
	Name string
	Op   string
}

func (e *StallError) Error() string {
	return fmt.Sprintf("%s: %s stalled", e.Name, e.Op)
}

// FullSend repeatedly sends until every byte of data has been consumed,
// retrying partial sends. It returns a *StallError if an attempt
// transfers zero bytes or times out before completing the whole buffer.
func FullSend(obj CommunicationObject, ctl *Controller, data []byte, timeout time.Duration) error {
	op := NewSendOperation(data)
	for !op.IsCompleted() {
		before := op.NumSentBytes()
		if !obj.Send(ctl, op, timeout) {
			return &StallError{Name: obj.Name(), Op: "send"}
		}
		if op.NumSentBytes() == before {
			return &StallError{Name: obj.Name(), Op: "send"}
		}
	}
	return nil
}

// FullReceive repeatedly receives until buf has been entirely filled,
// retrying partial receives. It returns a *StallError if an attempt
// transfers zero bytes or times out before filling the whole buffer.
func FullReceive(obj CommunicationObject, ctl *Controller, buf []byte, timeout time.Duration) error {
	op := NewReceiveOperation(buf)
	for !op.IsCompleted() {
		before := op.NumReceivedBytes()
		if !obj.Receive(ctl, op, timeout) {
			return &StallError{Name: obj.Name(), Op: "receive"}
		}
		if op.NumReceivedBytes() == before {
			return &StallError{Name: obj.Name(), Op: "receive"}
		}
	}
	return nil
}
