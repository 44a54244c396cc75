package net

import "github.com/marmos91/asyncnet/async"

// AcceptOperation carries the result of an async accept: the Socket for
// the new connection, once the operation completes. A nil Result after
// completion means the accept failed (a cancelled accept never completes).
type AcceptOperation struct {
	async.Operation
	result Socket
}

// NewAcceptOperation returns an idle AcceptOperation.
func NewAcceptOperation() *AcceptOperation {
	op := &AcceptOperation{}
	op.Operation = *async.NewOperation()
	return op
}

// SetResult records the accepted socket. Called by Listener
// implementations, not user code.
func (op *AcceptOperation) SetResult(s Socket) {
	op.result = s
}

// Result returns the accepted socket, or nil if the accept failed.
func (op *AcceptOperation) Result() Socket {
	return op.result
}
