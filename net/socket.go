package net

import (
	"time"

	"github.com/marmos91/asyncnet/async"
)

// Socket is a bidirectional, full-duplex communication endpoint: the
// Go counterpart of afl::net::Socket. It extends
// async.CommunicationObject with half-close and peer-name reporting.
type Socket interface {
	async.CommunicationObject

	// CloseSend half-closes the outbound direction: further sends fail,
	// but pending/future receives still observe whatever the peer sent
	// before noticing the close.
	CloseSend()

	// PeerName reports the remote endpoint, as seen by this socket.
	PeerName() Name
}

// Listener accepts inbound connections: the Go counterpart of
// afl::net::Listener.
type Listener interface {
	async.Cancelable

	// Accept blocks until a connection arrives or timeout elapses. It
	// returns nil on timeout, and also when the accept itself fails (the
	// TCP and SOCKS4 listeners complete a failed accept with nil).
	Accept(ctl *async.Controller, timeout time.Duration) Socket

	// AcceptAsync submits op against ctl; it completes once a
	// connection arrives.
	AcceptAsync(ctl *async.Controller, op *AcceptOperation)
}

// NetworkStack is a factory for Listener/Socket pairs: the Go counterpart
// of afl::net::NetworkStack.
type NetworkStack interface {
	// Listen opens a Listener bound to name. backlog is a sizing hint;
	// the stacks in this module ignore it.
	Listen(name Name, backlog int) (Listener, error)

	// Connect opens a Socket to name, blocking up to timeout.
	Connect(name Name, timeout time.Duration) (Socket, error)
}
