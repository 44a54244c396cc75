// Package tunnel implements SOCKS4/4a and SOCKS5 client-side tunnels and a
// URL-driven TunnelableNetworkStack that composes them over a base stack.
package tunnel

import (
	"time"

	"github.com/marmos91/asyncnet/async"
	netpkg "github.com/marmos91/asyncnet/net"
)

// socketWrapper overrides the socket/peer names reported by an underlying
// socket while delegating every I/O call to it unchanged. Used so a
// tunneled connection reports the name of its ultimate target instead of
// the name of the SOCKS server it is actually a TCP connection to.
type socketWrapper struct {
	base     netpkg.Socket
	name     netpkg.Name
	peerName netpkg.Name
}

func wrapSocket(base netpkg.Socket, name, peerName netpkg.Name) netpkg.Socket {
	return &socketWrapper{base: base, name: name, peerName: peerName}
}

func (w *socketWrapper) Send(ctl *async.Controller, op *async.SendOperation, timeout time.Duration) bool {
	return w.base.Send(ctl, op, timeout)
}

func (w *socketWrapper) SendAsync(ctl *async.Controller, op *async.SendOperation) {
	w.base.SendAsync(ctl, op)
}

func (w *socketWrapper) Receive(ctl *async.Controller, op *async.ReceiveOperation, timeout time.Duration) bool {
	return w.base.Receive(ctl, op, timeout)
}

func (w *socketWrapper) ReceiveAsync(ctl *async.Controller, op *async.ReceiveOperation) {
	w.base.ReceiveAsync(ctl, op)
}

func (w *socketWrapper) Cancel(ctl *async.Controller, op *async.Operation) {
	w.base.Cancel(ctl, op)
}

func (w *socketWrapper) CloseSend() {
	w.base.CloseSend()
}

func (w *socketWrapper) Name() string {
	return w.name.String()
}

func (w *socketWrapper) PeerName() netpkg.Name {
	return w.peerName
}
