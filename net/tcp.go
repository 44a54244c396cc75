package net

import (
	stdnet "net"
	"time"

	"github.com/marmos91/asyncnet/async"
	"github.com/marmos91/asyncnet/asyncerr"
)

// TCPNetworkStack is a NetworkStack backed by real OS TCP sockets. Its
// Send/Receive are effectively synchronous under the hood (stdlib
// net.Conn has no async API), using a write/read deadline to honor
// timeout; that is enough to satisfy the Socket interface the rest of
// this package is built against, including the SOCKS tunnels and Server.
type TCPNetworkStack struct{}

// NewTCPNetworkStack returns the real-network counterpart to
// InternalNetworkStack.
func NewTCPNetworkStack() *TCPNetworkStack {
	return &TCPNetworkStack{}
}

func (TCPNetworkStack) Listen(name Name, backlog int) (Listener, error) {
	l, err := stdnet.Listen("tcp", name.String())
	if err != nil {
		return nil, asyncerr.Wrap(asyncerr.Transport, name.String(), "listen failed", err)
	}
	return &tcpListener{l: l, name: name}, nil
}

func (TCPNetworkStack) Connect(name Name, timeout time.Duration) (Socket, error) {
	d := stdnet.Dialer{}
	if timeout != async.Infinite {
		d.Timeout = timeout
	}
	conn, err := d.Dial("tcp", name.String())
	if err != nil {
		return nil, asyncerr.Wrap(asyncerr.Transport, name.String(), "connect failed", err)
	}
	return newTCPSocket(conn), nil
}

type tcpListener struct {
	l    stdnet.Listener
	name Name
}

func (tl *tcpListener) Accept(ctl *async.Controller, timeout time.Duration) Socket {
	op := NewAcceptOperation()
	tl.AcceptAsync(ctl, op)
	if ctl.WaitOp(&op.Operation, timeout) {
		return op.Result()
	}
	return nil
}

func (tl *tcpListener) AcceptAsync(ctl *async.Controller, op *AcceptOperation) {
	op.SetController(ctl)
	go func() {
		conn, err := tl.l.Accept()
		if err != nil {
			op.SetResult(nil)
		} else {
			op.SetResult(newTCPSocket(conn))
		}
		op.Notifier().Notify(&op.Operation)
	}()
}

func (tl *tcpListener) Cancel(ctl *async.Controller, op *async.Operation) {
	ctl.RevertPost(op)
}

type tcpSocket struct {
	conn stdnet.Conn
}

func newTCPSocket(conn stdnet.Conn) *tcpSocket {
	return &tcpSocket{conn: conn}
}

func (s *tcpSocket) Send(ctl *async.Controller, op *async.SendOperation, timeout time.Duration) bool {
	s.applyDeadline(timeout)
	n, err := s.conn.Write(op.UnsentBytes())
	op.AddSentBytes(n)
	return err == nil
}

func (s *tcpSocket) SendAsync(ctl *async.Controller, op *async.SendOperation) {
	go func() {
		s.Send(ctl, op, async.Infinite)
		op.Notifier().Notify(&op.Operation)
	}()
}

func (s *tcpSocket) Receive(ctl *async.Controller, op *async.ReceiveOperation, timeout time.Duration) bool {
	s.applyDeadline(timeout)
	n, err := s.conn.Read(op.UnreceivedBytes())
	if n > 0 {
		op.AddReceivedBytes(n)
	}
	return err == nil || n > 0
}

func (s *tcpSocket) ReceiveAsync(ctl *async.Controller, op *async.ReceiveOperation) {
	go func() {
		s.Receive(ctl, op, async.Infinite)
		op.Notifier().Notify(&op.Operation)
	}()
}

func (s *tcpSocket) Cancel(ctl *async.Controller, op *async.Operation) {
	ctl.RevertPost(op)
}

func (s *tcpSocket) CloseSend() {
	if tc, ok := s.conn.(*stdnet.TCPConn); ok {
		tc.CloseWrite()
		return
	}
	s.conn.Close()
}

func (s *tcpSocket) Name() string {
	return s.conn.LocalAddr().String()
}

func (s *tcpSocket) PeerName() Name {
	return ParseName(s.conn.RemoteAddr().String(), "")
}

func (s *tcpSocket) applyDeadline(timeout time.Duration) {
	if timeout == async.Infinite {
		s.conn.SetDeadline(time.Time{})
		return
	}
	s.conn.SetDeadline(time.Now().Add(timeout))
}
