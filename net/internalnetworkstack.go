package net

import (
	"sync"
	"time"

	"github.com/marmos91/asyncnet/async"
	"github.com/marmos91/asyncnet/asyncerr"
)

// stream is a one-directional, in-memory byte rendezvous: the plumbing
// behind one half of an InternalSocket pair. Unlike async.MessageExchange
// it does not preserve message boundaries — a receive completes as soon
// as it has moved at least one byte (or the writer closed with nothing
// left to give), exactly like a real socket or pipe.
type stream struct {
	mu              sync.Mutex
	name            Name
	pendingSends    async.OperationList[*async.SendOperation]
	pendingReceives async.OperationList[*async.ReceiveOperation]
	sendClosed      bool
}

func newStream(name Name) *stream {
	return &stream{name: name}
}

func (s *stream) sendAsync(ctl *async.Controller, op *async.SendOperation) {
	op.SetController(ctl)
	s.mu.Lock()
	if s.sendClosed {
		s.mu.Unlock()
		op.Notifier().NotifyDirect(&op.Operation)
		return
	}
	s.pendingSends.PushBack(op)
	s.mu.Unlock()
	s.tryMove()
}

func (s *stream) receiveAsync(ctl *async.Controller, op *async.ReceiveOperation) {
	op.SetController(ctl)
	s.mu.Lock()
	s.pendingReceives.PushBack(op)
	s.mu.Unlock()
	s.tryMove()
}

func (s *stream) closeSend() {
	s.mu.Lock()
	s.sendClosed = true
	s.mu.Unlock()
	s.tryMove()
}

// tryMove matches the oldest pending send against the oldest pending
// receive, moving as many bytes as both can currently bear. A send
// completes once its whole buffer is consumed; a receive completes the
// instant it has moved any bytes, or immediately with zero bytes once the
// send side has closed with nothing queued — the stream's EOF signal.
func (s *stream) tryMove() {
	for {
		s.mu.Lock()
		recv, rok := s.pendingReceives.Front()
		if !rok {
			s.mu.Unlock()
			return
		}
		send, sok := s.pendingSends.Front()
		if !sok {
			if s.sendClosed {
				s.pendingReceives.ExtractFront()
				s.mu.Unlock()
				recv.Notifier().Notify(&recv.Operation)
				continue
			}
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		n := recv.CopyFrom(send)

		s.mu.Lock()
		if send.IsCompleted() {
			s.pendingSends.ExtractFront()
		}
		if n > 0 {
			s.pendingReceives.ExtractFront()
		}
		s.mu.Unlock()

		if send.IsCompleted() {
			send.Notifier().Notify(&send.Operation)
		}
		if n > 0 {
			recv.Notifier().Notify(&recv.Operation)
		} else {
			return
		}
	}
}

func (s *stream) cancelSend(ctl *async.Controller, op *async.SendOperation) {
	s.mu.Lock()
	s.pendingSends.Remove(op)
	s.mu.Unlock()
	ctl.RevertPost(&op.Operation)
}

func (s *stream) cancelReceive(ctl *async.Controller, op *async.ReceiveOperation) {
	s.mu.Lock()
	s.pendingReceives.Remove(op)
	s.mu.Unlock()
	ctl.RevertPost(&op.Operation)
}

// InternalSocket is a Socket backed entirely by in-process memory: two
// streams, one per direction, shared with the peer InternalSocket that
// InternalNetworkStack paired it with.
type InternalSocket struct {
	fromMe   *stream
	fromThem *stream
	name     Name
	peer     Name
}

func (c *InternalSocket) Send(ctl *async.Controller, op *async.SendOperation, timeout time.Duration) bool {
	c.fromMe.sendAsync(ctl, op)
	if ctl.WaitOp(&op.Operation, timeout) {
		return true
	}
	c.fromMe.cancelSend(ctl, op)
	return false
}

func (c *InternalSocket) SendAsync(ctl *async.Controller, op *async.SendOperation) {
	c.fromMe.sendAsync(ctl, op)
}

func (c *InternalSocket) Receive(ctl *async.Controller, op *async.ReceiveOperation, timeout time.Duration) bool {
	c.fromThem.receiveAsync(ctl, op)
	if ctl.WaitOp(&op.Operation, timeout) {
		return true
	}
	c.fromThem.cancelReceive(ctl, op)
	return false
}

func (c *InternalSocket) ReceiveAsync(ctl *async.Controller, op *async.ReceiveOperation) {
	c.fromThem.receiveAsync(ctl, op)
}

// Cancel withdraws op from whichever direction's queue holds it.
func (c *InternalSocket) Cancel(ctl *async.Controller, op *async.Operation) {
	for _, dir := range [...]*stream{c.fromMe, c.fromThem} {
		dir.mu.Lock()
		removed := false
		for i, p := range dir.pendingSends.Items() {
			if &p.Operation == op {
				dir.pendingSends.RemoveAt(i)
				removed = true
				break
			}
		}
		if !removed {
			for i, p := range dir.pendingReceives.Items() {
				if &p.Operation == op {
					dir.pendingReceives.RemoveAt(i)
					removed = true
					break
				}
			}
		}
		dir.mu.Unlock()
		if removed {
			break
		}
	}
	ctl.RevertPost(op)
}

func (c *InternalSocket) CloseSend() {
	c.fromMe.closeSend()
}

func (c *InternalSocket) Name() string {
	return c.name.String()
}

func (c *InternalSocket) PeerName() Name {
	return c.peer
}

// InternalListener pairs accept and connect requests submitted against the
// same registered name, handing each side a freshly created InternalSocket
// wired to the other's streams.
type InternalListener struct {
	mu              sync.Mutex
	name            Name
	parent          *InternalNetworkStack
	pendingAccepts  async.OperationList[*AcceptOperation]
	pendingConnects async.OperationList[*AcceptOperation]
}

func (l *InternalListener) Accept(ctl *async.Controller, timeout time.Duration) Socket {
	op := NewAcceptOperation()
	l.AcceptAsync(ctl, op)
	if ctl.WaitOp(&op.Operation, timeout) {
		return op.Result()
	}
	l.Cancel(ctl, &op.Operation)
	return nil
}

func (l *InternalListener) AcceptAsync(ctl *async.Controller, op *AcceptOperation) {
	op.SetController(ctl)
	l.mu.Lock()
	l.pendingAccepts.PushBack(op)
	l.mu.Unlock()
	l.tryConnect()
}

func (l *InternalListener) connectAsync(ctl *async.Controller, op *AcceptOperation) {
	op.SetController(ctl)
	l.mu.Lock()
	l.pendingConnects.PushBack(op)
	l.mu.Unlock()
	l.tryConnect()
}

func (l *InternalListener) tryConnect() {
	for {
		l.mu.Lock()
		acc, aok := l.pendingAccepts.Front()
		conn, cok := l.pendingConnects.Front()
		if !aok || !cok {
			l.mu.Unlock()
			return
		}
		l.pendingAccepts.ExtractFront()
		l.pendingConnects.ExtractFront()
		l.mu.Unlock()

		serverSide, clientSide := l.parent.createSocketPair(l.name)
		acc.SetResult(serverSide)
		conn.SetResult(clientSide)
		acc.Notifier().Notify(&acc.Operation)
		conn.Notifier().Notify(&conn.Operation)
	}
}

// Cancel withdraws op from whichever of the accept/connect queues holds
// it.
func (l *InternalListener) Cancel(ctl *async.Controller, op *async.Operation) {
	l.mu.Lock()
	for i, p := range l.pendingAccepts.Items() {
		if &p.Operation == op {
			l.pendingAccepts.RemoveAt(i)
			l.mu.Unlock()
			ctl.RevertPost(op)
			return
		}
	}
	for i, p := range l.pendingConnects.Items() {
		if &p.Operation == op {
			l.pendingConnects.RemoveAt(i)
			l.mu.Unlock()
			ctl.RevertPost(op)
			return
		}
	}
	l.mu.Unlock()
	ctl.RevertPost(op)
}

// InternalNetworkStack is a fully in-memory NetworkStack, primarily for
// tests: Listen/Connect never touch a real socket, keeping an entire
// client/server exchange reproducible and race-free under go test -race.
type InternalNetworkStack struct {
	mu        sync.Mutex
	listeners map[string]*InternalListener
}

// NewInternalNetworkStack returns a stack with no registered listeners.
func NewInternalNetworkStack() *InternalNetworkStack {
	return &InternalNetworkStack{listeners: make(map[string]*InternalListener)}
}

func (s *InternalNetworkStack) Listen(name Name, _ int) (Listener, error) {
	key := name.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.listeners[key]; exists {
		return nil, asyncerr.New(asyncerr.AddressInUse, key, "network address already in use")
	}
	l := &InternalListener{name: name, parent: s}
	s.listeners[key] = l
	return l, nil
}

func (s *InternalNetworkStack) Connect(name Name, timeout time.Duration) (Socket, error) {
	key := name.String()
	s.mu.Lock()
	l, ok := s.listeners[key]
	s.mu.Unlock()
	if !ok {
		return nil, asyncerr.New(asyncerr.NotFound, key, "connection refused")
	}

	ctl := async.NewController()
	op := NewAcceptOperation()
	l.connectAsync(ctl, op)
	if !ctl.WaitOp(&op.Operation, timeout) {
		s.mu.Lock()
		l2, ok2 := s.listeners[key]
		s.mu.Unlock()
		if ok2 {
			l2.Cancel(ctl, &op.Operation)
		}
		return nil, asyncerr.New(asyncerr.Timeout, key, "connection timed out")
	}

	result := op.Result()
	if result == nil {
		return nil, asyncerr.New(asyncerr.Timeout, key, "connection timed out")
	}
	return result, nil
}

func (s *InternalNetworkStack) createSocketPair(name Name) (server, client Socket) {
	clientName := Name{Host: name.Host, Service: "client"}
	toClient := newStream(name)
	toServer := newStream(clientName)

	serverSock := &InternalSocket{fromMe: toClient, fromThem: toServer, name: name, peer: clientName}
	clientSock := &InternalSocket{fromMe: toServer, fromThem: toClient, name: clientName, peer: name}
	return serverSock, clientSock
}
