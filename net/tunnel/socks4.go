package tunnel

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/marmos91/asyncnet/async"
	"github.com/marmos91/asyncnet/asyncerr"
	netpkg "github.com/marmos91/asyncnet/net"
)

const (
	socks4Version     = 4
	socks4CmdConnect  = 1
	socks4CmdBind     = 2
	socks4ReplyVN      = 0
	socks4Granted      = 90
	socks4Rejected     = 91
	socks4NoIdentd     = 92
	socks4IdentdFailed = 93

	socks4ReplySize  = 8
	socks4DialTimeout = 10 * time.Second
)

func socks4Message(code byte) string {
	switch code {
	case socks4Granted:
		return "request granted"
	case socks4Rejected:
		return "request rejected or failed"
	case socks4NoIdentd:
		return "request rejected: no identd"
	case socks4IdentdFailed:
		return "request rejected: identd could not confirm user id"
	default:
		return fmt.Sprintf("unknown SOCKS4 reply code %d", code)
	}
}

func parsePortNumber(service string) (uint16, error) {
	n, err := strconv.ParseUint(service, 10, 16)
	if err != nil {
		return 0, asyncerr.Wrap(asyncerr.Protocol, service, "not a numeric port", err)
	}
	return uint16(n), nil
}

// isDummyAddress reports the SOCKS4a marker: an IPv4 address of the form
// 0.0.0.X with X != 0.
func isDummyAddress(ip [4]byte) bool {
	return ip[0] == 0 && ip[1] == 0 && ip[2] == 0 && ip[3] != 0
}

// buildRequest4 encodes a SOCKS4 (or, when target.Host does not parse as
// an IPv4 literal or is a 0.0.0.X dummy address, SOCKS4a) request for cmd
// against target.
func buildRequest4(cmd byte, target netpkg.Name) ([]byte, error) {
	port, err := parsePortNumber(target.Service)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, 16)
	buf = append(buf, socks4Version, cmd)
	buf = binary.BigEndian.AppendUint16(buf, port)

	if ip4 := net.ParseIP(target.Host).To4(); ip4 != nil {
		var addr [4]byte
		copy(addr[:], ip4)
		if !isDummyAddress(addr) {
			buf = append(buf, ip4...)
			buf = append(buf, 0) // empty USERID
			return buf, nil
		}
	}

	// SOCKS4a: dummy address 0.0.0.1, empty USERID, domain appended after.
	buf = append(buf, 0, 0, 0, 1)
	buf = append(buf, 0)
	buf = append(buf, []byte(target.Host)...)
	buf = append(buf, 0)
	return buf, nil
}

func parseReply4(reply []byte) (netpkg.Name, error) {
	if len(reply) != socks4ReplySize {
		return netpkg.Name{}, asyncerr.New(asyncerr.Protocol, "socks4", "short reply")
	}
	if reply[0] != socks4ReplyVN && reply[0] != socks4Version {
		return netpkg.Name{}, asyncerr.New(asyncerr.Protocol, "socks4", "bad reply version")
	}
	code := reply[1]
	if code != socks4Granted {
		return netpkg.Name{}, asyncerr.New(asyncerr.Transport, "socks4", socks4Message(code))
	}
	port := binary.BigEndian.Uint16(reply[2:4])
	ip := net.IP(reply[4:8]).String()
	return netpkg.Name{Host: ip, Service: strconv.Itoa(int(port))}, nil
}

func sendConnectRequest4(ctl *async.Controller, sock netpkg.Socket, cmd byte, target netpkg.Name, timeout time.Duration) error {
	req, err := buildRequest4(cmd, target)
	if err != nil {
		return err
	}
	return async.FullSend(sock, ctl, req, timeout)
}

func receiveConnectResponse4(ctl *async.Controller, sock netpkg.Socket, timeout time.Duration) (netpkg.Name, error) {
	buf := make([]byte, socks4ReplySize)
	if err := async.FullReceive(sock, ctl, buf, timeout); err != nil {
		return netpkg.Name{}, err
	}
	return parseReply4(buf)
}

// Socks4NetworkStack tunnels Connect through a SOCKS4/4a proxy, and
// implements Listen via the proxy's BIND command (a two-reply handshake:
// the first reply confirms the bound port, the second arrives once a peer
// actually connects to it).
type Socks4NetworkStack struct {
	base   netpkg.NetworkStack
	server netpkg.Name
}

// NewSocks4NetworkStack wraps base, routing all traffic through the
// SOCKS4/4a proxy listening at server.
func NewSocks4NetworkStack(base netpkg.NetworkStack, server netpkg.Name) *Socks4NetworkStack {
	return &Socks4NetworkStack{base: base, server: server}
}

// Connect performs the SOCKS4 CONNECT handshake and returns a socket that
// reports target as its own name.
func (s *Socks4NetworkStack) Connect(target netpkg.Name, timeout time.Duration) (netpkg.Socket, error) {
	sock, err := s.base.Connect(s.server, timeout)
	if err != nil {
		return nil, err
	}
	ctl := async.NewController()
	if err := sendConnectRequest4(ctl, sock, socks4CmdConnect, target, timeout); err != nil {
		return nil, err
	}
	if _, err := receiveConnectResponse4(ctl, sock, timeout); err != nil {
		return nil, err
	}
	return wrapSocket(sock, target, s.server), nil
}

// Listen returns a Listener whose Accept performs a fresh SOCKS4 BIND
// handshake against the proxy for every accepted connection.
func (s *Socks4NetworkStack) Listen(name netpkg.Name, _ int) (netpkg.Listener, error) {
	return &socks4Listener{stack: s, bindName: name}, nil
}

type socks4Listener struct {
	stack    *Socks4NetworkStack
	bindName netpkg.Name

	mu     sync.Mutex
	active []*socks4Acceptor
}

func (l *socks4Listener) Accept(ctl *async.Controller, timeout time.Duration) netpkg.Socket {
	op := netpkg.NewAcceptOperation()
	l.AcceptAsync(ctl, op)
	if ctl.WaitOp(&op.Operation, timeout) {
		return op.Result()
	}
	l.Cancel(ctl, &op.Operation)
	return nil
}

func (l *socks4Listener) AcceptAsync(ctl *async.Controller, op *netpkg.AcceptOperation) {
	op.SetController(ctl)
	a := &socks4Acceptor{listener: l, userOp: op, internal: async.NewController()}
	l.mu.Lock()
	l.active = append(l.active, a)
	l.mu.Unlock()
	a.start()
}

func (l *socks4Listener) Cancel(ctl *async.Controller, op *async.Operation) {
	l.mu.Lock()
	var found *socks4Acceptor
	for i, a := range l.active {
		if &a.userOp.Operation == op {
			found = a
			l.active = append(l.active[:i], l.active[i+1:]...)
			break
		}
	}
	l.mu.Unlock()
	if found != nil {
		found.cancel()
	}
	ctl.RevertPost(op)
}

func (l *socks4Listener) removeActive(a *socks4Acceptor) {
	l.mu.Lock()
	for i, candidate := range l.active {
		if candidate == a {
			l.active = append(l.active[:i], l.active[i+1:]...)
			break
		}
	}
	l.mu.Unlock()
}

type acceptorState int

const (
	acceptorIdle acceptorState = iota
	acceptorSending
	acceptorReceivingFirst
	acceptorReceivingSecond
	acceptorFinished
)

// socks4Acceptor drives one BIND handshake as a self-notifying state
// machine: its send/receive operations install the acceptor itself as
// their Notifier instead of the caller's Controller, so every
// intermediate completion re-enters the state machine directly rather
// than round-tripping through a Controller wait loop.
type socks4Acceptor struct {
	listener *socks4Listener
	userOp   *netpkg.AcceptOperation
	internal *async.Controller

	state    acceptorState
	conn     netpkg.Socket
	sendOp   *async.SendOperation
	recvOp   *async.ReceiveOperation
	firstRaw []byte
}

func (a *socks4Acceptor) start() {
	conn, err := a.listener.stack.base.Connect(a.listener.stack.server, socks4DialTimeout)
	if err != nil {
		a.finish(nil, err)
		return
	}
	a.conn = conn

	req, err := buildRequest4(socks4CmdBind, a.listener.bindName)
	if err != nil {
		a.finish(nil, err)
		return
	}
	a.sendOp = async.NewSendOperation(req)
	a.sendOp.SetNotifier(a)
	a.state = acceptorSending
	a.conn.SendAsync(a.internal, a.sendOp)
}

// Notify implements async.Notifier.
func (a *socks4Acceptor) Notify(op *async.Operation) {
	a.onEvent(op)
}

// NotifyDirect implements async.Notifier.
func (a *socks4Acceptor) NotifyDirect(op *async.Operation) {
	a.onEvent(op)
}

func (a *socks4Acceptor) onEvent(op *async.Operation) {
	switch a.state {
	case acceptorSending:
		if op != &a.sendOp.Operation {
			return
		}
		if a.sendOp.IsCompleted() {
			a.armReceive(socks4ReplySize, acceptorReceivingFirst)
		} else {
			a.sendOp.SetData(a.sendOp.UnsentBytes())
			a.conn.SendAsync(a.internal, a.sendOp)
		}
	case acceptorReceivingFirst:
		if op != &a.recvOp.Operation {
			return
		}
		a.firstRaw = append(a.firstRaw, a.recvOp.Data()[:a.recvOp.NumReceivedBytes()]...)
		if len(a.firstRaw) < socks4ReplySize {
			a.armReceive(socks4ReplySize-len(a.firstRaw), acceptorReceivingFirst)
			return
		}
		if _, err := parseReply4(a.firstRaw); err != nil {
			a.finish(nil, err)
			return
		}
		a.firstRaw = nil
		a.armReceive(socks4ReplySize, acceptorReceivingSecond)
	case acceptorReceivingSecond:
		if op != &a.recvOp.Operation {
			return
		}
		a.firstRaw = append(a.firstRaw, a.recvOp.Data()[:a.recvOp.NumReceivedBytes()]...)
		if len(a.firstRaw) < socks4ReplySize {
			a.armReceive(socks4ReplySize-len(a.firstRaw), acceptorReceivingSecond)
			return
		}
		peer, err := parseReply4(a.firstRaw)
		if err != nil {
			a.finish(nil, err)
			return
		}
		a.finish(wrapSocket(a.conn, a.listener.bindName, peer), nil)
	}
}

func (a *socks4Acceptor) armReceive(n int, next acceptorState) {
	a.recvOp = async.NewReceiveOperation(make([]byte, n))
	a.recvOp.SetNotifier(a)
	a.state = next
	a.conn.ReceiveAsync(a.internal, a.recvOp)
}

func (a *socks4Acceptor) finish(result netpkg.Socket, err error) {
	a.state = acceptorFinished
	a.listener.removeActive(a)
	a.userOp.SetResult(result)
	a.userOp.Notifier().Notify(&a.userOp.Operation)
	_ = err // discarded: the caller only sees a nil Result
}

func (a *socks4Acceptor) cancel() {
	switch a.state {
	case acceptorSending:
		a.conn.Cancel(a.internal, &a.sendOp.Operation)
	case acceptorReceivingFirst, acceptorReceivingSecond:
		a.conn.Cancel(a.internal, &a.recvOp.Operation)
	}
}
