package net

import (
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/marmos91/asyncnet/async"
	"github.com/marmos91/asyncnet/net/server/metrics"
)

const (
	// minWait is the shortest timeout Server will ever pass to
	// Controller.Wait, however soon a handler's deadline falls due;
	// matches afl::net::Server's MIN_TIME.
	minWait = 50 * time.Millisecond
	// errorLimit is how many consecutive accept failures Server
	// tolerates before pausing, matching ERROR_LIMIT.
	errorLimit = 10
	// errorSleep is how long Server pauses accepting after errorLimit
	// consecutive failures, matching ERROR_SLEEP.
	errorSleep = 3 * time.Second

	recvBufferSize = 4096
)

type connState int

const (
	connIdle connState = iota
	connSending
	connReceiving
	connClosing
)

type connection struct {
	id         string
	state      connState
	socket     Socket
	peerName   string
	handler    ProtocolHandler
	op         HandlerOperation
	sendOp     *async.SendOperation
	recvOp     *async.ReceiveOperation
	recvBuffer [recvBufferSize]byte
	startTime  time.Time
}

// Server is a single-goroutine event loop that accepts connections from
// one Listener and drives each with a ProtocolHandler, the Go counterpart
// of afl::net::Server. It never spawns a goroutine per connection; all
// I/O multiplexes through one Controller.
type Server struct {
	listener Listener
	factory  ProtocolHandlerFactory
	ctl      *async.Controller
	log      *slog.Logger
	metrics  *metrics.Collector
	logName  string

	listenOp     *AcceptOperation
	stopOp       *async.Operation
	connections  []*connection
	closeSignal  bool
	errorCounter int
}

// NewServer builds a Server that will accept from listener and hand each
// connection to a ProtocolHandler built by factory. log may be nil (a
// discard logger is used); collector may be nil (metrics are skipped).
func NewServer(listener Listener, factory ProtocolHandlerFactory, log *slog.Logger, collector *metrics.Collector) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{
		listener: listener,
		factory:  factory,
		ctl:      async.NewController(),
		log:      log,
		metrics:  collector,
		stopOp:   async.NewOperation(),
	}
}

// SetLogName attaches a name (e.g. the listen address) to every log line
// this Server emits.
func (s *Server) SetLogName(name string) {
	s.logName = name
}

func (s *Server) logger() *slog.Logger {
	if s.logName == "" {
		return s.log
	}
	return s.log.With(slog.String("listener", s.logName))
}

// Stop requests the event loop to exit after it finishes reacting to
// whatever it is currently doing. Safe to call from any goroutine.
func (s *Server) Stop() {
	s.stopOp.SetController(s.ctl)
	s.ctl.Post(s.stopOp)
}

// Run drives the event loop until Stop is called. It blocks the calling
// goroutine.
func (s *Server) Run() {
	s.startListen()

	for {
		timeout := s.findTimeout(time.Now())
		op := s.ctl.Wait(timeout)

		switch {
		case op == nil:
			s.onTimerTick()
		case op == s.stopOp:
			s.shutdown()
			return
		case op == &s.listenOp.Operation:
			s.onAccept()
		default:
			s.onConnectionEvent(op)
		}

		if s.closeSignal {
			s.compactClosed()
		}
	}
}

func (s *Server) startListen() {
	s.listenOp = NewAcceptOperation()
	s.listener.AcceptAsync(s.ctl, s.listenOp)
}

func (s *Server) onAccept() {
	sock := s.listenOp.Result()
	if sock == nil {
		s.errorCounter++
		s.metrics.SetAcceptErrorStreak(s.errorCounter)
		if s.errorCounter >= errorLimit {
			s.logger().Error("accept failing repeatedly, pausing", slog.Int("consecutive_errors", s.errorCounter))
			time.Sleep(errorSleep)
			s.errorCounter = 0
		}
		s.startListen()
		return
	}

	s.errorCounter = 0
	s.metrics.SetAcceptErrorStreak(0)
	s.metrics.ConnectionAccepted()

	conn := &connection{
		id:       uuid.NewString(),
		socket:   sock,
		peerName: sock.PeerName().String(),
		handler:  s.factory.Create(),
	}
	s.logger().Info("connection accepted", slog.String("peer", conn.peerName), slog.String("session", conn.id))
	s.connections = append(s.connections, conn)
	s.startConnection(conn)
	s.startListen()
}

func (s *Server) startConnection(c *connection) {
	c.op = c.handler.GetOperation()
	switch {
	case len(c.op.DataToSend) > 0:
		c.sendOp = async.NewSendOperation(c.op.DataToSend)
		c.state = connSending
		c.startTime = time.Now()
		c.socket.SendAsync(s.ctl, c.sendOp)
	case c.op.Close:
		s.closeConnection(c)
	default:
		c.recvOp = async.NewReceiveOperation(c.recvBuffer[:])
		c.state = connReceiving
		c.startTime = time.Now()
		c.socket.ReceiveAsync(s.ctl, c.recvOp)
	}
}

func (s *Server) closeConnection(c *connection) {
	s.safely(c, "close", c.handler.HandleConnectionClose)
	c.state = connClosing
	s.closeSignal = true
}

func (s *Server) onConnectionEvent(op *async.Operation) {
	for _, c := range s.connections {
		switch c.state {
		case connSending:
			if op != &c.sendOp.Operation {
				continue
			}
			s.handleSendEvent(c)
			return
		case connReceiving:
			if op != &c.recvOp.Operation {
				continue
			}
			s.handleReceiveEvent(c)
			return
		}
	}
}

func (s *Server) handleSendEvent(c *connection) {
	if c.sendOp.IsCompleted() {
		s.safely(c, "I/O", func() { c.handler.AdvanceTime(time.Since(c.startTime)) })
		s.startConnection(c)
		return
	}
	c.sendOp.SetData(c.sendOp.UnsentBytes())
	c.startTime = time.Now()
	c.socket.SendAsync(s.ctl, c.sendOp)
}

func (s *Server) handleReceiveEvent(c *connection) {
	s.safely(c, "I/O", func() { c.handler.AdvanceTime(time.Since(c.startTime)) })
	n := c.recvOp.NumReceivedBytes()
	if n == 0 {
		s.logger().Info("connection closed by peer", slog.String("peer", c.peerName), slog.String("session", c.id))
		s.closeConnection(c)
		return
	}
	data := append([]byte(nil), c.recvOp.Data()[:n]...)
	s.safely(c, "I/O", func() { c.handler.HandleData(data) })
	s.startConnection(c)
}

func (s *Server) onTimerTick() {
	now := time.Now()
	for _, c := range s.connections {
		s.handleConnectionTime(c, now)
	}
}

func (s *Server) handleConnectionTime(c *connection, now time.Time) {
	if c.state != connSending && c.state != connReceiving {
		return
	}
	if c.op.TimeToWait <= 0 {
		return
	}
	if now.Sub(c.startTime) < c.op.TimeToWait {
		return
	}

	s.safely(c, "timer", func() { c.handler.AdvanceTime(now.Sub(c.startTime)) })

	switch c.state {
	case connSending:
		s.safely(c, "timer", func() { c.handler.HandleSendTimeout(c.sendOp.UnsentBytes()) })
		c.socket.Cancel(s.ctl, &c.sendOp.Operation)
	case connReceiving:
		c.socket.Cancel(s.ctl, &c.recvOp.Operation)
	}
	c.state = connIdle
	s.startConnection(c)
}

// findTimeout returns the soonest deadline any Sending/Receiving
// connection needs to be revisited by, clamped to at least minWait, or
// async.Infinite if nothing is time-bounded.
func (s *Server) findTimeout(now time.Time) time.Duration {
	best := async.Infinite
	for _, c := range s.connections {
		if c.state != connSending && c.state != connReceiving {
			continue
		}
		if c.op.TimeToWait <= 0 {
			continue
		}
		remaining := c.op.TimeToWait - now.Sub(c.startTime)
		if remaining < minWait {
			remaining = minWait
		}
		if best == async.Infinite || remaining < best {
			best = remaining
		}
	}
	return best
}

func (s *Server) compactClosed() {
	kept := s.connections[:0]
	for _, c := range s.connections {
		if c.state == connClosing {
			s.logger().Info("connection closes", slog.String("peer", c.peerName), slog.String("session", c.id),
				slog.String("bytes_buffered", humanize.Bytes(uint64(len(c.recvBuffer)))))
			s.metrics.ConnectionClosed()
			continue
		}
		kept = append(kept, c)
	}
	s.connections = kept
	s.closeSignal = false
}

func (s *Server) shutdown() {
	s.listener.Cancel(s.ctl, &s.listenOp.Operation)
	for _, c := range s.connections {
		switch c.state {
		case connSending:
			c.socket.Cancel(s.ctl, &c.sendOp.Operation)
		case connReceiving:
			c.socket.Cancel(s.ctl, &c.recvOp.Operation)
		}
		s.metrics.ConnectionClosed()
	}
	s.connections = nil
}

// safely runs fn, logging and swallowing any panic it raises so one
// misbehaving handler cannot take down the whole event loop; mirrors
// afl::net::Server::logException's per-phase exception containment.
func (s *Server) safely(c *connection, phase string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger().Error("handler panic",
				slog.String("phase", phase),
				slog.String("peer", c.peerName),
				slog.String("session", c.id),
				slog.Any("panic", r))
		}
	}()
	fn()
}
