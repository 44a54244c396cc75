// Package resp implements a thread-safe client for the RESP2 wire
// protocol (as spoken by Redis and compatible servers), built on top of
// package net's Socket abstraction and package async's Controller, the Go
// counterpart of afl::net::resp::Client.
package resp

import (
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/marmos91/asyncnet/async"
	"github.com/marmos91/asyncnet/asyncerr"
	netpkg "github.com/marmos91/asyncnet/net"
	"github.com/marmos91/asyncnet/net/resp/respwire"
	"github.com/marmos91/asyncnet/net/server/metrics"
)

// ReconnectMode governs what Call does when the underlying connection
// misbehaves.
type ReconnectMode int

const (
	// Always reconnects and retries the whole request on every
	// transport failure. The default.
	Always ReconnectMode = iota
	// Once behaves like Always for exactly one more Call, then flips
	// to Never.
	Once
	// Never propagates the transport failure without reconnecting.
	Never
)

const (
	connectTimeout = 10 * time.Second
	callTimeout    = 10 * time.Second
	recvChunk      = 4096
)

// Client serializes every Call against a single underlying connection,
// transparently reconnecting on transport failure according to its
// ReconnectMode. A RemoteError (the peer understood the request and
// rejected it) is never treated as a transport failure and is always
// propagated unchanged.
type Client struct {
	mu    sync.Mutex
	stack netpkg.NetworkStack
	name  netpkg.Name
	mode  ReconnectMode

	ctl     *async.Controller
	sock    netpkg.Socket
	parser  respwire.Parser
	metrics *metrics.Collector
}

// NewClient connects to name over stack and returns a ready Client.
// collector may be nil to skip metrics.
func NewClient(stack netpkg.NetworkStack, name netpkg.Name, mode ReconnectMode, collector *metrics.Collector) (*Client, error) {
	c := &Client{
		stack:   stack,
		name:    name,
		mode:    mode,
		ctl:     async.NewController(),
		metrics: collector,
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	sock, err := c.stack.Connect(c.name, connectTimeout)
	if err != nil {
		return err
	}
	c.sock = sock
	c.parser = respwire.Parser{}
	return nil
}

// respBackoff reproduces afl::net::resp::Client::reconnect's schedule:
// one immediate attempt plus up to 15 retries (16 attempts in all),
// sleeping 1s before each of the first 11 retries and 100ms before each
// of the last 4.
type respBackoff struct {
	remaining int
}

func newRespBackoff() *respBackoff {
	return &respBackoff{remaining: 15}
}

func (b *respBackoff) NextBackOff() time.Duration {
	if b.remaining <= 0 {
		return backoff.Stop
	}
	d := time.Second
	if b.remaining < 5 {
		d = 100 * time.Millisecond
	}
	b.remaining--
	return d
}

func (b *respBackoff) Reset() {
	b.remaining = 15
}

func (c *Client) reconnect() error {
	var lastErr error
	op := func() error {
		c.metrics.RespReconnect()
		err := c.connect()
		if err != nil {
			lastErr = err
		}
		return err
	}
	if err := backoff.Retry(op, newRespBackoff()); err != nil {
		if lastErr != nil {
			return asyncerr.Wrap(asyncerr.Transport, c.name.String(), "reconnect failed", lastErr)
		}
		return asyncerr.Wrap(asyncerr.Transport, c.name.String(), "reconnect failed", err)
	}
	return nil
}

// Call sends a command (its arguments, unescaped) and returns the
// server's reply. On a transport failure it reconnects and retries the
// whole request once, unless mode is Never. A RemoteError (the server
// replied with a RESP error) is returned as-is, without reconnecting.
func (c *Client) Call(command []string) (respwire.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, err := c.tryCall(command)
	if err != nil {
		var remote *asyncerr.RemoteError
		if !errors.As(err, &remote) && c.mode != Never {
			if rerr := c.reconnect(); rerr != nil {
				return respwire.Value{}, rerr
			}
			value, err = c.tryCall(command)
		}
	}

	if c.mode == Once {
		c.mode = Never
	}
	return value, err
}

// CallVoid is Call without the reply, for commands whose result the
// caller does not need.
func (c *Client) CallVoid(command []string) error {
	_, err := c.Call(command)
	return err
}

func (c *Client) tryCall(command []string) (respwire.Value, error) {
	if err := c.sendCommand(command); err != nil {
		return respwire.Value{}, err
	}
	return c.readResponse()
}

func (c *Client) sendCommand(command []string) error {
	data := respwire.WriteCommand(command)
	sink := async.NewCommunicationSink(c.ctl, c.sock, callTimeout)
	return sink.HandleData(data)
}

func (c *Client) readResponse() (respwire.Value, error) {
	buf := make([]byte, recvChunk)
	for {
		if v, ok, err := c.parser.TryParse(); err != nil {
			return respwire.Value{}, asyncerr.Wrap(asyncerr.Protocol, c.name.String(), "malformed RESP reply", err)
		} else if ok {
			if msg, isErr := v.IsError(); isErr {
				return respwire.Value{}, asyncerr.NewRemoteError(c.name.String(), msg)
			}
			return v, nil
		}

		op := async.NewReceiveOperation(buf)
		if !c.sock.Receive(c.ctl, op, callTimeout) {
			return respwire.Value{}, asyncerr.New(asyncerr.Timeout, c.name.String(), "timed out waiting for reply")
		}
		n := op.NumReceivedBytes()
		if n == 0 {
			return respwire.Value{}, asyncerr.New(asyncerr.Transport, c.name.String(), "connection closed while waiting for reply")
		}
		c.parser.Feed(buf[:n])
	}
}
