package tunnel

import (
	"encoding/binary"
	"net"
	"strconv"
	"time"

	"github.com/marmos91/asyncnet/async"
	"github.com/marmos91/asyncnet/asyncerr"
	netpkg "github.com/marmos91/asyncnet/net"
)

const (
	socks5Version = 5

	socks5MethodNoAuth      = 0x00
	socks5MethodNoAcceptable = 0xFF

	socks5CmdConnect = 0x01

	socks5AtypIPv4   = 0x01
	socks5AtypDomain = 0x03
	socks5AtypIPv6   = 0x04

	socks5ReplySucceeded = 0x00
)

var socks5ReplyMessages = map[byte]string{
	0x00: "succeeded",
	0x01: "general SOCKS server failure",
	0x02: "connection not allowed by ruleset",
	0x03: "network unreachable",
	0x04: "host unreachable",
	0x05: "connection refused",
	0x06: "TTL expired",
	0x07: "command not supported",
	0x08: "address type not supported",
}

func socks5ReplyMessage(code byte) string {
	if msg, ok := socks5ReplyMessages[code]; ok {
		return msg
	}
	return "unknown SOCKS5 reply code"
}

// Socks5NetworkStack tunnels Connect through a SOCKS5 proxy speaking the
// no-authentication method only (RFC 1928 §3-4). There is no BIND
// support: the original afl library never shipped a socks5 BIND
// implementation either (see DESIGN.md), so Listen reports Unsupported.
type Socks5NetworkStack struct {
	base   netpkg.NetworkStack
	server netpkg.Name
}

// NewSocks5NetworkStack wraps base, routing all traffic through the
// SOCKS5 proxy listening at server.
func NewSocks5NetworkStack(base netpkg.NetworkStack, server netpkg.Name) *Socks5NetworkStack {
	return &Socks5NetworkStack{base: base, server: server}
}

func (s *Socks5NetworkStack) Listen(netpkg.Name, int) (netpkg.Listener, error) {
	return nil, asyncerr.New(asyncerr.Unsupported, "socks5", "BIND is not implemented")
}

// Connect performs the SOCKS5 greeting and CONNECT handshake and returns a
// socket that reports target as its own name.
func (s *Socks5NetworkStack) Connect(target netpkg.Name, timeout time.Duration) (netpkg.Socket, error) {
	sock, err := s.base.Connect(s.server, timeout)
	if err != nil {
		return nil, err
	}
	ctl := async.NewController()

	greeting := []byte{socks5Version, 1, socks5MethodNoAuth}
	if err := async.FullSend(sock, ctl, greeting, timeout); err != nil {
		return nil, err
	}

	methodReply := make([]byte, 2)
	if err := async.FullReceive(sock, ctl, methodReply, timeout); err != nil {
		return nil, err
	}
	if methodReply[0] != socks5Version {
		return nil, asyncerr.New(asyncerr.Protocol, "socks5", "bad greeting reply version")
	}
	if methodReply[1] != socks5MethodNoAuth {
		return nil, asyncerr.New(asyncerr.Unsupported, "socks5", "no acceptable authentication method")
	}

	req, err := buildRequest5(socks5CmdConnect, target)
	if err != nil {
		return nil, err
	}
	if err := async.FullSend(sock, ctl, req, timeout); err != nil {
		return nil, err
	}

	if _, err := receiveConnectResponse5(ctl, sock, timeout); err != nil {
		return nil, err
	}
	return wrapSocket(sock, target, s.server), nil
}

func buildRequest5(cmd byte, target netpkg.Name) ([]byte, error) {
	port, err := parsePortNumber(target.Service)
	if err != nil {
		return nil, err
	}

	buf := []byte{socks5Version, cmd, 0}
	switch {
	case net.ParseIP(target.Host).To4() != nil:
		buf = append(buf, socks5AtypIPv4)
		buf = append(buf, net.ParseIP(target.Host).To4()...)
	case net.ParseIP(target.Host).To16() != nil:
		buf = append(buf, socks5AtypIPv6)
		buf = append(buf, net.ParseIP(target.Host).To16()...)
	default:
		if len(target.Host) > 255 {
			return nil, asyncerr.New(asyncerr.Protocol, "socks5", "domain name too long")
		}
		buf = append(buf, socks5AtypDomain, byte(len(target.Host)))
		buf = append(buf, []byte(target.Host)...)
	}
	buf = binary.BigEndian.AppendUint16(buf, port)
	return buf, nil
}

// receiveConnectResponse5 reads a full SOCKS5 reply, whose length depends
// on the address type it carries, and returns the bound address.
func receiveConnectResponse5(ctl *async.Controller, sock netpkg.Socket, timeout time.Duration) (netpkg.Name, error) {
	head := make([]byte, 4)
	if err := async.FullReceive(sock, ctl, head, timeout); err != nil {
		return netpkg.Name{}, err
	}
	if head[0] != socks5Version {
		return netpkg.Name{}, asyncerr.New(asyncerr.Protocol, "socks5", "bad reply version")
	}
	if head[1] != socks5ReplySucceeded {
		return netpkg.Name{}, asyncerr.New(asyncerr.Transport, "socks5", socks5ReplyMessage(head[1]))
	}

	var addr string
	switch head[3] {
	case socks5AtypIPv4:
		raw := make([]byte, 4)
		if err := async.FullReceive(sock, ctl, raw, timeout); err != nil {
			return netpkg.Name{}, err
		}
		addr = net.IP(raw).String()
	case socks5AtypIPv6:
		raw := make([]byte, 16)
		if err := async.FullReceive(sock, ctl, raw, timeout); err != nil {
			return netpkg.Name{}, err
		}
		addr = net.IP(raw).String()
	case socks5AtypDomain:
		lenBuf := make([]byte, 1)
		if err := async.FullReceive(sock, ctl, lenBuf, timeout); err != nil {
			return netpkg.Name{}, err
		}
		raw := make([]byte, lenBuf[0])
		if err := async.FullReceive(sock, ctl, raw, timeout); err != nil {
			return netpkg.Name{}, err
		}
		addr = string(raw)
	default:
		return netpkg.Name{}, asyncerr.New(asyncerr.Protocol, "socks5", "unsupported bound address type")
	}

	portBuf := make([]byte, 2)
	if err := async.FullReceive(sock, ctl, portBuf, timeout); err != nil {
		return netpkg.Name{}, err
	}
	port := binary.BigEndian.Uint16(portBuf)
	return netpkg.Name{Host: addr, Service: strconv.Itoa(int(port))}, nil
}
