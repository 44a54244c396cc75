// Package net implements the endpoint, socket, listener and server
// abstractions built on top of package async: a NetworkStack factory, an
// in-memory InternalNetworkStack for tests, and a single-threaded Server
// event loop driving many ProtocolHandler sessions.
package net

import "strings"

// Name is a host/service endpoint pair, parsed from strings like
// "host:port", "[::1]:8080", or a bare "host" (service defaults). It is
// the Go counterpart of afl::net::Name, including its bracketed-IPv6
// handling.
type Name struct {
	Host    string
	Service string
}

// ParseName splits s into a Name. If s carries no ":service" suffix,
// defaultService is used. IPv6 literals must be bracketed when a service
// is present ("[::1]:8080") but may appear bare otherwise ("::1").
func ParseName(s, defaultService string) Name {
	if strings.HasPrefix(s, "[") {
		if end := strings.IndexByte(s, ']'); end >= 0 {
			host := s[1:end]
			rest := s[end+1:]
			if strings.HasPrefix(rest, ":") {
				return Name{Host: host, Service: rest[1:]}
			}
			return Name{Host: host, Service: defaultService}
		}
	}

	if idx := strings.LastIndexByte(s, ':'); idx >= 0 && !strings.Contains(s[idx+1:], ":") {
		// A single colon not part of a bare (unbracketed) IPv6
		// literal separates host from service.
		if !strings.Contains(s[:idx], ":") {
			return Name{Host: s[:idx], Service: s[idx+1:]}
		}
	}

	return Name{Host: s, Service: defaultService}
}

// String reassembles the endpoint, re-bracketing the host if it looks
// like an IPv6 literal (contains a colon), matching Name::toString.
func (n Name) String() string {
	host := n.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if n.Service == "" {
		return host
	}
	return host + ":" + n.Service
}
