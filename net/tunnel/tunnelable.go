package tunnel

import (
	"net/url"
	"time"

	"github.com/marmos91/asyncnet/asyncerr"
	netpkg "github.com/marmos91/asyncnet/net"
)

const defaultSocksPort = "1080"

// TunnelableNetworkStack lets a chain of SOCKS tunnels be declared with
// plain URLs instead of constructing Socks4NetworkStack/Socks5NetworkStack
// by hand: Add("socks5://proxy1:1080") followed by
// Add("socks4://proxy2:1080") routes every subsequent Connect through
// proxy1 then proxy2 then the original base stack's destination.
type TunnelableNetworkStack struct {
	base    netpkg.NetworkStack
	current netpkg.NetworkStack
}

// NewTunnelableNetworkStack starts a chain rooted at base (an
// InternalNetworkStack in tests, a real TCP stack in production).
func NewTunnelableNetworkStack(base netpkg.NetworkStack) *TunnelableNetworkStack {
	return &TunnelableNetworkStack{base: base, current: base}
}

// Add layers one more tunnel onto the chain, parsed from a URL whose
// scheme selects the tunnel kind: "socks4", "socks5", or the "socks"
// alias for socks5. The URL's host[:port] (port defaulting to 1080)
// names the proxy to connect to, reached through whatever was already
// added to the chain.
func (t *TunnelableNetworkStack) Add(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return asyncerr.Wrap(asyncerr.Protocol, rawURL, "invalid tunnel URL", err)
	}

	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = defaultSocksPort
	}
	server := netpkg.Name{Host: host, Service: port}

	switch u.Scheme {
	case "socks4":
		t.current = NewSocks4NetworkStack(t.current, server)
	case "socks5", "socks":
		t.current = NewSocks5NetworkStack(t.current, server)
	default:
		return asyncerr.New(asyncerr.Unsupported, rawURL, "unknown tunnel scheme "+u.Scheme)
	}
	return nil
}

// Reset drops every tunnel added so far, returning Connect/Listen to the
// original base stack.
func (t *TunnelableNetworkStack) Reset() {
	t.current = t.base
}

// Listen delegates to whatever stack is currently at the head of the
// chain (the outermost tunnel, or the base stack if none were added).
func (t *TunnelableNetworkStack) Listen(name netpkg.Name, backlog int) (netpkg.Listener, error) {
	return t.current.Listen(name, backlog)
}

// Connect delegates to whatever stack is currently at the head of the
// chain.
func (t *TunnelableNetworkStack) Connect(name netpkg.Name, timeout time.Duration) (netpkg.Socket, error) {
	return t.current.Connect(name, timeout)
}
