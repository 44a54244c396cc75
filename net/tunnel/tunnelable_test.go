package tunnel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	netpkg "github.com/marmos91/asyncnet/net"
)

func TestTunnelableAddSocks4DefaultsPort(t *testing.T) {
	base := netpkg.NewInternalNetworkStack()
	ts := NewTunnelableNetworkStack(base)
	require.NoError(t, ts.Add("socks4://proxy.example"))

	s4, ok := ts.current.(*Socks4NetworkStack)
	require.True(t, ok)
	assert.Equal(t, netpkg.Name{Host: "proxy.example", Service: defaultSocksPort}, s4.server)
}

func TestTunnelableAddSocksAliasUsesSocks5(t *testing.T) {
	base := netpkg.NewInternalNetworkStack()
	ts := NewTunnelableNetworkStack(base)
	require.NoError(t, ts.Add("socks://proxy.example:9050"))

	s5, ok := ts.current.(*Socks5NetworkStack)
	require.True(t, ok)
	assert.Equal(t, netpkg.Name{Host: "proxy.example", Service: "9050"}, s5.server)
}

func TestTunnelableAddChainsThroughPreviousTunnel(t *testing.T) {
	base := netpkg.NewInternalNetworkStack()
	ts := NewTunnelableNetworkStack(base)
	require.NoError(t, ts.Add("socks4://first:1080"))
	require.NoError(t, ts.Add("socks5://second:1080"))

	s5, ok := ts.current.(*Socks5NetworkStack)
	require.True(t, ok)
	_, ok = s5.base.(*Socks4NetworkStack)
	assert.True(t, ok)
}

func TestTunnelableAddRejectsUnknownScheme(t *testing.T) {
	ts := NewTunnelableNetworkStack(netpkg.NewInternalNetworkStack())
	err := ts.Add("http://proxy.example")
	assert.Error(t, err)
}

func TestTunnelableResetReturnsToBase(t *testing.T) {
	base := netpkg.NewInternalNetworkStack()
	ts := NewTunnelableNetworkStack(base)
	require.NoError(t, ts.Add("socks4://proxy.example"))
	ts.Reset()
	assert.Same(t, netpkg.NetworkStack(base), ts.current)
}
