package tunnel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/asyncnet/async"
	netpkg "github.com/marmos91/asyncnet/net"
)

// fakeSocks4Proxy accepts one connection, reads a SOCKS4 request, and
// replies with a canned SOCKS4 response.
func fakeSocks4Proxy(t *testing.T, base *netpkg.InternalNetworkStack, proxyName netpkg.Name, replyCode byte) {
	t.Helper()
	listener, err := base.Listen(proxyName, 1)
	require.NoError(t, err)

	go func() {
		ctl := async.NewController()
		sock := listener.Accept(ctl, time.Second)
		if sock == nil {
			return
		}
		req := make([]byte, 64)
		n, err := readSome(ctl, sock, req)
		if err != nil || n == 0 {
			return
		}
		reply := []byte{socks4ReplyVN, replyCode, 0x00, 0x50, 93, 184, 216, 34}
		async.FullSend(sock, ctl, reply, time.Second)
	}()
}

func readSome(ctl *async.Controller, sock netpkg.Socket, buf []byte) (int, error) {
	op := async.NewReceiveOperation(buf)
	if !sock.Receive(ctl, op, time.Second) {
		return 0, assert.AnError
	}
	return op.NumReceivedBytes(), nil
}

func TestSocks4NetworkStackConnectSucceeds(t *testing.T) {
	base := netpkg.NewInternalNetworkStack()
	proxyName := netpkg.Name{Host: "proxy", Service: "1080"}
	fakeSocks4Proxy(t, base, proxyName, socks4Granted)

	stack := NewSocks4NetworkStack(base, proxyName)
	sock, err := stack.Connect(netpkg.Name{Host: "93.184.216.34", Service: "80"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "93.184.216.34:80", sock.Name())
}

func TestSocks4NetworkStackConnectPropagatesRejection(t *testing.T) {
	base := netpkg.NewInternalNetworkStack()
	proxyName := netpkg.Name{Host: "proxy", Service: "1080"}
	fakeSocks4Proxy(t, base, proxyName, socks4Rejected)

	stack := NewSocks4NetworkStack(base, proxyName)
	_, err := stack.Connect(netpkg.Name{Host: "93.184.216.34", Service: "80"}, time.Second)
	assert.Error(t, err)
}

// fakeSocks5Proxy accepts one connection, answers the no-auth greeting,
// reads the CONNECT request, and replies success.
func fakeSocks5Proxy(t *testing.T, base *netpkg.InternalNetworkStack, proxyName netpkg.Name) {
	t.Helper()
	listener, err := base.Listen(proxyName, 1)
	require.NoError(t, err)

	go func() {
		ctl := async.NewController()
		sock := listener.Accept(ctl, time.Second)
		if sock == nil {
			return
		}
		greeting := make([]byte, 3)
		if async.FullReceive(sock, ctl, greeting, time.Second) != nil {
			return
		}
		async.FullSend(sock, ctl, []byte{socks5Version, socks5MethodNoAuth}, time.Second)

		head := make([]byte, 4)
		if async.FullReceive(sock, ctl, head, time.Second) != nil {
			return
		}
		rest := make([]byte, 4+2) // IPv4 addr + port for the IPv4 ATYP path
		switch head[3] {
		case socks5AtypDomain:
			lenBuf := make([]byte, 1)
			async.FullReceive(sock, ctl, lenBuf, time.Second)
			domain := make([]byte, lenBuf[0])
			async.FullReceive(sock, ctl, domain, time.Second)
			portBuf := make([]byte, 2)
			async.FullReceive(sock, ctl, portBuf, time.Second)
		default:
			async.FullReceive(sock, ctl, rest, time.Second)
		}

		reply := []byte{socks5Version, socks5ReplySucceeded, 0x00, socks5AtypIPv4, 93, 184, 216, 34, 0x00, 0x50}
		async.FullSend(sock, ctl, reply, time.Second)
	}()
}

// fakeSocks4BindProxy accepts one connection, reads the BIND request,
// replies with the granted first reply confirming the bound port, then
// (after the caller signals a peer has "connected") sends the second
// reply announcing the peer that connected to the bound port.
func fakeSocks4BindProxy(t *testing.T, base *netpkg.InternalNetworkStack, proxyName netpkg.Name, wantRequest []byte, peerConnect <-chan struct{}) {
	t.Helper()
	listener, err := base.Listen(proxyName, 1)
	require.NoError(t, err)

	go func() {
		ctl := async.NewController()
		sock := listener.Accept(ctl, time.Second)
		if sock == nil {
			return
		}
		req := make([]byte, len(wantRequest))
		if async.FullReceive(sock, ctl, req, time.Second) != nil {
			return
		}
		if !assert.Equal(t, wantRequest, req) {
			return
		}

		firstReply := []byte{socks4ReplyVN, socks4Granted, 0x07, 0xD0, 127, 0, 0, 1}
		if async.FullSend(sock, ctl, firstReply, time.Second) != nil {
			return
		}

		<-peerConnect

		secondReply := []byte{socks4ReplyVN, socks4Granted, 0x05, 0x06, 192, 168, 3, 4}
		async.FullSend(sock, ctl, secondReply, time.Second)
	}()
}

// TestSocks4NetworkStackListenCompletesBindHandshake drives the BIND
// two-reply handshake end to end: the first reply confirms the bound
// port, the second (sent once a peer has "connected" on the proxy side)
// carries the name of that peer.
func TestSocks4NetworkStackListenCompletesBindHandshake(t *testing.T) {
	base := netpkg.NewInternalNetworkStack()
	proxyName := netpkg.Name{Host: "proxy", Service: "1080"}
	bindName := netpkg.Name{Host: "127.0.0.1", Service: "2000"}
	wantRequest := []byte{socks4Version, socks4CmdBind, 0x07, 0xD0, 127, 0, 0, 1, 0x00}

	peerConnect := make(chan struct{})
	fakeSocks4BindProxy(t, base, proxyName, wantRequest, peerConnect)

	stack := NewSocks4NetworkStack(base, proxyName)
	listener, err := stack.Listen(bindName, 1)
	require.NoError(t, err)

	close(peerConnect)

	ctl := async.NewController()
	sock := listener.Accept(ctl, time.Second)
	require.NotNil(t, sock)
	assert.Equal(t, "127.0.0.1:2000", sock.Name())
	assert.Equal(t, "192.168.3.4:1286", sock.PeerName().String())
}

func TestSocks5NetworkStackConnectSucceeds(t *testing.T) {
	base := netpkg.NewInternalNetworkStack()
	proxyName := netpkg.Name{Host: "proxy", Service: "1080"}
	fakeSocks5Proxy(t, base, proxyName)

	stack := NewSocks5NetworkStack(base, proxyName)
	sock, err := stack.Connect(netpkg.Name{Host: "example.com", Service: "80"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "example.com:80", sock.Name())
}
