package tunnel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/asyncnet/async"
	netpkg "github.com/marmos91/asyncnet/net"
)

func TestBuildRequest5IPv4(t *testing.T) {
	req, err := buildRequest5(socks5CmdConnect, netpkg.Name{Host: "10.0.0.5", Service: "80"})
	require.NoError(t, err)
	want := []byte{socks5Version, socks5CmdConnect, 0x00, socks5AtypIPv4, 10, 0, 0, 5, 0x00, 0x50}
	assert.Equal(t, want, req)
}

func TestBuildRequest5Domain(t *testing.T) {
	req, err := buildRequest5(socks5CmdConnect, netpkg.Name{Host: "example.com", Service: "443"})
	require.NoError(t, err)
	want := []byte{socks5Version, socks5CmdConnect, 0x00, socks5AtypDomain, byte(len("example.com"))}
	want = append(want, []byte("example.com")...)
	want = append(want, 0x01, 0xBB)
	assert.Equal(t, want, req)
}

func TestBuildRequest5IPv6(t *testing.T) {
	req, err := buildRequest5(socks5CmdConnect, netpkg.Name{Host: "::1", Service: "80"})
	require.NoError(t, err)
	assert.Equal(t, byte(socks5AtypIPv6), req[3])
	assert.Len(t, req, 4+16+2)
}

// fakeReplySocket replays a canned byte sequence to Receive and discards
// everything sent to it; it is only used to drive receiveConnectResponse5
// without a real network round trip.
type fakeReplySocket struct {
	data []byte
}

func (f *fakeReplySocket) Send(_ *async.Controller, op *async.SendOperation, _ time.Duration) bool {
	op.AddSentBytes(len(op.UnsentBytes()))
	return true
}
func (f *fakeReplySocket) SendAsync(ctl *async.Controller, op *async.SendOperation) {
	op.SetController(ctl)
	f.Send(ctl, op, async.Infinite)
	ctl.Post(&op.Operation)
}
func (f *fakeReplySocket) Receive(_ *async.Controller, op *async.ReceiveOperation, _ time.Duration) bool {
	n := copy(op.UnreceivedBytes(), f.data)
	f.data = f.data[n:]
	op.AddReceivedBytes(n)
	return n > 0
}
func (f *fakeReplySocket) ReceiveAsync(ctl *async.Controller, op *async.ReceiveOperation) {
	op.SetController(ctl)
	f.Receive(ctl, op, async.Infinite)
	ctl.Post(&op.Operation)
}
func (f *fakeReplySocket) Cancel(ctl *async.Controller, op *async.Operation) { ctl.RevertPost(op) }
func (f *fakeReplySocket) Name() string                                     { return "fake" }
func (f *fakeReplySocket) CloseSend()                                       {}
func (f *fakeReplySocket) PeerName() netpkg.Name                            { return netpkg.Name{} }

func TestReceiveConnectResponse5ParsesIPv4Bind(t *testing.T) {
	reply := []byte{socks5Version, socks5ReplySucceeded, 0x00, socks5AtypIPv4, 127, 0, 0, 1, 0x1F, 0x90}
	sock := &fakeReplySocket{data: reply}
	ctl := async.NewController()

	name, err := receiveConnectResponse5(ctl, sock, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", name.Host)
	assert.Equal(t, "8080", name.Service)
}

func TestReceiveConnectResponse5ReportsFailureCode(t *testing.T) {
	reply := []byte{socks5Version, 0x05, 0x00, socks5AtypIPv4, 0, 0, 0, 0, 0, 0}
	sock := &fakeReplySocket{data: reply}
	ctl := async.NewController()

	_, err := receiveConnectResponse5(ctl, sock, time.Second)
	assert.ErrorContains(t, err, "connection refused")
}

func TestSocks5ListenIsUnsupported(t *testing.T) {
	s := NewSocks5NetworkStack(nil, netpkg.Name{Host: "proxy", Service: "1080"})
	_, err := s.Listen(netpkg.Name{Host: "0.0.0.0", Service: "0"}, 1)
	assert.Error(t, err)
}
