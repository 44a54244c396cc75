package async

import "time"

// CommunicationStream adapts a CommunicationObject (MessageExchange, or
// net.Socket) to the synchronous io.Reader/io.Writer interfaces, the way
// afl::async::CommunicationStream adapts one to afl::io::Stream. It is not
// safe to share across goroutines and does not support being duplicated.
type CommunicationStream struct {
	ctl     *Controller
	obj     CommunicationObject
	timeout time.Duration
}

// NewCommunicationStream wraps obj for synchronous I/O on ctl, each
// operation bounded by timeout (async.Infinite for no bound).
func NewCommunicationStream(ctl *Controller, obj CommunicationObject, timeout time.Duration) *CommunicationStream {
	return &CommunicationStream{ctl: ctl, obj: obj, timeout: timeout}
}

// Read performs a single receive into p, returning however many bytes
// were actually transferred (possibly fewer than len(p)), matching
// io.Reader's partial-read contract.
func (s *CommunicationStream) Read(p []byte) (int, error) {
	op := NewReceiveOperation(p)
	if !s.obj.Receive(s.ctl, op, s.timeout) {
		return 0, &StallError{Name: s.obj.Name(), Op: "read"}
	}
	return op.NumReceivedBytes(), nil
}

// Write sends the entirety of p, retrying partial sends, matching
// io.Writer's all-or-error contract.
func (s *CommunicationStream) Write(p []byte) (int, error) {
	if err := FullSend(s.obj, s.ctl, p, s.timeout); err != nil {
		return 0, err
	}
	return len(p), nil
}
