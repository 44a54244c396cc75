package async

import "time"

// CommunicationSink adapts a CommunicationObject to a push-style data
// sink: repeated HandleData calls each send their whole buffer (retrying
// partial sends) before returning, mirroring
// afl::async::CommunicationSink::handleData.
type CommunicationSink struct {
	ctl     *Controller
	obj     CommunicationObject
	timeout time.Duration
}

// NewCommunicationSink wraps obj for push-style sends on ctl, each bounded
// by timeout.
func NewCommunicationSink(ctl *Controller, obj CommunicationObject, timeout time.Duration) *CommunicationSink {
	return &CommunicationSink{ctl: ctl, obj: obj, timeout: timeout}
}

// HandleData sends the entirety of data, retrying partial sends, and
// returns a *StallError if an attempt transfers zero bytes or times out.
func (s *CommunicationSink) HandleData(data []byte) error {
	op := NewSendOperation(data)
	for !op.IsCompleted() {
		before := op.NumSentBytes()
		if !s.obj.Send(s.ctl, op, s.timeout) {
			return &StallError{Name: s.obj.Name(), Op: "write"}
		}
		if op.NumSentBytes() == before {
			return &StallError{Name: s.obj.Name(), Op: "write"}
		}
	}
	return nil
}
