package asyncerr

import "fmt"

// RemoteError reports that a remote peer answered with an application-level
// error (a RESP error reply, for instance) rather than that the transport
// itself misbehaved. It is deliberately not an *Error of kind Transport:
// callers that reconnect-and-retry on Transport failures must NOT do so
// here, since retrying a request the peer already understood and rejected
// would not change the outcome. Use errors.As to tell the two apart.
type RemoteError struct {
	Source  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: remote error: %s", e.Source, e.Message)
}

// NewRemoteError builds a RemoteError raised by source (a socket or client
// name) carrying the peer's message verbatim.
func NewRemoteError(source, message string) *RemoteError {
	return &RemoteError{Source: source, Message: message}
}
