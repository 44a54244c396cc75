package async

// ReceiveOperation carries an inbound byte buffer through an async
// receive. Embedding Operation lets it flow through any
// OperationList[*ReceiveOperation] and through Controller.Wait via its own
// Operation field.
type ReceiveOperation struct {
	Operation
	data            []byte
	numReceivedByte int
}

// NewReceiveOperation returns a ReceiveOperation that will fill buf.
func NewReceiveOperation(buf []byte) *ReceiveOperation {
	op := &ReceiveOperation{data: buf}
	op.Operation = *NewOperation()
	return op
}

// SetData replaces the buffer to fill and resets the received-byte count.
func (op *ReceiveOperation) SetData(buf []byte) {
	op.data = buf
	op.numReceivedByte = 0
}

// Data returns the full current buffer: the one passed to
// NewReceiveOperation, or to the most recent SetData.
func (op *ReceiveOperation) Data() []byte {
	return op.data
}

// NumReceivedBytes returns how many bytes have been filled so far.
func (op *ReceiveOperation) NumReceivedBytes() int {
	return op.numReceivedByte
}

// UnreceivedBytes returns the portion of Data not yet filled.
func (op *ReceiveOperation) UnreceivedBytes() []byte {
	return op.data[op.numReceivedByte:]
}

// AddReceivedBytes advances the received-byte count by n.
func (op *ReceiveOperation) AddReceivedBytes(n int) {
	op.numReceivedByte += n
}

// IsCompleted reports whether the entire buffer has been filled.
func (op *ReceiveOperation) IsCompleted() bool {
	return op.numReceivedByte >= len(op.data)
}

// CopyFrom transfers bytes directly from send into this operation's
// remaining buffer, as MessageExchange does to preserve message
// boundaries: at most min(len(send.UnsentBytes()), len(op.UnreceivedBytes()))
// bytes move, and both operations' counters advance by that amount. It
// returns the number of bytes moved.
func (op *ReceiveOperation) CopyFrom(send *SendOperation) int {
	n := copy(op.UnreceivedBytes(), send.UnsentBytes())
	op.AddReceivedBytes(n)
	send.AddSentBytes(n)
	return n
}
