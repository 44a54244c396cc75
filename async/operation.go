// Package async implements the cooperative scheduling core shared by every
// asynchronous object in this module: Operation descriptors flow from a
// caller, through the async object that will complete them, into a
// Controller's ready-queue, and back out to the thread that owns that
// Controller.
package async

// Operation identifies a single pending asynchronous request. Callers embed
// it (directly or via SendOperation/ReceiveOperation/AcceptOperation) and
// pass a pointer into the async object that will complete it. An Operation
// must not be copied once it has been handed to an async object; ownership
// moves from the submitter, to the object's waiter list, to the owning
// Controller's ready-queue, and back to the submitter.
type Operation struct {
	controller *Controller
	notifier   Notifier
}

// NewOperation returns an idle Operation with the default notifier.
func NewOperation() *Operation {
	return &Operation{notifier: DefaultNotifier()}
}

// SetController records the Controller an async object enqueued this
// operation on. Called by async object implementations, not user code.
func (op *Operation) SetController(ctl *Controller) {
	op.controller = ctl
}

// Controller returns the Controller this operation is currently posted
// against, or nil if it was never submitted.
func (op *Operation) Controller() *Controller {
	return op.controller
}

// SetNotifier overrides the strategy used to deliver this operation's
// completion. Most callers never need this; it exists for internal state
// machines (e.g. the SOCKS4 BIND handshake) that want to intercept
// intermediate completions before the user-visible operation finishes.
func (op *Operation) SetNotifier(n Notifier) {
	op.notifier = n
}

// Notifier returns the strategy that will deliver this operation's
// completion; defaults to DefaultNotifier.
func (op *Operation) Notifier() Notifier {
	if op.notifier == nil {
		return DefaultNotifier()
	}
	return op.notifier
}
