package async

// Cancelable is implemented by anything that can abort a previously
// submitted asynchronous operation before it completes. Mutex, Semaphore,
// Timer, MessageExchange and every net.Socket/Listener implement it.
type Cancelable interface {
	// Cancel aborts op, which must have been submitted against ctl via
	// this same object's *Async method. After Cancel returns, op will
	// not be delivered through ctl unless it was already in the
	// ready-queue, in which case RevertPost has already removed it.
	Cancel(ctl *Controller, op *Operation)
}
