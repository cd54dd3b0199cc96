package task

// Waker wakes the task it was created from: firing it marks the task
// NOTIFIED and, unless the task is running or already notified, enqueues it
// through the task's scheduler. Wakers are safe to fire from any goroutine,
// including I/O driver callbacks.
//
// A Waker participates in the task's reference count. The instance passed to
// Future.Poll is borrowed: it owns no reference, and only Clone and WakeByRef
// may be called on it. A cloned Waker owns one reference, released by either
// Wake (fire and consume) or Drop.
type Waker struct {
	h *Header
}

// Clone returns a new Waker owning its own reference to the task.
func (w *Waker) Clone() *Waker {
	w.h.state.refIncr()
	return &Waker{h: w.h}
}

// Wake fires the waker and consumes it. Equivalent to WakeByRef followed by
// Drop. Must not be called on the borrowed waker passed to Poll.
func (w *Waker) Wake() {
	h := w.h
	h.wakeByRef()
	h.dropRef()
}

// WakeByRef fires the waker without consuming it. A wake that observes the
// task already complete is dropped silently.
func (w *Waker) WakeByRef() {
	w.h.wakeByRef()
}

// Drop releases the waker's reference without firing it. Must not be called
// on the borrowed waker passed to Poll.
func (w *Waker) Drop() {
	w.h.dropRef()
}
