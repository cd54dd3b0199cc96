package tokio

import "github.com/martell/tokio/task"

// Yield returns a future that reports pending exactly once, waking itself
// before it returns, and completes on its next poll. Awaiting it hands the
// worker back to the scheduler for one beat.
func Yield() task.Future[struct{}] {
	return &yieldFuture{}
}

type yieldFuture struct {
	polled bool
}

func (y *yieldFuture) Poll(w *task.Waker) (struct{}, bool) {
	if y.polled {
		return struct{}{}, true
	}
	y.polled = true
	// Waking while the poll is still running marks the task notified; the
	// poll's pending boundary re-schedules it exactly once.
	w.WakeByRef()
	return struct{}{}, false
}
