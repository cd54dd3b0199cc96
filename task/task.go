package task

// Schedule is the capability a scheduler supplies to its tasks. The task
// never assumes the scheduler processes an enqueue synchronously, and never
// assumes which of Release or ReleaseLocal is used.
type Schedule interface {
	// Bind is called exactly once, from the goroutine performing the task's
	// first poll, before that poll returns. The scheduler records any
	// per-task bookkeeping (typically owned-list membership) here.
	Bind(t *Task)

	// Schedule enqueues the task for execution. It may be called from any
	// goroutine and takes ownership of the handle.
	Schedule(t *Task)

	// Release is called when the task is complete and the scheduler-owned
	// handle should be released. Any goroutine.
	Release(t *Task)

	// ReleaseLocal is Release invoked from the goroutine that last polled
	// the task, allowing a cheaper path. The t argument is borrowed.
	ReleaseLocal(t *Task)
}

// Task is an owned handle to a task cell, tracked by the cell's reference
// count. Handles are not duplicated implicitly; use Clone.
type Task struct {
	h *Header
}

// Joinable creates a task cell around fut, bound to scheduler s, and returns
// the scheduler-side handle together with the consumer-side join handle. The
// cell starts with two references, one per returned handle, and in the
// notified state so the caller can pass the task handle straight to
// s.Schedule.
func Joinable[T any](fut Future[T], s Schedule) (*Task, *JoinHandle[T]) {
	c := newCell(fut, s)
	return &Task{h: &c.header}, &JoinHandle[T]{c: c}
}

// Clone returns a new handle owning its own reference.
func (t *Task) Clone() *Task {
	t.h.state.refIncr()
	return &Task{h: t.h}
}

// Drop releases the handle's reference; the last reference runs the cell
// destructor.
func (t *Task) Drop() {
	t.h.dropRef()
}

// Run performs one poll of the task. It consumes the caller's reference in
// every case except one: when a wake raced with the poll and pollNext reports
// the caller can immediately poll again, Run hands the same handle back
// instead of going through the scheduler. pollNext may be nil.
//
// The caller must hold a reference obtained from the run queue; Run is never
// re-entered for the same task.
func (t *Task) Run(pollNext func() bool) *Task {
	h := t.h
	switch h.state.transitionToRunning() {
	case actionNone:
		h.dropRef()
		return nil

	case actionCancel:
		h.ops.dropFuture()
		h.ops.storeCancelled()
		h.completeTask()
		h.sched.ReleaseLocal(t)
		h.dropRef()
		return nil
	}

	if !h.bound {
		h.bound = true
		h.sched.Bind(t)
	}

	w := Waker{h: h}
	if h.ops.pollFuture(&w) {
		h.completeTask()
		h.sched.ReleaseLocal(t)
		h.dropRef()
		return nil
	}

	notified, cancelled := h.state.transitionToIdle()
	if cancelled {
		// Cancellation was requested during the poll; the shutdown side saw
		// RUNNING and deferred finalization to us.
		h.ops.dropFuture()
		h.ops.storeCancelled()
		h.completeTask()
		h.sched.ReleaseLocal(t)
		h.dropRef()
		return nil
	}

	if notified {
		// A wake arrived while RUNNING was held: re-schedule exactly once.
		if pollNext != nil && pollNext() {
			return t
		}
		h.sched.Schedule(t)
	} else {
		h.dropRef()
	}
	return nil
}

// Shutdown cancels the task as part of scheduler teardown. The caller must
// exclusively hold this handle (a drained run-queue or owned-list entry).
// When the task is idle it is finalized here: the future is dropped without
// being polled again and the join side observes a cancelled error. When a
// poll is in flight, that poll finalizes at its pending boundary. The handle
// is consumed either way.
func (t *Task) Shutdown() {
	h := t.h
	if h.state.transitionToCancelled() == cancelClaimed {
		h.ops.dropFuture()
		h.ops.storeCancelled()
		h.completeTask()
		h.sched.Release(t)
	}
	h.dropRef()
}
