package task

import "sync/atomic"

// Future is the advance-once operation a task drives. Poll either returns
// (value, true) when the computation finished, or (zero, false) after
// arranging for w to be fired once progress becomes possible again.
//
// The waker passed to Poll is borrowed for the duration of the call: a future
// that needs to fire it later must Clone it first. Poll is never invoked
// concurrently for the same task, and never again after it returned ready or
// after the task was cancelled.
type Future[T any] interface {
	Poll(w *Waker) (T, bool)
}

// Dropper is optionally implemented by futures that want to observe being
// discarded without completing (cancellation, shutdown, or a panic during
// poll). Drop is invoked exactly once.
type Dropper interface {
	Drop()
}

// Waiter is the consumer-side waker a join handle registers: it is fired once
// when the task completes. Implementations must be safe to call from any
// thread and must tolerate spurious calls.
type Waiter interface {
	Wake()
}

// Header is the non-generic head of a task cell. A *Header is what wakers,
// queues and owned lists point at; the generic remainder of the cell is
// reached through the ops vtable.
type Header struct {
	state state

	// sched is the scheduler back-pointer slot. It is written once during
	// construction and read by wakers under the NOTIFIED protocol.
	sched Schedule

	// Intrusive link slots. queueNext belongs to the run queue holding this
	// task; ownedNext/ownedPrev and ownedMember belong to the owned list.
	queueNext   *Header
	ownedNext   *Header
	ownedPrev   *Header
	ownedMember bool

	// waiter is the join waker slot, guarded by the JOIN_WAKER bit: the join
	// handle writes it only while the bit is unset, the completing poll reads
	// it only when the completion snapshot carries the bit.
	waiter Waiter

	// bound records that Schedule.Bind ran; touched only under RUNNING.
	bound bool

	// destroyed guards the destructor; running it twice is an invariant
	// violation.
	destroyed atomic.Bool

	ops cellOps
}

// cellOps dispatches from the non-generic header back into the generic cell.
// Every method is called with the poll mutual exclusion already established
// (RUNNING held, or the last reference, or join-side exclusivity).
type cellOps interface {
	// pollFuture advances the future once. A panic inside the future is
	// recovered, stored as the output, and reported as ready.
	pollFuture(w *Waker) (ready bool)
	// dropFuture discards the live future, invoking its Drop hook if any.
	dropFuture()
	// storeCancelled records the cancelled error in the output slot.
	storeCancelled()
	// dropOutput discards an uncollected output in place.
	dropOutput()
}

// cell is a task allocation: header first, then the future/output pair. The
// future slot is valid while COMPLETE is unset; the output slot afterwards.
// Never both.
type cell[T any] struct {
	header Header

	fut       Future[T]
	output    T
	outputErr *JoinError
}

func newCell[T any](fut Future[T], s Schedule) *cell[T] {
	if fut == nil {
		panic(Namespace + ": nil future")
	}
	if s == nil {
		panic(Namespace + ": nil scheduler")
	}
	c := &cell[T]{fut: fut}
	c.header.state = newState()
	c.header.sched = s
	c.header.ops = c
	return c
}

func (c *cell[T]) pollFuture(w *Waker) (ready bool) {
	defer func() {
		if r := recover(); r != nil {
			c.dropFuture()
			c.outputErr = newPanicked(r)
			ready = true
		}
	}()
	v, ok := c.fut.Poll(w)
	if !ok {
		return false
	}
	c.output = v
	c.fut = nil
	return true
}

func (c *cell[T]) dropFuture() {
	fut := c.fut
	if fut == nil {
		return
	}
	c.fut = nil
	if d, ok := fut.(Dropper); ok {
		d.Drop()
	}
}

func (c *cell[T]) storeCancelled() {
	c.outputErr = newCancelled()
}

func (c *cell[T]) dropOutput() {
	var zero T
	c.output = zero
	c.outputErr = nil
}

// takeOutput hands the stored result to the join side. Valid only after the
// caller observed COMPLETE.
func (c *cell[T]) takeOutput() (T, *JoinError) {
	return c.output, c.outputErr
}

// completeTask publishes the already-stored output, then settles the join
// side: fire the registered waiter, or discard the output if the join handle
// is already gone. Runs with RUNNING held.
func (h *Header) completeTask() {
	snap := h.state.transitionToComplete()
	if !snap.joinInterest() {
		h.ops.dropOutput()
	}
	if snap.joinWaker() {
		h.waiter.Wake()
	}
}

// dropRef releases one reference; the last one runs the destructor.
func (h *Header) dropRef() {
	if h.state.refDecr() {
		h.destroy()
	}
}

func (h *Header) destroy() {
	if !h.destroyed.CompareAndSwap(false, true) {
		panic("task: state invariant violated: task destroyed twice")
	}
	snap := h.state.load()
	if snap.running() {
		panic("task: state invariant violated: task destroyed while running")
	}
	if !snap.complete() {
		// Never completed: the future is still live and must be discarded.
		h.ops.dropFuture()
		return
	}
	// Completed: any uncollected output was already discarded by the
	// completing poll or by the join handle's drop.
}

// wakeByRef marks the task NOTIFIED and, when the prior state was idle and
// unnotified, enqueues it via the scheduler back-pointer. The queue entry
// carries its own reference.
func (h *Header) wakeByRef() {
	if h.state.transitionToNotified() {
		h.state.refIncr()
		h.sched.Schedule(&Task{h: h})
	}
}
