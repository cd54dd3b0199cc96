package task

import (
	"context"
	"errors"
)

// ErrAlreadyJoined is returned by Wait when the handle's output was already
// collected by an earlier Wait or Poll.
var ErrAlreadyJoined = errors.New(Namespace + ": join handle already consumed")

// JoinHandle is the consumer side of a task: it observes the task's output
// (or its JoinError) and can request cancellation. A JoinHandle is owned by a
// single consumer goroutine; its methods are not safe for concurrent use with
// each other, though they may freely race with the task's execution.
type JoinHandle[T any] struct {
	c        *cell[T]
	consumed bool
	dropped  bool
}

// Wait blocks until the task completes and returns its output. A cancelled
// task yields a *JoinError matching ErrCancelled; a panicked task one
// matching ErrPanicked. When ctx expires first, ctx.Err() is returned and the
// handle remains usable.
func (jh *JoinHandle[T]) Wait(ctx context.Context) (T, error) {
	var zero T
	if jh.dropped {
		panic(Namespace + ": join handle used after Drop")
	}
	if jh.consumed {
		return zero, ErrAlreadyJoined
	}

	h := &jh.c.header
	if h.state.load().complete() {
		return jh.consume()
	}

	ch := make(chanWaiter, 1)
	if h.registerWaiter(ch) {
		return jh.consume()
	}
	select {
	case <-ch:
		return jh.consume()
	case <-ctx.Done():
		// The registered waiter stays armed; a later Wait re-registers.
		return zero, ctx.Err()
	}
}

// Poll is the composable form of Wait: when the task is complete it returns
// (output, joinErr, true); otherwise it arranges for w to be fired on
// completion and returns not ready. Spurious fires of w are possible; the
// caller must re-check through Poll.
func (jh *JoinHandle[T]) Poll(w Waiter) (T, *JoinError, bool) {
	var zero T
	if jh.dropped || jh.consumed {
		panic(Namespace + ": join handle polled after consume or Drop")
	}
	if jh.c.header.registerWaiter(w) {
		v, jerr := jh.consumeRaw()
		return v, jerr, true
	}
	return zero, nil, false
}

// Abort requests cancellation. The future will not be polled again after the
// in-flight poll (if any) reaches its pending boundary; the join side then
// observes a cancelled error. Abort on a completed task is a no-op.
func (jh *JoinHandle[T]) Abort() {
	h := &jh.c.header
	if h.state.transitionToCancelledFromJoin() {
		// The task was idle and unqueued; enqueue it so a worker finalizes
		// the cancellation. The queue entry carries its own reference.
		h.state.refIncr()
		h.sched.Schedule(&Task{h: h})
	}
}

// Drop relinquishes join interest and the handle's reference. An uncollected
// output is discarded; the task itself keeps running. Drop is idempotent.
func (jh *JoinHandle[T]) Drop() {
	if jh.dropped {
		return
	}
	jh.dropped = true
	h := &jh.c.header
	prior := h.state.unsetJoinInterest()
	if prior.complete() && !jh.consumed {
		// The completing poll saw join interest and preserved the output;
		// disposal is on us.
		jh.c.dropOutput()
	}
	h.dropRef()
}

func (jh *JoinHandle[T]) consume() (T, error) {
	v, jerr := jh.consumeRaw()
	if jerr != nil {
		return v, jerr
	}
	return v, nil
}

func (jh *JoinHandle[T]) consumeRaw() (T, *JoinError) {
	jh.consumed = true
	return jh.c.takeOutput()
}

// registerWaiter publishes wt in the join waker slot. It reports true when
// the task is already complete, in which case wt may never be fired and the
// caller must read the output directly.
//
// Slot discipline: the join side writes the slot only while JOIN_WAKER is
// unset; the completing poll reads it only when its completion snapshot
// carries the bit. Re-registration first revokes the bit.
func (h *Header) registerWaiter(wt Waiter) (complete bool) {
	snap := h.state.load()
	if snap.complete() {
		return true
	}
	if snap.joinWaker() {
		if !h.state.unsetJoinWaker() {
			return true
		}
	}
	h.waiter = wt
	if !h.state.setJoinWaker() {
		return true
	}
	// The completion transition may have claimed the word between our load
	// and the bit set; re-check so a completed task is never waited on.
	return h.state.load().complete()
}

// chanWaiter adapts a one-slot channel to the Waiter interface. Extra fires
// beyond the buffered one are dropped, which is fine: receivers re-check.
type chanWaiter chan struct{}

func (c chanWaiter) Wake() {
	select {
	case c <- struct{}{}:
	default:
	}
}
