package task

import (
	"fmt"
	"sync/atomic"
)

// snapshot is a point-in-time copy of a task's state word. The low bits are
// independent flags; the remaining bits hold the reference count.
type snapshot uint64

const (
	// flagRunning means a worker is currently inside a poll of this task.
	flagRunning snapshot = 1 << iota
	// flagComplete means the future has resolved (or the task was cancelled)
	// and the output slot is valid. The future slot is no longer valid.
	flagComplete
	// flagNotified means a wake has arrived and the task is, or is about to
	// be, on a run queue.
	flagNotified
	// flagCancelled means cancellation has been requested.
	flagCancelled
	// flagJoinWaker means the join waker slot holds a registered waiter.
	flagJoinWaker
	// flagJoinInterest means a join handle still exists, so the output must
	// be kept once the task completes.
	flagJoinInterest
)

const (
	refShift = 8
	refOne   = snapshot(1) << refShift
	flagMask = refOne - 1
)

// initialState describes a freshly created joinable task: two references
// (the task handle and the join handle), not running, pre-notified because
// the caller's first schedule enqueues it (so a wake arriving before the
// first poll coalesces instead of enqueuing it again), and with join interest
// set.
const initialState = 2*refOne | flagNotified | flagJoinInterest

func (s snapshot) running() bool      { return s&flagRunning != 0 }
func (s snapshot) complete() bool     { return s&flagComplete != 0 }
func (s snapshot) notified() bool     { return s&flagNotified != 0 }
func (s snapshot) cancelled() bool    { return s&flagCancelled != 0 }
func (s snapshot) joinWaker() bool    { return s&flagJoinWaker != 0 }
func (s snapshot) joinInterest() bool { return s&flagJoinInterest != 0 }
func (s snapshot) refs() int          { return int(s >> refShift) }

func (s snapshot) String() string {
	return fmt.Sprintf(
		"snapshot(refs=%d running=%t complete=%t notified=%t cancelled=%t joinWaker=%t joinInterest=%t)",
		s.refs(), s.running(), s.complete(), s.notified(), s.cancelled(), s.joinWaker(), s.joinInterest(),
	)
}

// state is the task's atomic state word. All transitions are single-word
// compare-exchanges; Go atomics give the sequentially consistent ordering the
// transitions rely on.
type state struct {
	v atomic.Uint64
}

func newState() state {
	var s state
	s.v.Store(uint64(initialState))
	return s
}

func (s *state) load() snapshot { return snapshot(s.v.Load()) }

func (s *state) cas(old, new snapshot) bool {
	return s.v.CompareAndSwap(uint64(old), uint64(new))
}

// runAction tells Run what claiming the state word entitles it to do.
type runAction int

const (
	// actionNone: the task is already complete, or another thread holds the
	// cancellation claim. Nothing to do beyond dropping the handle.
	actionNone runAction = iota
	// actionPoll: the RUNNING bit was acquired and the future may be polled.
	actionPoll
	// actionCancel: the RUNNING bit was acquired but cancellation was
	// requested; the future must be dropped without polling.
	actionCancel
)

// transitionToRunning attempts IDLE|NOTIFIED -> RUNNING, clearing NOTIFIED.
// The caller must hold a queue reference; polls on the same task are never
// concurrent, so observing RUNNING without CANCELLED is an invariant
// violation.
func (s *state) transitionToRunning() runAction {
	for {
		curr := s.load()
		switch {
		case curr.complete():
			return actionNone
		case curr.running():
			if curr.cancelled() {
				// A shutdown claim is finalizing the task elsewhere.
				return actionNone
			}
			panic("task: state invariant violated: concurrent poll of the same task")
		case curr.cancelled():
			if s.cas(curr, (curr|flagRunning)&^flagNotified) {
				return actionCancel
			}
		default:
			if s.cas(curr, (curr|flagRunning)&^flagNotified) {
				return actionPoll
			}
		}
	}
}

// transitionToIdle clears RUNNING after a pending poll. It reports whether a
// wake raced with the poll (NOTIFIED set while RUNNING); the caller must
// re-schedule exactly once in that case. NOTIFIED is left set so the next
// transitionToRunning consumes it.
//
// When cancellation was requested during the poll, RUNNING is left in place
// (the caller keeps the claim) and cancelled is reported instead: the caller
// must finalize the cancellation.
func (s *state) transitionToIdle() (notified, cancelled bool) {
	for {
		curr := s.load()
		if !curr.running() {
			panic("task: state invariant violated: idle transition without RUNNING")
		}
		if curr.cancelled() {
			return false, true
		}
		if s.cas(curr, curr&^flagRunning) {
			return curr.notified(), false
		}
	}
}

// transitionToComplete sets COMPLETE and clears RUNNING. The output slot must
// already be populated; the CAS publishes it. Returns the resulting snapshot
// so the caller can consult JOIN_WAKER and JOIN_INTEREST.
func (s *state) transitionToComplete() snapshot {
	for {
		curr := s.load()
		if curr.complete() {
			panic("task: state invariant violated: task completed twice")
		}
		next := (curr | flagComplete) &^ flagRunning
		if s.cas(curr, next) {
			return next
		}
	}
}

// transitionToNotified sets NOTIFIED on behalf of a wake. It reports whether
// the waker must schedule the task: only when the prior state was idle,
// unnotified, and incomplete. Wakes observed after COMPLETE are dropped.
func (s *state) transitionToNotified() (schedule bool) {
	for {
		curr := s.load()
		if curr.complete() || curr.notified() {
			return false
		}
		if s.cas(curr, curr|flagNotified) {
			return !curr.running()
		}
	}
}

// cancelResult describes the outcome of a cancellation claim.
type cancelResult int

const (
	// cancelNoop: the task is already complete; nothing to cancel.
	cancelNoop cancelResult = iota
	// cancelClaimed: the caller acquired RUNNING alongside CANCELLED and must
	// finalize (drop the future, store the cancelled error, complete).
	cancelClaimed
	// cancelPending: a poll is in flight; it observes CANCELLED at its
	// pending boundary and finalizes there.
	cancelPending
)

// transitionToCancelled is the claim used by Shutdown on a task the caller
// exclusively holds (a run-queue or owned-list entry). A task that is idle
// and merely marked CANCELLED (a join-side abort awaiting a worker) is still
// claimable: someone must finalize it.
func (s *state) transitionToCancelled() cancelResult {
	for {
		curr := s.load()
		switch {
		case curr.complete():
			return cancelNoop
		case curr.running():
			if curr.cancelled() {
				// The running claim holder finalizes.
				return cancelPending
			}
			if s.cas(curr, curr|flagCancelled) {
				return cancelPending
			}
		default:
			if s.cas(curr, curr|flagCancelled|flagRunning) {
				return cancelClaimed
			}
		}
	}
}

// transitionToCancelledFromJoin requests cancellation from a join handle,
// which owns no queue entry and therefore may not finalize itself. It marks
// the task CANCELLED and NOTIFIED; when it reports schedule, the caller must
// enqueue the task so a worker performs the finalization.
func (s *state) transitionToCancelledFromJoin() (schedule bool) {
	for {
		curr := s.load()
		if curr.complete() || curr.cancelled() {
			return false
		}
		if s.cas(curr, curr|flagCancelled|flagNotified) {
			return !curr.running() && !curr.notified()
		}
	}
}

// unsetJoinInterest clears JOIN_INTEREST and returns the prior snapshot. When
// the prior snapshot is already COMPLETE the caller owns disposal of any
// uncollected output; otherwise the completing poll disposes of it.
func (s *state) unsetJoinInterest() snapshot {
	for {
		curr := s.load()
		if s.cas(curr, curr&^flagJoinInterest) {
			return curr
		}
	}
}

// setJoinWaker publishes the join waker slot. It fails when the task is
// already complete, in which case the consumer reads the output directly.
func (s *state) setJoinWaker() bool {
	for {
		curr := s.load()
		if curr.complete() {
			return false
		}
		if s.cas(curr, curr|flagJoinWaker) {
			return true
		}
	}
}

// unsetJoinWaker revokes the join waker slot so it can be rewritten. It fails
// when the task completed in the meantime (the slot may have been consumed).
func (s *state) unsetJoinWaker() bool {
	for {
		curr := s.load()
		if curr.complete() {
			return false
		}
		if s.cas(curr, curr&^flagJoinWaker) {
			return true
		}
	}
}

// refIncr adds one reference.
func (s *state) refIncr() {
	s.v.Add(uint64(refOne))
}

// maxRefs bounds the plausible reference count; a value past it means the
// unsigned count wrapped around, i.e. a drop without a matching reference.
const maxRefs = 1 << 32

// refDecr drops one reference and reports whether it was the last one, in
// which case the caller runs the destructor.
func (s *state) refDecr() (last bool) {
	next := snapshot(s.v.Add(^uint64(refOne) + 1))
	if next.refs() > maxRefs {
		panic("task: state invariant violated: reference count underflow")
	}
	return next.refs() == 0
}
