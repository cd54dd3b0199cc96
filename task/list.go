package task

// OwnedList tracks every task bound to a scheduler, linked through the
// header's owned-list slots, so the scheduler can cancel stragglers at
// teardown. Each entry owns one reference.
//
// OwnedList performs no locking; the scheduler that owns it serializes
// access.
type OwnedList struct {
	head *Header
	n    int
}

// Push inserts t at the front, taking ownership of the handle.
func (l *OwnedList) Push(t *Task) {
	h := t.h
	if h.ownedMember {
		panic("task: state invariant violated: task already in an owned list")
	}
	h.ownedMember = true
	h.ownedNext = l.head
	h.ownedPrev = nil
	if l.head != nil {
		l.head.ownedPrev = h
	}
	l.head = h
	l.n++
}

// Remove unlinks the entry for t and returns the handle it held, or nil when
// t is not a member (already drained, or never bound).
func (l *OwnedList) Remove(t *Task) *Task {
	h := t.h
	if !h.ownedMember {
		return nil
	}
	l.unlink(h)
	return &Task{h: h}
}

// Drain unlinks every entry and returns the handles, newest first. Used at
// scheduler teardown to shut down all live tasks.
func (l *OwnedList) Drain() []*Task {
	out := make([]*Task, 0, l.n)
	for l.head != nil {
		h := l.head
		l.unlink(h)
		out = append(out, &Task{h: h})
	}
	return out
}

// Len returns the number of owned tasks.
func (l *OwnedList) Len() int { return l.n }

func (l *OwnedList) unlink(h *Header) {
	if h.ownedPrev != nil {
		h.ownedPrev.ownedNext = h.ownedNext
	} else {
		l.head = h.ownedNext
	}
	if h.ownedNext != nil {
		h.ownedNext.ownedPrev = h.ownedPrev
	}
	h.ownedNext = nil
	h.ownedPrev = nil
	h.ownedMember = false
	l.n--
}
