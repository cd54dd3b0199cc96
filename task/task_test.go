package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeSched is a single-queue Schedule implementation for driving tasks by
// hand in tests.
type fakeSched struct {
	mu        sync.Mutex
	queue     []*Task
	binds     int
	schedules int
	releases  int
}

func newFakeSched() *fakeSched { return &fakeSched{} }

func (f *fakeSched) Bind(*Task) {
	f.mu.Lock()
	f.binds++
	f.mu.Unlock()
}

func (f *fakeSched) Schedule(t *Task) {
	f.mu.Lock()
	f.schedules++
	f.queue = append(f.queue, t)
	f.mu.Unlock()
}

func (f *fakeSched) Release(*Task) {
	f.mu.Lock()
	f.releases++
	f.mu.Unlock()
}

func (f *fakeSched) ReleaseLocal(t *Task) { f.Release(t) }

func (f *fakeSched) pop() *Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil
	}
	t := f.queue[0]
	f.queue = f.queue[1:]
	return t
}

// runAll drives queued tasks until the queue drains.
func (f *fakeSched) runAll() {
	for t := f.pop(); t != nil; t = f.pop() {
		for t != nil {
			t = t.Run(nil)
		}
	}
}

func (f *fakeSched) scheduled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.schedules
}

// constFuture completes on first poll.
type constFuture[T any] struct {
	v T
}

func (c *constFuture[T]) Poll(*Waker) (T, bool) { return c.v, true }

// pendingFuture stays pending, cloning its waker on first poll and counting
// drops.
type pendingFuture struct {
	polls int32
	drops int32
	waker atomic.Pointer[Waker]
}

func (p *pendingFuture) Poll(w *Waker) (struct{}, bool) {
	if atomic.AddInt32(&p.polls, 1) == 1 {
		p.waker.Store(w.Clone())
	}
	return struct{}{}, false
}

func (p *pendingFuture) Drop() { atomic.AddInt32(&p.drops, 1) }

// wakeInPollFuture fires its own waker before returning pending, then
// completes on the second poll.
type wakeInPollFuture struct {
	polls int
}

func (y *wakeInPollFuture) Poll(w *Waker) (int, bool) {
	y.polls++
	if y.polls == 1 {
		w.WakeByRef()
		return 0, false
	}
	return y.polls, true
}

type panicFuture struct{}

func (panicFuture) Poll(*Waker) (int, bool) { panic("kaboom") }

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestJoinable_SpawnAndJoin(t *testing.T) {
	s := newFakeSched()
	tk, jh := Joinable[int](&constFuture[int]{v: 42}, s)

	s.Schedule(tk)
	s.runAll()

	got, err := jh.Wait(waitCtx(t))
	require.NoError(t, err)
	require.Equal(t, 42, got)
	require.Equal(t, 1, s.binds)
	require.Equal(t, 1, s.releases)

	jh.Drop()
}

func TestJoinable_PanicBecomesJoinError(t *testing.T) {
	s := newFakeSched()
	tk, jh := Joinable[int](panicFuture{}, s)

	s.Schedule(tk)
	s.runAll()

	_, err := jh.Wait(waitCtx(t))
	require.Error(t, err)
	require.ErrorIs(t, err, ErrPanicked)

	var jerr *JoinError
	require.True(t, errors.As(err, &jerr))
	payload, ok := jerr.Panicked()
	require.True(t, ok)
	require.Equal(t, "kaboom", payload)
	jh.Drop()
}

func TestShutdown_CancelInQueue(t *testing.T) {
	s := newFakeSched()
	fut := &pendingFuture{}
	tk, jh := Joinable[struct{}](fut, s)

	// Queued but never polled: shutdown finds it in the run queue.
	s.Schedule(tk)
	queued := s.pop()
	require.NotNil(t, queued)
	queued.Shutdown()

	_, err := jh.Wait(waitCtx(t))
	require.ErrorIs(t, err, ErrCancelled)
	require.EqualValues(t, 0, atomic.LoadInt32(&fut.polls), "future must not run after cancel")
	require.EqualValues(t, 1, atomic.LoadInt32(&fut.drops), "future dropped exactly once")
	require.Equal(t, 1, s.releases)
	jh.Drop()
}

func TestShutdown_AfterPendingPoll(t *testing.T) {
	s := newFakeSched()
	fut := &pendingFuture{}
	tk, jh := Joinable[struct{}](fut, s)

	s.Schedule(tk)
	s.runAll() // pending; waker retained by the future

	// The run queue is empty now; shutdown claims the idle task through a
	// fresh handle, the way an owned-list drain would.
	w := fut.waker.Load()
	require.NotNil(t, w)
	handle := &Task{h: w.h}
	handle.h.state.refIncr()
	handle.Shutdown()

	_, err := jh.Wait(waitCtx(t))
	require.ErrorIs(t, err, ErrCancelled)
	require.EqualValues(t, 1, atomic.LoadInt32(&fut.drops))

	w.Drop()
	jh.Drop()
}

func TestWakeDuringPoll_RescheduledOnce(t *testing.T) {
	s := newFakeSched()
	fut := &wakeInPollFuture{}
	tk, jh := Joinable[int](fut, s)

	s.Schedule(tk)
	s.runAll()

	got, err := jh.Wait(waitCtx(t))
	require.NoError(t, err)
	require.Equal(t, 2, got)
	// Initial enqueue plus exactly one re-schedule for the raced wake.
	require.Equal(t, 2, s.scheduled())
	jh.Drop()
}

func TestRun_ImmediateRerunHint(t *testing.T) {
	s := newFakeSched()
	fut := &wakeInPollFuture{}
	tk, jh := Joinable[int](fut, s)

	s.Schedule(tk)
	tk = s.pop()
	// The hint says the worker has nothing else to do: Run hands the same
	// handle back instead of going through the scheduler.
	again := tk.Run(func() bool { return true })
	require.NotNil(t, again)
	require.Nil(t, again.Run(func() bool { return true }))
	require.Equal(t, 1, s.scheduled(), "no second trip through the scheduler")

	got, err := jh.Wait(waitCtx(t))
	require.NoError(t, err)
	require.Equal(t, 2, got)
	jh.Drop()
}

func TestWakeAfterComplete_IsNoop(t *testing.T) {
	s := newFakeSched()
	fut := &pendingFuture{}
	tk, jh := Joinable[struct{}](fut, s)

	s.Schedule(tk)
	s.runAll()

	w := fut.waker.Load()
	require.NotNil(t, w)

	// Complete via abort, then fire stale wakes.
	jh.Abort()
	s.runAll()
	before := s.scheduled()
	w.WakeByRef()
	w.WakeByRef()
	require.Equal(t, before, s.scheduled(), "wakes after COMPLETE must not enqueue")

	_, err := jh.Wait(waitCtx(t))
	require.ErrorIs(t, err, ErrCancelled)

	w.Drop()
	jh.Drop()
}

func TestConcurrentWakes_ScheduleOnce(t *testing.T) {
	s := newFakeSched()
	fut := &pendingFuture{}
	tk, jh := Joinable[struct{}](fut, s)

	s.Schedule(tk)
	s.runAll()

	w := fut.waker.Load()
	require.NotNil(t, w)

	before := s.scheduled()
	const wakers = 16
	var wg sync.WaitGroup
	wg.Add(wakers)
	for i := 0; i < wakers; i++ {
		go func() {
			defer wg.Done()
			w.WakeByRef()
		}()
	}
	wg.Wait()
	require.Equal(t, before+1, s.scheduled(), "concurrent wakes coalesce into one enqueue")

	// Cleanup: cancel the still-pending task and drop every handle.
	if q := s.pop(); q != nil {
		q.Shutdown()
	}
	w.Drop()
	jh.Drop()
}

func TestAbort_PendingTask(t *testing.T) {
	s := newFakeSched()
	fut := &pendingFuture{}
	tk, jh := Joinable[struct{}](fut, s)

	s.Schedule(tk)
	s.runAll()

	jh.Abort()
	require.Equal(t, 2, s.scheduled(), "abort enqueues the idle task for finalization")
	s.runAll()

	_, err := jh.Wait(waitCtx(t))
	require.ErrorIs(t, err, ErrCancelled)
	require.EqualValues(t, 1, atomic.LoadInt32(&fut.drops))
	require.EqualValues(t, 1, atomic.LoadInt32(&fut.polls), "no poll after cancellation")

	if w := fut.waker.Load(); w != nil {
		w.Drop()
	}
	jh.Drop()
}

func TestRefcount_DestroyedExactlyOnce(t *testing.T) {
	s := newFakeSched()
	fut := &pendingFuture{}
	tk, jh := Joinable[struct{}](fut, s)
	h := tk.h

	s.Schedule(tk)
	s.runAll()

	base := fut.waker.Load()
	require.NotNil(t, base)

	// Several extra handles, dropped from concurrent goroutines alongside
	// the join handle; destruction must happen exactly once, at the end.
	const clones = 8
	ws := make([]*Waker, clones)
	for i := range ws {
		ws[i] = base.Clone()
	}
	require.False(t, h.destroyed.Load())

	var wg sync.WaitGroup
	wg.Add(clones + 2)
	for _, w := range ws {
		go func(w *Waker) {
			defer wg.Done()
			w.Drop()
		}(w)
	}
	go func() {
		defer wg.Done()
		base.Drop()
	}()
	go func() {
		defer wg.Done()
		jh.Drop()
	}()
	wg.Wait()

	require.True(t, h.destroyed.Load(), "all handles gone: cell destroyed")
	require.EqualValues(t, 1, atomic.LoadInt32(&fut.drops), "live future dropped by the destructor, once")
}

func TestJoinDrop_DiscardsOutput(t *testing.T) {
	s := newFakeSched()
	tk, jh := Joinable[int](&constFuture[int]{v: 7}, s)

	s.Schedule(tk)
	s.runAll()

	c := jh.c
	jh.Drop() // never waited: the uncollected output is discarded
	require.Zero(t, c.output)
	require.True(t, c.header.destroyed.Load())
}

func TestJoin_WaitTwice(t *testing.T) {
	s := newFakeSched()
	tk, jh := Joinable[int](&constFuture[int]{v: 9}, s)
	s.Schedule(tk)
	s.runAll()

	got, err := jh.Wait(waitCtx(t))
	require.NoError(t, err)
	require.Equal(t, 9, got)

	_, err = jh.Wait(waitCtx(t))
	require.ErrorIs(t, err, ErrAlreadyJoined)
	jh.Drop()
}

func TestJoin_WaitCtxExpiresThenSucceeds(t *testing.T) {
	s := newFakeSched()
	fut := &pendingFuture{}
	tk, jh := Joinable[struct{}](fut, s)
	s.Schedule(tk)
	s.runAll()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	_, err := jh.Wait(ctx)
	cancel()
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Complete the task; a later Wait re-registers and succeeds.
	w := fut.waker.Load()
	require.NotNil(t, w)
	jh.Abort()
	s.runAll()

	_, err = jh.Wait(waitCtx(t))
	require.ErrorIs(t, err, ErrCancelled)

	w.Drop()
	jh.Drop()
}

func TestJoin_PollWaiter(t *testing.T) {
	s := newFakeSched()
	fut := &pendingFuture{}
	tk, jh := Joinable[struct{}](fut, s)
	s.Schedule(tk)
	s.runAll()

	ch := make(chanWaiter, 1)
	_, _, ready := jh.Poll(ch)
	require.False(t, ready)

	jh.Abort()
	s.runAll()

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("completion did not fire the registered waiter")
	}
	_, jerr, ready := jh.Poll(ch)
	require.True(t, ready)
	require.NotNil(t, jerr)
	require.True(t, jerr.Cancelled())

	if w := fut.waker.Load(); w != nil {
		w.Drop()
	}
	jh.Drop()
}
