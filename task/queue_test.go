package task

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestTask(t *testing.T) (*Task, *JoinHandle[int]) {
	t.Helper()
	return Joinable[int](&constFuture[int]{v: 1}, newFakeSched())
}

func TestQueue_FIFO(t *testing.T) {
	var q Queue

	t1, j1 := newTestTask(t)
	t2, j2 := newTestTask(t)
	t3, j3 := newTestTask(t)

	q.Push(t1)
	q.Push(t2)
	q.Push(t3)
	require.Equal(t, 3, q.Len())

	require.Same(t, t1.h, q.Pop().h)
	require.Same(t, t2.h, q.Pop().h)
	require.Same(t, t3.h, q.Pop().h)
	require.Nil(t, q.Pop())
	require.Equal(t, 0, q.Len())

	for _, tk := range []*Task{t1, t2, t3} {
		tk.Shutdown()
	}
	for _, jh := range []*JoinHandle[int]{j1, j2, j3} {
		jh.Drop()
	}
}

func TestQueue_Interleaved(t *testing.T) {
	var q Queue

	t1, j1 := newTestTask(t)
	t2, j2 := newTestTask(t)

	q.Push(t1)
	require.Same(t, t1.h, q.Pop().h)
	q.Push(t2)
	q.Push(t1)
	require.Same(t, t2.h, q.Pop().h)
	require.Same(t, t1.h, q.Pop().h)
	require.Nil(t, q.Pop())

	t1.Shutdown()
	t2.Shutdown()
	j1.Drop()
	j2.Drop()
}

func TestOwnedList_PushRemove(t *testing.T) {
	var l OwnedList

	t1, j1 := newTestTask(t)
	t2, j2 := newTestTask(t)
	t3, j3 := newTestTask(t)

	l.Push(t1.Clone())
	l.Push(t2.Clone())
	l.Push(t3.Clone())
	require.Equal(t, 3, l.Len())

	// Remove from the middle, then the same task again (no longer a member).
	removed := l.Remove(t2)
	require.NotNil(t, removed)
	require.Same(t, t2.h, removed.h)
	removed.Drop()
	require.Nil(t, l.Remove(t2))
	require.Equal(t, 2, l.Len())

	for _, tk := range l.Drain() {
		tk.Drop()
	}
	require.Equal(t, 0, l.Len())
	require.Nil(t, l.Remove(t1))

	for _, tk := range []*Task{t1, t2, t3} {
		tk.Shutdown()
	}
	for _, jh := range []*JoinHandle[int]{j1, j2, j3} {
		jh.Drop()
	}
}

func TestOwnedList_DrainOrder(t *testing.T) {
	var l OwnedList

	t1, j1 := newTestTask(t)
	t2, j2 := newTestTask(t)

	l.Push(t1.Clone())
	l.Push(t2.Clone())

	drained := l.Drain()
	require.Len(t, drained, 2)
	require.Same(t, t2.h, drained[0].h, "newest first")
	require.Same(t, t1.h, drained[1].h)

	for _, tk := range drained {
		tk.Drop()
	}
	t1.Shutdown()
	t2.Shutdown()
	j1.Drop()
	j2.Drop()
}
