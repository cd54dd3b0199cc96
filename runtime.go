package tokio

import (
	"sync"

	"go.uber.org/zap"

	"github.com/martell/tokio/driver"
	"github.com/martell/tokio/park"
	"github.com/martell/tokio/task"
)

// Runtime is a multi-threaded cooperative scheduler for futures. Tasks
// advance only inside polls; polls of one task never run concurrently, while
// different tasks advance on different workers and may migrate between them
// across polls.
type Runtime struct {
	sched *scheduler

	// drv is the default driver when none was supplied; the runtime owns it
	// and closes it on Shutdown.
	drv *driver.Driver

	once sync.Once
}

// New constructs and starts a Runtime.
func New(opts ...Option) (*Runtime, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{}
	d := cfg.Driver
	if d == nil {
		dd, err := driver.New()
		if err != nil {
			return nil, err
		}
		rt.drv = dd
		d = dd
	}

	rt.sched = newScheduler(cfg, park.NewShared(d))
	rt.sched.start()
	cfg.Logger.Info("runtime started", zap.Int("workers", len(rt.sched.workers)))
	return rt, nil
}

// Spawn submits fut to the runtime and returns the handle its output is
// collected through. Spawning on a runtime that is shutting down yields a
// handle that reports a cancelled error.
func Spawn[T any](rt *Runtime, fut task.Future[T]) *task.JoinHandle[T] {
	t, jh := task.Joinable(fut, rt.sched)
	rt.sched.cSpawned.Add(1)
	rt.sched.Schedule(t)
	return jh
}

// Shutdown stops the runtime: queued and live tasks are cancelled (their
// join sides observe cancelled errors), workers are unparked and joined, and
// the runtime-owned driver is closed. Shutdown blocks until teardown
// finishes and is safe to call more than once.
//
// The sequence is deliberate: mark shut down and drain the queue first so
// workers stop picking up work, cancel what was queued, join the workers,
// and only then cancel the owned stragglers — no poll can be in flight by
// that point, so every cancellation finalizes immediately.
func (r *Runtime) Shutdown() {
	r.once.Do(r.shutdown)
}

func (r *Runtime) shutdown() {
	s := r.sched

	s.mu.Lock()
	s.shutdown = true
	var queued []*task.Task
	for t := s.queue.Pop(); t != nil; t = s.queue.Pop() {
		queued = append(queued, t)
	}
	s.idle = nil
	s.mu.Unlock()

	for _, w := range s.workers {
		w.unparker.Unpark()
	}
	for _, t := range queued {
		t.Shutdown()
	}
	s.wg.Wait()

	s.mu.Lock()
	owned := s.owned.Drain()
	s.mu.Unlock()
	for _, t := range owned {
		t.Shutdown()
	}
	s.gLive.Add(-int64(len(owned)))

	if r.drv != nil {
		_ = r.drv.Close()
	}
	s.log.Info("runtime shut down",
		zap.Int("cancelled_queued", len(queued)),
		zap.Int("cancelled_owned", len(owned)))
}
