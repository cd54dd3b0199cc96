package tokio

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/martell/tokio/metrics"
	"github.com/martell/tokio/park"
	"github.com/martell/tokio/task"
)

// scheduler implements task.Schedule over a single mutex-guarded run queue
// and a fixed set of workers. Each worker owns a parker; all parkers share
// the runtime's driver, so exactly one idle worker at a time sleeps inside
// the driver poll and the rest sleep on their parker signal.
type scheduler struct {
	mu       sync.Mutex
	queue    task.Queue
	owned    task.OwnedList
	idle     []*worker
	shutdown bool

	workers []*worker
	wg      sync.WaitGroup

	shared      *park.Shared
	parkTimeout time.Duration
	log         *zap.Logger

	cSpawned   metrics.Counter
	cSchedules metrics.Counter
	cPolls     metrics.Counter
	cParks     metrics.Counter
	gLive      metrics.UpDownCounter
	hPoll      metrics.Histogram
}

// worker is one polling goroutine. The idle flag is guarded by scheduler.mu
// and mirrors membership in the scheduler's idle stack.
type worker struct {
	id       int
	parker   *park.Parker
	unparker *park.Unparker
	idle     bool
}

func newScheduler(cfg config, shared *park.Shared) *scheduler {
	s := &scheduler{
		shared:      shared,
		parkTimeout: cfg.ParkTimeout,
		log:         cfg.Logger,

		cSpawned:   cfg.Metrics.Counter("tasks_spawned", metrics.WithUnit("1")),
		cSchedules: cfg.Metrics.Counter("task_schedules", metrics.WithUnit("1")),
		cPolls:     cfg.Metrics.Counter("task_polls", metrics.WithUnit("1")),
		cParks:     cfg.Metrics.Counter("worker_parks", metrics.WithUnit("1")),
		gLive:      cfg.Metrics.UpDownCounter("tasks_live", metrics.WithUnit("1")),
		hPoll: cfg.Metrics.Histogram("poll_duration_seconds",
			metrics.WithUnit("seconds"), metrics.WithDescription("wall time of one task poll")),
	}
	for i := 0; i < cfg.workerCount(); i++ {
		p, u := park.New(shared)
		s.workers = append(s.workers, &worker{id: i, parker: p, unparker: u})
	}
	return s
}

func (s *scheduler) start() {
	for _, w := range s.workers {
		s.wg.Add(1)
		go s.run(w)
	}
}

// Bind records the task in the owned list so teardown can cancel it. Called
// from the first poll, which already holds the queue handle; the list entry
// gets its own.
func (s *scheduler) Bind(t *task.Task) {
	owned := t.Clone()
	s.mu.Lock()
	s.owned.Push(owned)
	s.mu.Unlock()
	s.gLive.Add(1)
}

// Schedule enqueues t and wakes one idle worker. During shutdown the task is
// cancelled instead: its join side observes a cancelled error rather than a
// silently dropped enqueue.
func (s *scheduler) Schedule(t *task.Task) {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		t.Shutdown()
		return
	}
	s.queue.Push(t)
	var u *park.Unparker
	if n := len(s.idle); n > 0 {
		w := s.idle[n-1]
		s.idle = s.idle[:n-1]
		w.idle = false
		u = w.unparker
	}
	s.mu.Unlock()

	s.cSchedules.Add(1)
	if u != nil {
		u.Unpark()
	}
}

// Release drops the scheduler-owned handle of a completed task. Safe from
// any goroutine.
func (s *scheduler) Release(t *task.Task) {
	s.mu.Lock()
	owned := s.owned.Remove(t)
	s.mu.Unlock()
	if owned != nil {
		owned.Drop()
		s.gLive.Add(-1)
	}
}

// ReleaseLocal is Release from the goroutine that last polled the task. The
// owned list is mutex-guarded either way, so it shares the Release path.
func (s *scheduler) ReleaseLocal(t *task.Task) {
	s.Release(t)
}

// run is a worker's main loop: pop, poll, park.
func (s *scheduler) run(w *worker) {
	defer s.wg.Done()
	s.log.Debug("worker started", zap.Int("worker", w.id))
	for {
		t, stop := s.next(w)
		if stop {
			s.log.Debug("worker stopped", zap.Int("worker", w.id))
			return
		}
		if t == nil {
			s.cParks.Add(1)
			w.parker.ParkTimeout(s.parkTimeout)
			continue
		}
		for t != nil {
			s.cPolls.Add(1)
			start := time.Now()
			t = t.Run(s.runQueueEmpty)
			s.hPoll.Record(time.Since(start).Seconds())
		}
	}
}

// next pops a task or registers w as idle. The pop and the idle registration
// share one critical section so an enqueue cannot slip between them and
// strand a sleeping worker.
func (s *scheduler) next(w *worker) (t *task.Task, stop bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.queue.Pop(); t != nil {
		return t, false
	}
	if s.shutdown {
		return nil, true
	}
	if !w.idle {
		w.idle = true
		s.idle = append(s.idle, w)
	}
	return nil, false
}

// runQueueEmpty is the re-poll hint handed to Task.Run: a task whose wake
// raced its own poll is re-run on the same worker only while no other task
// is waiting.
func (s *scheduler) runQueueEmpty() bool {
	s.mu.Lock()
	empty := s.queue.Len() == 0 && !s.shutdown
	s.mu.Unlock()
	return empty
}
