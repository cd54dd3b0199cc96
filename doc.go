// Package tokio is a multi-threaded cooperative runtime for futures: values
// with an advance-once Poll operation that either complete with an output or
// go pending after arranging a wake.
//
// Construction and use:
//
//	rt, err := tokio.New(tokio.WithWorkers(4))
//	if err != nil { ... }
//	defer rt.Shutdown()
//
//	jh := tokio.Spawn(rt, someFuture)
//	out, err := jh.Wait(ctx)
//
// Spawn returns a join handle whose Wait reports the task's output, a
// cancellation, or the payload of a panic inside the future's poll. Handles
// can Abort their task; Shutdown cancels everything still live.
//
// Architecture
//
// The heavy lifting lives in the subpackages. Package task implements the
// task cell: one allocation holding the future, an atomic state word with
// the reference count, and the join output slot; wakers and run queues hang
// off it. Package park implements the worker sleep/wake rendezvous, with at
// most one worker at a time blocking inside the shared I/O driver and the
// rest on plain signals. Package driver supplies the default wakeup-fd
// driver, and package metrics the instrumentation surface.
//
// This package composes them: a mutex-guarded global run queue, N worker
// goroutines, and an owned-task list that lets Shutdown cancel stragglers.
package tokio
