// Package task implements the runtime's task cell: a single allocation
// combining a user future, a reference-counted header with an atomic state
// word, and a join output slot.
//
// A task advances only inside an explicit poll, and polls of the same task
// are mutually exclusive (the RUNNING bit). Wakers fired from any goroutine
// mark the task NOTIFIED and hand it to its scheduler; a wake racing with an
// in-flight poll is detected at the poll's pending boundary and re-scheduled
// exactly once. Completion publishes the output with the COMPLETE bit, after
// which further wakes are dropped.
//
// The actual run-queue policy lives behind the Schedule interface; this
// package only defers to it. Queue and OwnedList provide the intrusive
// collections a scheduler threads through the task header.
package task
