package task

import (
	"errors"
	"fmt"
)

const Namespace = "task"

var (
	// ErrCancelled matches (via errors.Is) join errors produced by
	// cancellation.
	ErrCancelled = errors.New(Namespace + ": task cancelled")
	// ErrPanicked matches (via errors.Is) join errors produced by a panic
	// inside the future's poll.
	ErrPanicked = errors.New(Namespace + ": task panicked")
)

// JoinError is what the consumer side of a task observes when the task does
// not produce its output: the task was cancelled, or its poll panicked.
type JoinError struct {
	sentinel error
	payload  any // recovered panic value; nil for cancellation
}

func newCancelled() *JoinError {
	return &JoinError{sentinel: ErrCancelled}
}

func newPanicked(payload any) *JoinError {
	return &JoinError{sentinel: ErrPanicked, payload: payload}
}

// Cancelled reports whether the task was cancelled before producing output.
func (e *JoinError) Cancelled() bool { return e.sentinel == ErrCancelled }

// Panicked returns the recovered panic payload when the task's poll
// terminated abnormally.
func (e *JoinError) Panicked() (payload any, ok bool) {
	if e.sentinel != ErrPanicked {
		return nil, false
	}
	return e.payload, true
}

func (e *JoinError) Error() string {
	if e.sentinel == ErrPanicked {
		return fmt.Sprintf("%s: %v", ErrPanicked.Error(), e.payload)
	}
	return e.sentinel.Error()
}

func (e *JoinError) Unwrap() error { return e.sentinel }
