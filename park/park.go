// Package park provides the blocking-thread rendezvous between idle workers
// and the I/O driver. A Parker is owned by exactly one worker; its paired
// Unparker is cloneable and safe to fire from any goroutine. Parkers sharing
// one driver arbitrate so that at most one of them sleeps inside the driver's
// blocking poll; the rest sleep on a plain signal.
package park

import (
	"sync/atomic"
	"time"
)

// Driver is the blocking poll a claiming parker actually sleeps on, supplied
// by the I/O subsystem. Park and ParkTimeout block until woken through the
// Handle, until the timeout elapses, or spuriously. Errors are treated by the
// parker as spurious wakes.
type Driver interface {
	Park() error
	ParkTimeout(d time.Duration) error
	Handle() Handle
}

// Handle interrupts an in-flight driver poll. It must be safe to call from
// any goroutine and must be sticky: a wake delivered before the next poll
// makes that poll return immediately.
type Handle interface {
	Wake() error
}

// Parker mode word values. Transitions are sequentially consistent to rule
// out the missed-wakeup race between a parking and an unparking thread.
const (
	modeIdle uint32 = iota
	modeNotified
	modeParkedCondvar
	modeParkedDriver
)

// Shared couples a driver with its claim flag. All parkers constructed over
// the same Shared contend for the single driver slot; at most one holds the
// claim at a time.
type Shared struct {
	driver  Driver
	handle  Handle
	claimed atomic.Bool
}

// NewShared wraps d for use by one or more parkers.
func NewShared(d Driver) *Shared {
	if d == nil {
		panic("park: nil driver")
	}
	return &Shared{driver: d, handle: d.Handle()}
}

type inner struct {
	mode   atomic.Uint32
	wait   chan struct{}
	shared *Shared
}

// Parker blocks its owning worker until unparked or until I/O readiness.
// It is not cloneable and must only be used by the goroutine that owns it.
type Parker struct {
	inner *inner
}

// Unparker wakes the worker owning the paired Parker. Unparkers are freely
// copyable and safe for concurrent use.
type Unparker struct {
	inner *inner
}

// New returns a parker/unparker pair over the shared driver.
func New(sh *Shared) (*Parker, *Unparker) {
	if sh == nil {
		panic("park: nil shared driver")
	}
	in := &inner{
		wait:   make(chan struct{}, 1),
		shared: sh,
	}
	return &Parker{inner: in}, &Unparker{inner: in}
}

// Park blocks until the paired Unparker fires or the driver reports
// readiness. Spurious returns are possible; callers re-check their condition.
func (p *Parker) Park() {
	p.inner.park(-1)
}

// ParkTimeout is Park bounded by d. A non-positive d returns immediately
// after consuming any pending notification.
func (p *Parker) ParkTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	p.inner.park(d)
}

// Unpark wakes the parked (or about-to-park) worker. At most one
// notification is buffered; extra unparks coalesce.
func (u *Unparker) Unpark() {
	u.inner.unpark()
}

// park sleeps for at most d (d < 0 means no bound).
func (in *inner) park(d time.Duration) {
	// Fast path: consume a pending notification without touching the driver
	// claim or the wait channel.
	if in.mode.CompareAndSwap(modeNotified, modeIdle) {
		return
	}
	if d == 0 {
		return
	}

	sh := in.shared
	if sh.claimed.CompareAndSwap(false, true) {
		in.parkDriver(d)
		sh.claimed.Store(false)
		return
	}
	in.parkWait(d)
}

// parkDriver sleeps inside the driver's blocking poll. Caller holds the
// driver claim.
func (in *inner) parkDriver(d time.Duration) {
	if !in.mode.CompareAndSwap(modeIdle, modeParkedDriver) {
		// Notified between the fast path and here; consume and return.
		in.consumeNotification()
		return
	}

	// Driver errors indicate a spurious wake at worst; the worker re-checks
	// its condition either way.
	if d < 0 {
		_ = in.shared.driver.Park()
	} else {
		_ = in.shared.driver.ParkTimeout(d)
	}

	// The final store consumes any notification that arrived mid-poll.
	in.mode.Swap(modeIdle)
}

// parkWait sleeps on the signal channel; the driver is claimed by another
// parker.
func (in *inner) parkWait(d time.Duration) {
	// Discard a stale token left behind by a timed-out park whose unpark
	// lost the race; the notification itself was already consumed.
	select {
	case <-in.wait:
	default:
	}

	if !in.mode.CompareAndSwap(modeIdle, modeParkedCondvar) {
		in.consumeNotification()
		return
	}

	if d < 0 {
		<-in.wait
	} else {
		timer := time.NewTimer(d)
		select {
		case <-in.wait:
		case <-timer.C:
		}
		timer.Stop()
	}

	// Back to idle; consumes the notification if the wake won the race.
	in.mode.Swap(modeIdle)
}

func (in *inner) consumeNotification() {
	if !in.mode.CompareAndSwap(modeNotified, modeIdle) {
		panic("park: state invariant violated: parker mode changed by foreign thread")
	}
}

func (in *inner) unpark() {
	for {
		switch in.mode.Load() {
		case modeIdle:
			if in.mode.CompareAndSwap(modeIdle, modeNotified) {
				return
			}
		case modeNotified:
			return
		case modeParkedCondvar:
			if in.mode.CompareAndSwap(modeParkedCondvar, modeNotified) {
				select {
				case in.wait <- struct{}{}:
				default:
				}
				return
			}
		case modeParkedDriver:
			if in.mode.CompareAndSwap(modeParkedDriver, modeNotified) {
				_ = in.shared.handle.Wake()
				return
			}
		default:
			panic("park: state invariant violated: unknown parker mode")
		}
	}
}
