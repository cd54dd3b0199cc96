//go:build linux || darwin

// Package driver provides the default I/O driver the runtime's parkers sleep
// on: a wakeup file descriptor (eventfd on Linux, a non-blocking pipe on
// Darwin) multiplexed through poll(2). It satisfies park.Driver.
//
// The driver carries no registered I/O of its own; readiness sources beyond
// the wakeup handle are the concern of a fuller reactor.
package driver

import (
	"encoding/binary"
	"time"

	"golang.org/x/sys/unix"

	"github.com/martell/tokio/park"
)

// Driver blocks in poll(2) on the wakeup descriptor. Park/ParkTimeout are
// called by at most one goroutine at a time (the parker holding the driver
// claim); Handle().Wake is safe from anywhere.
type Driver struct {
	rfd int
	wfd int
}

// New opens the wakeup descriptor pair.
func New() (*Driver, error) {
	rfd, wfd, err := newWakeFd()
	if err != nil {
		return nil, err
	}
	return &Driver{rfd: rfd, wfd: wfd}, nil
}

// Park blocks until the wakeup handle fires.
func (d *Driver) Park() error {
	return d.poll(-1)
}

// ParkTimeout blocks until the wakeup handle fires or t elapses.
func (d *Driver) ParkTimeout(t time.Duration) error {
	ms := int(t / time.Millisecond)
	if ms < 0 {
		ms = 0
	}
	return d.poll(ms)
}

// Handle returns the thread-safe wakeup handle. A wake delivered while no
// poll is in flight is sticky: the next poll returns immediately.
func (d *Driver) Handle() park.Handle {
	return Handle{wfd: d.wfd}
}

// Close releases the wakeup descriptors. No poll may be in flight.
func (d *Driver) Close() error {
	err := unix.Close(d.rfd)
	if d.wfd != d.rfd {
		if cerr := unix.Close(d.wfd); err == nil {
			err = cerr
		}
	}
	return err
}

func (d *Driver) poll(ms int) error {
	fds := []unix.PollFd{{Fd: int32(d.rfd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, ms)
	if err != nil {
		if err == unix.EINTR {
			// Signal delivery; surfaces as a spurious wake.
			return nil
		}
		return err
	}
	if n > 0 {
		d.drain()
	}
	return nil
}

// drain consumes pending wakeups so the descriptor stops reading ready. The
// descriptor is non-blocking; the loop ends on EAGAIN.
func (d *Driver) drain() {
	var buf [8]byte
	for {
		if _, err := unix.Read(d.rfd, buf[:]); err != nil {
			return
		}
	}
}

// Handle posts wakeups to the driver. Copyable and safe for concurrent use.
type Handle struct {
	wfd int
}

// Wake interrupts the driver's in-flight (or next) poll. A full counter or
// pipe means a wakeup is already pending, which is success.
func (h Handle) Wake() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(h.wfd, buf[:]); err != nil && err != unix.EAGAIN {
		return err
	}
	return nil
}
