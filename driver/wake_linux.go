//go:build linux

package driver

import "golang.org/x/sys/unix"

// newWakeFd creates the wakeup descriptor on Linux: a single eventfd serving
// as both the read and write end.
func newWakeFd() (rfd, wfd int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return -1, -1, err
	}
	return fd, fd, nil
}
