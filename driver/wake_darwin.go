//go:build darwin

package driver

import "golang.org/x/sys/unix"

// newWakeFd creates the wakeup descriptor on Darwin: a non-blocking pipe.
func newWakeFd() (rfd, wfd int, err error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return -1, -1, err
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(p[0])
			_ = unix.Close(p[1])
			return -1, -1, err
		}
	}
	return p[0], p[1], nil
}
