//go:build linux || darwin || freebsd || netbsd || openbsd

package consolein

import (
	"os"

	"golang.org/x/sys/unix"
)

// stdinReady polls STDIN with a zero-timeout select, reporting whether
// a read would return immediately.
func stdinReady() bool {
	fd := int(os.Stdin.Fd())

	var readfds unix.FdSet
	readfds.Zero()
	readfds.Set(fd)

	tv := unix.Timeval{Sec: 0, Usec: 0}
	n, err := unix.Select(fd+1, &readfds, nil, nil, &tv)
	if err != nil {
		return false
	}
	return n > 0
}
