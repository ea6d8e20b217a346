//go:build !windows

package daemon

import (
	"golang.org/x/sys/unix"
)

// pidAlive checks process existence with a signal-0 probe. Non-destructive:
// no signal is actually delivered. EPERM still means the process exists.
func pidAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err == unix.EPERM
}
