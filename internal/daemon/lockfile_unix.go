//go:build !windows

package daemon

import "golang.org/x/sys/unix"

// IsProcessAlive checks whether a process with the given PID is running.
func IsProcessAlive(pid int) bool {
	return unix.Kill(pid, 0) == nil
}
