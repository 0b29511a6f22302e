//go:build linux || darwin || freebsd

package reaper

import (
	"fmt"
	"syscall"
)

// terminate sends SIGKILL to pid.
func terminate(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid: %d", pid)
	}
	return syscall.Kill(pid, syscall.SIGKILL)
}
