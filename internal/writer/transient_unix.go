//go:build !windows

package writer

import "syscall"

var busyErrnos = []syscall.Errno{syscall.EBUSY, syscall.ETXTBSY, syscall.EAGAIN}

// renameBusyErrnos are only busy when returned by the final rename.
var renameBusyErrnos []syscall.Errno
