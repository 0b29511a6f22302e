package writer

import (
	"errors"
	"syscall"
)

// IsTransient reports whether err is a "resource busy" failure that is expected
// to clear on its own, such as a file momentarily locked by a scanner or reader.
func IsTransient(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	if matchErrno(errno, busyErrnos) {
		return true
	}
	var re *renameError
	return errors.As(err, &re) && matchErrno(errno, renameBusyErrnos)
}

func matchErrno(errno syscall.Errno, set []syscall.Errno) bool {
	for _, b := range set {
		if errno == b {
			return true
		}
	}
	return false
}
