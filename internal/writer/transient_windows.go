//go:build windows

package writer

import "syscall"

const (
	errorAccessDenied     = syscall.Errno(5)
	errorSharingViolation = syscall.Errno(32)
	errorLockViolation    = syscall.Errno(33)
)

var busyErrnos = []syscall.Errno{errorSharingViolation, errorLockViolation}

// MoveFileEx fails with ERROR_ACCESS_DENIED while another process holds the
// target open without FILE_SHARE_DELETE.
var renameBusyErrnos = []syscall.Errno{errorAccessDenied}
