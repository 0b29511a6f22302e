//go:build windows

package portprobe

import (
	"errors"
	"syscall"
)

// WSAEADDRINUSE
const wsaeAddrInUse = syscall.Errno(10048)

func isAddrInUse(err error) bool {
	return errors.Is(err, wsaeAddrInUse) || errors.Is(err, syscall.EADDRINUSE)
}
