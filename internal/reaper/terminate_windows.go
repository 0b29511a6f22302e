//go:build windows

package reaper

import (
	"fmt"
	"syscall"
)

var (
	kernel32             = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess      = kernel32.NewProc("OpenProcess")
	procTerminateProcess = kernel32.NewProc("TerminateProcess")
	procCloseHandle      = kernel32.NewProc("CloseHandle")
)

const processTerminate = 0x0001

// terminate calls TerminateProcess on pid, the equivalent of taskkill /F.
func terminate(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid: %d", pid)
	}
	ret, _, err := procOpenProcess.Call(uintptr(processTerminate), 0, uintptr(uint32(pid)))
	if ret == 0 {
		return fmt.Errorf("open process %d: %w", pid, err)
	}
	handle := syscall.Handle(ret)
	defer func() { _, _, _ = procCloseHandle.Call(uintptr(handle)) }()

	ret, _, err = procTerminateProcess.Call(uintptr(handle), uintptr(1))
	if ret == 0 {
		return fmt.Errorf("terminate process %d: %w", pid, err)
	}
	return nil
}
