//go:build !(linux || darwin || windows || freebsd)

package reaper

import "context"

type unsupportedBackend struct{}

// NewSystemBackend returns a backend that fails every call with ErrUnsupportedPlatform.
func NewSystemBackend() Backend { return unsupportedBackend{} }

func (unsupportedBackend) Listeners(context.Context, int) ([]Listener, error) {
	return nil, ErrUnsupportedPlatform
}

func (unsupportedBackend) Terminate(context.Context, int32) error {
	return ErrUnsupportedPlatform
}
