//go:build linux || darwin || windows || freebsd

package reaper

import (
	"context"
	"net"
	"strconv"

	gnet "github.com/shirou/gopsutil/v4/net"
	gproc "github.com/shirou/gopsutil/v4/process"
)

type systemBackend struct{}

// NewSystemBackend returns the gopsutil based backend for this OS.
func NewSystemBackend() Backend { return systemBackend{} }

func (systemBackend) Listeners(ctx context.Context, port int) ([]Listener, error) {
	conns, err := gnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, err
	}
	var out []Listener
	for _, c := range conns {
		if c.Status != "LISTEN" || int(c.Laddr.Port) != port || c.Pid <= 0 {
			continue
		}
		out = append(out, Listener{
			PID:  c.Pid,
			Name: processName(ctx, c.Pid),
			Addr: net.JoinHostPort(c.Laddr.IP, strconv.Itoa(int(c.Laddr.Port))),
		})
	}
	return out, nil
}

func (systemBackend) Terminate(_ context.Context, pid int32) error {
	return terminate(int(pid))
}

// processName is best-effort; an empty name only affects display.
func processName(ctx context.Context, pid int32) string {
	p, err := gproc.NewProcessWithContext(ctx, pid)
	if err != nil {
		return ""
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return ""
	}
	return name
}
