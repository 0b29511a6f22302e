package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/loykin/vmixpanel/internal/metrics"
)

// ErrUnsupportedPlatform is returned when the host has no backend able to map
// sockets to processes.
var ErrUnsupportedPlatform = errors.New("process enumeration is not supported on this platform")

// Listener is a process bound to the probed port.
type Listener struct {
	PID  int32  `json:"pid"`
	Name string `json:"name,omitempty"`
	Addr string `json:"addr,omitempty"`
}

func (l Listener) String() string {
	if l.Name == "" {
		return fmt.Sprintf("PID %d", l.PID)
	}
	return fmt.Sprintf("PID %d (%s)", l.PID, l.Name)
}

// Backend is the OS-specific capability used by Reaper.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Listeners returns the processes holding a listening TCP socket on port.
	// The same PID may appear more than once.
	Listeners(ctx context.Context, port int) ([]Listener, error)
	// Terminate force-kills pid.
	Terminate(ctx context.Context, pid int32) error
}

type Status string

const (
	StatusNoProcess  Status = "no_process_found"
	StatusTerminated Status = "terminated"
)

// Result summarizes a KillListeners run. Count is the number of successful
// terminations; failed ones are only absent from it.
type Result struct {
	Count  int     `json:"count"`
	Status Status  `json:"status"`
	PIDs   []int32 `json:"pids"`
}

type Reaper struct {
	backend Backend
	logger  *slog.Logger
	selfPID int32
}

// New returns a Reaper using backend. A nil backend selects the system backend.
func New(backend Backend, logger *slog.Logger) *Reaper {
	if backend == nil {
		backend = NewSystemBackend()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{backend: backend, logger: logger, selfPID: int32(os.Getpid())}
}

// Holders lists the distinct processes listening on port, ordered by PID.
func (r *Reaper) Holders(ctx context.Context, port int) ([]Listener, error) {
	ls, err := r.backend.Listeners(ctx, port)
	if err != nil {
		return nil, err
	}
	seen := make(map[int32]bool, len(ls))
	out := make([]Listener, 0, len(ls))
	for _, l := range ls {
		if l.PID <= 0 || seen[l.PID] {
			continue
		}
		seen[l.PID] = true
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

// KillListeners terminates every process listening on port, each independently.
// Individual failures are logged and left out of the count; the caller re-probes
// the port to know whether it is actually free.
func (r *Reaper) KillListeners(ctx context.Context, port int) (Result, error) {
	holders, err := r.Holders(ctx, port)
	if err != nil {
		return Result{}, fmt.Errorf("list listeners on port %d: %w", port, err)
	}
	res := Result{Status: StatusNoProcess, PIDs: []int32{}}
	if len(holders) == 0 {
		r.logger.Info("no process found on port", "port", port)
		return res, nil
	}
	res.Status = StatusTerminated
	for _, h := range holders {
		if h.PID == r.selfPID {
			r.logger.Warn("skipping own process", "port", port, "pid", h.PID)
			continue
		}
		if err := r.backend.Terminate(ctx, h.PID); err != nil {
			r.logger.Warn("terminate failed", "port", port, "pid", h.PID, "name", h.Name, "error", err)
			continue
		}
		r.logger.Info("terminated process", "port", port, "pid", h.PID, "name", h.Name)
		res.Count++
		res.PIDs = append(res.PIDs, h.PID)
	}
	metrics.AddReaped(res.Count)
	return res, nil
}
