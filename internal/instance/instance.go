package instance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/vmixpanel/internal/metrics"
	"github.com/loykin/vmixpanel/internal/portprobe"
	"github.com/loykin/vmixpanel/internal/reaper"
)

const (
	DefaultSettleDelay     = 2 * time.Second
	DefaultReprobeInterval = 200 * time.Millisecond
)

var (
	// ErrCancelled means the operator chose not to start. It is a graceful abort.
	ErrCancelled = errors.New("startup cancelled by operator")
	// ErrInvalidChoice means the operator answer was not recognized. Fatal.
	ErrInvalidChoice = errors.New("invalid choice")
	// ErrPortInUse is returned when the port is occupied and no confirmation source is configured.
	ErrPortInUse = errors.New("port is already in use")
	// ErrPortStillInUse is returned when re-probing after termination never observed a free port.
	ErrPortStillInUse = errors.New("port still in use after terminating listeners")
)

// Outcome of EnsureExclusive.
type Outcome int

const (
	Proceed Outcome = iota
	Aborted
)

func (o Outcome) String() string {
	if o == Proceed {
		return "proceed"
	}
	return "aborted"
}

// Probe reports whether host:port can be bound.
type Probe func(host string, port int) (portprobe.State, error)

// Reaper finds and terminates the listeners of a port.
type Reaper interface {
	Holders(ctx context.Context, port int) ([]reaper.Listener, error)
	KillListeners(ctx context.Context, port int) (reaper.Result, error)
}

// Options configures a Resolver.
type Options struct {
	Host   string
	Probe  Probe  // nil selects portprobe.Check
	Reaper Reaper // nil selects reaper.New(nil, logger)
	// Confirm asks the operator what to do about a conflict. Nil disables
	// prompting and an occupied port aborts with ErrPortInUse.
	Confirm     ConfirmSource
	SettleDelay time.Duration // zero selects DefaultSettleDelay
	// ReprobeAttempts bounds the port checks after the settle delay. Zero
	// proceeds without checking again.
	ReprobeAttempts int
	ReprobeInterval time.Duration
	Logger          *slog.Logger
}

// Resolver makes sure this process is the only one listening on a port
// before the server binds it.
type Resolver struct {
	host            string
	probe           Probe
	reaper          Reaper
	confirm         ConfirmSource
	settleDelay     time.Duration
	reprobeAttempts int
	reprobeInterval time.Duration
	logger          *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewResolver(opts Options) *Resolver {
	r := &Resolver{
		host:            opts.Host,
		probe:           opts.Probe,
		reaper:          opts.Reaper,
		confirm:         opts.Confirm,
		settleDelay:     opts.SettleDelay,
		reprobeAttempts: opts.ReprobeAttempts,
		reprobeInterval: opts.ReprobeInterval,
		logger:          opts.Logger,
		sleep:           sleepCtx,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.probe == nil {
		r.probe = portprobe.Check
	}
	if r.reaper == nil {
		r.reaper = reaper.New(nil, r.logger)
	}
	if r.settleDelay <= 0 {
		r.settleDelay = DefaultSettleDelay
	}
	if r.reprobeAttempts < 0 {
		r.reprobeAttempts = 0
	}
	if r.reprobeInterval <= 0 {
		r.reprobeInterval = DefaultReprobeInterval
	}
	return r
}

// EnsureExclusive runs once before the listener is bound. A free port
// proceeds immediately. An occupied port is resolved by the operator: the
// listeners are terminated, or startup is cancelled.
func (r *Resolver) EnsureExclusive(ctx context.Context, port int) (Outcome, error) {
	if r.check(port) == portprobe.Free {
		return Proceed, nil
	}
	log := r.logger.With("port", port)
	log.Warn("port is already in use")

	if r.confirm == nil {
		metrics.IncInstanceConflict("none")
		return Aborted, fmt.Errorf("%w: %d", ErrPortInUse, port)
	}

	// holder lookup only decorates the prompt
	holders, err := r.reaper.Holders(ctx, port)
	if err != nil {
		log.Debug("cannot list port holders", "error", err)
	}

	choice, err := r.confirm.Confirm(ctx, port, holders)
	if err != nil {
		metrics.IncInstanceConflict("invalid")
		return Aborted, err
	}
	metrics.IncInstanceConflict(choice.String())

	switch choice {
	case Cancel:
		log.Info("startup cancelled by operator")
		return Aborted, ErrCancelled
	case Terminate:
	default:
		return Aborted, fmt.Errorf("%w: %v", ErrInvalidChoice, choice)
	}

	res, err := r.reaper.KillListeners(ctx, port)
	if err != nil {
		return Aborted, fmt.Errorf("terminate listeners on port %d: %w", port, err)
	}
	log.Info("terminated port listeners", "count", res.Count, "status", res.Status, "pids", res.PIDs)

	if err := r.sleep(ctx, r.settleDelay); err != nil {
		return Aborted, err
	}
	if r.reprobeAttempts == 0 {
		return Proceed, nil
	}
	for attempt := 1; ; attempt++ {
		if r.check(port) == portprobe.Free {
			return Proceed, nil
		}
		if attempt >= r.reprobeAttempts {
			return Aborted, fmt.Errorf("%w: port %d after %d check(s)", ErrPortStillInUse, port, attempt)
		}
		log.Debug("port not released yet", "attempt", attempt)
		if err := r.sleep(ctx, r.reprobeInterval); err != nil {
			return Aborted, err
		}
	}
}

func (r *Resolver) check(port int) portprobe.State {
	st, err := r.probe(r.host, port)
	if err != nil {
		r.logger.Warn("port probe failed, assuming occupied", "port", port, "error", err)
		return portprobe.Occupied
	}
	return st
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
