package vmixpanel

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/vmixpanel/internal/config"
	"github.com/loykin/vmixpanel/internal/history"
	"github.com/loykin/vmixpanel/internal/history/factory"
	"github.com/loykin/vmixpanel/internal/instance"
	"github.com/loykin/vmixpanel/internal/logger"
	"github.com/loykin/vmixpanel/internal/metrics"
	"github.com/loykin/vmixpanel/internal/reaper"
	iapi "github.com/loykin/vmixpanel/internal/server"
	"github.com/loykin/vmixpanel/internal/store"
	"github.com/loykin/vmixpanel/internal/writer"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type Store = store.Store

type Resource = store.Resource

type Registry = store.Registry

type HistorySink = history.Sink

type HistoryEvent = history.Event

type Resolver = instance.Resolver

type Router = iapi.Router

type Outcome = instance.Outcome

const (
	Proceed = instance.Proceed
	Aborted = instance.Aborted
)

// Errors callers are expected to match with errors.Is.
var (
	ErrUnknownResource = store.ErrUnknownResource
	ErrNotFound        = store.ErrNotFound
	ErrCancelled       = instance.ErrCancelled
	ErrInvalidChoice   = instance.ErrInvalidChoice
)

func LoadConfig(path string) (*Config, error) { return cfg.LoadConfig(path) }

func DefaultConfig() *Config { return cfg.Default() }

// NewLogger builds the application logger from the [log] section.
func NewLogger(c *Config, w io.Writer) (*slog.Logger, io.Closer, error) {
	return logger.New(c.Log.Logger(), w)
}

// NewHistorySink opens the sink named by [history].dsn. It returns nil when
// history is disabled.
func NewHistorySink(c *Config) (HistorySink, error) {
	if !c.History.Enabled {
		return nil, nil
	}
	return factory.NewSinkFromDSN(c.History.DSN)
}

// NewStore builds the resource store for the configured data directory. Call
// Init before serving.
func NewStore(c *Config, sink HistorySink, l *slog.Logger) (*Store, error) {
	w := writer.New(writer.Options{
		MaxRetries: c.Storage.MaxRetries,
		RetryDelay: c.Storage.RetryDelay,
		Atomic:     c.Storage.Atomic,
		Logger:     l,
	})
	return store.New(store.Options{
		Dir:             c.Server.DataPath(),
		Registry:        store.DefaultRegistry(),
		Writer:          w,
		Sink:            sink,
		LockPerResource: c.Storage.LockPerResource,
		Logger:          l,
	})
}

// NewResolver builds the startup conflict resolver. When [instance].interactive
// is set the operator is prompted on out and answers on in.
func NewResolver(c *Config, in io.Reader, out io.Writer, l *slog.Logger) *Resolver {
	opts := instance.Options{
		Host:            c.Server.Host,
		Reaper:          reaper.New(nil, l),
		SettleDelay:     c.Instance.SettleDelay,
		ReprobeAttempts: c.Instance.ReprobeAttempts,
		ReprobeInterval: c.Instance.ReprobeInterval,
		Logger:          l,
	}
	if c.Instance.Interactive {
		opts.Confirm = instance.NewConsole(in, out)
	}
	return instance.NewResolver(opts)
}

// NewRouter builds the HTTP surface. onShutdown may be nil to disable
// POST /api/shutdown.
func NewRouter(c *Config, st *Store, onShutdown func(), l *slog.Logger) (*Router, error) {
	limit, err := c.Server.BodyLimitBytes()
	if err != nil {
		return nil, err
	}
	opts := iapi.Options{
		Store:      st,
		PublicDir:  c.Server.PublicDir,
		BodyLimit:  limit,
		OnShutdown: onShutdown,
		Logger:     l,
	}
	if c.Metrics.Enabled {
		opts.MetricsPath = c.Metrics.Path
	}
	return iapi.NewRouter(opts), nil
}

// NewHTTPServer wraps h with the control panel timeouts.
func NewHTTPServer(h http.Handler) *http.Server { return iapi.NewHTTPServer(h) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
