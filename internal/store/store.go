package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/loykin/vmixpanel/internal/history"
	"github.com/loykin/vmixpanel/internal/metrics"
	"github.com/loykin/vmixpanel/internal/writer"
)

var (
	ErrUnknownResource = errors.New("unknown resource")
	ErrNotFound        = errors.New("resource not found")
)

const sinkTimeout = 2 * time.Second

// Options configures a Store.
type Options struct {
	Dir      string
	Registry *Registry      // nil selects DefaultRegistry
	Writer   *writer.Writer // nil selects writer defaults with atomic replace
	Sink     history.Sink   // optional write audit
	// LockPerResource serializes Put calls for the same resource. Without it
	// overlapping writes race and the last one to finish wins.
	LockPerResource bool
	Logger          *slog.Logger
}

// Store maps logical resource names to one file each under Dir.
type Store struct {
	dir      string
	registry *Registry
	writer   *writer.Writer
	sink     history.Sink
	logger   *slog.Logger
	locks    map[string]*sync.Mutex // nil when per-resource locking is off
}

func New(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, errors.New("store directory required")
	}
	s := &Store{
		dir:      opts.Dir,
		registry: opts.Registry,
		writer:   opts.Writer,
		sink:     opts.Sink,
		logger:   opts.Logger,
	}
	if s.registry == nil {
		s.registry = DefaultRegistry()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.writer == nil {
		s.writer = writer.New(writer.Options{Atomic: true, Logger: s.logger})
	}
	if opts.LockPerResource {
		s.locks = make(map[string]*sync.Mutex, len(s.registry.resources))
		for _, r := range s.registry.resources {
			s.locks[r.Name] = &sync.Mutex{}
		}
	}
	return s, nil
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) Registry() *Registry { return s.registry }

// Init creates the data directory and seeds every missing resource file with
// its default content. Existing files are left untouched.
func (s *Store) Init(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir %s: %w", s.dir, err)
	}
	for _, r := range s.registry.resources {
		p := filepath.Join(s.dir, r.File)
		_, err := os.Stat(p)
		if err == nil {
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		if err := s.writer.Write(ctx, p, r.Default); err != nil {
			return fmt.Errorf("seed %s: %w", r.Name, err)
		}
		s.logger.Info("seeded resource", "resource", r.Name, "file", p)
	}
	return nil
}

func (s *Store) resolve(name string) (Resource, string, error) {
	r, ok := s.registry.Lookup(name)
	if !ok {
		return Resource{}, "", fmt.Errorf("%w: %q", ErrUnknownResource, name)
	}
	return r, filepath.Join(s.dir, r.File), nil
}

// Path returns the backing file of name.
func (s *Store) Path(name string) (string, error) {
	_, p, err := s.resolve(name)
	return p, err
}

// Get returns the raw bytes of name.
func (s *Store) Get(name string) ([]byte, error) {
	r, p, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, r.Name)
		}
		return nil, fmt.Errorf("read %s: %w", r.Name, err)
	}
	return b, nil
}

// Put replaces the whole content of name with data.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	return s.put(ctx, history.EventPut, name, data)
}

// Clear resets name to its default content.
func (s *Store) Clear(ctx context.Context, name string) error {
	r, ok := s.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownResource, name)
	}
	return s.put(ctx, history.EventClear, r.Name, r.Default)
}

func (s *Store) put(ctx context.Context, typ history.EventType, name string, data []byte) error {
	r, p, err := s.resolve(name)
	if err != nil {
		return err
	}
	if mu := s.locks[r.Name]; mu != nil {
		mu.Lock()
		err = s.writer.Write(ctx, p, data)
		mu.Unlock()
	} else {
		err = s.writer.Write(ctx, p, data)
	}
	metrics.IncStoreWrite(r.Name, err == nil)
	s.record(ctx, history.NewEvent(typ, r.Name, r.File, len(data), err))
	if err != nil {
		s.logger.Error("resource write failed", "resource", r.Name, "error", err)
		return err
	}
	s.logger.Debug("resource written", "resource", r.Name, "bytes", len(data))
	return nil
}

func (s *Store) record(ctx context.Context, e history.Event) {
	if s.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	if err := s.sink.Send(ctx, e); err != nil {
		s.logger.Warn("history sink failed", "resource", e.Resource, "error", err)
	}
}
