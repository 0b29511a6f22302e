package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/vmixpanel/internal/metrics"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 100 * time.Millisecond
)

// WriteError is returned when a write fails fatally or exhausts its attempts.
type WriteError struct {
	Path      string
	Attempts  int
	Transient bool // last cause was a busy error, i.e. the retry budget ran out
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s failed after %d attempt(s): %v", e.Path, e.Attempts, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Options configures a Writer. Zero values select the defaults.
type Options struct {
	MaxRetries int           // total attempts, including the first
	RetryDelay time.Duration // fixed pause between attempts
	Atomic     bool          // write a temp file in the same directory and rename it over the target
	Logger     *slog.Logger
}

// Writer writes whole files, retrying on transient busy errors.
type Writer struct {
	maxRetries int
	retryDelay time.Duration
	atomic     bool
	logger     *slog.Logger

	// seams for tests
	writeOnce func(path string, data []byte) error
	sleep     func(ctx context.Context, d time.Duration) error
}

func New(opts Options) *Writer {
	w := &Writer{
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		atomic:     opts.Atomic,
		logger:     opts.Logger,
		sleep:      sleepCtx,
	}
	if w.maxRetries <= 0 {
		w.maxRetries = DefaultMaxRetries
	}
	if w.retryDelay <= 0 {
		w.retryDelay = DefaultRetryDelay
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.atomic {
		w.writeOnce = writeAtomic
	} else {
		w.writeOnce = writeInPlace
	}
	return w
}

// Write replaces the contents of path with data. Transient failures are retried
// after the fixed retry delay; anything else fails immediately.
func (w *Writer) Write(ctx context.Context, path string, data []byte) error {
	for attempt := 1; ; attempt++ {
		err := w.writeOnce(path, data)
		if err == nil {
			metrics.ObserveWriterAttempts(attempt)
			if attempt > 1 {
				w.logger.Debug("write succeeded after retry", "path", path, "attempts", attempt)
			}
			return nil
		}
		transient := IsTransient(err)
		if !transient || attempt >= w.maxRetries {
			metrics.ObserveWriterAttempts(attempt)
			return &WriteError{Path: path, Attempts: attempt, Transient: transient, Err: err}
		}
		metrics.IncWriterRetry()
		w.logger.Warn("file busy, retrying write", "path", path, "attempt", attempt, "delay", w.retryDelay, "error", err)
		if serr := w.sleep(ctx, w.retryDelay); serr != nil {
			return &WriteError{Path: path, Attempts: attempt, Transient: true, Err: errors.Join(err, serr)}
		}
	}
}

func writeInPlace(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

// writeAtomic never exposes a partially written target: readers see either the
// previous content or the new one.
func writeAtomic(path string, data []byte) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return &renameError{err: err}
	}
	return nil
}

var rename = os.Rename

// renameError marks a failure of the final rename in writeAtomic. Some
// platforms report a target held open by another process as access denied
// at this step only.
type renameError struct{ err error }

func (e *renameError) Error() string { return e.err.Error() }
func (e *renameError) Unwrap() error { return e.err }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
