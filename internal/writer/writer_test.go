package writer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func busyErr(path string) error {
	return &os.PathError{Op: "open", Path: path, Err: busyErrnos[0]}
}

// flakyWriter fails with a busy error for the first failures calls.
func flakyWriter(w *Writer, failures int, calls *int) {
	orig := w.writeOnce
	w.writeOnce = func(path string, data []byte) error {
		*calls++
		if *calls <= failures {
			return busyErr(path)
		}
		return orig(path, data)
	}
}

func noSleep(w *Writer, slept *[]time.Duration) {
	w.sleep = func(_ context.Context, d time.Duration) error {
		if slept != nil {
			*slept = append(*slept, d)
		}
		return nil
	}
}

func TestWriteExactBytes(t *testing.T) {
	for _, atomic := range []bool{true, false} {
		t.Run(fmt.Sprintf("atomic=%v", atomic), func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "out.json")
			require.NoError(t, os.WriteFile(path, []byte(`{"old":"content that is longer"}`), 0o644))

			w := New(Options{MaxRetries: 1, Atomic: atomic})
			payload := []byte(`[{"name":"Acme"}]`)
			require.NoError(t, w.Write(context.Background(), path, payload))

			got, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, payload, got)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Len(t, entries, 1, "no temp files may be left behind")
		})
	}
}

func TestWriteRetriesUntilBusyClears(t *testing.T) {
	for k := 0; k < 3; k++ {
		t.Run(fmt.Sprintf("clears_after_%d", k), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "r.json")
			w := New(Options{MaxRetries: 3, RetryDelay: 100 * time.Millisecond, Atomic: true})
			calls := 0
			var slept []time.Duration
			flakyWriter(w, k, &calls)
			noSleep(w, &slept)

			require.NoError(t, w.Write(context.Background(), path, []byte("{}")))
			assert.Equal(t, k+1, calls)
			require.Len(t, slept, k)
			for _, d := range slept {
				assert.Equal(t, 100*time.Millisecond, d, "delay is fixed, not exponential")
			}
		})
	}
}

func TestWriteGivesUpAfterMaxRetries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.json")
	w := New(Options{MaxRetries: 3})
	calls := 0
	flakyWriter(w, 1000, &calls)
	noSleep(w, nil)

	err := w.Write(context.Background(), path, []byte("{}"))
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var we *WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, 3, we.Attempts)
	assert.True(t, we.Transient)
	assert.Equal(t, path, we.Path)
	assert.True(t, errors.Is(err, busyErrnos[0]))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteFatalErrorIsNotRetried(t *testing.T) {
	w := New(Options{MaxRetries: 5})
	calls := 0
	w.writeOnce = func(path string, _ []byte) error {
		calls++
		return &os.PathError{Op: "open", Path: path, Err: syscall.EACCES}
	}
	noSleep(w, nil)

	err := w.Write(context.Background(), "/nope/x.json", []byte("{}"))
	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, we.Attempts)
	assert.False(t, we.Transient)
}

func TestWriteMissingDirectoryIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "x.json")
	for _, atomic := range []bool{true, false} {
		w := New(Options{Atomic: atomic})
		err := w.Write(context.Background(), path, []byte("{}"))
		var we *WriteError
		require.ErrorAs(t, err, &we)
		assert.Equal(t, 1, we.Attempts)
	}
}

func TestWriteStopsWhenContextCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.json")
	w := New(Options{MaxRetries: 10, RetryDelay: time.Hour})
	calls := 0
	flakyWriter(w, 1000, &calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.Write(ctx, path, []byte("{}"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(busyErr("x")))
	assert.False(t, IsTransient(errors.New("plain")))
	assert.False(t, IsTransient(&os.PathError{Op: "open", Path: "x", Err: syscall.ENOENT}))
	assert.False(t, IsTransient(nil))
}

func TestNewDefaults(t *testing.T) {
	w := New(Options{})
	assert.Equal(t, DefaultMaxRetries, w.maxRetries)
	assert.Equal(t, DefaultRetryDelay, w.retryDelay)
}

func TestWriteRetriesDeniedRename(t *testing.T) {
	denied := syscall.EACCES
	origSet, origRename := renameBusyErrnos, rename
	t.Cleanup(func() { renameBusyErrnos, rename = origSet, origRename })
	renameBusyErrnos = []syscall.Errno{denied}
	renames := 0
	rename = func(from, to string) error {
		renames++
		if renames == 1 {
			return &os.LinkError{Op: "rename", Old: from, New: to, Err: denied}
		}
		return os.Rename(from, to)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "sponsors.json")
	w := New(Options{MaxRetries: 3, Atomic: true})
	noSleep(w, nil)

	require.NoError(t, w.Write(context.Background(), path, []byte("[]")))
	assert.Equal(t, 2, renames)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(got))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestIsTransientRenameOnly(t *testing.T) {
	origSet := renameBusyErrnos
	t.Cleanup(func() { renameBusyErrnos = origSet })
	renameBusyErrnos = []syscall.Errno{syscall.EACCES}

	link := &os.LinkError{Op: "rename", Old: "a", New: "b", Err: syscall.EACCES}
	assert.True(t, IsTransient(&renameError{err: link}))
	assert.False(t, IsTransient(link), "denied outside the rename step stays fatal")
	assert.False(t, IsTransient(&os.PathError{Op: "open", Path: "x", Err: syscall.EACCES}))
}
