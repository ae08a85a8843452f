// Package lockfile provides an exclusive advisory lock shared between
// processes, so a CLI sync and a daemon sync never run at the same time.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrLocked is returned by TryLock when another process holds the lock.
var ErrLocked = errors.New("lockfile: held by another process")

// pollInterval is how often Lock retries while waiting.
const pollInterval = 50 * time.Millisecond

// Lock is an advisory lock on a file. The zero value is not usable.
type Lock struct {
	path string
	f    *os.File
}

// New returns a lock on path. The file is created on first use.
func New(path string) *Lock {
	return &Lock{path: path}
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// TryLock takes the lock without waiting. It returns ErrLocked if another
// process holds it.
func (l *Lock) TryLock() error {
	if l.f != nil {
		return fmt.Errorf("lockfile: %s already held by this process", l.path)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	// #nosec G304 - path comes from configuration
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := tryLock(f); err != nil {
		_ = f.Close()
		return err
	}

	l.f = f
	_ = f.Truncate(0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	return nil
}

// Lock waits until the lock is taken or ctx is done.
func (l *Lock) Lock(ctx context.Context) error {
	for {
		err := l.TryLock()
		if !errors.Is(err, ErrLocked) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Unlock releases the lock. Unlocking a lock that is not held does nothing.
func (l *Lock) Unlock() error {
	if l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil
	if err := unlock(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return f.Close()
}
