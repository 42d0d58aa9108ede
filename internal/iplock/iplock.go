// Package iplock provides an inter-process exclusive lock backed by an
// advisory OS lock (flock(2) on Unix) on a designated sync file.
//
// The lock offers exactly three operations: a blocking Lock that waits
// indefinitely, a non-blocking TryLock, and Unlock, which is a no-op when the
// lock is not held. The OS releases the lock when the owning process dies,
// however it dies.
package iplock

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// Lock is an exclusive lock on a sync file shared between processes.
// A Lock value serialises its own callers; it is not reentrant across
// processes.
type Lock struct {
	mu    sync.Mutex
	path  string
	flock *flock.Flock
}

// New creates a Lock on the file at path. The file is created on first use.
func New(path string) *Lock {
	return &Lock{
		path:  path,
		flock: flock.New(path),
	}
}

// Path returns the sync file path.
func (l *Lock) Path() string {
	return l.path
}

// Lock acquires the lock, blocking until it is available.
func (l *Lock) Lock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ensureDir(l.path); err != nil {
		return err
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("flock %s: %w", l.path, err)
	}
	return nil
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false if another process holds it.
func (l *Lock) TryLock() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ensureDir(l.path); err != nil {
		return false, err
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("flock %s: %w", l.path, err)
	}
	return ok, nil
}

// Unlock releases the lock. Unlocking a lock that is not held is a no-op.
func (l *Lock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.flock.Locked() {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("funlock %s: %w", l.path, err)
	}
	return nil
}

// Held reports whether this Lock currently holds the OS lock.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flock.Locked()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("sync file directory: %w", err)
	}
	return nil
}
