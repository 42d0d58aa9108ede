// Package testutil provides testing utilities for lockstep tests.
package testutil

import (
	"net"
	"path/filepath"
	"testing"
	"time"
)

// DefaultWait bounds helpers that poll for a condition.
const DefaultWait = 5 * time.Second

// Paths holds per-test shared resource paths for workers.
type Paths struct {
	Dir      string
	Resource string // mutex-area marker
	Sync     string // lock file
}

// SetupPaths creates a temporary directory holding the marker and lock file
// paths. Neither file is created. The directory is removed when the test
// completes.
func SetupPaths(t *testing.T) Paths {
	t.Helper()

	dir := t.TempDir()
	return Paths{
		Dir:      dir,
		Resource: filepath.Join(dir, "shared.resource"),
		Sync:     filepath.Join(dir, "sync.lock"),
	}
}

// Eventually polls cond until it returns true or DefaultWait elapses.
func Eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(DefaultWait)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", DefaultWait, msg)
}

// Receive waits for a value on ch or fails the test after DefaultWait.
func Receive[T any](t *testing.T, ch <-chan T, msg string) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(DefaultWait):
		t.Fatalf("nothing received within %v: %s", DefaultWait, msg)
	}
	var zero T
	return zero
}

// Dial opens a TCP connection to addr and closes it when the test completes.
func Dial(t *testing.T, addr string) net.Conn {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, DefaultWait)
	if err != nil {
		t.Fatalf("failed to dial %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// LoopbackAddr is an ephemeral loopback listen address.
const LoopbackAddr = "127.0.0.1:0"
