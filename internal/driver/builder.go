package driver

import (
	"context"
	"time"

	"github.com/Iron-Ham/lockstep/internal/worker"
)

// Builder configures and starts workers. Setters chain; each Start uses a
// copy of the current configuration.
type Builder struct {
	m   *Manager
	cfg worker.Config
}

func newBuilder(m *Manager) *Builder {
	cfg := worker.DefaultConfig()
	cfg.BreakpointTimeout = m.cfg.Worker.BreakpointTimeout
	cfg.LockTimeout = m.cfg.Worker.LockTimeout
	cfg.WorkDuration = m.cfg.Worker.WorkDuration
	cfg.LogLevel = m.cfg.Logging.Level
	return &Builder{m: m, cfg: cfg}
}

// UseLock sets whether the worker takes the lock at all (default true).
func (b *Builder) UseLock(v bool) *Builder {
	b.cfg.UseLock = v
	return b
}

// TryLock makes the worker use a single non-blocking attempt.
func (b *Builder) TryLock(v bool) *Builder {
	b.cfg.TryLock = v
	return b
}

// SkipUnlock makes the worker exit without releasing the lock.
func (b *Builder) SkipUnlock(v bool) *Builder {
	b.cfg.SkipUnlock = v
	return b
}

// HaltInMutexArea makes the worker terminate abruptly on entering the
// mutex area.
func (b *Builder) HaltInMutexArea(v bool) *Builder {
	b.cfg.HaltInMutexArea = v
	return b
}

// Breakpoint arms bp before the worker starts its script.
func (b *Builder) Breakpoint(bp worker.Breakpoint) *Builder {
	b.cfg.Breakpoint = bp
	return b
}

// BreakpointTimeout bounds the worker's wait at a breakpoint.
// worker.TimeoutDisabled waits forever.
func (b *Builder) BreakpointTimeout(d time.Duration) *Builder {
	b.cfg.BreakpointTimeout = d
	return b
}

// LockTimeout bounds a blocking lock acquisition.
// worker.TimeoutDisabled waits forever.
func (b *Builder) LockTimeout(d time.Duration) *Builder {
	b.cfg.LockTimeout = d
	return b
}

// WorkDuration sets how long the worker stays in the mutex area.
func (b *Builder) WorkDuration(d time.Duration) *Builder {
	b.cfg.WorkDuration = d
	return b
}

// Config returns the worker configuration built so far. Id, broker address
// and paths are filled in at Start.
func (b *Builder) Config() worker.Config {
	return b.cfg
}

// Start spawns one worker.
func (b *Builder) Start() (*ProcessHandle, error) {
	return b.m.spawn(b.cfg)
}

// StartN spawns n workers with identical configuration. On failure the
// workers already started are returned along with the error.
func (b *Builder) StartN(n int) ([]*ProcessHandle, error) {
	handles := make([]*ProcessHandle, 0, n)
	for i := 0; i < n; i++ {
		h, err := b.Start()
		if err != nil {
			return handles, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// StartAndWait spawns one worker and waits for it to exit.
func (b *Builder) StartAndWait(ctx context.Context) (*ProcessHandle, error) {
	h, err := b.Start()
	if err != nil {
		return nil, err
	}
	if _, err := h.WaitFor(ctx); err != nil {
		return h, err
	}
	return h, nil
}

// StartAndWaitForBreakpoint spawns one worker and waits until it reports
// the breakpoint set with Breakpoint.
func (b *Builder) StartAndWaitForBreakpoint() (*ProcessHandle, error) {
	h, err := b.Start()
	if err != nil {
		return nil, err
	}
	if err := h.WaitForBreakpoint(); err != nil {
		return h, err
	}
	return h, nil
}
