package driver

import (
	"sync"
	"time"

	"github.com/Iron-Ham/lockstep/internal/errors"
	"github.com/Iron-Ham/lockstep/internal/worker"
)

// arrival is one breakpoint report handed from the signal handler to the
// waiting driver.
type arrival struct {
	bp  worker.Breakpoint
	err error
}

// rendezvous pairs a worker's breakpoint report with the driver's wait.
// It holds at most one pending arrival, so it does not matter whether the
// report or the wait happens first.
type rendezvous struct {
	id int

	mu      sync.Mutex
	armed   worker.Breakpoint
	pending *arrival
	notify  chan struct{}
}

func newRendezvous(id int, armed worker.Breakpoint) *rendezvous {
	return &rendezvous{
		id:     id,
		armed:  armed,
		notify: make(chan struct{}, 1),
	}
}

// arm records bp as the breakpoint the driver expects next.
func (r *rendezvous) arm(bp worker.Breakpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.armed != worker.NoBreakpoint {
		return errors.NewBreakpointViolationError("activate breakpoint", errors.ErrAlreadyArmed).
			WithWorkerID(r.id).
			WithArmed(r.armed.String()).
			WithReported(bp.String())
	}
	r.armed = bp
	return nil
}

// disarm drops an armed breakpoint whose arming never reached the worker.
func (r *rendezvous) disarm(bp worker.Breakpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.armed == bp {
		r.armed = worker.NoBreakpoint
	}
}

func (r *rendezvous) current() worker.Breakpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.armed
}

// report records a worker's arrival. A report that does not match the
// armed breakpoint is recorded as a violation. It returns false if an
// earlier arrival is still pending.
func (r *rendezvous) report(bp worker.Breakpoint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending != nil {
		return false
	}
	a := &arrival{bp: bp}
	switch {
	case r.armed == worker.NoBreakpoint:
		a.err = errors.NewBreakpointViolationError("report breakpoint", errors.ErrNotArmed).
			WithWorkerID(r.id).
			WithReported(bp.String())
	case r.armed != bp:
		a.err = errors.NewBreakpointViolationError("report breakpoint", errors.ErrUnexpectedBreakpoint).
			WithWorkerID(r.id).
			WithArmed(r.armed.String()).
			WithReported(bp.String())
	}
	r.pending = a

	select {
	case r.notify <- struct{}{}:
	default:
	}
	return true
}

// take consumes the pending arrival and clears the armed breakpoint.
func (r *rendezvous) take() (arrival, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending == nil {
		return arrival{}, false
	}
	a := *r.pending
	r.pending = nil
	r.armed = worker.NoBreakpoint
	return a, true
}

// proceeded discards an arrival the driver resumed without waiting for.
// It reports whether there was one. With nothing pending the armed
// breakpoint is left alone, since the worker has not reached it yet.
func (r *rendezvous) proceeded() bool {
	_, ok := r.take()
	select {
	case <-r.notify:
	default:
	}
	return ok
}

// wait blocks until an arrival is pending, the worker exits or timeout
// elapses. A completed wait clears the armed breakpoint.
func (r *rendezvous) wait(timeout time.Duration, exited <-chan struct{}) (worker.Breakpoint, error) {
	expected := r.current()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if a, ok := r.take(); ok {
			return a.bp, a.err
		}

		select {
		case <-r.notify:
		case <-exited:
			// A report can land just before the exit is observed.
			if a, ok := r.take(); ok {
				return a.bp, a.err
			}
			return worker.NoBreakpoint, errors.Wrapf(errors.ErrNotRunning,
				"worker %d exited before reaching breakpoint %s", r.id, expected)
		case <-timer.C:
			return worker.NoBreakpoint, errors.NewTimeoutError("wait for breakpoint "+expected.String(), timeout).
				WithWorkerID(r.id)
		}
	}
}
