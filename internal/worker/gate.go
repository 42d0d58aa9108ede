package worker

import (
	"sync"

	"github.com/Iron-Ham/lockstep/internal/errors"
)

// gate holds the single armed breakpoint and the pause handshake.
type gate struct {
	mu      sync.Mutex
	armed   Breakpoint
	paused  Breakpoint
	proceed chan struct{}
}

func newGate() *gate {
	return &gate{proceed: make(chan struct{}, 1)}
}

// arm sets the armed breakpoint. At most one breakpoint can be armed.
func (g *gate) arm(bp Breakpoint) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.armed != NoBreakpoint {
		return errors.NewBreakpointViolationError("arm breakpoint", errors.ErrAlreadyArmed).
			WithArmed(g.armed.String()).
			WithReported(bp.String())
	}
	g.armed = bp
	return nil
}

// take reports whether bp is armed. If so it disarms it and marks the
// worker as paused there, so a PROCEED arriving from now on is accepted.
func (g *gate) take(bp Breakpoint) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.armed != bp {
		return false
	}
	g.armed = NoBreakpoint
	g.paused = bp
	return true
}

// release resumes a paused worker. It returns false when nothing is paused.
func (g *gate) release() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.paused == NoBreakpoint {
		return false
	}
	g.paused = NoBreakpoint
	g.proceed <- struct{}{}
	return true
}

func (g *gate) armedBreakpoint() Breakpoint {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armed
}

// abandon clears the paused state after a wait gave up.
func (g *gate) abandon() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.paused = NoBreakpoint
	select {
	case <-g.proceed:
	default:
	}
}
