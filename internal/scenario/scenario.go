package scenario

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gobwas/glob"
	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/lockstep/internal/driver"
	"github.com/Iron-Ham/lockstep/internal/worker"
)

// Scenario is one runnable property check.
type Scenario struct {
	Name        string
	Description string
	Run         func(ctx context.Context, m *driver.Manager) error
}

var catalogue = []Scenario{
	{
		Name:        "step-control",
		Description: "a worker stops at every breakpoint in order and is resumed step by step",
		Run:         stepControl,
	},
	{
		Name:        "exclusive-access",
		Description: "three locking workers never overlap in the mutex area",
		Run:         exclusiveAccess,
	},
	{
		Name:        "no-lock-overlap",
		Description: "without the lock, forced overlap is detected as concurrent access",
		Run:         noLockOverlap,
	},
	{
		Name:        "try-lock-success",
		Description: "a try-lock on a free lock succeeds",
		Run:         tryLockSuccess,
	},
	{
		Name:        "try-lock-failure",
		Description: "a try-lock on a held lock fails immediately",
		Run:         tryLockFailure,
	},
	{
		Name:        "lock-timeout",
		Description: "a bounded lock wait on a held lock times out",
		Run:         lockTimeout,
	},
	{
		Name:        "breakpoint-timeout",
		Description: "a worker never resumed gives up after its breakpoint timeout",
		Run:         breakpointTimeout,
	},
	{
		Name:        "breakpoint-proceed",
		Description: "a worker resumed before its breakpoint timeout completes",
		Run:         breakpointProceed,
	},
	{
		Name:        "unlock-on-regular-exit",
		Description: "a lock never released explicitly is freed when the holder exits",
		Run:         unlockOnRegularExit,
	},
	{
		Name:        "unlock-on-kill",
		Description: "a lock is freed when the holder is killed",
		Run:         unlockOnKill,
	},
	{
		Name:        "unlock-on-halt",
		Description: "a lock is freed when the holder halts in the mutex area",
		Run:         unlockOnHalt,
	},
}

// All returns every scenario in catalogue order.
func All() []Scenario {
	out := make([]Scenario, len(catalogue))
	copy(out, catalogue)
	return out
}

// Lookup returns the scenario called name.
func Lookup(name string) (Scenario, bool) {
	for _, s := range catalogue {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// Filter returns the scenarios whose name matches the glob pattern.
// An empty pattern matches everything.
func Filter(pattern string) ([]Scenario, error) {
	if pattern == "" {
		return All(), nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", pattern, err)
	}

	var out []Scenario
	for _, s := range catalogue {
		if g.Match(s.Name) {
			out = append(out, s)
		}
	}
	return out, nil
}

func markerPresent(m *driver.Manager) bool {
	_, err := os.Stat(m.Paths().Resource)
	return err == nil
}

func stepControl(ctx context.Context, m *driver.Manager) error {
	h, err := m.Builder().Breakpoint(worker.BeforeLock).StartAndWaitForBreakpoint()
	if err != nil {
		return err
	}
	if markerPresent(m) {
		return fmt.Errorf("marker present before the lock was taken")
	}

	if err := h.ProceedToBreakpoint(worker.AfterLock); err != nil {
		return err
	}
	if err := h.ProceedToBreakpoint(worker.MutexArea); err != nil {
		return err
	}
	if !markerPresent(m) {
		return fmt.Errorf("marker missing while paused in the mutex area")
	}
	if err := h.ProceedToBreakpoint(worker.AfterUnlock); err != nil {
		return err
	}
	if markerPresent(m) {
		return fmt.Errorf("marker present after the mutex area was left")
	}

	if err := h.Proceed(); err != nil {
		return err
	}
	if err := m.Await(ctx, h); err != nil {
		return err
	}
	return h.AssertExitCode(worker.Success)
}

func exclusiveAccess(ctx context.Context, m *driver.Manager) error {
	const n = 3
	entries, overlaps := m.MarkerEntries(), m.MarkerOverlaps()

	handles := make([]*driver.ProcessHandle, n)
	g := new(errgroup.Group)
	for i := range handles {
		g.Go(func() error {
			h, err := m.Builder().WorkDuration(20 * time.Millisecond).Start()
			handles[i] = h
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := m.Await(ctx, handles...); err != nil {
		return err
	}
	if err := m.AssertExitCode(worker.Success, handles...); err != nil {
		return err
	}
	return expectMarkerEntries(ctx, m, entries, n, overlaps)
}

// expectMarkerEntries checks that the observer saw exactly want new marker
// creations since the base snapshot and no creation on top of a present
// marker.
func expectMarkerEntries(ctx context.Context, m *driver.Manager, base, want, overlaps int) error {
	if err := m.WaitForMarkerEntries(ctx, base+want); err != nil {
		return err
	}
	if got := m.MarkerEntries() - base; got != want {
		return fmt.Errorf("marker created %d times, want %d", got, want)
	}
	if got := m.MarkerOverlaps() - overlaps; got != 0 {
		return fmt.Errorf("marker created %d times while already present", got)
	}
	return nil
}

func noLockOverlap(ctx context.Context, m *driver.Manager) error {
	entries, overlaps := m.MarkerEntries(), m.MarkerOverlaps()

	first, err := m.Builder().UseLock(false).Breakpoint(worker.MutexArea).StartAndWaitForBreakpoint()
	if err != nil {
		return err
	}

	second, err := m.Builder().UseLock(false).StartAndWait(ctx)
	if err != nil {
		return err
	}
	if err := second.AssertExitCode(worker.ConcurrentAccessError); err != nil {
		return err
	}

	if err := first.Proceed(); err != nil {
		return err
	}
	if err := m.Await(ctx, first); err != nil {
		return err
	}
	if err := first.AssertExitCode(worker.Success); err != nil {
		return err
	}
	// The second worker's creation attempt must have failed.
	return expectMarkerEntries(ctx, m, entries, 1, overlaps)
}

func tryLockSuccess(ctx context.Context, m *driver.Manager) error {
	h, err := m.Builder().TryLock(true).StartAndWait(ctx)
	if err != nil {
		return err
	}
	return h.AssertExitCode(worker.Success)
}

func tryLockFailure(ctx context.Context, m *driver.Manager) error {
	holder, err := m.Builder().Breakpoint(worker.MutexArea).SkipUnlock(true).StartAndWaitForBreakpoint()
	if err != nil {
		return err
	}

	contender, err := m.Builder().TryLock(true).StartAndWait(ctx)
	if err != nil {
		return err
	}
	if err := contender.AssertExitCode(worker.TryLockFailed); err != nil {
		return err
	}

	if err := holder.Proceed(); err != nil {
		return err
	}
	if err := m.Await(ctx, holder); err != nil {
		return err
	}
	return holder.AssertExitCode(worker.Success)
}

// lockTimeoutMargin bounds how far past its deadline a timed-out lock wait
// may be observed by the driver.
const lockTimeoutMargin = time.Second

func lockTimeout(ctx context.Context, m *driver.Manager) error {
	holder, err := m.Builder().
		Breakpoint(worker.MutexArea).
		BreakpointTimeout(worker.TimeoutDisabled).
		StartAndWaitForBreakpoint()
	if err != nil {
		return err
	}

	const timeout = 10 * time.Millisecond
	waiter, err := m.Builder().
		Breakpoint(worker.BeforeLock).
		LockTimeout(timeout).
		StartAndWaitForBreakpoint()
	if err != nil {
		return err
	}

	start := time.Now()
	if err := waiter.Proceed(); err != nil {
		return err
	}
	if err := m.Await(ctx, waiter); err != nil {
		return err
	}
	elapsed := time.Since(start)
	if err := waiter.AssertExitCode(worker.WorkerLockTimeout); err != nil {
		return err
	}
	if elapsed < timeout || elapsed > timeout+lockTimeoutMargin {
		return fmt.Errorf("lock wait ended after %v, want about %v", elapsed, timeout)
	}

	return holder.Kill()
}

func breakpointTimeout(ctx context.Context, m *driver.Manager) error {
	const timeout = 50 * time.Millisecond

	h, err := m.Builder().
		Breakpoint(worker.BeforeLock).
		BreakpointTimeout(timeout).
		StartAndWaitForBreakpoint()
	if err != nil {
		return err
	}
	if err := m.Await(ctx, h); err != nil {
		return err
	}
	return h.AssertExitCode(worker.BreakpointTimeout)
}

func breakpointProceed(ctx context.Context, m *driver.Manager) error {
	h, err := m.Builder().
		Breakpoint(worker.BeforeLock).
		BreakpointTimeout(5 * time.Second).
		StartAndWaitForBreakpoint()
	if err != nil {
		return err
	}
	if err := h.Proceed(); err != nil {
		return err
	}
	if err := m.Await(ctx, h); err != nil {
		return err
	}
	return h.AssertExitCode(worker.Success)
}

func unlockOnRegularExit(ctx context.Context, m *driver.Manager) error {
	first, err := m.Builder().SkipUnlock(true).StartAndWait(ctx)
	if err != nil {
		return err
	}
	if err := first.AssertExitCode(worker.Success); err != nil {
		return err
	}
	return expectNextAcquires(ctx, m)
}

func unlockOnKill(ctx context.Context, m *driver.Manager) error {
	holder, err := m.Builder().Breakpoint(worker.AfterLock).StartAndWaitForBreakpoint()
	if err != nil {
		return err
	}
	if err := holder.Kill(); err != nil {
		return err
	}
	if !holder.Killed() {
		return fmt.Errorf("worker %d not marked as killed", holder.ID())
	}
	return expectNextAcquires(ctx, m)
}

func unlockOnHalt(ctx context.Context, m *driver.Manager) error {
	first, err := m.Builder().HaltInMutexArea(true).StartAndWait(ctx)
	if err != nil {
		return err
	}
	if err := first.AssertExitCode(worker.HaltInMutexArea); err != nil {
		return err
	}
	return expectNextAcquires(ctx, m)
}

// expectNextAcquires starts a normally configured worker and checks that it
// gets the lock.
func expectNextAcquires(ctx context.Context, m *driver.Manager) error {
	next, err := m.Builder().StartAndWait(ctx)
	if err != nil {
		return err
	}
	return next.AssertExitCode(worker.Success)
}
