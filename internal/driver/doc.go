// Package driver spawns lockstep workers and steers them through their
// breakpoints.
//
// A [Manager] owns the broker and the shared files of one run. Workers are
// configured with a [Builder] and controlled through the returned
// [ProcessHandle]:
//
//	m, _ := driver.NewManager(cfg)
//	if err := m.Start(); err != nil {
//	    return err
//	}
//	defer m.Stop()
//	defer m.Cleanup()
//
//	a, _ := m.Builder().Breakpoint(worker.AfterLock).StartAndWaitForBreakpoint()
//	b, _ := m.Builder().TryLock(true).StartAndWait(ctx)
//	_ = b.AssertExitCode(worker.TryLockFailed)
//
//	_ = a.Proceed()
//	_ = m.Await(ctx, a)
//	_ = a.AssertExitCode(worker.Success)
//
// # Breakpoint Rendezvous
//
// Each handle keeps the breakpoint it expects next. The worker's report and
// the driver's WaitForBreakpoint meet in a one-slot handoff, so either may
// happen first. A report of a breakpoint that was not armed, or of a
// different one, surfaces from WaitForBreakpoint as an
// [errors.BreakpointViolationError]. Arming while a breakpoint is still
// pending is rejected the same way.
//
// Signals to a worker wait until its CONNECT has arrived, so a breakpoint
// can be armed right after Start.
//
// # Spawning
//
// Workers are child processes of the driver running the command given with
// [WithCommand], by default the current executable. Test binaries become
// workers by calling worker.InitMain from TestMain. Children inherit the
// driver's stdout and stderr.
package driver
