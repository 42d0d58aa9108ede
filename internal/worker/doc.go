// Package worker implements the lockstep worker: a process that runs a
// fixed lock script and can be paused at named breakpoints by the driver.
//
// The script is
//
//	BEFORE_LOCK → acquire → AFTER_LOCK → enter mutex area → MUTEX_AREA →
//	leave mutex area → release → AFTER_UNLOCK
//
// AFTER_LOCK and AFTER_UNLOCK exist only when the worker uses the lock.
// Inside the mutex area the worker creates a marker file exclusively; a
// marker that already exists proves two workers overlapped and ends the
// script with ConcurrentAccessError.
//
// At most one breakpoint is armed at a time. When the script reaches it,
// the worker disarms it, reports BREAKPOINT to the driver and waits for
// PROCEED. A wait that outlives the breakpoint timeout, a lock wait that
// outlives the lock timeout and a configured halt in the mutex area all
// terminate the process on the spot, leaving the lock and the marker for
// the OS and the driver to clean up.
//
// Configuration travels in LSWORKER_* environment variables; see
// [Config.Env] and [LoadConfig].
package worker
