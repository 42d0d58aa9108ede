package worker

import (
	"fmt"
	"time"

	"github.com/Iron-Ham/lockstep/internal/errors"
)

// Breakpoint names a pause point in the worker script.
type Breakpoint int

const (
	// NoBreakpoint is the zero value: nothing armed.
	NoBreakpoint Breakpoint = iota
	BeforeLock
	AfterLock
	MutexArea
	AfterUnlock
)

var breakpointNames = [...]string{
	NoBreakpoint: "",
	BeforeLock:   "BEFORE_LOCK",
	AfterLock:    "AFTER_LOCK",
	MutexArea:    "MUTEX_AREA",
	AfterUnlock:  "AFTER_UNLOCK",
}

// Breakpoints lists every pause point in script order.
func Breakpoints() []Breakpoint {
	return []Breakpoint{BeforeLock, AfterLock, MutexArea, AfterUnlock}
}

// String returns the wire name of the breakpoint.
func (b Breakpoint) String() string {
	if b < 0 || int(b) >= len(breakpointNames) {
		return fmt.Sprintf("Breakpoint(%d)", int(b))
	}
	return breakpointNames[b]
}

// ParseBreakpoint maps a wire name to its Breakpoint. The empty name is not
// a breakpoint.
func ParseBreakpoint(name string) (Breakpoint, error) {
	for _, b := range Breakpoints() {
		if b.String() == name {
			return b, nil
		}
	}
	return NoBreakpoint, errors.NewProtocolError(fmt.Sprintf("unknown breakpoint %q", name), errors.ErrMalformedFrame)
}

// ExitCode is the outcome a worker reports through its process exit status.
type ExitCode int

const (
	Success               ExitCode = 0
	TryLockFailed         ExitCode = 1
	BreakpointTimeout     ExitCode = 2
	WorkerLockTimeout     ExitCode = 3
	HaltInMutexArea       ExitCode = 4
	ConcurrentAccessError ExitCode = 5
)

// FaultExitCode is the status of a worker that could not run its script
// (bad environment, broker unreachable, protocol violation). It is not one
// of the script outcomes.
const FaultExitCode ExitCode = 125

var exitCodeNames = map[ExitCode]string{
	Success:               "SUCCESS",
	TryLockFailed:         "TRY_LOCK_FAILED",
	BreakpointTimeout:     "BREAKPOINT_TIMEOUT",
	WorkerLockTimeout:     "WORKER_LOCK_TIMEOUT",
	HaltInMutexArea:       "HALT_IN_MUTEX_AREA",
	ConcurrentAccessError: "CONCURRENT_ACCESS_ERROR",
	FaultExitCode:         "FAULT",
}

func (c ExitCode) String() string {
	if name, ok := exitCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("EXIT(%d)", int(c))
}

// Valid reports whether c is one of the script outcomes.
func (c ExitCode) Valid() bool {
	return c >= Success && c <= ConcurrentAccessError
}

// ParseExitCode maps a name such as "TRY_LOCK_FAILED" to its ExitCode.
func ParseExitCode(name string) (ExitCode, error) {
	for code, n := range exitCodeNames {
		if n == name {
			return code, nil
		}
	}
	return 0, fmt.Errorf("unknown exit code %q", name)
}

// TimeoutDisabled disables the breakpoint or lock timeout when used as its
// duration. Any negative duration has the same effect.
const TimeoutDisabled time.Duration = -1

// Disabled reports whether d disables a timeout.
func Disabled(d time.Duration) bool {
	return d < 0
}
