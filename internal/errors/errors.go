// Package errors provides the error taxonomy shared by the lockstep broker,
// worker and driver. It defines sentinel errors, typed errors carrying the
// worker and breakpoint context they were raised in, and classification
// helpers.
//
// # Error Types
//
//   - ProtocolError: malformed frame (bad id, unknown code, oversize line);
//     fatal to the connection it arrived on.
//   - RegistryError: operation addressed to an unregistered (or doubly
//     registered) worker id; reported to the caller, never retried.
//   - BreakpointViolationError: double-arming a breakpoint or a report for a
//     breakpoint that was not armed. Signals a test-authoring bug.
//   - TimeoutError: a bounded wait exceeded its deadline.
//   - ResourceConflictError: marker-file collision in the mutex area.
//   - LifecycleError: start/stop called in the wrong state.
//
// # Usage
//
//	err := errors.NewRegistryError("send signal", errors.ErrNotRegistered).WithWorkerID(3)
//
//	var regErr *errors.RegistryError
//	if errors.As(err, &regErr) { ... }
//	if errors.Is(err, errors.ErrNotRegistered) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning Severity = iota
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityFatal is for errors that must stop the current test.
	SeverityFatal
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Protocol sentinel errors
var (
	// ErrMalformedFrame indicates a frame that does not follow SENDER_ID:CODE[:PARAM...].
	ErrMalformedFrame = New("malformed frame")
	// ErrInvalidSender indicates a sender id that is not a non-negative integer.
	ErrInvalidSender = New("invalid sender id")
	// ErrUnknownCode indicates a signal code outside the known set.
	ErrUnknownCode = New("unknown signal code")
	// ErrFrameTooLong indicates a frame longer than the transport allows.
	ErrFrameTooLong = New("frame too long")
	// ErrInvalidParam indicates a parameter that cannot be framed.
	ErrInvalidParam = New("invalid signal parameter")
	// ErrVersionMismatch indicates a CONNECT announcing another protocol version.
	ErrVersionMismatch = New("protocol version mismatch")
	// ErrNotConnected indicates a frame received before CONNECT.
	ErrNotConnected = New("frame before connect")
)

// Registry sentinel errors
var (
	// ErrNotRegistered indicates that no entry exists for the worker id.
	ErrNotRegistered = New("worker not registered")
	// ErrAlreadyRegistered indicates that the worker id already has an entry.
	ErrAlreadyRegistered = New("worker already registered")
)

// Breakpoint sentinel errors
var (
	// ErrAlreadyArmed indicates an attempt to arm a second breakpoint.
	ErrAlreadyArmed = New("breakpoint already armed")
	// ErrNotArmed indicates a report for a breakpoint that was never armed.
	ErrNotArmed = New("breakpoint not armed")
	// ErrUnexpectedBreakpoint indicates a report for a different breakpoint than the armed one.
	ErrUnexpectedBreakpoint = New("unexpected breakpoint")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrMarkerExists indicates that the mutex-area marker was already present.
	ErrMarkerExists = New("marker already exists")
	// ErrMarkerMissing indicates that the mutex-area marker vanished while held.
	ErrMarkerMissing = New("marker missing")
	// ErrAlreadyRunning indicates a start on a running component.
	ErrAlreadyRunning = New("already running")
	// ErrNotRunning indicates a stop or send on a stopped component.
	ErrNotRunning = New("not running")
	// ErrExitCodeMismatch indicates a worker terminated with an unexpected exit code.
	ErrExitCodeMismatch = New("exit code mismatch")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// HarnessError is the base interface for all lockstep errors.
type HarnessError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity
}

// baseError provides common functionality for all error types.
type baseError struct {
	message  string
	cause    error
	severity Severity
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// format renders "<kind> [k=v, ...]: message: cause".
func (e *baseError) format(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Protocol Errors
// -----------------------------------------------------------------------------

// ProtocolError represents a frame that could not be decoded or is not
// allowed in the current connection state.
//
// Example:
//
//	err := errors.NewProtocolError("decode frame", errors.ErrUnknownCode).WithFrame("1:HELLO")
//	fmt.Println(err) // "protocol error [frame="1:HELLO"]: decode frame: unknown signal code"
type ProtocolError struct {
	baseError
	Frame    string
	WorkerID int
}

// NewProtocolError creates a new ProtocolError.
func NewProtocolError(message string, cause error) *ProtocolError {
	return &ProtocolError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithFrame adds the offending frame to the error context.
func (e *ProtocolError) WithFrame(frame string) *ProtocolError {
	e.Frame = frame
	return e
}

// WithWorkerID adds the worker the frame came from.
func (e *ProtocolError) WithWorkerID(id int) *ProtocolError {
	e.WorkerID = id
	return e
}

// Error returns the formatted error message.
func (e *ProtocolError) Error() string {
	var parts []string
	if e.Frame != "" {
		parts = append(parts, fmt.Sprintf("frame=%q", e.Frame))
	}
	if e.WorkerID != 0 {
		parts = append(parts, fmt.Sprintf("worker=%d", e.WorkerID))
	}
	return e.format("protocol error", parts)
}

// Is checks if this error matches the target.
func (e *ProtocolError) Is(target error) bool {
	if _, ok := target.(*ProtocolError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Registry Errors
// -----------------------------------------------------------------------------

// RegistryError represents an operation addressed to a worker id that has no
// (or already has a) registry entry.
type RegistryError struct {
	baseError
	WorkerID int
}

// NewRegistryError creates a new RegistryError.
func NewRegistryError(message string, cause error) *RegistryError {
	return &RegistryError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithWorkerID adds a worker id to the error context.
func (e *RegistryError) WithWorkerID(id int) *RegistryError {
	e.WorkerID = id
	return e
}

// Error returns the formatted error message.
func (e *RegistryError) Error() string {
	return e.format("registry error", []string{fmt.Sprintf("worker=%d", e.WorkerID)})
}

// Is checks if this error matches the target.
func (e *RegistryError) Is(target error) bool {
	if _, ok := target.(*RegistryError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Breakpoint Errors
// -----------------------------------------------------------------------------

// BreakpointViolationError reports misuse of the breakpoint protocol. It is
// never recoverable: it means the test itself is wrong.
//
// Example:
//
//	err := errors.NewBreakpointViolationError("activate breakpoint", errors.ErrAlreadyArmed).
//		WithWorkerID(2).WithArmed("BEFORE_LOCK").WithReported("AFTER_LOCK")
type BreakpointViolationError struct {
	baseError
	WorkerID int
	Armed    string
	Reported string
}

// NewBreakpointViolationError creates a new BreakpointViolationError.
func NewBreakpointViolationError(message string, cause error) *BreakpointViolationError {
	return &BreakpointViolationError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityFatal,
		},
	}
}

// WithWorkerID adds a worker id to the error context.
func (e *BreakpointViolationError) WithWorkerID(id int) *BreakpointViolationError {
	e.WorkerID = id
	return e
}

// WithArmed records the breakpoint that was armed at the time.
func (e *BreakpointViolationError) WithArmed(name string) *BreakpointViolationError {
	e.Armed = name
	return e
}

// WithReported records the breakpoint the worker reported.
func (e *BreakpointViolationError) WithReported(name string) *BreakpointViolationError {
	e.Reported = name
	return e
}

// Error returns the formatted error message.
func (e *BreakpointViolationError) Error() string {
	parts := []string{fmt.Sprintf("worker=%d", e.WorkerID)}
	if e.Armed != "" {
		parts = append(parts, fmt.Sprintf("armed=%s", e.Armed))
	}
	if e.Reported != "" {
		parts = append(parts, fmt.Sprintf("reported=%s", e.Reported))
	}
	return e.format("breakpoint violation", parts)
}

// Is checks if this error matches the target.
func (e *BreakpointViolationError) Is(target error) bool {
	if _, ok := target.(*BreakpointViolationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Timeout Errors
// -----------------------------------------------------------------------------

// TimeoutError represents a bounded wait that exceeded its deadline.
//
// Example:
//
//	err := errors.NewTimeoutError("wait for breakpoint MUTEX_AREA", 5*time.Second).WithWorkerID(1)
//	fmt.Println(err) // "timeout error [worker=1]: wait for breakpoint MUTEX_AREA (timeout: 5s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
	WorkerID  int
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:  operation,
			severity: SeverityFatal,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithWorkerID adds a worker id to the error context.
func (e *TimeoutError) WithWorkerID(id int) *TimeoutError {
	e.WorkerID = id
	return e
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	prefix := "timeout error"
	if e.WorkerID != 0 {
		prefix = fmt.Sprintf("timeout error [worker=%d]", e.WorkerID)
	}
	base := fmt.Sprintf("%s: %s (timeout: %s)", prefix, e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Resource Conflict Errors
// -----------------------------------------------------------------------------

// ResourceConflictError represents a collision on the mutex-area marker. It
// is the condition the harness exists to detect.
type ResourceConflictError struct {
	baseError
	Path string
}

// NewResourceConflictError creates a new ResourceConflictError.
func NewResourceConflictError(message string, cause error) *ResourceConflictError {
	return &ResourceConflictError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityFatal,
		},
	}
}

// WithPath adds the marker path to the error context.
func (e *ResourceConflictError) WithPath(path string) *ResourceConflictError {
	e.Path = path
	return e
}

// Error returns the formatted error message.
func (e *ResourceConflictError) Error() string {
	var parts []string
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	return e.format("resource conflict", parts)
}

// Is checks if this error matches the target.
func (e *ResourceConflictError) Is(target error) bool {
	if _, ok := target.(*ResourceConflictError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Lifecycle Errors
// -----------------------------------------------------------------------------

// LifecycleError represents a start or stop issued in the wrong state.
type LifecycleError struct {
	baseError
	Component string
}

// NewLifecycleError creates a new LifecycleError.
func NewLifecycleError(component string, cause error) *LifecycleError {
	return &LifecycleError{
		baseError: baseError{
			message:  component,
			cause:    cause,
			severity: SeverityError,
		},
		Component: component,
	}
}

// Error returns the formatted error message.
func (e *LifecycleError) Error() string {
	return fmt.Sprintf("%s: %v", e.Component, e.cause)
}

// Is checks if this error matches the target.
func (e *LifecycleError) Is(target error) bool {
	if _, ok := target.(*LifecycleError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsFatal reports whether err must stop the current test. Breakpoint
// violations, timeouts and resource conflicts are fatal.
func IsFatal(err error) bool {
	return GetSeverity(err) == SeverityFatal
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement HarnessError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityWarning
	}

	var harnessErr HarnessError
	if As(err, &harnessErr) {
		return harnessErr.Severity()
	}

	return SeverityError
}

// IsProtocolError reports whether err is, or wraps, a ProtocolError.
func IsProtocolError(err error) bool {
	var protoErr *ProtocolError
	return As(err, &protoErr)
}

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to start broker")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
