package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a "category.action" identifier, e.g. "worker.exited".
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// Event types.
const (
	TypeWorkerStarted    = "worker.started"
	TypeWorkerConnected  = "worker.connected"
	TypeWorkerBreakpoint = "worker.breakpoint"
	TypeWorkerExited     = "worker.exited"
	TypeMarkerChanged    = "marker.changed"
	TypeScenarioFinished = "scenario.finished"
)

// -----------------------------------------------------------------------------
// Worker Lifecycle Events
// -----------------------------------------------------------------------------

// WorkerStartedEvent is emitted after a worker process was spawned.
type WorkerStartedEvent struct {
	baseEvent
	WorkerID int
	PID      int
}

// NewWorkerStartedEvent creates a WorkerStartedEvent.
func NewWorkerStartedEvent(workerID, pid int) WorkerStartedEvent {
	return WorkerStartedEvent{
		baseEvent: newBaseEvent(TypeWorkerStarted),
		WorkerID:  workerID,
		PID:       pid,
	}
}

// WorkerConnectedEvent is emitted when a worker's CONNECT reaches the driver.
type WorkerConnectedEvent struct {
	baseEvent
	WorkerID int
}

// NewWorkerConnectedEvent creates a WorkerConnectedEvent.
func NewWorkerConnectedEvent(workerID int) WorkerConnectedEvent {
	return WorkerConnectedEvent{
		baseEvent: newBaseEvent(TypeWorkerConnected),
		WorkerID:  workerID,
	}
}

// WorkerBreakpointEvent is emitted when a worker reports arrival at a
// breakpoint.
type WorkerBreakpointEvent struct {
	baseEvent
	WorkerID   int
	Breakpoint string
}

// NewWorkerBreakpointEvent creates a WorkerBreakpointEvent.
func NewWorkerBreakpointEvent(workerID int, breakpoint string) WorkerBreakpointEvent {
	return WorkerBreakpointEvent{
		baseEvent:  newBaseEvent(TypeWorkerBreakpoint),
		WorkerID:   workerID,
		Breakpoint: breakpoint,
	}
}

// WorkerExitedEvent is emitted once a worker process has been reaped.
type WorkerExitedEvent struct {
	baseEvent
	WorkerID int
	ExitCode int  // -1 when the process died from a signal
	Killed   bool // Whether the driver killed it
}

// NewWorkerExitedEvent creates a WorkerExitedEvent.
func NewWorkerExitedEvent(workerID, exitCode int, killed bool) WorkerExitedEvent {
	return WorkerExitedEvent{
		baseEvent: newBaseEvent(TypeWorkerExited),
		WorkerID:  workerID,
		ExitCode:  exitCode,
		Killed:    killed,
	}
}

// -----------------------------------------------------------------------------
// Shared Resource Events
// -----------------------------------------------------------------------------

// MarkerChangedEvent is emitted when the mutex-area marker file appears or
// disappears.
type MarkerChangedEvent struct {
	baseEvent
	Path    string
	Present bool
}

// NewMarkerChangedEvent creates a MarkerChangedEvent.
func NewMarkerChangedEvent(path string, present bool) MarkerChangedEvent {
	return MarkerChangedEvent{
		baseEvent: newBaseEvent(TypeMarkerChanged),
		Path:      path,
		Present:   present,
	}
}

// -----------------------------------------------------------------------------
// Scenario Events
// -----------------------------------------------------------------------------

// ScenarioFinishedEvent is emitted after a scenario ran.
type ScenarioFinishedEvent struct {
	baseEvent
	Name     string
	Passed   bool
	Duration time.Duration
	Err      string // Empty when the scenario passed
}

// NewScenarioFinishedEvent creates a ScenarioFinishedEvent.
func NewScenarioFinishedEvent(name string, duration time.Duration, err error) ScenarioFinishedEvent {
	e := ScenarioFinishedEvent{
		baseEvent: newBaseEvent(TypeScenarioFinished),
		Name:      name,
		Passed:    err == nil,
		Duration:  duration,
	}
	if err != nil {
		e.Err = err.Error()
	}
	return e
}
