// Package event provides a pub-sub event bus for lockstep harness events.
//
// The driver publishes worker lifecycle events, the marker watcher publishes
// marker changes, and the scenario runner publishes results. Reporters and
// tests subscribe without the publishers knowing about them.
//
// # Main Types
//
//   - [Event]: Interface that all events implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub dispatcher, safe for concurrent use
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Types
//
//   - [WorkerStartedEvent] (worker.started)
//   - [WorkerConnectedEvent] (worker.connected)
//   - [WorkerBreakpointEvent] (worker.breakpoint)
//   - [WorkerExitedEvent] (worker.exited)
//   - [MarkerChangedEvent] (marker.changed)
//   - [ScenarioFinishedEvent] (scenario.finished)
//
// # Basic Usage
//
//	bus := event.NewBus(logger)
//
//	bus.Subscribe(event.TypeWorkerExited, func(e event.Event) {
//	    exited := e.(event.WorkerExitedEvent)
//	    logger.Info("worker exited", "worker_id", exited.WorkerID, "code", exited.ExitCode)
//	})
//
//	bus.Publish(event.NewWorkerExitedEvent(3, 0, false))
//
// Handlers run synchronously on the publisher's goroutine. A panicking
// handler is logged and does not prevent delivery to the others.
package event
