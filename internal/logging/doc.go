// Package logging provides structured logging for the lockstep driver,
// broker and worker processes.
//
// This package wraps Go's log/slog to emit JSON lines. Every process of a
// harness run writes to the same terminal: workers inherit the driver's
// standard streams and log to stderr, so each entry carries enough context
// (run id, worker id, component) to untangle interleaved output afterwards.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("", "INFO") // stderr
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("broker listening", "addr", addr)
//
// # Context Propagation
//
//	workerLog := logger.WithRun(runID).WithWorker(3).WithComponent("worker")
//	workerLog.Info("stopped at breakpoint", "breakpoint", "MUTEX_AREA")
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"stopped at breakpoint","run_id":"...","worker_id":3,"component":"worker","breakpoint":"MUTEX_AREA"}
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewWriterLogger] with a buffer to
// assert on entries.
package logging
