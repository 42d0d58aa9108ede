package worker

import (
	"context"
	"fmt"
	"os"

	"github.com/Iron-Ham/lockstep/internal/logging"
)

// IsChild reports whether this process was spawned as a worker.
func IsChild() bool {
	_, ok := os.LookupEnv(EnvVar(keyID))
	return ok
}

// InitMain turns the current process into a worker when it was spawned as
// one, and exits with the worker's code. Otherwise it returns immediately.
// Test binaries call it first thing in TestMain so the driver can re-exec
// them:
//
//	func TestMain(m *testing.M) {
//	    worker.InitMain()
//	    os.Exit(m.Run())
//	}
func InitMain() {
	if !IsChild() {
		return
	}
	os.Exit(Main(context.Background()))
}

// Main runs a worker from the process environment and returns its exit
// status.
func Main(ctx context.Context) int {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "lockstep worker: %v\n", err)
		return int(FaultExitCode)
	}

	logger, err := logging.NewLogger("", cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lockstep worker: %v\n", err)
		return int(FaultExitCode)
	}
	defer func() { _ = logger.Close() }()

	code, err := New(cfg, WithLogger(logger)).Run(ctx)
	if err != nil {
		logger.WithWorker(int(cfg.ID)).Error("worker failed", "error", err)
		return int(FaultExitCode)
	}
	return int(code)
}
