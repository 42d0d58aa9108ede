// Package internal contains integration tests that verify the driver, the
// broker, the workers and the event bus work together across real
// processes.
package internal

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/lockstep/internal/config"
	"github.com/Iron-Ham/lockstep/internal/driver"
	"github.com/Iron-Ham/lockstep/internal/event"
	"github.com/Iron-Ham/lockstep/internal/scenario"
	"github.com/Iron-Ham/lockstep/internal/testutil"
	"github.com/Iron-Ham/lockstep/internal/worker"
)

func TestMain(m *testing.M) {
	worker.InitMain()
	os.Exit(m.Run())
}

// recorder collects every event published on a bus.
type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) record(e event.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

// workerTypes returns the event types recorded for one worker, in order.
func (r *recorder) workerTypes(id int) []string {
	var types []string
	for _, e := range r.snapshot() {
		switch ev := e.(type) {
		case event.WorkerStartedEvent:
			if ev.WorkerID == id {
				types = append(types, ev.EventType())
			}
		case event.WorkerConnectedEvent:
			if ev.WorkerID == id {
				types = append(types, ev.EventType())
			}
		case event.WorkerBreakpointEvent:
			if ev.WorkerID == id {
				types = append(types, ev.EventType())
			}
		case event.WorkerExitedEvent:
			if ev.WorkerID == id {
				types = append(types, ev.EventType())
			}
		}
	}
	return types
}

func (r *recorder) markerStates() []bool {
	var states []bool
	for _, e := range r.snapshot() {
		if ev, ok := e.(event.MarkerChangedEvent); ok {
			states = append(states, ev.Present)
		}
	}
	return states
}

func startManager(t *testing.T) (*driver.Manager, *recorder) {
	t.Helper()

	cfg := config.Default()
	cfg.Logging.Level = "error"

	m, err := driver.NewManager(cfg, driver.WithDir(t.TempDir()))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	rec := &recorder{}
	m.Bus().SubscribeAll(rec.record)

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		_ = m.Cleanup()
		_ = m.Stop()
	})
	return m, rec
}

// TestWorkerLifecycleEvents follows one worker through a breakpoint and
// checks what the bus saw.
func TestWorkerLifecycleEvents(t *testing.T) {
	m, rec := startManager(t)

	h, err := m.Builder().Breakpoint(worker.MutexArea).StartAndWaitForBreakpoint()
	if err != nil {
		t.Fatalf("StartAndWaitForBreakpoint() error = %v", err)
	}
	if err := h.Proceed(); err != nil {
		t.Fatalf("Proceed() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Await(ctx, h); err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if err := h.AssertExitCode(worker.Success); err != nil {
		t.Fatal(err)
	}

	// The breakpoint event is published after the arrival is recorded and
	// can trail the driver's wait, so only membership is checked.
	testutil.Eventually(t, func() bool {
		return len(rec.workerTypes(int(h.ID()))) == 4
	}, "four worker events")
	got := rec.workerTypes(int(h.ID()))
	seen := make(map[string]bool, len(got))
	for _, typ := range got {
		seen[typ] = true
	}
	for _, typ := range []string{event.TypeWorkerStarted, event.TypeWorkerConnected, event.TypeWorkerBreakpoint, event.TypeWorkerExited} {
		if !seen[typ] {
			t.Errorf("worker events = %v, missing %s", got, typ)
		}
	}

	testutil.Eventually(t, func() bool {
		states := rec.markerStates()
		return len(states) >= 2 && states[0] && !states[len(states)-1]
	}, "marker created then removed")
}

// TestContentionOverBus runs two contending workers and checks the exit
// events the bus reports.
func TestContentionOverBus(t *testing.T) {
	m, rec := startManager(t)

	holder, err := m.Builder().Breakpoint(worker.AfterLock).StartAndWaitForBreakpoint()
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	contender, err := m.Builder().TryLock(true).StartAndWait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := holder.Kill(); err != nil {
		t.Fatal(err)
	}

	exits := map[int]event.WorkerExitedEvent{}
	for _, e := range rec.snapshot() {
		if ev, ok := e.(event.WorkerExitedEvent); ok {
			exits[ev.WorkerID] = ev
		}
	}

	if ev := exits[int(contender.ID())]; ev.ExitCode != int(worker.TryLockFailed) || ev.Killed {
		t.Errorf("contender exit event = %+v, want TRY_LOCK_FAILED, not killed", ev)
	}
	if ev := exits[int(holder.ID())]; !ev.Killed {
		t.Errorf("holder exit event = %+v, want killed", ev)
	}
}

// TestScenarioRunPublishesOutcome runs a catalogue scenario through the
// runner.
func TestScenarioRunPublishesOutcome(t *testing.T) {
	m, rec := startManager(t)

	selected, err := scenario.Filter("breakpoint-proceed")
	if err != nil {
		t.Fatal(err)
	}
	results := scenario.NewRunner(m, nil).Run(context.Background(), selected)
	if len(results) != 1 || !results[0].Passed {
		t.Fatalf("results = %+v, want one passing result", results)
	}

	var finished []event.ScenarioFinishedEvent
	for _, e := range rec.snapshot() {
		if ev, ok := e.(event.ScenarioFinishedEvent); ok {
			finished = append(finished, ev)
		}
	}
	if len(finished) != 1 || finished[0].Name != "breakpoint-proceed" || !finished[0].Passed {
		t.Errorf("scenario events = %+v", finished)
	}
}
