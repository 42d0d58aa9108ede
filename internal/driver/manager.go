package driver

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/lockstep/internal/broker"
	"github.com/Iron-Ham/lockstep/internal/config"
	"github.com/Iron-Ham/lockstep/internal/errors"
	"github.com/Iron-Ham/lockstep/internal/event"
	"github.com/Iron-Ham/lockstep/internal/logging"
	"github.com/Iron-Ham/lockstep/internal/signal"
	"github.com/Iron-Ham/lockstep/internal/watch"
	"github.com/Iron-Ham/lockstep/internal/worker"
)

// nextWorkerID allocates worker ids for the whole driver process, so ids
// stay unique across managers and runs.
var nextWorkerID atomic.Int64

func allocateWorkerID() signal.WorkerID {
	return signal.WorkerID(nextWorkerID.Add(1))
}

// Paths are the shared files of one run.
type Paths struct {
	// Resource is the mutex-area marker.
	Resource string
	// Sync backs the inter-process lock.
	Sync string
}

// Manager owns the broker, the worker processes and the shared files of a
// harness run.
type Manager struct {
	cfg     *config.Config
	command []string
	dir     string
	runID   string
	paths   Paths

	broker   *broker.Broker
	bus      *event.Bus
	logger   *logging.Logger
	observer *watch.Observer

	mu      sync.RWMutex
	handles map[signal.WorkerID]*ProcessHandle
}

// NewManager creates a stopped Manager. A nil cfg uses config.Default().
func NewManager(cfg *config.Config, opts ...Option) (*Manager, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, config.ValidationErrors(errs)
	}

	m := &Manager{
		cfg:     cfg,
		runID:   uuid.NewString(),
		logger:  logging.NopLogger(),
		handles: make(map[signal.WorkerID]*ProcessHandle),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.command == nil {
		self, err := os.Executable()
		if err != nil {
			return nil, errors.Wrap(err, "resolve worker executable")
		}
		m.command = []string{self}
	}
	if m.dir == "" {
		m.dir = cfg.Paths.ResolveDir()
	}

	m.logger = m.logger.WithRun(m.runID).WithComponent("driver")
	if m.bus == nil {
		m.bus = event.NewBus(m.logger)
	}

	// Per-run file names keep concurrent runs on one host apart.
	short := m.runID[:8]
	m.paths = Paths{
		Resource: filepath.Join(m.dir, "lockstep-"+short+".resource"),
		Sync:     filepath.Join(m.dir, "lockstep-"+short+".lock"),
	}

	m.broker = broker.New(broker.WithLogger(m.logger), broker.WithHandler(m.dispatch))
	return m, nil
}

// RunID returns the unique id of this run.
func (m *Manager) RunID() string {
	return m.runID
}

// Paths returns the shared files of this run.
func (m *Manager) Paths() Paths {
	return m.paths
}

// Bus returns the event bus lifecycle events are published on.
func (m *Manager) Bus() *event.Bus {
	return m.bus
}

// Addr returns the broker address, or "" when stopped.
func (m *Manager) Addr() string {
	return m.broker.Addr()
}

// MarkerEntries returns how many times the mutex-area marker was created
// since Start.
func (m *Manager) MarkerEntries() int {
	if m.observer == nil {
		return 0
	}
	return m.observer.Entries()
}

// MarkerOverlaps returns how many times the marker was created while it
// was still present.
func (m *Manager) MarkerOverlaps() int {
	if m.observer == nil {
		return 0
	}
	return m.observer.Overlaps()
}

// WaitForMarkerEntries blocks until the marker was created at least n
// times since Start or ctx is done.
func (m *Manager) WaitForMarkerEntries(ctx context.Context, n int) error {
	if m.observer == nil {
		return errors.Wrap(errors.ErrNotRunning, "marker observer")
	}
	if err := m.observer.WaitForEntries(ctx, n); err != nil {
		return errors.Wrapf(err, "wait for %d marker entries, saw %d", n, m.observer.Entries())
	}
	return nil
}

// Start cleans up leftovers of a previous run, starts the broker and
// begins observing the marker.
func (m *Manager) Start() error {
	if err := m.Cleanup(); err != nil {
		return err
	}
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return errors.Wrap(err, "create shared directory")
	}
	if err := m.broker.Start(m.cfg.Broker.Addr()); err != nil {
		return err
	}

	obs, err := watch.New(m.paths.Resource, m.bus, m.logger)
	if err != nil {
		m.logger.Warn("marker observer unavailable", "error", err)
	} else {
		obs.Start()
		m.observer = obs
	}

	m.logger.Info("driver started", "broker", m.broker.Addr(), "dir", m.dir)
	return nil
}

// Stop stops the broker and the marker observer. Workers are left alone;
// call Cleanup to kill them.
func (m *Manager) Stop() error {
	if m.observer != nil {
		m.observer.Stop()
		m.observer = nil
	}
	return m.broker.Stop()
}

// Cleanup kills every running worker, forgets all handles, kills orphaned
// workers of this run and deletes the shared files.
func (m *Manager) Cleanup() error {
	var errs []error
	for _, h := range m.Handles() {
		if err := h.Kill(); err != nil {
			errs = append(errs, err)
		}
	}

	m.mu.Lock()
	m.handles = make(map[signal.WorkerID]*ProcessHandle)
	m.mu.Unlock()

	if n := m.sweepOrphans(); n > 0 {
		m.logger.Warn("orphaned workers killed", "count", n)
	}

	for _, path := range []string{m.paths.Resource, m.paths.Sync} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, errors.Wrapf(err, "remove %s", path))
		}
	}
	return errors.Join(errs...)
}

// Builder returns a worker builder seeded with the configured defaults.
func (m *Manager) Builder() *Builder {
	return newBuilder(m)
}

// Handle returns the handle of worker id.
func (m *Manager) Handle(id signal.WorkerID) (*ProcessHandle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.handles[id]
	if !ok {
		return nil, errors.NewRegistryError("lookup handle", errors.ErrNotRegistered).WithWorkerID(int(id))
	}
	return h, nil
}

// Handles returns every tracked handle ordered by id.
func (m *Manager) Handles() []*ProcessHandle {
	m.mu.RLock()
	handles := make([]*ProcessHandle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.mu.RUnlock()

	sort.Slice(handles, func(i, j int) bool { return handles[i].id < handles[j].id })
	return handles
}

// Await waits for the given workers to exit, or for every tracked worker
// when none are given.
func (m *Manager) Await(ctx context.Context, handles ...*ProcessHandle) error {
	if len(handles) == 0 {
		handles = m.Handles()
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, h := range handles {
		g.Go(func() error {
			_, err := h.WaitFor(ctx)
			return err
		})
	}
	return g.Wait()
}

// AssertExitCode checks that every given worker exited with want. All
// mismatches are reported together.
func (m *Manager) AssertExitCode(want worker.ExitCode, handles ...*ProcessHandle) error {
	var errs []error
	for _, h := range handles {
		if err := h.AssertExitCode(want); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// spawn starts a worker process for cfg.
func (m *Manager) spawn(cfg worker.Config) (*ProcessHandle, error) {
	addr := m.broker.Addr()
	if addr == "" {
		return nil, errors.NewLifecycleError("driver", errors.ErrNotRunning)
	}

	cfg.ID = allocateWorkerID()
	cfg.BrokerAddr = addr
	cfg.SharedResourcePath = m.paths.Resource
	cfg.SyncFilePath = m.paths.Sync
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cmd := exec.Command(m.command[0], m.command[1:]...)
	cmd.Env = append(parentEnv(), cfg.Env()...)
	cmd.Env = append(cmd.Env, runEnvVar+"="+m.runID)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	h := newProcessHandle(m, cfg, cmd)

	// Register before starting so the CONNECT frame finds the handle.
	m.mu.Lock()
	m.handles[cfg.ID] = h
	m.mu.Unlock()

	if err := cmd.Start(); err != nil {
		m.mu.Lock()
		delete(m.handles, cfg.ID)
		m.mu.Unlock()
		return nil, errors.Wrapf(err, "start worker %d", cfg.ID)
	}
	go h.reap()

	h.logger.Info("worker started", "pid", cmd.Process.Pid, "breakpoint", cfg.Breakpoint.String())
	m.bus.Publish(event.NewWorkerStartedEvent(int(cfg.ID), cmd.Process.Pid))
	return h, nil
}

// dispatch routes a worker frame to its handle.
func (m *Manager) dispatch(from signal.WorkerID, sig signal.Signal) {
	m.mu.RLock()
	h, ok := m.handles[from]
	m.mu.RUnlock()

	if !ok {
		m.logger.Warn("frame from unknown worker", "worker_id", int(from), "frame", sig.String())
		return
	}
	h.handleSignal(sig)
}

// parentEnv is the driver's environment without worker variables, so a
// driver that is itself a worker's child never leaks its own config.
func parentEnv() []string {
	env := os.Environ()
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if strings.HasPrefix(kv, worker.EnvPrefix+"_") {
			continue
		}
		out = append(out, kv)
	}
	return out
}
