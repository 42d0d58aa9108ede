package driver

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/lockstep/internal/errors"
	"github.com/Iron-Ham/lockstep/internal/event"
	"github.com/Iron-Ham/lockstep/internal/logging"
	"github.com/Iron-Ham/lockstep/internal/signal"
	"github.com/Iron-Ham/lockstep/internal/worker"
)

// ProcessHandle is the driver's view of one worker process.
type ProcessHandle struct {
	id  signal.WorkerID
	cfg worker.Config
	cmd *exec.Cmd
	mgr *Manager
	rv  *rendezvous

	connectOnce sync.Once
	connected   chan struct{}

	exited   chan struct{}
	exitCode int // valid once exited is closed
	killed   atomic.Bool

	logger *logging.Logger
}

func newProcessHandle(m *Manager, cfg worker.Config, cmd *exec.Cmd) *ProcessHandle {
	return &ProcessHandle{
		id:        cfg.ID,
		cfg:       cfg,
		cmd:       cmd,
		mgr:       m,
		rv:        newRendezvous(int(cfg.ID), cfg.Breakpoint),
		connected: make(chan struct{}),
		exited:    make(chan struct{}),
		logger:    m.logger.WithWorker(int(cfg.ID)),
	}
}

// ID returns the worker id.
func (p *ProcessHandle) ID() signal.WorkerID {
	return p.id
}

// Config returns the configuration the worker was started with.
func (p *ProcessHandle) Config() worker.Config {
	return p.cfg
}

// PID returns the OS process id, or 0 if the process never started.
func (p *ProcessHandle) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// ActivateBreakpoint arms bp on the worker. Only one breakpoint can be
// armed at a time; arming again before WaitForBreakpoint completed is a
// BreakpointViolationError.
func (p *ProcessHandle) ActivateBreakpoint(bp worker.Breakpoint) error {
	if err := p.rv.arm(bp); err != nil {
		return err
	}
	if err := p.send(signal.New(signal.DriverID, signal.Breakpoint, bp.String())); err != nil {
		p.rv.disarm(bp)
		return err
	}
	p.logger.Debug("breakpoint activated", "breakpoint", bp.String())
	return nil
}

// WaitForBreakpoint blocks until the worker reports the armed breakpoint,
// bounded by the driver's breakpoint wait.
func (p *ProcessHandle) WaitForBreakpoint() error {
	bp, err := p.rv.wait(p.mgr.cfg.Driver.BreakpointWait, p.exited)
	if err != nil {
		return err
	}
	p.logger.Info("worker reached breakpoint", "breakpoint", bp.String())
	return nil
}

// Proceed resumes a paused worker. An arrival nobody waited for is
// discarded along with its armed breakpoint, so the next breakpoint can be
// activated.
func (p *ProcessHandle) Proceed() error {
	// Cleared before sending: the worker may report again right after.
	if p.rv.proceeded() {
		p.logger.Debug("unawaited breakpoint arrival discarded")
	}
	return p.send(signal.New(signal.DriverID, signal.Proceed))
}

// ProceedToBreakpoint arms bp, resumes the worker and waits until it
// reports bp.
func (p *ProcessHandle) ProceedToBreakpoint(bp worker.Breakpoint) error {
	p.rv.proceeded()
	if err := p.ActivateBreakpoint(bp); err != nil {
		return err
	}
	if err := p.send(signal.New(signal.DriverID, signal.Proceed)); err != nil {
		return err
	}
	return p.WaitForBreakpoint()
}

// WaitFor blocks until the process exits or ctx is done.
func (p *ProcessHandle) WaitFor(ctx context.Context) (worker.ExitCode, error) {
	select {
	case <-p.exited:
		return worker.ExitCode(p.exitCode), nil
	case <-ctx.Done():
		return 0, errors.Wrapf(ctx.Err(), "wait for worker %d", p.id)
	}
}

// ExitCode returns the exit status and whether the process has exited.
// A process killed by a signal reports -1.
func (p *ProcessHandle) ExitCode() (worker.ExitCode, bool) {
	select {
	case <-p.exited:
		return worker.ExitCode(p.exitCode), true
	default:
		return 0, false
	}
}

// AssertExitCode checks that the process has exited with want.
func (p *ProcessHandle) AssertExitCode(want worker.ExitCode) error {
	got, ok := p.ExitCode()
	if !ok {
		return errors.Wrapf(errors.ErrAlreadyRunning, "worker %d has not exited", p.id)
	}
	if got != want {
		return errors.Wrapf(errors.ErrExitCodeMismatch, "worker %d exited %s, want %s", p.id, got, want)
	}
	return nil
}

// Running reports whether the process has not exited yet.
func (p *ProcessHandle) Running() bool {
	_, exited := p.ExitCode()
	return !exited
}

// Killed reports whether the driver killed the process.
func (p *ProcessHandle) Killed() bool {
	return p.killed.Load()
}

// Kill terminates the process abruptly and waits until it is reaped.
// Killing an exited process is a no-op.
func (p *ProcessHandle) Kill() error {
	if !p.Running() {
		return nil
	}
	p.killed.Store(true)
	if err := p.cmd.Process.Kill(); err != nil {
		if !errors.Is(err, os.ErrProcessDone) {
			return errors.Wrapf(err, "kill worker %d", p.id)
		}
		// Exited on its own; only the reap is outstanding.
		p.killed.Store(false)
	}

	wait := p.mgr.cfg.Driver.KillWait
	select {
	case <-p.exited:
		p.logger.Info("worker killed")
		return nil
	case <-time.After(wait):
		return errors.NewTimeoutError("reap killed worker", wait).WithWorkerID(int(p.id))
	}
}

// send delivers sig once the worker has connected.
func (p *ProcessHandle) send(sig signal.Signal) error {
	if err := p.awaitConnect(); err != nil {
		return err
	}
	return p.mgr.broker.SendSignal(p.id, sig)
}

func (p *ProcessHandle) awaitConnect() error {
	select {
	case <-p.connected:
		return nil
	default:
	}

	wait := p.mgr.cfg.Driver.BreakpointWait
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-p.connected:
		return nil
	case <-p.exited:
		return errors.Wrapf(errors.ErrNotRunning, "worker %d exited before connecting", p.id)
	case <-timer.C:
		return errors.NewTimeoutError("wait for connect", wait).
			WithWorkerID(int(p.id)).
			WithCause(errors.ErrNotConnected)
	}
}

// handleSignal processes a frame the worker sent. It runs on the broker's
// connection goroutine.
func (p *ProcessHandle) handleSignal(sig signal.Signal) {
	switch sig.Code {
	case signal.Connect:
		p.connectOnce.Do(func() { close(p.connected) })
		p.logger.Debug("worker connected")
		p.mgr.bus.Publish(event.NewWorkerConnectedEvent(int(p.id)))

	case signal.Breakpoint:
		bp, err := worker.ParseBreakpoint(sig.Param(0))
		if err != nil {
			p.logger.Error("bad breakpoint report", "frame", sig.String(), "error", err)
			return
		}
		// Recorded before publishing, so a subscriber may Proceed at once.
		if !p.rv.report(bp) {
			p.logger.Error("breakpoint report dropped, previous arrival not consumed", "breakpoint", bp.String())
		}
		p.mgr.bus.Publish(event.NewWorkerBreakpointEvent(int(p.id), bp.String()))

	default:
		p.logger.Warn("unexpected signal from worker", "frame", sig.String())
	}
}

// reap waits for the process and records its exit status.
func (p *ProcessHandle) reap() {
	err := p.cmd.Wait()

	code := 0
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	} else if err != nil {
		code = -1
	}
	p.exitCode = code

	// Subscribers see the exit before any WaitFor returns.
	p.logger.Info("worker exited", "exit_code", worker.ExitCode(code).String(), "killed", p.killed.Load())
	p.mgr.bus.Publish(event.NewWorkerExitedEvent(int(p.id), code, p.killed.Load()))
	close(p.exited)
}
