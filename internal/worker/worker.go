package worker

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/Iron-Ham/lockstep/internal/errors"
	"github.com/Iron-Ham/lockstep/internal/iplock"
	"github.com/Iron-Ham/lockstep/internal/logging"
	"github.com/Iron-Ham/lockstep/internal/signal"
)

// Locker is the inter-process lock a worker contends for.
type Locker interface {
	Lock() error
	TryLock() (bool, error)
	Unlock() error
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger. If nil, logging is discarded.
func WithLogger(l *logging.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithLocker replaces the lock built from Config.SyncFilePath.
func WithLocker(l Locker) Option {
	return func(w *Worker) { w.lock = l }
}

// WithExit replaces os.Exit for abrupt terminations. The script returns
// right after calling it, so a replacement that returns is safe.
func WithExit(exit func(code int)) Option {
	return func(w *Worker) { w.exit = exit }
}

// Worker runs the fixed lock script, pausing at armed breakpoints.
type Worker struct {
	cfg    Config
	lock   Locker
	gate   *gate
	client *client
	exit   func(code int)
	logger *logging.Logger
}

// New creates a Worker for cfg.
func New(cfg Config, opts ...Option) *Worker {
	w := &Worker{
		cfg:    cfg,
		gate:   newGate(),
		exit:   os.Exit,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.lock == nil {
		w.lock = iplock.New(cfg.SyncFilePath)
	}
	w.logger = w.logger.WithWorker(int(cfg.ID)).WithComponent("worker")
	return w
}

// Run connects to the broker and executes the script. The returned error
// is a harness fault; script outcomes are reported as the ExitCode.
func (w *Worker) Run(ctx context.Context) (ExitCode, error) {
	if err := w.cfg.Validate(); err != nil {
		return FaultExitCode, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	cl, err := dial(dialCtx, w.cfg.BrokerAddr, w.cfg.ID, w.logger)
	cancel()
	if err != nil {
		return FaultExitCode, err
	}
	w.client = cl
	defer func() { _ = cl.close() }()

	if w.cfg.Breakpoint != NoBreakpoint {
		if err := w.gate.arm(w.cfg.Breakpoint); err != nil {
			return FaultExitCode, err
		}
	}

	go w.listen()

	code := w.script()
	w.logger.Info("worker finished", "exit_code", code.String())
	return code, nil
}

// listen applies driver signals until the connection closes.
func (w *Worker) listen() {
	for {
		sig, err := w.client.next()
		if err != nil {
			w.logger.Debug("broker connection ended", "error", err)
			return
		}
		if err := w.apply(sig); err != nil {
			w.fault(err)
			return
		}
	}
}

func (w *Worker) apply(sig signal.Signal) error {
	if !sig.FromDriver() {
		return errors.NewProtocolError("signal not from driver", errors.ErrInvalidSender).
			WithFrame(sig.String()).
			WithWorkerID(int(w.cfg.ID))
	}

	switch sig.Code {
	case signal.Breakpoint:
		bp, err := ParseBreakpoint(sig.Param(0))
		if err != nil {
			return err
		}
		if err := w.gate.arm(bp); err != nil {
			return err
		}
		w.logger.Debug("breakpoint armed", "breakpoint", bp.String())
	case signal.Proceed:
		if !w.gate.release() {
			w.logger.Warn("PROCEED while not paused, dropped")
		}
	default:
		return errors.NewProtocolError("unexpected signal", errors.ErrUnknownCode).
			WithFrame(sig.String()).
			WithWorkerID(int(w.cfg.ID))
	}
	return nil
}

// fault terminates the worker on a harness error.
func (w *Worker) fault(err error) {
	w.logger.Error("worker fault", "error", err)
	w.exit(int(FaultExitCode))
}

// halt terminates abruptly: no unlock, no marker cleanup.
func (w *Worker) halt(code ExitCode) ExitCode {
	w.logger.Warn("worker halted", "exit_code", code.String())
	w.exit(int(code))
	return code
}

// script runs BEFORE_LOCK → lock → AFTER_LOCK → mutex area → MUTEX_AREA →
// unlock → AFTER_UNLOCK. AFTER_LOCK and AFTER_UNLOCK exist only when locking.
func (w *Worker) script() ExitCode {
	if code, ok := w.pause(BeforeLock); !ok {
		return code
	}

	if w.cfg.UseLock {
		if code, ok := w.acquire(); !ok {
			return code
		}
		if code, ok := w.pause(AfterLock); !ok {
			return code
		}
	}

	code, abrupt := w.mutexArea()
	if abrupt {
		return code
	}

	if w.cfg.UseLock && !w.cfg.SkipUnlock {
		if err := w.lock.Unlock(); err != nil {
			w.logger.Error("unlock failed", "error", err)
		} else {
			w.logger.Debug("lock released")
		}
	}
	if code != Success {
		return code
	}

	if w.cfg.UseLock {
		if code, ok := w.pause(AfterUnlock); !ok {
			return code
		}
	}
	return Success
}

// pause blocks at bp if it is armed. It returns false when the worker
// must stop, along with the code it stopped with.
func (w *Worker) pause(bp Breakpoint) (ExitCode, bool) {
	if !w.gate.take(bp) {
		return Success, true
	}

	log := w.logger.With("breakpoint", bp.String())
	if err := w.client.send(signal.Breakpoint, bp.String()); err != nil {
		w.fault(errors.Wrapf(err, "report breakpoint %s", bp))
		return FaultExitCode, false
	}
	log.Info("stopped at breakpoint")

	var timeout <-chan time.Time
	if !Disabled(w.cfg.BreakpointTimeout) {
		timer := time.NewTimer(w.cfg.BreakpointTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-w.gate.proceed:
		log.Info("proceeding")
		return Success, true
	case <-timeout:
		w.gate.abandon()
		log.Warn("breakpoint timed out", "timeout", w.cfg.BreakpointTimeout.String())
		return w.halt(BreakpointTimeout), false
	}
}

// acquire takes the lock. It returns false when the worker must stop.
// A bounded wait is enforced by a watchdog that halts the worker while
// Lock is still blocked.
func (w *Worker) acquire() (ExitCode, bool) {
	if w.cfg.TryLock {
		ok, err := w.lock.TryLock()
		if err != nil {
			w.fault(errors.Wrap(err, "try lock"))
			return FaultExitCode, false
		}
		if !ok {
			w.logger.Info("lock busy")
			return TryLockFailed, false
		}
		w.logger.Debug("lock acquired", "mode", "try")
		return Success, true
	}

	mode := "blocking"
	var watchdog *time.Timer
	if !Disabled(w.cfg.LockTimeout) {
		mode = "bounded"
		watchdog = time.AfterFunc(w.cfg.LockTimeout, func() {
			w.logger.Warn("lock acquisition timed out", "timeout", w.cfg.LockTimeout.String())
			w.halt(WorkerLockTimeout)
		})
	}

	err := w.lock.Lock()
	if watchdog != nil && !watchdog.Stop() {
		// The watchdog already halted the worker.
		return WorkerLockTimeout, false
	}
	if err != nil {
		w.fault(errors.Wrap(err, "lock"))
		return FaultExitCode, false
	}
	w.logger.Debug("lock acquired", "mode", mode)
	return Success, true
}

// mutexArea enters the exclusive section. abrupt is true when the worker
// halted and must skip unlocking.
func (w *Worker) mutexArea() (code ExitCode, abrupt bool) {
	if w.cfg.HaltInMutexArea {
		return w.halt(HaltInMutexArea), true
	}

	path := w.cfg.SharedResourcePath
	if _, err := os.Stat(path); err == nil {
		w.conflict(errors.NewResourceConflictError("enter mutex area", errors.ErrMarkerExists).WithPath(path))
		return ConcurrentAccessError, false
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		w.conflict(errors.NewResourceConflictError("create marker", err).WithPath(path))
		return ConcurrentAccessError, false
	}
	_, _ = f.WriteString(strconv.Itoa(int(w.cfg.ID)) + "\n")
	_ = f.Close()
	w.logger.Debug("entered mutex area", "marker", path)

	if code, ok := w.pause(MutexArea); !ok {
		return code, true
	}

	time.Sleep(w.cfg.WorkDuration)

	if err := os.Remove(path); err != nil {
		cause := err
		if os.IsNotExist(err) {
			cause = errors.ErrMarkerMissing
		}
		w.conflict(errors.NewResourceConflictError("remove marker", cause).WithPath(path))
		return ConcurrentAccessError, false
	}
	w.logger.Debug("left mutex area")
	return Success, false
}

func (w *Worker) conflict(err error) {
	w.logger.Error("concurrent access detected", "error", err)
}
