package driver

import (
	"errors"
	"testing"
	"time"

	lserrors "github.com/Iron-Ham/lockstep/internal/errors"
	"github.com/Iron-Ham/lockstep/internal/worker"
)

func TestRendezvous_ReportBeforeWait(t *testing.T) {
	rv := newRendezvous(1, worker.AfterLock)

	if !rv.report(worker.AfterLock) {
		t.Fatal("report() = false, want true")
	}
	bp, err := rv.wait(time.Second, nil)
	if err != nil {
		t.Fatalf("wait() error = %v", err)
	}
	if bp != worker.AfterLock {
		t.Errorf("wait() = %v, want %v", bp, worker.AfterLock)
	}
	if rv.current() != worker.NoBreakpoint {
		t.Errorf("current() = %v after wait, want NONE", rv.current())
	}
}

func TestRendezvous_WaitBeforeReport(t *testing.T) {
	rv := newRendezvous(1, worker.MutexArea)

	go func() {
		time.Sleep(20 * time.Millisecond)
		rv.report(worker.MutexArea)
	}()

	bp, err := rv.wait(time.Second, nil)
	if err != nil {
		t.Fatalf("wait() error = %v", err)
	}
	if bp != worker.MutexArea {
		t.Errorf("wait() = %v, want %v", bp, worker.MutexArea)
	}
}

func TestRendezvous_Violations(t *testing.T) {
	tests := []struct {
		name     string
		armed    worker.Breakpoint
		reported worker.Breakpoint
		sentinel error
	}{
		{"nothing armed", worker.NoBreakpoint, worker.BeforeLock, lserrors.ErrNotArmed},
		{"different breakpoint", worker.BeforeLock, worker.AfterUnlock, lserrors.ErrUnexpectedBreakpoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rv := newRendezvous(3, tt.armed)
			rv.report(tt.reported)

			_, err := rv.wait(time.Second, nil)
			if !errors.Is(err, tt.sentinel) {
				t.Fatalf("wait() error = %v, want %v", err, tt.sentinel)
			}
			var bpErr *lserrors.BreakpointViolationError
			if !errors.As(err, &bpErr) {
				t.Fatalf("wait() error = %T, want *BreakpointViolationError", err)
			}
			if bpErr.WorkerID != 3 {
				t.Errorf("WorkerID = %d, want 3", bpErr.WorkerID)
			}
		})
	}
}

func TestRendezvous_ArmTwice(t *testing.T) {
	rv := newRendezvous(1, worker.NoBreakpoint)

	if err := rv.arm(worker.BeforeLock); err != nil {
		t.Fatalf("first arm() error = %v", err)
	}
	if err := rv.arm(worker.AfterLock); !errors.Is(err, lserrors.ErrAlreadyArmed) {
		t.Fatalf("second arm() error = %v, want ErrAlreadyArmed", err)
	}
	if rv.current() != worker.BeforeLock {
		t.Errorf("current() = %v, want %v", rv.current(), worker.BeforeLock)
	}

	rv.disarm(worker.AfterLock)
	if rv.current() != worker.BeforeLock {
		t.Error("disarm() of another breakpoint cleared the armed one")
	}
	rv.disarm(worker.BeforeLock)
	if rv.current() != worker.NoBreakpoint {
		t.Errorf("current() = %v after disarm, want NONE", rv.current())
	}
}

func TestRendezvous_HoldsOneArrival(t *testing.T) {
	rv := newRendezvous(1, worker.BeforeLock)

	if !rv.report(worker.BeforeLock) {
		t.Fatal("first report() = false")
	}
	if rv.report(worker.BeforeLock) {
		t.Error("second report() = true, want false while an arrival is pending")
	}
}

func TestRendezvous_Timeout(t *testing.T) {
	rv := newRendezvous(1, worker.BeforeLock)

	start := time.Now()
	_, err := rv.wait(30*time.Millisecond, nil)
	if !errors.Is(err, lserrors.ErrTimeout) {
		t.Fatalf("wait() error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("wait() returned after %v, before the timeout", elapsed)
	}
}

func TestRendezvous_WorkerExited(t *testing.T) {
	rv := newRendezvous(1, worker.BeforeLock)
	exited := make(chan struct{})
	close(exited)

	_, err := rv.wait(time.Second, exited)
	if !errors.Is(err, lserrors.ErrNotRunning) {
		t.Fatalf("wait() error = %v, want ErrNotRunning", err)
	}
}

func TestRendezvous_ArrivalPreferredOverExit(t *testing.T) {
	rv := newRendezvous(1, worker.AfterUnlock)
	rv.report(worker.AfterUnlock)
	exited := make(chan struct{})
	close(exited)

	bp, err := rv.wait(time.Second, exited)
	if err != nil {
		t.Fatalf("wait() error = %v", err)
	}
	if bp != worker.AfterUnlock {
		t.Errorf("wait() = %v, want %v", bp, worker.AfterUnlock)
	}
}

func TestRendezvous_ProceededClearsArrival(t *testing.T) {
	rv := newRendezvous(1, worker.BeforeLock)
	rv.report(worker.BeforeLock)

	if !rv.proceeded() {
		t.Fatal("proceeded() = false with an arrival pending")
	}
	if rv.current() != worker.NoBreakpoint {
		t.Errorf("current() = %v after proceeded, want NONE", rv.current())
	}
	if err := rv.arm(worker.AfterUnlock); err != nil {
		t.Fatalf("arm() after proceeded error = %v", err)
	}

	// The discarded arrival must not satisfy the next wait.
	_, err := rv.wait(30*time.Millisecond, nil)
	if !errors.Is(err, lserrors.ErrTimeout) {
		t.Fatalf("wait() error = %v, want ErrTimeout", err)
	}

	if !rv.report(worker.AfterUnlock) {
		t.Fatal("report() after proceeded = false")
	}
	bp, err := rv.wait(time.Second, nil)
	if err != nil || bp != worker.AfterUnlock {
		t.Errorf("wait() = %v, %v, want %v", bp, err, worker.AfterUnlock)
	}
}

func TestRendezvous_ProceededKeepsUnreachedBreakpoint(t *testing.T) {
	rv := newRendezvous(1, worker.NoBreakpoint)
	if err := rv.arm(worker.MutexArea); err != nil {
		t.Fatalf("arm() error = %v", err)
	}

	if rv.proceeded() {
		t.Error("proceeded() = true with nothing pending")
	}
	if rv.current() != worker.MutexArea {
		t.Errorf("current() = %v, want %v", rv.current(), worker.MutexArea)
	}
}
