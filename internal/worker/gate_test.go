package worker

import (
	"testing"

	"github.com/Iron-Ham/lockstep/internal/errors"
)

func TestGate_SingleArmedSlot(t *testing.T) {
	g := newGate()

	if err := g.arm(BeforeLock); err != nil {
		t.Fatalf("arm() error = %v", err)
	}
	err := g.arm(MutexArea)
	if !errors.Is(err, errors.ErrAlreadyArmed) {
		t.Fatalf("second arm() error = %v, want ErrAlreadyArmed", err)
	}
	if !errors.IsFatal(err) {
		t.Error("double arm should be a fatal breakpoint violation")
	}
	if g.armedBreakpoint() != BeforeLock {
		t.Errorf("armed = %v, want BEFORE_LOCK kept", g.armedBreakpoint())
	}
}

func TestGate_TakeDisarms(t *testing.T) {
	g := newGate()
	_ = g.arm(MutexArea)

	if g.take(BeforeLock) {
		t.Fatal("take() matched an unarmed breakpoint")
	}
	if !g.take(MutexArea) {
		t.Fatal("take() missed the armed breakpoint")
	}
	if g.armedBreakpoint() != NoBreakpoint {
		t.Error("take() did not disarm")
	}
	if err := g.arm(AfterUnlock); err != nil {
		t.Errorf("arm() while paused error = %v", err)
	}
}

func TestGate_ReleaseOnlyWhenPaused(t *testing.T) {
	g := newGate()

	if g.release() {
		t.Fatal("release() succeeded with nothing paused")
	}

	_ = g.arm(AfterLock)
	g.take(AfterLock)

	if !g.release() {
		t.Fatal("release() failed while paused")
	}
	if g.release() {
		t.Error("second release() succeeded")
	}

	select {
	case <-g.proceed:
	default:
		t.Fatal("release() did not signal proceed")
	}
}

func TestGate_Abandon(t *testing.T) {
	g := newGate()
	_ = g.arm(BeforeLock)
	g.take(BeforeLock)
	g.abandon()

	if g.release() {
		t.Error("release() succeeded after abandon")
	}
}
