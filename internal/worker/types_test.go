package worker

import (
	"testing"
)

func TestBreakpoint_StringAndParse(t *testing.T) {
	for _, bp := range Breakpoints() {
		got, err := ParseBreakpoint(bp.String())
		if err != nil {
			t.Fatalf("ParseBreakpoint(%q) error = %v", bp, err)
		}
		if got != bp {
			t.Errorf("ParseBreakpoint(%q) = %v", bp, got)
		}
	}

	for _, name := range []string{"", "before_lock", "NOPE"} {
		if _, err := ParseBreakpoint(name); err == nil {
			t.Errorf("ParseBreakpoint(%q) error = nil", name)
		}
	}

	if NoBreakpoint.String() != "" {
		t.Errorf("NoBreakpoint.String() = %q", NoBreakpoint.String())
	}
	if Breakpoint(99).String() != "Breakpoint(99)" {
		t.Errorf("Breakpoint(99).String() = %q", Breakpoint(99).String())
	}
}

func TestExitCode_Values(t *testing.T) {
	tests := []struct {
		code  ExitCode
		value int
		name  string
	}{
		{Success, 0, "SUCCESS"},
		{TryLockFailed, 1, "TRY_LOCK_FAILED"},
		{BreakpointTimeout, 2, "BREAKPOINT_TIMEOUT"},
		{WorkerLockTimeout, 3, "WORKER_LOCK_TIMEOUT"},
		{HaltInMutexArea, 4, "HALT_IN_MUTEX_AREA"},
		{ConcurrentAccessError, 5, "CONCURRENT_ACCESS_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if int(tt.code) != tt.value {
				t.Errorf("%s = %d, want %d", tt.name, int(tt.code), tt.value)
			}
			if tt.code.String() != tt.name {
				t.Errorf("String() = %q, want %q", tt.code.String(), tt.name)
			}
			if !tt.code.Valid() {
				t.Errorf("Valid() = false for %s", tt.name)
			}
			parsed, err := ParseExitCode(tt.name)
			if err != nil || parsed != tt.code {
				t.Errorf("ParseExitCode(%q) = %v, %v", tt.name, parsed, err)
			}
		})
	}

	if FaultExitCode.Valid() {
		t.Error("FaultExitCode.Valid() = true, want false")
	}
	if ExitCode(42).String() != "EXIT(42)" {
		t.Errorf("ExitCode(42).String() = %q", ExitCode(42).String())
	}
}

func TestDisabled(t *testing.T) {
	if !Disabled(TimeoutDisabled) {
		t.Error("Disabled(TimeoutDisabled) = false")
	}
	if Disabled(0) {
		t.Error("Disabled(0) = true")
	}
}
