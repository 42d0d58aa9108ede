package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/lockstep/internal/event"
)

func newObserver(t *testing.T, bus *event.Bus) (*Observer, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "shared.resource")
	o, err := New(path, bus, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	o.Start()
	t.Cleanup(o.Stop)
	return o, path
}

func TestObserver_CountsEntries(t *testing.T) {
	o, path := newObserver(t, nil)

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("1\n"), 0644); err != nil {
			t.Fatalf("create marker: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := o.WaitForEntries(ctx, i+1)
		cancel()
		if err != nil {
			t.Fatalf("WaitForEntries(%d) error = %v", i+1, err)
		}
		if err := os.Remove(path); err != nil {
			t.Fatalf("remove marker: %v", err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for o.Exits() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if o.Entries() != 3 || o.Exits() != 3 {
		t.Errorf("Entries()=%d Exits()=%d, want 3 and 3", o.Entries(), o.Exits())
	}
	if o.Present() {
		t.Error("Present() = true after the last removal")
	}
}

func TestObserver_IgnoresOtherFiles(t *testing.T) {
	o, path := newObserver(t, nil)

	other := filepath.Join(filepath.Dir(path), "sync.lock")
	if err := os.WriteFile(other, nil, 0644); err != nil {
		t.Fatalf("create other file: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := o.WaitForEntries(ctx, 1); err == nil {
		t.Error("WaitForEntries() returned for an unrelated file")
	}
}

func TestObserver_PublishesEvents(t *testing.T) {
	bus := event.NewBus(nil)

	var mu sync.Mutex
	var seen []bool
	bus.Subscribe(event.TypeMarkerChanged, func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.(event.MarkerChangedEvent).Present)
	})

	_, path := newObserver(t, bus)
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("create marker: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove marker: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || !seen[0] || seen[1] {
		t.Errorf("events = %v, want [true false]", seen)
	}
}

func TestObserver_StopIsIdempotent(t *testing.T) {
	o, err := New(filepath.Join(t.TempDir(), "m"), nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	o.Start()
	o.Stop()
	o.Stop()
}

func TestNew_MissingDirectory(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing", "m"), nil, nil); err == nil {
		t.Error("New() error = nil for a missing directory")
	}
}

func TestObserver_StopWithoutStart(t *testing.T) {
	o, err := New(filepath.Join(t.TempDir(), "m"), nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	o.Stop()
}

func TestObserver_CountsOverlaps(t *testing.T) {
	o, path := newObserver(t, nil)

	if err := os.WriteFile(path, []byte("1\n"), 0644); err != nil {
		t.Fatalf("create marker: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.WaitForEntries(ctx, 1); err != nil {
		t.Fatalf("WaitForEntries(1) error = %v", err)
	}
	if o.Overlaps() != 0 {
		t.Fatalf("Overlaps() = %d after one entry, want 0", o.Overlaps())
	}

	// Moving a file over the marker is a second creation without a removal.
	tmp := filepath.Join(filepath.Dir(path), "other.tmp")
	if err := os.WriteFile(tmp, []byte("2\n"), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename over marker: %v", err)
	}
	if err := o.WaitForEntries(ctx, 2); err != nil {
		t.Fatalf("WaitForEntries(2) error = %v", err)
	}
	if o.Overlaps() != 1 {
		t.Errorf("Overlaps() = %d, want 1", o.Overlaps())
	}
}
