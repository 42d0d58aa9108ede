// Package watch observes the mutex-area marker file from the driver side.
//
// Workers create the marker when they enter the mutex area and remove it
// when they leave. The Observer counts those transitions through fsnotify
// and republishes them on the event bus, which lets the driver confirm how
// many workers actually went through the exclusive section of a run.
package watch

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/lockstep/internal/event"
	"github.com/Iron-Ham/lockstep/internal/logging"
)

// Observer watches a single marker path.
type Observer struct {
	watcher *fsnotify.Watcher
	path    string
	bus     *event.Bus
	logger  *logging.Logger

	mu      sync.Mutex
	entries  int
	exits    int
	overlaps int // creations seen while the marker was already present
	present  bool
	changed chan struct{} // closed and replaced on every transition

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// New creates an Observer for the marker at path. The parent directory must
// exist. A nil bus or logger is allowed.
func New(path string, bus *event.Bus, logger *logging.Logger) (*Observer, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: the marker itself comes and goes.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	return &Observer{
		watcher: watcher,
		path:    filepath.Clean(path),
		bus:     bus,
		logger:  logger.WithComponent("watch"),
		changed: make(chan struct{}),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start begins processing filesystem events.
func (o *Observer) Start() {
	if o.started.Swap(true) {
		return
	}
	go o.watchLoop()
}

// Stop stops the observer and releases the watcher. It is safe to call
// more than once.
func (o *Observer) Stop() {
	o.stopOnce.Do(func() {
		close(o.stopCh)
		_ = o.watcher.Close()
		if o.started.Load() {
			<-o.done
		}
	})
}

func (o *Observer) watchLoop() {
	defer close(o.done)

	for {
		select {
		case <-o.stopCh:
			return

		case ev, ok := <-o.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != o.path {
				continue
			}
			switch {
			case ev.Op&fsnotify.Create != 0:
				o.record(true)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				o.record(false)
			}

		case err, ok := <-o.watcher.Errors:
			if !ok {
				return
			}
			o.logger.Warn("watch error", "error", err)
		}
	}
}

func (o *Observer) record(present bool) {
	o.mu.Lock()
	if present {
		if o.present {
			o.overlaps++
		}
		o.entries++
	} else {
		o.exits++
	}
	o.present = present
	close(o.changed)
	o.changed = make(chan struct{})
	o.mu.Unlock()

	o.logger.Debug("marker changed", "path", o.path, "present", present)
	if o.bus != nil {
		o.bus.Publish(event.NewMarkerChangedEvent(o.path, present))
	}
}

// Entries returns how many times the marker was created.
func (o *Observer) Entries() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.entries
}

// Exits returns how many times the marker was removed.
func (o *Observer) Exits() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.exits
}

// Overlaps returns how many creations arrived while the marker was still
// present, that is two entries with no exit between them.
func (o *Observer) Overlaps() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.overlaps
}

// Present reports whether the last observed transition created the marker.
func (o *Observer) Present() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.present
}

// WaitForEntries blocks until at least n marker creations were observed or
// ctx is done.
func (o *Observer) WaitForEntries(ctx context.Context, n int) error {
	for {
		o.mu.Lock()
		if o.entries >= n {
			o.mu.Unlock()
			return nil
		}
		changed := o.changed
		o.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
