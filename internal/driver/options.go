package driver

import (
	"github.com/Iron-Ham/lockstep/internal/event"
	"github.com/Iron-Ham/lockstep/internal/logging"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. If nil, logging is discarded.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithBus sets the event bus lifecycle events are published on. If nil, a
// private bus is used.
func WithBus(b *event.Bus) Option {
	return func(m *Manager) {
		if b != nil {
			m.bus = b
		}
	}
}

// WithCommand sets the argv used to spawn a worker. The default is the
// current executable with no arguments, which suits test binaries that call
// worker.InitMain from TestMain.
func WithCommand(argv ...string) Option {
	return func(m *Manager) {
		if len(argv) > 0 {
			m.command = append([]string(nil), argv...)
		}
	}
}

// WithDir places the marker and sync files in dir instead of
// config.Paths.
func WithDir(dir string) Option {
	return func(m *Manager) { m.dir = dir }
}
