package broker

import (
	"github.com/Iron-Ham/lockstep/internal/logging"
)

// Option configures a Broker.
type Option func(*Broker)

// WithLogger sets the logger. If nil, logging is discarded.
func WithLogger(l *logging.Logger) Option {
	return func(b *Broker) {
		if l != nil {
			b.logger = l.WithComponent("broker")
		}
	}
}

// WithHandler sets the inbound frame handler. Equivalent to calling
// SetHandler before Start.
func WithHandler(h Handler) Option {
	return func(b *Broker) { b.handler = h }
}
