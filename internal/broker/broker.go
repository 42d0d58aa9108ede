package broker

import (
	"io"
	"net"
	"sync"

	"github.com/Iron-Ham/lockstep/internal/errors"
	"github.com/Iron-Ham/lockstep/internal/logging"
	"github.com/Iron-Ham/lockstep/internal/signal"
)

// Handler receives every frame a registered worker sends, CONNECT included.
// It runs on the connection's goroutine: frames from one worker are
// delivered in order, and a slow handler stalls only that worker. A handler
// may call Running, Addr and SendSignal at any time, Stop included, but must
// not call Start or Stop.
type Handler func(from signal.WorkerID, sig signal.Signal)

// Broker is the TCP relay between the driver and the workers.
type Broker struct {
	// transition serializes Start and Stop; lifecycle guards the fields
	// below it and is never held while waiting on connection goroutines.
	transition sync.Mutex
	lifecycle  sync.Mutex
	running    bool
	listener   net.Listener
	wg         sync.WaitGroup

	handlerMu sync.RWMutex
	handler   Handler

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
	closing bool

	registry *registry
	logger   *logging.Logger
}

// New creates a stopped Broker.
func New(opts ...Option) *Broker {
	b := &Broker{
		conns:    make(map[net.Conn]struct{}),
		registry: newRegistry(),
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetHandler replaces the inbound frame handler. A nil handler drops frames.
func (b *Broker) SetHandler(h Handler) {
	b.handlerMu.Lock()
	defer b.handlerMu.Unlock()
	b.handler = h
}

// Start listens on addr ("host:port"; port 0 picks an ephemeral port) and
// begins accepting workers.
func (b *Broker) Start(addr string) error {
	b.transition.Lock()
	defer b.transition.Unlock()

	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	if b.running {
		return errors.NewLifecycleError("broker", errors.ErrAlreadyRunning)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "broker: listen on %s", addr)
	}

	b.connsMu.Lock()
	b.closing = false
	b.connsMu.Unlock()

	b.listener = ln
	b.running = true

	b.wg.Add(1)
	go b.acceptLoop(ln)

	b.logger.Info("broker listening", "addr", ln.Addr().String())
	return nil
}

// Stop closes the listener and every worker connection, then waits for all
// connection goroutines to finish. Running and Addr report a stopped broker
// as soon as Stop begins.
func (b *Broker) Stop() error {
	b.transition.Lock()
	defer b.transition.Unlock()

	b.lifecycle.Lock()
	if !b.running {
		b.lifecycle.Unlock()
		return errors.NewLifecycleError("broker", errors.ErrNotRunning)
	}
	ln := b.listener
	b.running = false
	b.listener = nil
	b.lifecycle.Unlock()

	err := ln.Close()

	b.connsMu.Lock()
	b.closing = true
	for c := range b.conns {
		_ = c.Close()
	}
	b.connsMu.Unlock()

	b.wg.Wait()

	b.logger.Info("broker stopped")
	return err
}

// Running reports whether the broker is accepting connections.
func (b *Broker) Running() bool {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()
	return b.running
}

// Addr returns the bound listen address, or "" when stopped.
func (b *Broker) Addr() string {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

// SendSignal writes sig to the connection registered under id.
func (b *Broker) SendSignal(id signal.WorkerID, sig signal.Signal) error {
	w, err := b.registry.lookup(id)
	if err != nil {
		return err
	}
	if err := w.Write(sig); err != nil {
		return errors.Wrapf(err, "send %s to worker %d", sig.Code, id)
	}
	b.logger.Debug("signal sent", "worker_id", int(id), "frame", sig.String())
	return nil
}

// Registered reports whether a connection is registered under id.
func (b *Broker) Registered(id signal.WorkerID) bool {
	_, err := b.registry.lookup(id)
	return err == nil
}

// RegisteredIDs returns the ids of all registered connections, ascending.
func (b *Broker) RegisteredIDs() []signal.WorkerID {
	return b.registry.ids()
}

func (b *Broker) acceptLoop(ln net.Listener) {
	defer b.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				b.logger.Error("accept failed", "error", err)
			}
			return
		}

		if !b.track(conn) {
			_ = conn.Close()
			continue
		}
		b.wg.Add(1)
		go b.serve(conn)
	}
}

func (b *Broker) track(conn net.Conn) bool {
	b.connsMu.Lock()
	defer b.connsMu.Unlock()

	if b.closing {
		return false
	}
	b.conns[conn] = struct{}{}
	return true
}

func (b *Broker) untrack(conn net.Conn) {
	b.connsMu.Lock()
	defer b.connsMu.Unlock()
	delete(b.conns, conn)
}

// serve owns one worker connection until it closes or misbehaves.
func (b *Broker) serve(conn net.Conn) {
	defer b.wg.Done()
	defer b.untrack(conn)
	defer func() { _ = conn.Close() }()

	remote := conn.RemoteAddr().String()
	reader := signal.NewReader(conn)
	writer := signal.NewWriter(conn)

	first, err := reader.Next()
	if err != nil {
		b.logReadError(err, remote, 0)
		return
	}

	id, err := b.handshake(first)
	if err != nil {
		b.logger.Warn("connection rejected", "remote", remote, "error", err)
		return
	}
	if err := b.registry.register(id, writer); err != nil {
		b.logger.Warn("connection rejected", "remote", remote, "error", err)
		return
	}
	defer b.registry.unregister(id, writer)

	log := b.logger.WithWorker(int(id))
	log.Debug("worker connected", "remote", remote)
	b.dispatch(id, first)

	for {
		sig, err := reader.Next()
		if err != nil {
			b.logReadError(err, remote, id)
			return
		}
		if sig.Sender != id {
			err := errors.NewProtocolError("sender does not match connection", errors.ErrInvalidSender).
				WithFrame(sig.String()).
				WithWorkerID(int(id))
			log.Warn("closing connection", "error", err)
			return
		}
		if sig.Code == signal.Connect {
			err := errors.NewProtocolError("repeated CONNECT", errors.ErrAlreadyRegistered).WithWorkerID(int(id))
			log.Warn("closing connection", "error", err)
			return
		}
		b.dispatch(id, sig)
	}
}

// handshake validates the first frame of a connection.
func (b *Broker) handshake(first signal.Signal) (signal.WorkerID, error) {
	if first.Code != signal.Connect {
		return 0, errors.NewProtocolError("first frame must be CONNECT", errors.ErrNotConnected).WithFrame(first.String())
	}
	if first.Sender == signal.DriverID {
		return 0, errors.NewProtocolError("driver id cannot connect", errors.ErrInvalidSender).WithFrame(first.String())
	}
	if v := first.Param(0); v != signal.ProtocolVersion {
		return 0, errors.NewProtocolError("unsupported protocol version "+v, errors.ErrVersionMismatch).WithFrame(first.String())
	}
	return first.Sender, nil
}

func (b *Broker) dispatch(from signal.WorkerID, sig signal.Signal) {
	b.handlerMu.RLock()
	h := b.handler
	b.handlerMu.RUnlock()

	if h != nil {
		h(from, sig)
	}
}

func (b *Broker) logReadError(err error, remote string, id signal.WorkerID) {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		b.logger.Debug("connection closed", "remote", remote, "worker_id", int(id))
	case errors.IsProtocolError(err):
		b.logger.Warn("closing connection", "remote", remote, "worker_id", int(id), "error", err)
	default:
		b.logger.Debug("connection read failed", "remote", remote, "worker_id", int(id), "error", err)
	}
}
