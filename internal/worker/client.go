package worker

import (
	"context"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/Iron-Ham/lockstep/internal/errors"
	"github.com/Iron-Ham/lockstep/internal/logging"
	"github.com/Iron-Ham/lockstep/internal/signal"
)

// dialRate bounds how often a worker retries reaching the broker.
const (
	dialRate  = 20 // attempts per second
	dialBurst = 1
)

// client is a worker's connection to the broker.
type client struct {
	id     signal.WorkerID
	conn   net.Conn
	reader *signal.Reader
	writer *signal.Writer
}

// dial connects to the broker and announces id. Refused connections are
// retried at dialRate until ctx ends.
func dial(ctx context.Context, addr string, id signal.WorkerID, logger *logging.Logger) (*client, error) {
	limiter := rate.NewLimiter(rate.Limit(dialRate), dialBurst)
	var dialer net.Dialer

	for attempt := 1; ; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, errors.Wrapf(err, "dial broker %s after %d attempts", addr, attempt-1)
		}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			logger.Debug("broker dial failed", "addr", addr, "attempt", attempt, "error", err)
			continue
		}

		c := &client{
			id:     id,
			conn:   conn,
			reader: signal.NewReader(conn),
			writer: signal.NewWriter(conn),
		}
		if err := c.writer.Write(signal.ConnectSignal(id)); err != nil {
			_ = conn.Close()
			return nil, errors.Wrap(err, "send CONNECT")
		}
		return c, nil
	}
}

func (c *client) send(code signal.Code, params ...string) error {
	return c.writer.Write(signal.New(c.id, code, params...))
}

func (c *client) next() (signal.Signal, error) {
	return c.reader.Next()
}

func (c *client) close() error {
	return c.conn.Close()
}

// dialTimeout bounds the whole connection phase of a worker.
const dialTimeout = 5 * time.Second
