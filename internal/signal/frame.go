package signal

import (
	"bufio"
	"io"
	"sync"

	"github.com/Iron-Ham/lockstep/internal/errors"
)

// Reader decodes frames from a stream. It is not safe for concurrent use;
// each connection has exactly one reading goroutine.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader returns a Reader enforcing MaxFrameLength on r.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, MaxFrameLength), MaxFrameLength)
	// ScanLines drops a trailing \r, so CRLF and bare LF both frame.
	scanner.Split(bufio.ScanLines)
	return &Reader{scanner: scanner}
}

// Next returns the next Signal. It returns io.EOF when the stream ends
// cleanly and a *errors.ProtocolError for oversize or malformed frames.
func (r *Reader) Next() (Signal, error) {
	if !r.scanner.Scan() {
		err := r.scanner.Err()
		if err == nil {
			return Signal{}, io.EOF
		}
		if errors.Is(err, bufio.ErrTooLong) {
			return Signal{}, errors.NewProtocolError("read frame", errors.ErrFrameTooLong)
		}
		return Signal{}, err
	}
	return Decode(r.scanner.Text())
}

// Writer encodes frames onto a stream. Writes are serialised so frames sent
// from several goroutines never interleave and keep their send order.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter returns a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes and writes one frame.
func (w *Writer) Write(s Signal) error {
	line, err := Encode(s)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = io.WriteString(w.w, line+terminator)
	return err
}
