// Package signal implements the lockstep control-plane protocol.
//
// A Signal travels as one text line:
//
//	SENDER_ID:CODE[:PARAM...]\r\n
//
// SENDER_ID is the worker's own id, or 0 (DriverID) for frames that
// originate at the driver. The same code can flow in both directions
// (BREAKPOINT is both a worker's arrival report and the driver's arm
// command); the sender id tells them apart. A frame, terminator included,
// is at most MaxFrameLength bytes.
package signal

import (
	"strconv"
	"strings"

	"github.com/Iron-Ham/lockstep/internal/errors"
)

const (
	// MaxFrameLength bounds a frame on the wire, CRLF included.
	MaxFrameLength = 80

	// ProtocolVersion is announced as the single CONNECT parameter.
	ProtocolVersion = "v1"

	separator  = ":"
	terminator = "\r\n"
)

// WorkerID identifies a worker process for the lifetime of a harness run.
type WorkerID int

// DriverID is the sender id of every driver-originated signal.
const DriverID WorkerID = 0

// Code is the message type of a Signal.
type Code int

const (
	// Connect announces a worker's id to the broker.
	Connect Code = iota + 1
	// Breakpoint reports arrival (worker to driver) or arms a pause point
	// (driver to worker).
	Breakpoint
	// Proceed resumes a paused worker.
	Proceed
)

var codeNames = map[Code]string{
	Connect:    "CONNECT",
	Breakpoint: "BREAKPOINT",
	Proceed:    "PROCEED",
}

// String returns the wire name of the code.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "UNKNOWN(" + strconv.Itoa(int(c)) + ")"
}

// ParseCode maps a wire name to its Code.
func ParseCode(name string) (Code, error) {
	for code, n := range codeNames {
		if n == name {
			return code, nil
		}
	}
	return 0, errors.NewProtocolError("parse code "+strconv.Quote(name), errors.ErrUnknownCode)
}

// Signal is an immutable control message.
type Signal struct {
	Sender WorkerID
	Code   Code
	params []string
}

// New builds a Signal. The params slice is copied.
func New(sender WorkerID, code Code, params ...string) Signal {
	return Signal{
		Sender: sender,
		Code:   code,
		params: append([]string(nil), params...),
	}
}

// Params returns a copy of the signal parameters.
func (s Signal) Params() []string {
	return append([]string(nil), s.params...)
}

// Param returns the i-th parameter, or "" if there is none.
func (s Signal) Param(i int) string {
	if i < 0 || i >= len(s.params) {
		return ""
	}
	return s.params[i]
}

// FromDriver reports whether the signal was sent by the driver.
func (s Signal) FromDriver() bool {
	return s.Sender == DriverID
}

// String renders the frame without its terminator. Signals that cannot be
// encoded render as their best-effort text form.
func (s Signal) String() string {
	return s.join()
}

func (s Signal) join() string {
	parts := make([]string, 0, 2+len(s.params))
	parts = append(parts, strconv.Itoa(int(s.Sender)), s.Code.String())
	parts = append(parts, s.params...)
	return strings.Join(parts, separator)
}

// Encode renders s as a frame line without its terminator.
func Encode(s Signal) (string, error) {
	if _, ok := codeNames[s.Code]; !ok {
		return "", errors.NewProtocolError("encode signal", errors.ErrUnknownCode)
	}
	if s.Sender < 0 {
		return "", errors.NewProtocolError("encode signal", errors.ErrInvalidSender)
	}
	for _, p := range s.params {
		if strings.ContainsAny(p, ":\r\n") {
			return "", errors.NewProtocolError("encode param "+strconv.Quote(p), errors.ErrInvalidParam)
		}
	}

	line := s.join()
	if len(line)+len(terminator) > MaxFrameLength {
		return "", errors.NewProtocolError("encode signal", errors.ErrFrameTooLong).WithFrame(line)
	}
	return line, nil
}

// Decode parses a frame line (terminator already stripped).
// Sender ids must be canonical non-negative integers so that
// Encode(Decode(x)) == x holds for every accepted x.
func Decode(line string) (Signal, error) {
	if len(line)+len(terminator) > MaxFrameLength {
		return Signal{}, errors.NewProtocolError("decode frame", errors.ErrFrameTooLong).WithFrame(line)
	}
	if strings.ContainsAny(line, "\r\n") {
		return Signal{}, errors.NewProtocolError("decode frame", errors.ErrMalformedFrame).WithFrame(line)
	}

	fields := strings.Split(line, separator)
	if len(fields) < 2 {
		return Signal{}, errors.NewProtocolError("decode frame", errors.ErrMalformedFrame).WithFrame(line)
	}

	id, err := strconv.Atoi(fields[0])
	if err != nil || id < 0 || strconv.Itoa(id) != fields[0] {
		return Signal{}, errors.NewProtocolError("decode frame", errors.ErrInvalidSender).WithFrame(line)
	}

	code, err := ParseCode(fields[1])
	if err != nil {
		return Signal{}, errors.NewProtocolError("decode frame", errors.ErrUnknownCode).WithFrame(line)
	}

	return New(WorkerID(id), code, fields[2:]...), nil
}

// ConnectSignal is the first frame a worker sends.
func ConnectSignal(id WorkerID) Signal {
	return New(id, Connect, ProtocolVersion)
}
