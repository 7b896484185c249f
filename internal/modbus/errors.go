package modbus

import (
	"errors"
	"net"
	"os"

	mb "github.com/goburrow/modbus"
	"github.com/goburrow/serial"
)

// Classified errors for Modbus operations.
//
// Every error returned by Client wraps exactly one of these, so callers can
// branch with errors.Is:
//
//	if errors.Is(err, modbus.ErrNoResponse) {
//	    // expected under line noise, skip this cycle
//	}
var (
	// ErrConnection indicates the serial device could not be opened
	// (missing device path, permission denied). Fatal at startup.
	ErrConnection = errors.New("modbus: connection failed")

	// ErrNoResponse indicates the device did not reply within the timeout.
	ErrNoResponse = errors.New("modbus: no response")

	// ErrProtocol indicates a reply arrived but failed validation
	// (CRC, length, function code, or a Modbus exception response).
	ErrProtocol = errors.New("modbus: protocol error")

	// ErrTransport indicates a lower-level I/O fault on the serial line.
	ErrTransport = errors.New("modbus: transport error")

	// ErrInvalidRequest indicates the caller asked for an impossible read.
	ErrInvalidRequest = errors.New("modbus: invalid request")

	// ErrClosed indicates the client has been closed.
	ErrClosed = errors.New("modbus: client closed")
)

// ErrorKind is a short, log-friendly name for a classified error.
type ErrorKind string

// Error kinds reported by KindOf.
const (
	KindNone           ErrorKind = ""
	KindNoResponse     ErrorKind = "no_response"
	KindProtocol       ErrorKind = "protocol"
	KindTransport      ErrorKind = "transport"
	KindConnection     ErrorKind = "connection"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindClosed         ErrorKind = "closed"
	KindUnknown        ErrorKind = "unknown"
)

// KindOf returns the classification of err. A nil error has KindNone.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNoResponse):
		return KindNoResponse
	case errors.Is(err, ErrProtocol):
		return KindProtocol
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrConnection):
		return KindConnection
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, ErrClosed):
		return KindClosed
	default:
		return KindUnknown
	}
}

// Recoverable reports whether err is one of the steady-state faults a
// polling loop should skip over: no response, protocol or transport.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case KindNoResponse, KindProtocol, KindTransport:
		return true
	default:
		return false
	}
}

// ExceptionCode returns the Modbus exception code carried by err, if the
// device answered with an exception response.
func ExceptionCode(err error) (byte, bool) {
	var exc *mb.ModbusError
	if errors.As(err, &exc) {
		return exc.ExceptionCode, true
	}
	return 0, false
}

// isTimeout reports whether err means the device stayed silent.
func isTimeout(err error) bool {
	if errors.Is(err, serial.ErrTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
