package gateway

import "fmt"

// ProtocolError reports a malformed request, forbidden pipelining, or a
// bad content-length. The worker turns it into a 400 response and closes
// the connection.
type ProtocolError struct {
	Status string // e.g. "400 Bad Request"
	Reason string // short machine-ish reason, e.g. "bad method"
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Status, e.Reason)
}

func protocolErrorf(reason string) error {
	return &ProtocolError{Status: statusBadRequest, Reason: reason}
}

// IoError wraps a read/write failure or a premature EOF encountered while
// draining a request body. The worker terminates the connection silently
// on IoError; no response is emitted past the point of failure.
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("io error during %s: %v", e.Op, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

func ioErrorf(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IoError{Op: op, Err: err}
}

// AppError wraps a panic or error raised by the application callable.
// HeadersSent records whether the response had already begun transmission
// when the fault occurred, which decides whether the worker can still
// surface a synthetic 500 or must simply close the connection.
type AppError struct {
	HeadersSent bool
	Err         error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("application error (headers sent=%v): %v", e.HeadersSent, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

const (
	statusBadRequest          = "400 Bad Request"
	statusInternalServerError = "500 Internal Server Error"
)
