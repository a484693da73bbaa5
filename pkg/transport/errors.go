package transport

import (
	"errors"
	"fmt"
)

// Connect errors.
var (
	// ErrConnectRefused indicates the sensor did not accept the connection.
	ErrConnectRefused = errors.New("connection refused")

	// ErrConnectTimeout indicates the sensor did not accept within the timeout.
	ErrConnectTimeout = errors.New("connect timeout")
)

// I/O errors.
var (
	// ErrIOTimeout indicates a send or receive exceeded its deadline.
	ErrIOTimeout = errors.New("i/o timeout")

	// ErrIOReset indicates the link was closed or reset during I/O.
	ErrIOReset = errors.New("connection reset")
)

// State errors.
var (
	ErrNotOpen          = errors.New("connection not open")
	ErrAlreadyOpen      = errors.New("connection already open")
	ErrConnectionClosed = errors.New("connection closed")
	ErrInvalidConfig    = errors.New("invalid transport config")
)

// ConnectError reports a failed Open. Kind is ErrConnectRefused or
// ErrConnectTimeout and matches with errors.Is.
type ConnectError struct {
	Addr     string
	Kind     error
	Attempts int
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v after %d attempt(s): %v", e.Addr, e.Kind, e.Attempts, e.Err)
}

// Is matches the error kind.
func (e *ConnectError) Is(target error) bool {
	return target == e.Kind
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// IOError reports a failed send or receive. Kind is ErrIOTimeout or
// ErrIOReset and matches with errors.Is.
type IOError struct {
	Op   string
	Kind error
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Is matches the error kind.
func (e *IOError) Is(target error) bool {
	return target == e.Kind
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the error is a deadline expiry.
func (e *IOError) Timeout() bool {
	return e.Kind == ErrIOTimeout
}
