// Package link provides the line-oriented transports to the insole
// microcontroller (serial, Bluetooth RFCOMM, simulated) and the supervisor
// that keeps one of them connected.
package link

import "errors"

var (
	// ErrConnectionAborted is returned by Supervisor.Acquire when the context
	// is cancelled before any candidate connects.
	ErrConnectionAborted = errors.New("connection aborted")
	// ErrNotConnected is returned by reads on a closed transport.
	ErrNotConnected = errors.New("not connected")
	// ErrUnsupported is returned when a transport is unavailable on this platform.
	ErrUnsupported = errors.New("transport not supported on this platform")
)

// Transport is a byte stream split into lines.
type Transport interface {
	// ReadLine returns the next complete line without its terminator.
	// It returns "" and a nil error when the read timeout elapsed, or one
	// read arrived without completing a line, so callers regain control at
	// least once per read timeout.
	ReadLine() (string, error)
	Close() error
	String() string
}

var (
	_ Transport = (*Serial)(nil)
	_ Transport = (*Bluetooth)(nil)
	_ Transport = (*Mock)(nil)
)
