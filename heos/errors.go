package heos

import "errors"

var (
	// ErrNotConnected is returned when a write is attempted with no live
	// socket.
	ErrNotConnected = errors.New("not connected to a device")

	// ErrTimeout is returned when no reply arrives within the command
	// timeout window. The command is abandoned but the queue keeps making
	// progress.
	ErrTimeout = errors.New("timed out waiting for a reply")

	// ErrClosed is returned when the socket closes while a connect attempt
	// or a command is still outstanding.
	ErrClosed = errors.New("connection closed")
)
