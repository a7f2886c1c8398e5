package realtime

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Send when there is no live connection. Callers
	// must surface a retry affordance instead of dropping the user's intent.
	ErrNotConnected = errors.New("realtime: not connected")

	// ErrEmptyMessage is returned when a text send is blank after trimming.
	ErrEmptyMessage = errors.New("realtime: message is empty")

	// ErrClosed is returned by Connect after Close.
	ErrClosed = errors.New("realtime: transport closed")

	errSendQueueFull = errors.New("send queue full")
	errMissingEvent  = errors.New("missing event name")
)

// ConnectionError is a transport-level failure. It triggers a backoff reconnect
// and is never fatal.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("realtime: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// MalformedFrameError describes an inbound payload that could not be decoded.
// Such frames are logged and dropped.
type MalformedFrameError struct {
	Event string
	Err   error
}

func (e *MalformedFrameError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("realtime: malformed frame: %v", e.Err)
	}
	return fmt.Sprintf("realtime: malformed %s frame: %v", e.Event, e.Err)
}

func (e *MalformedFrameError) Unwrap() error {
	return e.Err
}
