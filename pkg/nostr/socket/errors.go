package socket

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed is returned to everything pending on a socket that
	// was closed with Close, and by every later call.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrNotConnected is the cause of a SendError when no websocket is open.
	ErrNotConnected = errors.New("not connected")
)

// ConnectError is a failure to open the websocket.
type ConnectError struct {
	URL string
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.URL, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// SendError is a failure to hand a message to an open websocket.
type SendError struct {
	URL string
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.URL, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// DisconnectError is delivered to listeners when an open websocket drops.
type DisconnectError struct {
	URL        string
	Generation uint64
	Err        error
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf("%s disconnected: %v", e.URL, e.Err)
}

func (e *DisconnectError) Unwrap() error { return e.Err }
