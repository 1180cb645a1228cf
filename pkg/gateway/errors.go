package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned for any command issued without a live socket.
	ErrNotConnected = errors.New("gateway: not connected")

	// ErrConnectionLost wraps the I/O failure that invalidated the socket.
	ErrConnectionLost = errors.New("gateway: connection lost")

	// ErrMotionTimeout is returned when the robot is still moving at the deadline.
	ErrMotionTimeout = errors.New("gateway: motion did not stop before timeout")

	// ErrPollerStopped is the poller's sticky error once its loop has exited.
	// The cached status is no longer fresh.
	ErrPollerStopped = errors.New("gateway: status poller stopped")
)

// ConnectError reports a failed dial.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("gateway: connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ProtocolError reports a response that does not have the expected shape.
type ProtocolError struct {
	Command string
	Raw     string
	Reason  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("gateway: %s: %s (response %q)", e.Command, e.Reason, e.Raw)
}

// RemoteCommandError is a well-formed response that did not start with OK.
type RemoteCommandError struct {
	Command string
	Raw     string
}

func (e *RemoteCommandError) Error() string {
	return fmt.Sprintf("gateway: %s rejected: %s", e.Command, e.Raw)
}

// IsConnectionError reports whether err means the client has no usable socket.
func IsConnectionError(err error) bool {
	if errors.Is(err, ErrNotConnected) || errors.Is(err, ErrConnectionLost) {
		return true
	}
	var ce *ConnectError
	return errors.As(err, &ce)
}
