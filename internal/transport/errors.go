package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/LemmyAI/puckserver/internal/protocol"
)

var (
	ErrBind          = errors.New("transport: bind failed")
	ErrServerStopped = errors.New("transport: server stopped")
	ErrNoPeer        = errors.New("transport: no peer connected")
	ErrIdleTimeout   = errors.New("transport: idle timeout")
	ErrConnClosed    = errors.New("transport: connection closed")
	ErrQueueFull     = errors.New("transport: write queue full")
	ErrNilPacket     = errors.New("transport: nil packet")
)

// BindError reports a failure to open the listening socket. It matches both
// ErrBind and the underlying cause.
type BindError struct {
	Port int
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("transport: bind :%d: %v", e.Port, e.Err)
}

func (e *BindError) Unwrap() []error {
	return []error{ErrBind, e.Err}
}

// SendError reports a packet that could not be written to the peer.
type SendError struct {
	Kind protocol.Kind
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("transport: send %s: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// IdleTimeoutError reports a peer that sent nothing for the keep-alive
// timeout.
type IdleTimeoutError struct {
	Remote  string
	Timeout time.Duration
}

func (e *IdleTimeoutError) Error() string {
	return fmt.Sprintf("transport: %s idle for %s", e.Remote, e.Timeout)
}

func (e *IdleTimeoutError) Unwrap() error {
	return ErrIdleTimeout
}
