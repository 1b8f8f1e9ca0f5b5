package device

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrConnection       = errors.New("device: connection failed")
	ErrAlreadyConnected = errors.New("device: already connected")
	ErrNotConnected     = errors.New("device: not connected")
	ErrClosed           = errors.New("device: session closed")
	ErrConnectionLost   = errors.New("device: connection lost")
	ErrCommandTimeout   = errors.New("device: command timeout")
	ErrInvalidConfig    = errors.New("device: invalid config")
)

// CommandTimeoutError reports which command went unanswered. It matches
// ErrCommandTimeout under errors.Is.
type CommandTimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e CommandTimeoutError) Error() string {
	return fmt.Sprintf("device: command %q received no response within %s", e.Command, e.Timeout)
}

func (e CommandTimeoutError) Is(target error) bool {
	return target == ErrCommandTimeout
}
