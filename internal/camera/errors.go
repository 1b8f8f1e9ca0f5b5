package camera

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrCaptureTimeout = errors.New("camera: capture timeout")
	ErrStream         = errors.New("camera: stream error")
	ErrFrameTooLarge  = errors.New("camera: frame exceeds size limit")
	ErrInvalidConfig  = errors.New("camera: invalid config")
)

// CaptureTimeoutError reports that no valid frame arrived within the
// deadline. Matches ErrCaptureTimeout under errors.Is.
type CaptureTimeoutError struct {
	Timeout time.Duration
}

func (e CaptureTimeoutError) Error() string {
	return fmt.Sprintf("camera: no valid frame within %s", e.Timeout)
}

func (e CaptureTimeoutError) Is(target error) bool {
	return target == ErrCaptureTimeout
}
