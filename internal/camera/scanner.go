package camera

import (
	"fmt"
	"io"
)

const (
	frameHeaderLen = 16
	// Payload length occupies the first 3 header bytes, little-endian;
	// the rest of the header is reserved.
	maxDeclaredLen = 1<<24 - 1
)

// JPEG start/end markers used to validate a completed frame.
var (
	jpegStart = [2]byte{0xFF, 0xD8}
	jpegEnd   = [2]byte{0xFF, 0xD9}
)

// Limits constrains scanner memory use.
type Limits struct {
	MaxFrameBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxFrameBytes: 8 * 1024 * 1024}
}

// frameScanner reads the stream one declared frame at a time. io.ReadFull
// makes the scanner indifferent to chunk boundaries: a read may deliver a
// partial header, a partial payload, or many frames back to back.
type frameScanner struct {
	r      io.Reader
	limits Limits
}

func newFrameScanner(r io.Reader, limits Limits) *frameScanner {
	if limits.MaxFrameBytes <= 0 {
		limits = DefaultLimits()
	}
	return &frameScanner{r: r, limits: limits}
}

// next returns the next frame whose payload passes the start/end marker
// check. Frames that fail validation are discarded and scanning resumes at
// the following header, which re-synchronizes a malformed stream.
func (s *frameScanner) next() ([]byte, error) {
	for {
		payload, err := s.readOne()
		if err != nil {
			return nil, err
		}
		if validFrame(payload) {
			return payload, nil
		}
	}
}

func (s *frameScanner) readOne() ([]byte, error) {
	var header [frameHeaderLen]byte
	if _, err := io.ReadFull(s.r, header[:]); err != nil {
		return nil, err
	}

	length := int(header[0]) | int(header[1])<<8 | int(header[2])<<16
	if length > s.limits.MaxFrameBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(s.r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func validFrame(payload []byte) bool {
	if len(payload) < 4 {
		return false
	}
	return payload[0] == jpegStart[0] && payload[1] == jpegStart[1] &&
		payload[len(payload)-2] == jpegEnd[0] && payload[len(payload)-1] == jpegEnd[1]
}
