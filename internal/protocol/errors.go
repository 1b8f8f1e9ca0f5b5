package protocol

import "errors"

var (
	ErrUnknownCommandKind = errors.New("protocol: unknown command kind")
	ErrInvalidSequenceID  = errors.New("protocol: invalid sequence id")
	ErrEmptyReport        = errors.New("protocol: empty report payload")
	ErrNotAReport         = errors.New("protocol: payload has no recognized family")
)
