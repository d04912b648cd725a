package hub

import "errors"

// Sentinel kinds for hub errors.
var (
	ErrInvalidFilter = errors.New("invalid filter expression")
	ErrClosed        = errors.New("hub closed")
)
