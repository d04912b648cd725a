package sink

import "errors"

// Sentinel kinds for sink errors.
var (
	ErrClosed = errors.New("sink closed")
)
