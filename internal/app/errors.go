package service

import "errors"

// Sentinel kinds for service errors.
var (
	// ErrDuplicateEvent marks an event id that was already accepted.
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrBusy marks a submission rejected because the intake queue is full.
	ErrBusy = errors.New("intake queue full")
)
