package scheduling

import "errors"

// Error kinds returned by the scheduling engine. Callers match them with
// errors.Is; the wrapped message carries the detail.
var (
	ErrInvalidTimeFormat = errors.New("invalid time format")
	ErrValidation        = errors.New("validation error")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("time conflicts with existing appointment")
	ErrVersionConflict   = errors.New("appointment was modified concurrently")
)
