package history

import "errors"

// Domain-specific errors for history queries.
var (
	// ErrInvalidRange is returned when a window's start is after its end.
	ErrInvalidRange = errors.New("history: start is after end")

	// ErrInvalidPeriod is returned for an unsupported analytics period.
	ErrInvalidPeriod = errors.New("history: invalid period")
)
