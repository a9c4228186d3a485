package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a sensor ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when registering a sensor ID that is already taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidConfiguration is returned when settings, location or calibration
	// data fail validation. Nothing is mutated when it is returned.
	ErrInvalidConfiguration = errors.New("device: invalid configuration")

	// ErrEventNotFound is returned when an irrigation event ID is not in the device's log.
	ErrEventNotFound = errors.New("device: irrigation event not found")

	// ErrEventCompleted is returned when completing an event that already completed.
	ErrEventCompleted = errors.New("device: irrigation event already completed")
)
