package irrigation

import "errors"

// ErrSchedulingFailure is returned when a completion could not be scheduled,
// for example because the scheduler has shut down. No event is created.
var ErrSchedulingFailure = errors.New("irrigation: scheduling failed")
