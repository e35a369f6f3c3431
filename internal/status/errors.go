package status

import "errors"

// ErrNotFound is returned when no status row exists for a subsystem.
var ErrNotFound = errors.New("status: subsystem not found")
