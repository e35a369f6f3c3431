package unifi

import (
	"errors"
	"fmt"
)

// Domain-specific errors for controller operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAuthFailed is returned when the controller rejects a login.
	ErrAuthFailed = errors.New("unifi: authentication failed")

	// ErrDialFailed is returned when a streaming connection cannot be opened.
	ErrDialFailed = errors.New("unifi: streaming connection failed to open")

	// ErrTransport wraps mid-stream failures of an open streaming connection.
	ErrTransport = errors.New("unifi: streaming transport error")

	// ErrClassification wraps failures raised while an adapter handles a frame,
	// including handler failures and recovered panics.
	ErrClassification = errors.New("unifi: frame classification failed")

	// ErrMalformedFrame is returned when a frame does not have the shape
	// its subsystem requires.
	ErrMalformedFrame = errors.New("unifi: malformed frame")

	// ErrHandlerFailed wraps the first error returned by a registered handler.
	ErrHandlerFailed = errors.New("unifi: handler failed")

	// ErrHandlerNotFound is returned when removing a handler that was never added.
	ErrHandlerNotFound = errors.New("unifi: handler not registered")

	// ErrHandlerNotComparable is returned when a handler cannot be identified
	// for later removal (e.g. a struct value holding a map or slice).
	ErrHandlerNotComparable = errors.New("unifi: handler is not comparable")

	// ErrNilHandler is returned when adding a nil handler.
	ErrNilHandler = errors.New("unifi: handler is nil")

	// ErrUnknownSubsystem is returned for a subsystem name with no adapter.
	ErrUnknownSubsystem = errors.New("unifi: unknown subsystem")

	// ErrDuplicateSubsystem is returned when a subsystem is requested twice.
	ErrDuplicateSubsystem = errors.New("unifi: duplicate subsystem")

	// ErrControllerClosed is returned when a connect cycle is abandoned
	// because the controller was closed.
	ErrControllerClosed = errors.New("unifi: controller closed")

	// ErrInvalidOptions is returned by New for incomplete options.
	ErrInvalidOptions = errors.New("unifi: invalid options")
)

// StatusError reports a non-2xx response from the controller REST API.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unifi: %s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}
