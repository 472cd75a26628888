package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidJSON indicates a frame that is not a JSON object.
	ErrInvalidJSON = errors.New("Invalid JSON")
	// ErrMissingMethod indicates a request without a usable method field.
	ErrMissingMethod = errors.New("Missing 'method' field")
	// ErrMethodNotFound indicates the method has no registered handler.
	ErrMethodNotFound = errors.New("method not found")
	// ErrMethodExists indicates a method name is already registered.
	ErrMethodExists = errors.New("method already registered")
	// ErrCancelled indicates scheduled work was dropped because the host stopped.
	ErrCancelled = errors.New("cancelled")
	// ErrRateLimited indicates a session exceeded its command budget.
	ErrRateLimited = errors.New("Rate limit exceeded")
	// ErrInvalidEnvelope indicates a response envelope violating the status invariant.
	ErrInvalidEnvelope = errors.New("invalid response envelope")
	// ErrShuttingDown indicates the bridge refuses new sessions.
	ErrShuttingDown = errors.New("bridge is shutting down")
	// ErrSessionLimit indicates the session cap has been reached.
	ErrSessionLimit = errors.New("too many sessions")
	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("bridge already started")
	// ErrNotStarted indicates an operation requiring a running bridge.
	ErrNotStarted = errors.New("bridge not started")
)

// BindError reports a listener that could not be bound.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}
