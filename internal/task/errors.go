package task

import "errors"

// Common errors returned by the task package.
var (
	// ErrInvalidTransition is returned when a status change would violate
	// the monotonic pending -> processing -> terminal state machine.
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrHandlerRegistered is returned when a task type already has a handler.
	ErrHandlerRegistered = errors.New("handler already registered")

	// ErrInvalidHandler is returned when a nil handler is registered.
	ErrInvalidHandler = errors.New("invalid handler")
)
