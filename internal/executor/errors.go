package executor

import "errors"

// Common errors returned by the executor.
var (
	// ErrTaskExecution is returned when a task cannot run or its handler
	// fails: handler errors, deadlock rejections, missing pools, invalid
	// state transitions.
	ErrTaskExecution = errors.New("task execution failed")

	// ErrTaskTimeout is returned when a handler exceeds the configured
	// task timeout. The message names the timeout that was applied.
	ErrTaskTimeout = errors.New("task execution timed out")

	// ErrQueueFull is returned when a priority submission hits the
	// backpressure threshold. Work is never silently buffered past it.
	ErrQueueFull = errors.New("task queue is full")

	// ErrShuttingDown is returned for submissions and executions that
	// arrive while shutdown is in progress.
	ErrShuttingDown = errors.New("executor is shutting down")
)
