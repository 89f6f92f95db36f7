package sandbox

import "errors"

// Common errors returned by the sandbox.
var (
	// ErrSetup is returned when the isolated working directory cannot be
	// prepared.
	ErrSetup = errors.New("sandbox setup failed")

	// ErrPathOutsideSandbox is returned when a task touches a path that is
	// neither inside its working directory nor on the allow-list.
	ErrPathOutsideSandbox = errors.New("path outside sandbox")

	// ErrWallClockTimeout is returned when the wall-clock watchdog fires.
	// This deadline is independent of the executor's cooperative timeout
	// and guards against handlers that ignore cancellation.
	ErrWallClockTimeout = errors.New("wall-clock limit exceeded")
)
