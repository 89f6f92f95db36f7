package lifecycle

import "errors"

// Common errors returned by the lifecycle manager.
var (
	// ErrComponentRegistered is returned when a component name is
	// registered twice.
	ErrComponentRegistered = errors.New("component already registered")

	// ErrUnknownComponent is returned when an operation names a component
	// that was never registered.
	ErrUnknownComponent = errors.New("unknown component")

	// ErrUnknownDependency is returned when a component declares a
	// dependency on a name that was never registered.
	ErrUnknownDependency = errors.New("unknown dependency")

	// ErrDependencyCycle is returned when the dependency graph cannot be
	// ordered because it contains a cycle.
	ErrDependencyCycle = errors.New("dependency cycle")

	// ErrDependencyUnavailable is returned when a component's dependency
	// fails its liveness probe during startup.
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// ErrStartFailed wraps a component's own Start error.
	ErrStartFailed = errors.New("component start failed")

	// ErrStopTimeout is returned when a component does not stop within
	// its allotted time.
	ErrStopTimeout = errors.New("component stop timed out")

	// ErrNotRunning is returned when an operation requires the manager to
	// have started successfully.
	ErrNotRunning = errors.New("manager not running")
)
