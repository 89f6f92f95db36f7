// Package sandbox runs task handlers inside a restricted environment.
//
// Each task gets an owner-only working directory, a privilege level derived
// from its task type, best-effort process resource ceilings for that level,
// and a wall-clock watchdog that is independent of any cooperative timeout
// applied by the caller. Path access outside the working directory and the
// configured allow-list is rejected. The working directory is removed
// unconditionally when the task finishes, whatever the outcome.
//
// Resource ceilings use setrlimit where the platform supports it and only
// ever tighten limits, never raise them. On other platforms containment is
// purely cooperative.
package sandbox
