//go:build !unix

package sandbox

import "log/slog"

// savedLimit is empty on platforms without resource limits.
type savedLimit struct{}

// applyLimits is a no-op where the platform offers no process resource
// limits. Containment falls back to the wall-clock watchdog and cooperative
// cancellation.
func applyLimits(_ Limits, logger *slog.Logger) []savedLimit {
	logger.Debug("resource limits unsupported on this platform")
	return nil
}

func restoreLimits(_ []savedLimit, _ *slog.Logger) {}
