//go:build unix

package sandbox

import (
	"log/slog"

	"golang.org/x/sys/unix"
)

// savedLimit records a soft limit as it was before tightening so it can be
// restored once the task finishes.
type savedLimit struct {
	resource int
	name     string
	original unix.Rlimit
}

// applyLimits tightens the process soft limits to the given ceilings. The
// application is best effort: a resource whose limit cannot be read or set
// is logged at debug level and skipped. The returned slice holds the
// original limits that were actually changed.
func applyLimits(l Limits, logger *slog.Logger) []savedLimit {
	targets := []struct {
		resource int
		name     string
		ceiling  uint64
	}{
		{unix.RLIMIT_AS, "address_space", l.AddressSpaceBytes},
		{unix.RLIMIT_CPU, "cpu_time", l.CPUTimeSeconds},
		{unix.RLIMIT_FSIZE, "file_size", l.FileSizeBytes},
	}

	var saved []savedLimit
	for _, tgt := range targets {
		var cur unix.Rlimit
		if err := unix.Getrlimit(tgt.resource, &cur); err != nil {
			logger.Debug("could not read resource limit",
				slog.String("resource", tgt.name),
				slog.String("error", err.Error()))
			continue
		}
		if !shouldTighten(cur.Cur == unix.RLIM_INFINITY, cur.Cur, tgt.ceiling) {
			continue
		}
		next := unix.Rlimit{Cur: tgt.ceiling, Max: cur.Max}
		if cur.Max != unix.RLIM_INFINITY && next.Cur > cur.Max {
			next.Cur = cur.Max
		}
		if err := unix.Setrlimit(tgt.resource, &next); err != nil {
			logger.Debug("could not tighten resource limit",
				slog.String("resource", tgt.name),
				slog.String("error", err.Error()))
			continue
		}
		saved = append(saved, savedLimit{resource: tgt.resource, name: tgt.name, original: cur})
	}
	return saved
}

// restoreLimits puts back the soft limits recorded by applyLimits, in
// reverse order. Originals that were unlimited are left tightened because
// raising a limit back to unlimited is refused in many container runtimes.
func restoreLimits(saved []savedLimit, logger *slog.Logger) {
	for i := len(saved) - 1; i >= 0; i-- {
		s := saved[i]
		if !shouldRestore(s.original.Cur == unix.RLIM_INFINITY) {
			continue
		}
		if err := unix.Setrlimit(s.resource, &s.original); err != nil {
			logger.Debug("could not restore resource limit",
				slog.String("resource", s.name),
				slog.String("error", err.Error()))
		}
	}
}
