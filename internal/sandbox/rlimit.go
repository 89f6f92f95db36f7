package sandbox

// Resource ceilings only ever tighten the limits the process already has.
// The decision logic lives here, independent of the syscalls, so it is the
// same on every platform.

// shouldTighten reports whether a ceiling should replace the current soft
// limit. An unlimited current limit is always tightened; a finite one only
// when the ceiling is lower.
func shouldTighten(currentUnlimited bool, current, ceiling uint64) bool {
	if ceiling == 0 {
		return false
	}
	return currentUnlimited || ceiling < current
}

// shouldRestore reports whether an original soft limit should be put back
// after a task finishes. Raising a limit back to unlimited is commonly
// refused inside containers, so only finite originals are restored; the
// tightened limit simply stays in place otherwise.
func shouldRestore(originalUnlimited bool) bool {
	return !originalUnlimited
}
