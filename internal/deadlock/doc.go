// Package deadlock provides a conservative admission check that keeps the
// executor's resource waits acyclic. It rejects a task up front whenever its
// requested resources could close a wait cycle with a task already admitted,
// trading some concurrency (false positives) for a deadlock-free guarantee.
package deadlock
