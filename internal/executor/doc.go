// Package executor runs the enrichment pipeline's background tasks under
// finite resource budgets. It composes the resource pools, the deadlock
// detector, and the isolation manager into one discipline:
//
//   - a task is admitted only if its resource requests cannot close a wait
//     cycle, and is rejected synchronously otherwise;
//   - required resources are acquired sequentially in one canonical order,
//     and released in reverse on any failure;
//   - handlers run under a hard deadline with cooperative cancellation;
//   - cleanup of the active table, the wait graph, and the isolation
//     context happens unconditionally on every exit path.
//
// Priority submissions queue in (priority, submission order) and are
// rejected outright once the backpressure threshold is reached. No retry
// policy lives here: failures are reported and the caller decides.
package executor
