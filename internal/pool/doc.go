// Package pool implements a bounded counting semaphore for one named
// constrained resource (API calls, DB connections, LLM connections, ...).
// Acquisition is timeout-bounded and every acquisition produces a lease
// whose release is idempotent, so cleanup can run on every exit path.
package pool
