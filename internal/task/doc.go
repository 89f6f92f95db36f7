// Package task defines the unit of background work for the enrichment
// pipeline: the Task state machine, priority tiers, the fixed set of bounded
// resource types, and the per-type handler registry. Execution itself is the
// executor package's job; this package only models the work.
package task
