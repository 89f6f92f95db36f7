// Package events provides types and interfaces for an event-driven
// architecture.
//
// This package defines event types and handler interfaces that allow for
// loose coupling between components in the system. Producers can emit
// events without knowing which handlers will process them, and the
// SubmissionHandler bridges incoming task-request events into the
// executor's priority queue.
//
// The primary components are:
// - TaskRequestEvent: Represents a request to run a background task
// - EventHandler: Interface for components that can handle events
// - EventEmitter: Interface for components that can emit events
// - SubmissionHandler: Converts events into queued tasks
package events
