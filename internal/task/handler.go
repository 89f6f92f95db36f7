package task

import (
	"context"
	"fmt"
	"sync"
)

// Handler executes one task and returns its result. Handlers must honor
// context cancellation at their blocking points and must tolerate being
// abandoned mid-flight: the executor stops waiting once the task deadline
// passes even if the handler keeps running.
type Handler func(ctx context.Context, t *Task) (any, error)

// Registry maps task types to their handlers. Enrichment analyzers register
// themselves here as plain functions; the executor looks handlers up by the
// task's type.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register associates a handler with a task type. Registering the same type
// twice is rejected so misconfigured wiring fails loudly at startup.
func (r *Registry) Register(taskType string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("%w: nil handler for type %q", ErrInvalidHandler, taskType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[taskType]; exists {
		return fmt.Errorf("%w: %q", ErrHandlerRegistered, taskType)
	}
	r.handlers[taskType] = handler
	return nil
}

// Get returns the handler for a task type.
func (r *Registry) Get(taskType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[taskType]
	return h, ok
}

// Types returns the registered task types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
