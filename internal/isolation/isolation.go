package isolation

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Context lifecycle states.
const (
	stateCreated   = "created"
	stateCleanedUp = "cleaned_up"
)

// ErrContextNotFound is returned when cleaning up an unknown context id.
var ErrContextNotFound = errors.New("task context not found")

// TaskContext is one task's isolated execution context: a private copy of
// the task data plus a per-context exclusive lock. Handlers that need
// mutual exclusion over their own context data lock the context, never any
// shared structure.
type TaskContext struct {
	id        string
	taskID    string
	data      map[string]any
	createdAt time.Time

	mu    sync.Mutex
	state string
}

// ID returns the unique context identifier.
func (c *TaskContext) ID() string { return c.id }

// TaskID returns the owning task's id.
func (c *TaskContext) TaskID() string { return c.taskID }

// Data returns the context's private data copy. The map belongs to this
// context alone; callers lock the context around mutation.
func (c *TaskContext) Data() map[string]any { return c.data }

// Lock acquires the context's exclusive lock.
func (c *TaskContext) Lock() { c.mu.Lock() }

// Unlock releases the context's exclusive lock.
func (c *TaskContext) Unlock() { c.mu.Unlock() }

// Manager creates and tears down isolated per-task execution contexts.
type Manager struct {
	mu       sync.Mutex
	contexts map[string]*TaskContext
	created  uint64
	cleaned  uint64
	logger   *slog.Logger
}

// Stats reports context bookkeeping counters.
type Stats struct {
	Active  int    `json:"active"`
	Created uint64 `json:"created"`
	Cleaned uint64 `json:"cleaned"`
}

// NewManager creates an empty isolation manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		contexts: make(map[string]*TaskContext),
		logger:   logger.With("component", "isolation_manager"),
	}
}

// CreateContext builds a new isolated context for the task with a private
// copy of the given data.
func (m *Manager) CreateContext(taskID string, data map[string]any) *TaskContext {
	private := make(map[string]any, len(data))
	for k, v := range data {
		private[k] = v
	}

	ctx := &TaskContext{
		id:        fmt.Sprintf("%s_%s", taskID, uuid.New().String()),
		taskID:    taskID,
		data:      private,
		createdAt: time.Now().UTC(),
		state:     stateCreated,
	}

	m.mu.Lock()
	m.contexts[ctx.id] = ctx
	m.created++
	m.mu.Unlock()

	m.logger.Debug("task context created", "context_id", ctx.id, "task_id", taskID)
	return ctx
}

// CleanupContext tears down a context by id.
func (m *Manager) CleanupContext(contextID string) error {
	m.mu.Lock()
	ctx, ok := m.contexts[contextID]
	if ok {
		delete(m.contexts, contextID)
		m.cleaned++
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrContextNotFound, contextID)
	}

	ctx.mu.Lock()
	ctx.state = stateCleanedUp
	ctx.data = nil
	ctx.mu.Unlock()

	m.logger.Debug("task context cleaned up", "context_id", contextID, "task_id", ctx.taskID)
	return nil
}

// WithContext runs fn inside a fresh isolated context for the task and
// guarantees the context is cleaned up on every exit path, including panics
// propagating out of fn.
func (m *Manager) WithContext(taskID string, data map[string]any, fn func(*TaskContext) error) error {
	ctx := m.CreateContext(taskID, data)
	defer func() {
		if err := m.CleanupContext(ctx.id); err != nil {
			m.logger.Error("failed to clean up task context",
				"context_id", ctx.id,
				"task_id", taskID,
				"error", err)
		}
	}()

	return fn(ctx)
}

// Stats returns bookkeeping counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Active:  len(m.contexts),
		Created: m.created,
		Cleaned: m.cleaned,
	}
}
