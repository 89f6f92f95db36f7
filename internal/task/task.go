package task

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a task.
type Status string

// Possible task status values. Completed, failed, and cancelled are
// terminal: once reached, a task's status never changes again.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// terminal reports whether a status is a terminal state.
func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Priority orders queued tasks. Lower values drain first; tasks of equal
// priority drain in submission order.
type Priority int

// Priority tiers from most to least urgent.
const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

// String returns the tier name for logging and metrics labels.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Task type constants for the enrichment pipeline's background work.
const (
	// TaskTypeGapAnalysis identifies knowledge-gap analysis over stored content.
	TaskTypeGapAnalysis = "gap_analysis"

	// TaskTypeTagGeneration identifies tag generation for a content item.
	TaskTypeTagGeneration = "tag_generation"

	// TaskTypeRelationshipMapping identifies relationship mapping between items.
	TaskTypeRelationshipMapping = "relationship_mapping"

	// TaskTypeContentScrape identifies fetching external content for enrichment.
	TaskTypeContentScrape = "content_scrape"
)

// Task represents a unit of background work to be processed.
//
// A Task is created by a caller and thereafter mutated only by the executor
// that owns its execution. Status transitions are monotonic:
// pending -> processing -> {completed, failed, cancelled}.
type Task struct {
	id        uuid.UUID
	taskType  string
	priority  Priority
	payload   []byte
	createdAt time.Time

	mu           sync.Mutex
	status       Status
	startedAt    time.Time
	completedAt  time.Time
	errorMessage string
}

// New creates a pending task of the given type and priority.
func New(taskType string, priority Priority, payload []byte) *Task {
	return &Task{
		id:        uuid.New(),
		taskType:  taskType,
		priority:  priority,
		payload:   payload,
		createdAt: time.Now().UTC(),
		status:    StatusPending,
	}
}

// Restore rebuilds a task from persisted fields, preserving its identity.
// Used when recovering queued work after a restart.
func Restore(id uuid.UUID, taskType string, priority Priority, payload []byte, status Status, createdAt time.Time) *Task {
	return &Task{
		id:        id,
		taskType:  taskType,
		priority:  priority,
		payload:   payload,
		createdAt: createdAt,
		status:    status,
	}
}

// ID returns the task's unique identifier.
func (t *Task) ID() uuid.UUID { return t.id }

// Type returns the task type identifier.
func (t *Task) Type() string { return t.taskType }

// Priority returns the task's priority tier.
func (t *Task) Priority() Priority { return t.priority }

// Payload returns the task data as a byte slice.
func (t *Task) Payload() []byte { return t.payload }

// CreatedAt returns when the task was created.
func (t *Task) CreatedAt() time.Time { return t.createdAt }

// Status returns the current task status.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// StartedAt returns when the task began processing, zero if it never started.
func (t *Task) StartedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startedAt
}

// CompletedAt returns when the task reached a terminal state, zero otherwise.
func (t *Task) CompletedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completedAt
}

// ErrorMessage returns the failure message recorded on the task, if any.
func (t *Task) ErrorMessage() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errorMessage
}

// MarkProcessing transitions the task from pending to processing and
// records the start time. Any other transition is rejected.
func (t *Task) MarkProcessing() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusPending {
		return fmt.Errorf("%w: cannot start task in status %q", ErrInvalidTransition, t.status)
	}
	t.status = StatusProcessing
	t.startedAt = time.Now().UTC()
	return nil
}

// Complete transitions the task into the completed terminal state.
func (t *Task) Complete() error {
	return t.finish(StatusCompleted, "")
}

// Fail transitions the task into the failed terminal state, recording the
// failure message.
func (t *Task) Fail(message string) error {
	return t.finish(StatusFailed, message)
}

// Cancel transitions the task into the cancelled terminal state. Cancelling
// an already-terminal task is rejected; cancellation of a pending task is
// allowed so queued work can be discarded during shutdown.
func (t *Task) Cancel(message string) error {
	return t.finish(StatusCancelled, message)
}

func (t *Task) finish(status Status, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.terminal() {
		return fmt.Errorf("%w: task already in terminal status %q", ErrInvalidTransition, t.status)
	}
	t.status = status
	t.errorMessage = message
	t.completedAt = time.Now().UTC()
	return nil
}
