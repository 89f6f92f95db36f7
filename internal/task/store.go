package task

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines the interface for persisting tasks. The executor works
// without one; when configured, status transitions are written through so
// queued work survives restarts.
type Store interface {
	// SaveTask persists a task.
	SaveTask(ctx context.Context, t *Task) error

	// UpdateTaskStatus updates the status and error message of a task.
	UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status Status, errorMsg string) error

	// DeleteTask removes a task. Used to roll back a persisted submission
	// that was subsequently refused.
	DeleteTask(ctx context.Context, taskID uuid.UUID) error

	// GetPendingTasks retrieves all tasks with "pending" status.
	GetPendingTasks(ctx context.Context) ([]*Task, error)

	// GetProcessingTasks retrieves tasks with "processing" status.
	// If olderThan is non-zero, only tasks that have been in that state
	// longer than the given duration are returned.
	GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]*Task, error)
}
