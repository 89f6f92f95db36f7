package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/enrich-core/internal/platform/logger"
	"github.com/phrazzld/enrich-core/internal/store"
	"github.com/phrazzld/enrich-core/internal/task"
)

// TaskStore implements the task.Store interface using PostgreSQL.
type TaskStore struct {
	db store.DBTX
}

// NewTaskStore creates a new TaskStore.
func NewTaskStore(db store.DBTX) *TaskStore {
	return &TaskStore{db: db}
}

// compile-time interface check
var _ task.Store = (*TaskStore)(nil)

// SaveTask persists a task to the database.
func (s *TaskStore) SaveTask(ctx context.Context, t *task.Task) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO tasks (id, type, priority, payload, status, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, query,
		t.ID(),
		t.Type(),
		int(t.Priority()),
		t.Payload(),
		string(t.Status()),
		t.ErrorMessage(),
		t.CreatedAt().UTC(),
		now,
	)
	if err != nil {
		log.Error("failed to save task",
			"task_id", t.ID(),
			"task_type", t.Type(),
			"error", err)
		return fmt.Errorf("failed to save task to database: %w", MapError(err))
	}

	return nil
}

// UpdateTaskStatus updates the status and error message of a task. A
// missing task is treated as a no-op so status write-through never blocks
// execution.
func (s *TaskStore) UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status task.Status, errorMsg string) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE tasks
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := s.db.ExecContext(ctx, query,
		string(status),
		errorMsg,
		time.Now().UTC(),
		taskID,
	)
	if err != nil {
		log.Error("failed to update task status",
			"task_id", taskID,
			"status", status,
			"error", err)
		return fmt.Errorf("failed to update task status: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Error("failed to get rows affected",
			"task_id", taskID,
			"error", err)
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		log.Warn("no task found with ID to update status",
			"task_id", taskID)
		return nil
	}

	return nil
}

// DeleteTask removes a task row. A missing task is treated as a no-op, the
// same as UpdateTaskStatus.
func (s *TaskStore) DeleteTask(ctx context.Context, taskID uuid.UUID) error {
	log := logger.FromContext(ctx)

	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, taskID)
	if err != nil {
		log.Error("failed to delete task",
			"task_id", taskID,
			"error", err)
		return fmt.Errorf("failed to delete task: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Error("failed to get rows affected",
			"task_id", taskID,
			"error", err)
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		log.Warn("no task found with ID to delete",
			"task_id", taskID)
	}

	return nil
}

// GetPendingTasks retrieves all tasks with "pending" status.
func (s *TaskStore) GetPendingTasks(ctx context.Context) ([]*task.Task, error) {
	return s.getTasksByStatus(ctx, task.StatusPending, 0)
}

// GetProcessingTasks retrieves tasks with "processing" status, optionally
// only those last touched more than olderThan ago.
func (s *TaskStore) GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]*task.Task, error) {
	return s.getTasksByStatus(ctx, task.StatusProcessing, olderThan)
}

// getTasksByStatus fetches tasks by status with an optional age filter.
// Rows come back ordered by priority first so recovery requeues urgent
// work ahead of the rest.
func (s *TaskStore) getTasksByStatus(ctx context.Context, status task.Status, olderThan time.Duration) ([]*task.Task, error) {
	log := logger.FromContext(ctx)

	query := `
		SELECT id, type, priority, payload, status, error_message, created_at
		FROM tasks
		WHERE status = $1
		ORDER BY priority ASC, created_at ASC
	`
	args := []any{string(status)}

	if olderThan > 0 {
		query = `
			SELECT id, type, priority, payload, status, error_message, created_at
			FROM tasks
			WHERE status = $1 AND updated_at < $2
			ORDER BY priority ASC, created_at ASC
		`
		args = append(args, time.Now().UTC().Add(-olderThan))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks by status",
			"status", status,
			"error", err)
		return nil, fmt.Errorf("failed to query tasks by status: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var tasks []*task.Task
	for rows.Next() {
		var (
			id           uuid.UUID
			taskType     string
			priority     int
			payload      []byte
			rowStatus    string
			errorMessage sql.NullString
			createdAt    time.Time
		)
		if err := rows.Scan(&id, &taskType, &priority, &payload, &rowStatus, &errorMessage, &createdAt); err != nil {
			log.Error("failed to scan task row",
				"status", status,
				"error", err)
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}

		tasks = append(tasks, task.Restore(id, taskType, task.Priority(priority), payload, task.Status(rowStatus), createdAt))
	}

	if err := rows.Err(); err != nil {
		log.Error("error iterating task rows",
			"status", status,
			"error", err)
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}
