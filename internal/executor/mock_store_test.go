package executor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/enrich-core/internal/task"
)

// mockStore is an in-memory task.Store for tests.
type mockStore struct {
	mu       sync.Mutex
	saved    map[uuid.UUID]*task.Task
	statuses map[uuid.UUID]task.Status
	errors   map[uuid.UUID]string
	saveErr  error

	// saveHook, when set, runs before the save takes effect.
	saveHook func(t *task.Task)

	pending    []*task.Task
	processing []*task.Task
}

func newMockStore() *mockStore {
	return &mockStore{
		saved:    make(map[uuid.UUID]*task.Task),
		statuses: make(map[uuid.UUID]task.Status),
		errors:   make(map[uuid.UUID]string),
	}
}

func (s *mockStore) SaveTask(ctx context.Context, t *task.Task) error {
	if s.saveHook != nil {
		s.saveHook(t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved[t.ID()] = t
	s.statuses[t.ID()] = t.Status()
	return nil
}

func (s *mockStore) DeleteTask(ctx context.Context, taskID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saved, taskID)
	delete(s.statuses, taskID)
	delete(s.errors, taskID)
	return nil
}

func (s *mockStore) UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status task.Status, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[taskID] = status
	s.errors[taskID] = errorMsg
	return nil
}

func (s *mockStore) GetPendingTasks(ctx context.Context) ([]*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*task.Task(nil), s.pending...), nil
}

func (s *mockStore) GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*task.Task(nil), s.processing...), nil
}

func (s *mockStore) statusOf(id uuid.UUID) task.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[id]
}
