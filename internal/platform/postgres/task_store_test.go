package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/enrich-core/internal/store"
	"github.com/phrazzld/enrich-core/internal/task"
)

// mockDBTX records the statements it receives and returns canned results.
type mockDBTX struct {
	execQuery string
	execArgs  []any
	execErr   error
	rows      int64

	queryErr error
}

type mockResult struct{ rows int64 }

func (r mockResult) LastInsertId() (int64, error) { return 0, nil }
func (r mockResult) RowsAffected() (int64, error) { return r.rows, nil }

func (m *mockDBTX) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	m.execQuery = query
	m.execArgs = args
	if m.execErr != nil {
		return nil, m.execErr
	}
	return mockResult{rows: m.rows}, nil
}

func (m *mockDBTX) PrepareContext(context.Context, string) (*sql.Stmt, error) {
	return nil, errors.New("not implemented")
}

func (m *mockDBTX) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, m.queryErr
}

func (m *mockDBTX) QueryRowContext(context.Context, string, ...any) *sql.Row {
	return nil
}

func TestNewTaskStore(t *testing.T) {
	db := &mockDBTX{}
	s := NewTaskStore(db)
	require.NotNil(t, s)
	assert.Equal(t, store.DBTX(db), s.db)
}

func TestSaveTaskWritesAllColumns(t *testing.T) {
	db := &mockDBTX{rows: 1}
	s := NewTaskStore(db)

	tk := task.New(task.TaskTypeTagGeneration, task.PriorityHigh, []byte(`{"memo_id":"m1"}`))
	require.NoError(t, s.SaveTask(context.Background(), tk))

	assert.Contains(t, db.execQuery, "INSERT INTO tasks")
	require.Len(t, db.execArgs, 8)
	assert.Equal(t, tk.ID(), db.execArgs[0])
	assert.Equal(t, task.TaskTypeTagGeneration, db.execArgs[1])
	assert.Equal(t, int(task.PriorityHigh), db.execArgs[2])
	assert.Equal(t, []byte(`{"memo_id":"m1"}`), db.execArgs[3])
	assert.Equal(t, string(task.StatusPending), db.execArgs[4])
}

func TestSaveTaskWrapsDatabaseError(t *testing.T) {
	db := &mockDBTX{execErr: &pgconn.PgError{Code: uniqueViolationCode}}
	s := NewTaskStore(db)

	err := s.SaveTask(context.Background(), task.New(task.TaskTypeGapAnalysis, task.PriorityNormal, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestUpdateTaskStatusMissingTaskIsNoOp(t *testing.T) {
	db := &mockDBTX{rows: 0}
	s := NewTaskStore(db)

	err := s.UpdateTaskStatus(context.Background(), uuid.New(), task.StatusFailed, "boom")
	assert.NoError(t, err)
	assert.Contains(t, db.execQuery, "UPDATE tasks")
	assert.Equal(t, string(task.StatusFailed), db.execArgs[0])
	assert.Equal(t, "boom", db.execArgs[1])
}

func TestDeleteTask(t *testing.T) {
	db := &mockDBTX{rows: 1}
	s := NewTaskStore(db)

	id := uuid.New()
	require.NoError(t, s.DeleteTask(context.Background(), id))
	assert.Contains(t, db.execQuery, "DELETE FROM tasks")
	assert.Equal(t, []any{id}, db.execArgs)

	// Deleting an already-removed task is a no-op, same as status updates.
	db.rows = 0
	assert.NoError(t, s.DeleteTask(context.Background(), uuid.New()))
}

func TestGetPendingTasksQueryError(t *testing.T) {
	db := &mockDBTX{queryErr: errors.New("connection reset")}
	s := NewTaskStore(db)

	_, err := s.GetPendingTasks(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query tasks by status")
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", sql.ErrNoRows, store.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: uniqueViolationCode}, store.ErrDuplicate},
		{"foreign key violation", &pgconn.PgError{Code: foreignKeyViolationCode}, store.ErrInvalidEntity},
		{"check violation", &pgconn.PgError{Code: checkViolationCode}, store.ErrInvalidEntity},
		{"not null violation", &pgconn.PgError{Code: notNullViolationCode}, store.ErrInvalidEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := MapError(tt.err)
			if tt.want == nil {
				assert.NoError(t, mapped)
				return
			}
			assert.ErrorIs(t, mapped, tt.want)
		})
	}

	t.Run("unmapped errors pass through", func(t *testing.T) {
		plain := errors.New("plain failure")
		assert.Equal(t, plain, MapError(plain))
	})
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: uniqueViolationCode}))
	assert.False(t, IsUniqueViolation(errors.New("other")))
	assert.False(t, IsUniqueViolation(nil))
}
