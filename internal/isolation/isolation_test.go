package isolation

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func TestCreateContextCopiesData(t *testing.T) {
	m := NewManager(setupTestLogger())

	data := map[string]any{"item_id": "42"}
	ctx := m.CreateContext("task-1", data)

	assert.Equal(t, "task-1", ctx.TaskID())
	assert.Contains(t, ctx.ID(), "task-1_")
	assert.Equal(t, "42", ctx.Data()["item_id"])

	// Mutating the caller's map does not leak into the context
	data["item_id"] = "mutated"
	assert.Equal(t, "42", ctx.Data()["item_id"])

	require.NoError(t, m.CleanupContext(ctx.ID()))
}

func TestContextIDsAreUnique(t *testing.T) {
	m := NewManager(setupTestLogger())

	a := m.CreateContext("task-1", nil)
	b := m.CreateContext("task-1", nil)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 2, m.Stats().Active)
}

func TestCleanupUnknownContext(t *testing.T) {
	m := NewManager(setupTestLogger())
	err := m.CleanupContext("nope")
	assert.ErrorIs(t, err, ErrContextNotFound)
}

func TestWithContextCleansUpOnSuccess(t *testing.T) {
	m := NewManager(setupTestLogger())

	var seen *TaskContext
	err := m.WithContext("task-1", map[string]any{"k": "v"}, func(ctx *TaskContext) error {
		seen = ctx
		assert.Equal(t, "v", ctx.Data()["k"])
		return nil
	})

	require.NoError(t, err)
	require.NotNil(t, seen)

	stats := m.Stats()
	assert.Equal(t, 0, stats.Active)
	assert.Equal(t, uint64(1), stats.Created)
	assert.Equal(t, uint64(1), stats.Cleaned)
}

func TestWithContextCleansUpOnError(t *testing.T) {
	m := NewManager(setupTestLogger())

	boom := errors.New("handler failed")
	err := m.WithContext("task-1", nil, func(ctx *TaskContext) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, m.Stats().Active)
}

func TestWithContextCleansUpOnPanic(t *testing.T) {
	m := NewManager(setupTestLogger())

	assert.Panics(t, func() {
		_ = m.WithContext("task-1", nil, func(ctx *TaskContext) error {
			panic("handler panicked")
		})
	})

	stats := m.Stats()
	assert.Equal(t, 0, stats.Active)
	assert.Equal(t, uint64(1), stats.Cleaned)
}

func TestContextLock(t *testing.T) {
	m := NewManager(setupTestLogger())

	err := m.WithContext("task-1", map[string]any{"count": 0}, func(ctx *TaskContext) error {
		ctx.Lock()
		ctx.Data()["count"] = 1
		ctx.Unlock()
		return nil
	})
	require.NoError(t, err)
}
