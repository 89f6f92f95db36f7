package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/enrich-core/internal/task"
)

// MockEventHandler records the events it receives and can be configured to
// fail.
type MockEventHandler struct {
	HandledCount int
	LastEvent    *TaskRequestEvent
	HandlerError error
}

func (m *MockEventHandler) HandleEvent(_ context.Context, event *TaskRequestEvent) error {
	m.HandledCount++
	m.LastEvent = event
	return m.HandlerError
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInMemoryEventEmitter(t *testing.T) {
	t.Run("emit event with no handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(testLogger())
		event, err := NewTaskRequestEvent(task.TaskTypeTagGeneration, task.PriorityNormal, map[string]string{"memo_id": "m1"})
		require.NoError(t, err)

		err = emitter.EmitEvent(context.Background(), event)
		assert.NoError(t, err)
	})

	t.Run("emit event with successful handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(testLogger())

		handler1 := &MockEventHandler{}
		handler2 := &MockEventHandler{}
		emitter.RegisterHandler(handler1)
		emitter.RegisterHandler(handler2)

		event, err := NewTaskRequestEvent(task.TaskTypeGapAnalysis, task.PriorityHigh, map[string]string{"memo_id": "m1"})
		require.NoError(t, err)

		err = emitter.EmitEvent(context.Background(), event)
		assert.NoError(t, err)

		assert.Equal(t, 1, handler1.HandledCount)
		assert.Equal(t, 1, handler2.HandledCount)
		assert.Equal(t, event, handler1.LastEvent)
		assert.Equal(t, event, handler2.LastEvent)
	})

	t.Run("emit event with failing handler", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(testLogger())

		successHandler := &MockEventHandler{}
		failingHandler := &MockEventHandler{HandlerError: errors.New("handler error")}
		emitter.RegisterHandler(failingHandler)
		emitter.RegisterHandler(successHandler)

		event, err := NewTaskRequestEvent(task.TaskTypeContentScrape, task.PriorityLow, nil)
		require.NoError(t, err)

		err = emitter.EmitEvent(context.Background(), event)
		assert.ErrorIs(t, err, failingHandler.HandlerError)

		// The failure does not keep other handlers from seeing the event.
		assert.Equal(t, 1, successHandler.HandledCount)
	})
}

func TestTaskRequestEventPayload(t *testing.T) {
	type payload struct {
		MemoID string `json:"memo_id"`
	}

	event, err := NewTaskRequestEvent(task.TaskTypeTagGeneration, task.PriorityNormal, payload{MemoID: "m42"})
	require.NoError(t, err)
	assert.NotEqual(t, event.ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.False(t, event.CreatedAt.IsZero())

	var decoded payload
	require.NoError(t, event.UnmarshalPayload(&decoded))
	assert.Equal(t, "m42", decoded.MemoID)
}
