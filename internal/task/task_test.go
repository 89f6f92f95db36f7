package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	tk := New(TaskTypeTagGeneration, PriorityNormal, []byte(`{"item_id":"42"}`))
	assert.Equal(t, StatusPending, tk.Status())
	assert.True(t, tk.StartedAt().IsZero())

	require.NoError(t, tk.MarkProcessing())
	assert.Equal(t, StatusProcessing, tk.Status())
	assert.False(t, tk.StartedAt().IsZero())

	// Starting twice is rejected
	err := tk.MarkProcessing()
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, tk.Complete())
	assert.Equal(t, StatusCompleted, tk.Status())
	assert.False(t, tk.CompletedAt().IsZero())
}

func TestTerminalStatesAreFinal(t *testing.T) {
	tk := New(TaskTypeGapAnalysis, PriorityHigh, nil)
	require.NoError(t, tk.MarkProcessing())
	require.NoError(t, tk.Fail("handler exploded"))

	assert.Equal(t, StatusFailed, tk.Status())
	assert.Equal(t, "handler exploded", tk.ErrorMessage())

	assert.ErrorIs(t, tk.Complete(), ErrInvalidTransition)
	assert.ErrorIs(t, tk.Cancel("too late"), ErrInvalidTransition)
	assert.ErrorIs(t, tk.MarkProcessing(), ErrInvalidTransition)
	// The original failure message is untouched by rejected transitions
	assert.Equal(t, "handler exploded", tk.ErrorMessage())
}

func TestCancelPendingTask(t *testing.T) {
	tk := New(TaskTypeContentScrape, PriorityLow, nil)
	require.NoError(t, tk.Cancel("shutdown"))
	assert.Equal(t, StatusCancelled, tk.Status())
	assert.Equal(t, "shutdown", tk.ErrorMessage())
}

func TestCanonicalOrder(t *testing.T) {
	ordered := CanonicalOrder([]ResourceType{
		ResourceLLMConnections,
		ResourceAPICalls,
		ResourceLLMConnections, // duplicate
		ResourceDBConnections,
	})

	assert.Equal(t, []ResourceType{
		ResourceAPICalls,
		ResourceDBConnections,
		ResourceLLMConnections,
	}, ordered)
}

func TestCanonicalOrderDoesNotMutateInput(t *testing.T) {
	in := []ResourceType{ResourceProcessingSlots, ResourceAPICalls}
	_ = CanonicalOrder(in)
	assert.Equal(t, []ResourceType{ResourceProcessingSlots, ResourceAPICalls}, in)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	handler := func(ctx context.Context, tk *Task) (any, error) { return "ok", nil }
	require.NoError(t, reg.Register(TaskTypeTagGeneration, handler))

	err := reg.Register(TaskTypeTagGeneration, handler)
	assert.ErrorIs(t, err, ErrHandlerRegistered)

	err = reg.Register(TaskTypeGapAnalysis, nil)
	assert.ErrorIs(t, err, ErrInvalidHandler)

	got, ok := reg.Get(TaskTypeTagGeneration)
	require.True(t, ok)
	res, err := got(context.Background(), New(TaskTypeTagGeneration, PriorityNormal, nil))
	require.NoError(t, err)
	assert.Equal(t, "ok", res)

	_, ok = reg.Get("unknown")
	assert.False(t, ok)
}

func TestPriorityString(t *testing.T) {
	assert.Equal(t, "critical", PriorityCritical.String())
	assert.Equal(t, "low", PriorityLow.String())
	assert.Equal(t, "priority(9)", Priority(9).String())
}
