package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/enrich-core/internal/task"
)

func TestSubmitPersistsTask(t *testing.T) {
	store := newMockStore()
	e := New(testConfig(), store, setupTestLogger())

	tk := task.New(task.TaskTypeTagGeneration, task.PriorityNormal, []byte(`{}`))
	require.NoError(t, e.SubmitPriorityTask(context.Background(), tk, okHandler(nil),
		[]task.ResourceType{task.ResourceDBConnections}))

	assert.Contains(t, store.saved, tk.ID())
	assert.Equal(t, task.StatusPending, store.statusOf(tk.ID()))
}

func TestExecutePersistsStatusTransitions(t *testing.T) {
	store := newMockStore()
	e := New(testConfig(), store, setupTestLogger())

	tk := task.New(task.TaskTypeTagGeneration, task.PriorityNormal, nil)
	_, err := e.ExecuteTask(context.Background(), tk, okHandler(nil),
		[]task.ResourceType{task.ResourceDBConnections})
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, store.statusOf(tk.ID()))

	bad := task.New(task.TaskTypeGapAnalysis, task.PriorityNormal, nil)
	_, err = e.ExecuteTask(context.Background(), bad,
		func(ctx context.Context, t *task.Task) (any, error) { return nil, assert.AnError },
		[]task.ResourceType{task.ResourceDBConnections})
	require.Error(t, err)
	assert.Equal(t, task.StatusFailed, store.statusOf(bad.ID()))
}

func TestRecoverRequeuesUnfinishedTasks(t *testing.T) {
	store := newMockStore()

	pending := task.New(task.TaskTypeTagGeneration, task.PriorityNormal, nil)
	interrupted := task.New(task.TaskTypeGapAnalysis, task.PriorityHigh, nil)
	require.NoError(t, interrupted.MarkProcessing())
	store.pending = []*task.Task{pending}
	store.processing = []*task.Task{interrupted}

	e := New(testConfig(), store, setupTestLogger())

	registry := task.NewRegistry()
	executed := make(chan string, 2)
	handler := func(ctx context.Context, tk *task.Task) (any, error) {
		executed <- tk.Type()
		return nil, nil
	}
	require.NoError(t, registry.Register(task.TaskTypeTagGeneration, handler))
	require.NoError(t, registry.Register(task.TaskTypeGapAnalysis, handler))

	resourcesFor := func(taskType string) []task.ResourceType {
		return []task.ResourceType{task.ResourceProcessingSlots}
	}

	require.NoError(t, e.Recover(context.Background(), registry, resourcesFor))
	assert.Equal(t, 2, e.queueLen())
	// The interrupted task was reset to pending before requeueing.
	assert.Equal(t, task.StatusPending, store.statusOf(interrupted.ID()))

	e.Run()
	defer e.GracefulShutdown(context.Background())

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case taskType := <-executed:
			got[taskType] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for recovered tasks to run")
		}
	}
	assert.True(t, got[task.TaskTypeTagGeneration])
	assert.True(t, got[task.TaskTypeGapAnalysis])
}

func TestRecoverMarksTasksWithoutHandlersFailed(t *testing.T) {
	store := newMockStore()
	orphan := task.New("retired_task_type", task.PriorityNormal, nil)
	store.pending = []*task.Task{orphan}

	e := New(testConfig(), store, setupTestLogger())
	registry := task.NewRegistry()

	require.NoError(t, e.Recover(context.Background(), registry,
		func(string) []task.ResourceType { return nil }))

	assert.Equal(t, 0, e.queueLen())
	assert.Equal(t, task.StatusFailed, store.statusOf(orphan.ID()))
}

func TestRecoverWithoutStoreIsNoOp(t *testing.T) {
	e := New(testConfig(), nil, setupTestLogger())
	require.NoError(t, e.Recover(context.Background(), task.NewRegistry(),
		func(string) []task.ResourceType { return nil }))
	assert.Equal(t, 0, e.queueLen())
}
