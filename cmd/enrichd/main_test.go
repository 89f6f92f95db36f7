package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/enrich-core/internal/events"
	"github.com/phrazzld/enrich-core/internal/executor"
	"github.com/phrazzld/enrich-core/internal/lifecycle"
	"github.com/phrazzld/enrich-core/internal/sandbox"
	"github.com/phrazzld/enrich-core/internal/task"
)

// recordingHandler captures the events the router emits.
type recordingHandler struct {
	HandledCount int
	LastEvent    *events.TaskRequestEvent
}

func (h *recordingHandler) HandleEvent(_ context.Context, event *events.TaskRequestEvent) error {
	h.HandledCount++
	h.LastEvent = event
	return nil
}

func testApp(t *testing.T) *application {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := &application{
		logger:   logger,
		registry: task.NewRegistry(),
		emitter:  events.NewInMemoryEventEmitter(logger),
	}

	sandboxed := sandbox.NewExecutor(sandbox.Config{
		BaseDir:          t.TempDir(),
		WallClockTimeout: time.Second,
	}, logger)
	require.NoError(t, registerHandlers(app.registry, sandboxed))
	return app
}

func TestRegisterHandlersCoversAllTaskTypes(t *testing.T) {
	app := testApp(t)
	for _, taskType := range []string{
		task.TaskTypeGapAnalysis,
		task.TaskTypeTagGeneration,
		task.TaskTypeRelationshipMapping,
		task.TaskTypeContentScrape,
	} {
		_, ok := app.registry.Get(taskType)
		assert.True(t, ok, "handler missing for %s", taskType)
	}
}

func TestResourcesForAlwaysClaimsProcessingSlot(t *testing.T) {
	for _, taskType := range []string{
		task.TaskTypeGapAnalysis,
		task.TaskTypeTagGeneration,
		task.TaskTypeRelationshipMapping,
		task.TaskTypeContentScrape,
		"unrecognized",
	} {
		assert.Contains(t, resourcesFor(taskType), task.ResourceProcessingSlots, "task type %s", taskType)
	}

	assert.Contains(t, resourcesFor(task.TaskTypeContentScrape), task.ResourceAPICalls)
	assert.Contains(t, resourcesFor(task.TaskTypeRelationshipMapping), task.ResourceVectorDBConnections)
}

func TestSubmissionBridgeSurvivesExecutorRestart(t *testing.T) {
	app := testApp(t)
	app.emitter.RegisterHandler(events.NewSubmissionHandler(app, app.registry, resourcesFor, app.logger))

	old := executor.New(executor.DefaultConfig(), nil, app.logger)
	app.setExecutor(old)
	old.GracefulShutdown(context.Background())

	fresh := executor.New(executor.DefaultConfig(), nil, app.logger)
	app.setExecutor(fresh)

	evt, err := events.NewTaskRequestEvent(task.TaskTypeTagGeneration, task.PriorityNormal,
		map[string]string{"item_id": "i1"})
	require.NoError(t, err)

	// The bridge must route to the replacement executor, not the one that
	// was shut down.
	require.NoError(t, app.emitter.EmitEvent(context.Background(), evt))
	assert.Equal(t, 1, fresh.Metrics().QueueLength)
	assert.Equal(t, 0, old.Metrics().QueueLength)
}

func TestRouterHealthReflectsManagerState(t *testing.T) {
	app := testApp(t)
	manager := lifecycle.NewManager(lifecycle.DefaultConfig(), app.logger)
	router := newRouter(app, manager)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouterStatusWithoutExecutor(t *testing.T) {
	app := testApp(t)
	manager := lifecycle.NewManager(lifecycle.DefaultConfig(), app.logger)
	router := newRouter(app, manager)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouterTaskSubmission(t *testing.T) {
	app := testApp(t)
	manager := lifecycle.NewManager(lifecycle.DefaultConfig(), app.logger)
	router := newRouter(app, manager)

	received := &recordingHandler{}
	app.emitter.RegisterHandler(received)

	t.Run("accepts a well-formed request", func(t *testing.T) {
		body := `{"type":"tag_generation","priority":1,"payload":{"item_id":"i1"}}`
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(body)))

		assert.Equal(t, http.StatusAccepted, rec.Code)
		require.Equal(t, 1, received.HandledCount)
		assert.Equal(t, task.TaskTypeTagGeneration, received.LastEvent.Type)
		assert.Equal(t, task.PriorityHigh, received.LastEvent.Priority)
	})

	t.Run("rejects a missing type", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(`{"payload":{}}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects an out-of-range priority", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tasks",
			strings.NewReader(`{"type":"tag_generation","priority":9}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(`{`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
