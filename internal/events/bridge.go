package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/enrich-core/internal/task"
)

// TaskSubmitter is the part of the executor the bridge needs: queueing a
// task with the resources it will claim.
type TaskSubmitter interface {
	SubmitPriorityTask(ctx context.Context, t *task.Task, handler task.Handler, resources []task.ResourceType) error
}

// SubmissionHandler turns TaskRequestEvents into queued tasks. It looks up
// the handler for the event's task type in the registry and submits the
// task with the resource claim configured for that type.
type SubmissionHandler struct {
	submitter    TaskSubmitter
	registry     *task.Registry
	resourcesFor func(taskType string) []task.ResourceType
	logger       *slog.Logger
}

// NewSubmissionHandler creates a handler that bridges events to the
// submitter. resourcesFor maps a task type to the resources its execution
// will claim.
func NewSubmissionHandler(
	submitter TaskSubmitter,
	registry *task.Registry,
	resourcesFor func(taskType string) []task.ResourceType,
	logger *slog.Logger,
) *SubmissionHandler {
	return &SubmissionHandler{
		submitter:    submitter,
		registry:     registry,
		resourcesFor: resourcesFor,
		logger:       logger.With("component", "submission_handler"),
	}
}

// HandleEvent builds a task from the event and queues it for execution.
func (h *SubmissionHandler) HandleEvent(ctx context.Context, event *TaskRequestEvent) error {
	handler, ok := h.registry.Get(event.Type)
	if !ok {
		return fmt.Errorf("no handler registered for event type %q", event.Type)
	}

	t := task.New(event.Type, event.Priority, event.Payload)
	if err := h.submitter.SubmitPriorityTask(ctx, t, handler, h.resourcesFor(event.Type)); err != nil {
		return fmt.Errorf("submitting task for event %s: %w", event.ID, err)
	}

	h.logger.Debug("event converted to task",
		"event_id", event.ID,
		"task_id", t.ID(),
		"task_type", t.Type())
	return nil
}
