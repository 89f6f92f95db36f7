package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/phrazzld/enrich-core/internal/sandbox"
	"github.com/phrazzld/enrich-core/internal/task"
)

// registerHandlers wires a handler for every known task type, each wrapped
// so its work runs inside the sandbox for its privilege level.
func registerHandlers(registry *task.Registry, sandboxed *sandbox.Executor) error {
	handlers := map[string]task.Handler{
		task.TaskTypeGapAnalysis:         handleGapAnalysis,
		task.TaskTypeTagGeneration:       handleTagGeneration,
		task.TaskTypeRelationshipMapping: handleRelationshipMapping,
		task.TaskTypeContentScrape:       handleContentScrape,
	}
	for taskType, handler := range handlers {
		if err := registry.Register(taskType, sandboxedHandler(sandboxed, handler)); err != nil {
			return err
		}
	}
	return nil
}

// sandboxedHandler runs the inner handler through the sandbox executor.
func sandboxedHandler(sandboxed *sandbox.Executor, inner task.Handler) task.Handler {
	return func(ctx context.Context, t *task.Task) (any, error) {
		return sandboxed.Execute(ctx, t, inner)
	}
}

// resourcesFor maps a task type to the resources its execution claims.
// Every type needs a processing slot; beyond that, the claim reflects which
// backends the handler actually touches.
func resourcesFor(taskType string) []task.ResourceType {
	switch taskType {
	case task.TaskTypeGapAnalysis:
		return []task.ResourceType{task.ResourceProcessingSlots, task.ResourceDBConnections, task.ResourceLLMConnections}
	case task.TaskTypeTagGeneration:
		return []task.ResourceType{task.ResourceProcessingSlots, task.ResourceDBConnections, task.ResourceLLMConnections}
	case task.TaskTypeRelationshipMapping:
		return []task.ResourceType{task.ResourceProcessingSlots, task.ResourceDBConnections, task.ResourceVectorDBConnections}
	case task.TaskTypeContentScrape:
		return []task.ResourceType{task.ResourceProcessingSlots, task.ResourceAPICalls, task.ResourceDBConnections}
	default:
		return []task.ResourceType{task.ResourceProcessingSlots}
	}
}

// itemPayload is the common payload shape for tasks that work on a single
// content item.
type itemPayload struct {
	ItemID string `json:"item_id"`
}

func decodeItemPayload(t *task.Task) (itemPayload, error) {
	var p itemPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("invalid payload for %s task %s: %w", t.Type(), t.ID(), err)
	}
	if p.ItemID == "" {
		return p, fmt.Errorf("payload for %s task %s is missing item_id", t.Type(), t.ID())
	}
	return p, nil
}

// The enrichment handlers below validate their input and report what they
// were asked to do. The analysis backends plug in behind these entry
// points.

func handleGapAnalysis(ctx context.Context, t *task.Task) (any, error) {
	p, err := decodeItemPayload(t)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return map[string]string{"item_id": p.ItemID, "analysis": "gap"}, nil
}

func handleTagGeneration(ctx context.Context, t *task.Task) (any, error) {
	p, err := decodeItemPayload(t)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return map[string]string{"item_id": p.ItemID, "analysis": "tags"}, nil
}

func handleRelationshipMapping(ctx context.Context, t *task.Task) (any, error) {
	p, err := decodeItemPayload(t)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return map[string]string{"item_id": p.ItemID, "analysis": "relationships"}, nil
}

// handleContentScrape fetches external content, so the scrape destination
// must stay inside the sandbox working directory.
func handleContentScrape(ctx context.Context, t *task.Task) (any, error) {
	var p struct {
		ItemID string `json:"item_id"`
		URL    string `json:"url"`
	}
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return nil, fmt.Errorf("invalid payload for %s task %s: %w", t.Type(), t.ID(), err)
	}
	if p.ItemID == "" || p.URL == "" {
		return nil, fmt.Errorf("payload for %s task %s needs item_id and url", t.Type(), t.ID())
	}

	if env, ok := sandbox.EnvFromContext(ctx); ok {
		if err := env.ValidatePath(filepath.Join(env.Dir, "scrape.out")); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return map[string]string{"item_id": p.ItemID, "url": p.URL}, nil
}
