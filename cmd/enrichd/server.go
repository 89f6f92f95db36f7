package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/enrich-core/internal/events"
	"github.com/phrazzld/enrich-core/internal/lifecycle"
	"github.com/phrazzld/enrich-core/internal/task"
)

// newRouter builds the operational HTTP surface: health and status
// endpoints plus task submission.
func newRouter(app *application, manager *lifecycle.Manager) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		status := http.StatusOK
		if !manager.Healthy() {
			status = http.StatusServiceUnavailable
		}
		writeJSON(app, w, status, map[string]any{
			"components": manager.States(),
		})
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		exec := app.executor()
		if exec == nil {
			writeJSON(app, w, http.StatusServiceUnavailable, map[string]string{"error": "executor not running"})
			return
		}
		writeJSON(app, w, http.StatusOK, map[string]any{
			"metrics": exec.Metrics(),
			"health":  exec.HealthCheck(),
		})
	})

	r.Post("/tasks", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Type     string          `json:"type"`
			Priority *int            `json:"priority"`
			Payload  json.RawMessage `json:"payload"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(app, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if body.Type == "" {
			writeJSON(app, w, http.StatusBadRequest, map[string]string{"error": "type is required"})
			return
		}

		priority := task.PriorityNormal
		if body.Priority != nil {
			priority = task.Priority(*body.Priority)
			if priority < task.PriorityCritical || priority > task.PriorityLow {
				writeJSON(app, w, http.StatusBadRequest, map[string]string{"error": "priority out of range"})
				return
			}
		}

		event, err := events.NewTaskRequestEvent(body.Type, priority, body.Payload)
		if err != nil {
			writeJSON(app, w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
			return
		}

		if err := app.emitter.EmitEvent(req.Context(), event); err != nil {
			writeJSON(app, w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(app, w, http.StatusAccepted, map[string]string{"event_id": event.ID.String()})
	})

	return r
}

func writeJSON(app *application, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		app.logger.Error("failed to write response", "error", err)
	}
}
