package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BuzzLyutic/task-lifecycle-engine/pkg/respond"
)

// NewRouter wires the task API under /api plus a /health probe.
func NewRouter(h *TaskHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", h.Create)
			r.Get("/", h.List)
			r.Get("/overdue", h.Overdue)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Get)
				r.Patch("/", h.Update)
				r.Patch("/status", h.UpdateStatus)
				r.Post("/dependencies", h.AddDependency)
				r.Get("/dependencies", h.Dependencies)
				r.Delete("/dependencies/{depId}", h.RemoveDependency)
				r.Get("/dependents", h.Dependents)
				r.Put("/assignee", h.Assign)
				r.Delete("/assignee", h.Unassign)
				r.Get("/subtasks", h.Subtasks)
				r.Put("/subtasks/{childId}", h.AddSubtask)
				r.Delete("/subtasks/{childId}", h.RemoveSubtask)
			})
		})
		r.Get("/users/{userId}/tasks/actionable", h.Actionable)
		r.Get("/stats", h.Stats)
	})

	return r
}
