package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/.well-known/agent.json", h.GetAgentCard)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Workflows
		r.Post("/workflows", h.StartWorkflow)
		r.Get("/workflows/{id}", h.GetWorkflow)
		r.Delete("/workflows/{id}", h.CancelWorkflow)
		r.Post("/workflows/{id}/resume", h.ResumeWorkflow)

		// Tasks
		r.Get("/tasks/pending", h.ListPendingTasks)

		// Recovery
		r.Post("/recovery/sweep", h.RunRecoverySweep)

		// Agent registry
		r.Get("/agents", h.ListAgents)
		r.Post("/agents", h.RegisterAgent)
		r.Post("/agents/{instanceID}/heartbeat", h.AgentHeartbeat)
		r.Delete("/agents/{instanceID}", h.DeregisterAgent)

		// Deduplication
		r.Post("/dedup/check", h.CheckDuplicate)

		// Health
		r.Get("/health", h.GetHealth)
	})
}
