package http

import (
	"net/http"

	"github.com/JyX33/agentic-technical-watch-sub001/internal/adapter/a2a"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/agent"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/service"
)

// Handlers bundles the services the HTTP surface dispatches to.
type Handlers struct {
	Orchestrator *service.OrchestratorService
	Registry     *service.RegistryService
	Recovery     *service.RecoveryService
	Dedup        *service.DedupService
	Health       *service.HealthService
	BaseURL      string
}

type startWorkflowRequest struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

type startWorkflowResponse struct {
	WorkflowID string `json:"workflow_id"`
}

// StartWorkflow creates a workflow and begins executing it.
func (h *Handlers) StartWorkflow(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[startWorkflowRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Type, "type") {
		return
	}

	id, err := h.Orchestrator.StartWorkflow(r.Context(), req.Type, req.Config)
	if err != nil {
		writeDomainError(w, err, "workflow type not found")
		return
	}
	writeJSON(w, http.StatusAccepted, startWorkflowResponse{WorkflowID: id})
}

// GetWorkflow returns the workflow and its task set.
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	view, err := h.Orchestrator.GetWorkflowStatus(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// CancelWorkflow cancels a workflow and its open tasks.
func (h *Handlers) CancelWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := h.Orchestrator.CancelWorkflow(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResumeWorkflow restarts a suspended or orphaned workflow from its
// last completed stage.
func (h *Handlers) ResumeWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := h.Orchestrator.ResumeWorkflow(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ListPendingTasks returns the pending queue for one agent type.
func (h *Handlers) ListPendingTasks(w http.ResponseWriter, r *http.Request) {
	agentType := r.URL.Query().Get("agent_type")
	if !requireField(w, agentType, "agent_type") {
		return
	}
	tasks, err := h.Orchestrator.PendingTasks(r.Context(), agentType)
	if err != nil {
		writeDomainError(w, err, "task listing failed")
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

type sweepResponse struct {
	Resumed int `json:"resumed"`
}

// RunRecoverySweep triggers one pass of orphaned-workflow detection.
func (h *Handlers) RunRecoverySweep(w http.ResponseWriter, r *http.Request) {
	resumed, err := h.Recovery.RunRecoverySweep(r.Context())
	if err != nil {
		writeDomainError(w, err, "recovery sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{Resumed: resumed})
}

// RegisterAgent registers or refreshes an agent instance.
func (h *Handlers) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[agent.RegisterRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.AgentType, "agent_type") ||
		!requireField(w, req.InstanceID, "instance_id") ||
		!requireField(w, req.Endpoint, "endpoint") {
		return
	}

	state, err := h.Registry.Register(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "agent registration failed")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// AgentHeartbeat refreshes an instance's liveness timestamp.
func (h *Handlers) AgentHeartbeat(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.Heartbeat(r.Context(), urlParam(r, "instanceID")); err != nil {
		writeDomainError(w, err, "agent instance not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeregisterAgent removes an instance from the registry.
func (h *Handlers) DeregisterAgent(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.Deregister(r.Context(), urlParam(r, "instanceID")); err != nil {
		writeDomainError(w, err, "agent instance not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAgents returns the fleet summary.
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Registry.Summary(r.Context())
	if err != nil {
		writeDomainError(w, err, "registry unavailable")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type dedupCheckRequest struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

type dedupCheckResponse struct {
	Duplicate bool `json:"duplicate"`
}

// CheckDuplicate records a piece of content and reports whether it was
// seen before.
func (h *Handlers) CheckDuplicate(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[dedupCheckRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Content, "content") {
		return
	}

	dup, err := h.Dedup.Seen(r.Context(), req.Source, req.Content)
	if err != nil {
		writeDomainError(w, err, "dedup check failed")
		return
	}
	writeJSON(w, http.StatusOK, dedupCheckResponse{Duplicate: dup})
}

// GetHealth returns the operational snapshot.
func (h *Handlers) GetHealth(w http.ResponseWriter, r *http.Request) {
	report, err := h.Health.Report(r.Context())
	if err != nil {
		writeDomainError(w, err, "health report failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetAgentCard serves the service's discovery document.
func (h *Handlers) GetAgentCard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a2a.BuildAgentCard(h.BaseURL))
}
