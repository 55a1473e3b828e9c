// Package events defines the lifecycle event publication port.
package events

import (
	"context"
	"time"
)

// Event is one workflow or task lifecycle transition, published for
// consumption by the outer system (alerting, dashboards).
type Event struct {
	Kind          string         `json:"kind"` // "workflow" | "task"
	ID            string         `json:"id"`
	WorkflowID    string         `json:"workflow_id,omitempty"`
	From          string         `json:"from,omitempty"`
	To            string         `json:"to"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Detail        map[string]any `json:"detail,omitempty"`
	At            time.Time      `json:"at"`
}

// Publisher emits lifecycle events. Publication is best-effort: a
// failed publish must never fail the transition it describes.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Subject constants for the lifecycle event stream.
const (
	SubjectWorkflowTransition = "workflows.transition"
	SubjectTaskTransition     = "tasks.transition"
	SubjectRecoveryResumed    = "workflows.resumed"
)
