// Package task defines the Task domain entity.
package task

import "time"

// Status represents the current state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is a terminal status. Terminal tasks are
// immutable except for a recovery-driven re-open.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Task represents a unit of work delegated to one agent capability.
type Task struct {
	ID            string         `json:"id"`
	WorkflowID    string         `json:"workflow_id"`
	AgentType     string         `json:"agent_type"`
	Skill         string         `json:"skill"`
	Params        map[string]any `json:"params"`
	ParamsHash    string         `json:"params_hash"`
	Status        Status         `json:"status"`
	Priority      int            `json:"priority"` // 1 = highest
	Attempt       int            `json:"attempt"`
	MaxAttempts   int            `json:"max_attempts"`
	NextRetryAt   time.Time      `json:"next_retry_at,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Result        map[string]any `json:"result,omitempty"`
	ErrorDetail   string         `json:"error_detail,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Fingerprint identifies logically identical work. Tasks sharing a
// fingerprint must not be pending or running at the same time.
type Fingerprint struct {
	AgentType  string
	Skill      string
	ParamsHash string
}

// Fingerprint returns the task's idempotency fingerprint.
func (t *Task) Fingerprint() Fingerprint {
	return Fingerprint{AgentType: t.AgentType, Skill: t.Skill, ParamsHash: t.ParamsHash}
}

// CreateRequest holds the fields needed to create a new task.
type CreateRequest struct {
	WorkflowID    string         `json:"workflow_id"`
	AgentType     string         `json:"agent_type"`
	Skill         string         `json:"skill"`
	Params        map[string]any `json:"params"`
	Priority      int            `json:"priority"`
	MaxAttempts   int            `json:"max_attempts"`
	CorrelationID string         `json:"correlation_id"`
}
