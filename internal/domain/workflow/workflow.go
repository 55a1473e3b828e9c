// Package workflow defines the Workflow domain entity and stage plans.
package workflow

import (
	"time"

	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/task"
)

// Status represents the current state of a workflow.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is a fully resolved status. Suspended is
// not terminal: it awaits operator action.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Workflow represents one pipeline run composed of ordered tasks.
type Workflow struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Config       map[string]any `json:"config,omitempty"`
	Status       Status         `json:"status"`
	CurrentStage int            `json:"current_stage"`
	StartedAt    time.Time      `json:"started_at,omitempty"`
	CompletedAt  time.Time      `json:"completed_at,omitempty"`
	Metrics      Metrics        `json:"metrics"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Metrics holds execution timing for a workflow.
type Metrics struct {
	DurationMS int64            `json:"duration_ms,omitempty"`
	StageMS    map[string]int64 `json:"stage_ms,omitempty"` // stage name -> elapsed
}

// Stage describes one step of a workflow plan.
type Stage struct {
	Name            string         `json:"name"`
	AgentType       string         `json:"agent_type"`
	Skill           string         `json:"skill"`
	Params          map[string]any `json:"params,omitempty"`
	Level           int            `json:"level"` // stages at the same level may run concurrently
	Optional        bool           `json:"optional"`
	Checkpointable  bool           `json:"checkpointable"`
	CompensateSkill string         `json:"compensate_skill,omitempty"`
	MaxAttempts     int            `json:"max_attempts,omitempty"`
}

// Plan is the ordered stage composition for a workflow type.
type Plan struct {
	Type   string  `json:"type"`
	Stages []Stage `json:"stages"`
}

// Levels groups the plan's stages by level in ascending order. Stages
// within one group are independent of each other.
func (p *Plan) Levels() [][]Stage {
	if len(p.Stages) == 0 {
		return nil
	}
	maxLevel := 0
	for _, s := range p.Stages {
		if s.Level > maxLevel {
			maxLevel = s.Level
		}
	}
	groups := make([][]Stage, maxLevel+1)
	for _, s := range p.Stages {
		groups[s.Level] = append(groups[s.Level], s)
	}
	out := groups[:0]
	for _, g := range groups {
		if len(g) > 0 {
			out = append(out, g)
		}
	}
	return out
}

// DeriveStatus computes the workflow status implied by its task set.
// A workflow is never completed while any task is pending or running.
func DeriveStatus(current Status, tasks []task.Task) Status {
	if current == StatusCancelled {
		return StatusCancelled
	}
	anyOpen := false
	anyFailed := false
	for _, t := range tasks {
		switch t.Status {
		case task.StatusPending, task.StatusRunning:
			anyOpen = true
		case task.StatusFailed:
			anyFailed = true
		}
	}
	switch {
	case anyOpen:
		return StatusRunning
	case anyFailed:
		return StatusFailed
	default:
		return StatusCompleted
	}
}

// StatusView is the read-only projection returned to callers.
type StatusView struct {
	Workflow Workflow    `json:"workflow"`
	Tasks    []task.Task `json:"tasks"`
}
