// Package database defines the task store port (interface).
package database

import (
	"context"
	"time"

	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/agent"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/recovery"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/task"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/workflow"
)

// TaskMutation adjusts task fields as part of a CAS transition. Applied
// only when the expected-status check passes.
type TaskMutation struct {
	Result       map[string]any
	ErrorDetail  string
	Attempt      *int
	NextRetryAt  *time.Time
	ClearRetryAt bool
}

// WorkflowMutation adjusts workflow fields as part of a CAS transition.
type WorkflowMutation struct {
	CurrentStage *int
	Metrics      *workflow.Metrics
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// Store is the port interface for durable task/workflow/recovery/agent
// state. All mutating operations are atomic with respect to the
// invariants they protect: the unique-pending-task and single-active-
// recovery invariants are enforced here, not by callers racing each
// other.
type Store interface {
	// Tasks
	//
	// CreateTask fails with domain.ErrDuplicateTask while another task
	// with the same (agent type, skill, params hash) is pending or
	// running.
	CreateTask(ctx context.Context, req task.CreateRequest) (*task.Task, error)
	GetTask(ctx context.Context, id string) (*task.Task, error)
	ListWorkflowTasks(ctx context.Context, workflowID string) ([]task.Task, error)
	// TransitionTask is a compare-and-swap: it fails with
	// domain.ErrStaleState if the stored status does not match from.
	TransitionTask(ctx context.Context, id string, from, to task.Status, mut TaskMutation) (*task.Task, error)
	FindActiveTaskByFingerprint(ctx context.Context, fp task.Fingerprint) (*task.Task, error)
	ListPendingTasks(ctx context.Context, agentType string) ([]task.Task, error)
	ListDueRetries(ctx context.Context, now time.Time) ([]task.Task, error)

	// Workflows
	CreateWorkflow(ctx context.Context, wfType string, config map[string]any) (*workflow.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error)
	TransitionWorkflow(ctx context.Context, id string, from, to workflow.Status, mut WorkflowMutation) (*workflow.Workflow, error)
	ListStaleRunning(ctx context.Context, updatedBefore time.Time) ([]workflow.Workflow, error)
	CountByStatus(ctx context.Context, status workflow.Status) (int, error)

	// Recovery
	//
	// CreateRecovery fails with domain.ErrConflict while an unresolved
	// record exists for the same task.
	CreateRecovery(ctx context.Context, rec *recovery.Record) (*recovery.Record, error)
	// AppendRecoveryAttempt merges a later failed attempt into the
	// task's active record, updating its strategy and checkpoint.
	AppendRecoveryAttempt(ctx context.Context, taskID string, strategy recovery.Strategy, checkpoint map[string]any, attempt recovery.AttemptInfo) (*recovery.Record, error)
	GetActiveRecovery(ctx context.Context, taskID string) (*recovery.Record, error)
	ResolveRecovery(ctx context.Context, id string) error
	CountAwaitingManual(ctx context.Context) (int, error)

	// Agent state
	UpsertAgentState(ctx context.Context, req agent.RegisterRequest) (*agent.State, error)
	TouchAgentHeartbeat(ctx context.Context, instanceID string, at time.Time) error
	SetAgentHealth(ctx context.Context, instanceID string, health agent.Health) error
	AdjustAgentLoad(ctx context.Context, instanceID string, delta int) error
	ListAgentStates(ctx context.Context, agentType string) ([]agent.State, error)
	ListAllAgentStates(ctx context.Context) ([]agent.State, error)
	DeleteAgentState(ctx context.Context, instanceID string) error

	// Content dedup
	//
	// RecordContentHash is an idempotent insert: inserted reports
	// whether the hash was newly recorded; a repeat bumps the ref count.
	RecordContentHash(ctx context.Context, hash string, at time.Time) (inserted bool, err error)
	SweepContentHashes(ctx context.Context, olderThan time.Time) (removed int, err error)
}
