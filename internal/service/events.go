package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/task"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/workflow"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/logger"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/port/events"
)

// EventPublisher emits lifecycle events on the message bus. A nil
// receiver or nil underlying publisher disables publication, so callers
// never guard the calls.
type EventPublisher struct {
	pub events.Publisher
	now func() time.Time
}

func NewEventPublisher(pub events.Publisher) *EventPublisher {
	return &EventPublisher{pub: pub, now: time.Now}
}

// WorkflowTransition publishes a workflow status change. Best-effort:
// failures are logged, never returned.
func (p *EventPublisher) WorkflowTransition(ctx context.Context, id string, from, to workflow.Status) {
	p.emit(ctx, events.SubjectWorkflowTransition, events.Event{
		Kind:       "workflow",
		ID:         id,
		WorkflowID: id,
		From:       string(from),
		To:         string(to),
	})
}

// TaskTransition publishes a task status change.
func (p *EventPublisher) TaskTransition(ctx context.Context, t *task.Task, from task.Status) {
	p.emit(ctx, events.SubjectTaskTransition, events.Event{
		Kind:          "task",
		ID:            t.ID,
		WorkflowID:    t.WorkflowID,
		From:          string(from),
		To:            string(t.Status),
		CorrelationID: t.CorrelationID,
		Detail:        map[string]any{"agent_type": t.AgentType, "skill": t.Skill, "attempt": t.Attempt},
	})
}

// WorkflowResumed publishes a sweep resumption of an orphaned workflow.
func (p *EventPublisher) WorkflowResumed(ctx context.Context, id string) {
	p.emit(ctx, events.SubjectRecoveryResumed, events.Event{
		Kind:       "workflow",
		ID:         id,
		WorkflowID: id,
		To:         string(workflow.StatusRunning),
	})
}

func (p *EventPublisher) emit(ctx context.Context, subject string, ev events.Event) {
	if p == nil || p.pub == nil {
		return
	}
	ev.At = p.now()
	if ev.CorrelationID == "" {
		ev.CorrelationID = logger.CorrelationID(ctx)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal event", "subject", subject, "error", err)
		return
	}
	if err := p.pub.Publish(ctx, subject, data); err != nil {
		slog.Warn("publish event failed", "subject", subject, "error", err)
	}
}
