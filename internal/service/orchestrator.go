package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JyX33/agentic-technical-watch-sub001/internal/adapter/otel"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/config"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/recovery"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/task"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/workflow"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/port/database"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/port/skill"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/resilience"
)

// stageOutcome is the result of driving one stage to a decision point.
type stageOutcome int

const (
	outcomeCompleted stageOutcome = iota
	outcomeSkipped
	outcomeSuspend
	outcomeFailed
	outcomeCancelled
)

// OrchestratorService drives workflows: it creates the task set from
// the workflow's stage plan, enforces per-task idempotency, routes each
// call through the target dependency's circuit breaker, and delegates
// failures to the recovery manager.
type OrchestratorService struct {
	store    database.Store
	registry *RegistryService
	recovery *RecoveryService
	invoker  skill.Invoker
	breakers *resilience.Set
	events   *EventPublisher
	metrics  *otel.Metrics
	cfg      config.Orchestrator

	wg           sync.WaitGroup
	now          func() time.Time                                // for testing
	sleep        func(ctx context.Context, d time.Duration) error // for testing
	pollInterval time.Duration
}

// NewOrchestratorService creates an OrchestratorService. metrics may be
// nil (e.g. in tests); events may be nil to disable publication.
func NewOrchestratorService(
	store database.Store,
	registry *RegistryService,
	rec *RecoveryService,
	invoker skill.Invoker,
	breakers *resilience.Set,
	events *EventPublisher,
	metrics *otel.Metrics,
	cfg config.Orchestrator,
) *OrchestratorService {
	return &OrchestratorService{
		store:        store,
		registry:     registry,
		recovery:     rec,
		invoker:      invoker,
		breakers:     breakers,
		events:       events,
		metrics:      metrics,
		cfg:          cfg,
		now:          time.Now,
		sleep:        sleepCtx,
		pollInterval: 250 * time.Millisecond,
	}
}

// StartWorkflow creates the workflow and kicks off asynchronous
// execution, returning the workflow id immediately.
func (s *OrchestratorService) StartWorkflow(ctx context.Context, wfType string, cfg map[string]any) (string, error) {
	if _, err := s.planFor(wfType, cfg); err != nil {
		return "", err
	}

	wf, err := s.store.CreateWorkflow(ctx, wfType, cfg)
	if err != nil {
		return "", fmt.Errorf("start workflow: %w", err)
	}

	s.events.WorkflowTransition(ctx, wf.ID, "", workflow.StatusScheduled)
	if s.metrics != nil {
		s.metrics.WorkflowsStarted.Add(ctx, 1)
	}
	slog.Info("workflow started", "workflow_id", wf.ID, "type", wfType)

	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Resume(runCtx, wf.ID); err != nil {
			slog.Error("workflow execution failed", "workflow_id", wf.ID, "error", err)
		}
	}()

	return wf.ID, nil
}

// PendingTasks returns the queue of pending tasks for one agent type,
// priority then age ordered. An operator-facing view of queue depth.
func (s *OrchestratorService) PendingTasks(ctx context.Context, agentType string) ([]task.Task, error) {
	return s.store.ListPendingTasks(ctx, agentType)
}

// GetWorkflowStatus returns a read-only projection of the workflow and
// its tasks.
func (s *OrchestratorService) GetWorkflowStatus(ctx context.Context, id string) (*workflow.StatusView, error) {
	wf, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.ListWorkflowTasks(ctx, id)
	if err != nil {
		return nil, err
	}
	return &workflow.StatusView{Workflow: *wf, Tasks: tasks}, nil
}

// CancelWorkflow marks the workflow and its open tasks cancelled.
// Cancellation is cooperative: an in-flight invocation's completion is
// ignored on arrival because its CAS precondition is now stale.
func (s *OrchestratorService) CancelWorkflow(ctx context.Context, id string) error {
	wf, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}
	if wf.Status.Terminal() {
		return fmt.Errorf("cancel workflow %s: already %s", id, wf.Status)
	}

	if _, err := s.store.TransitionWorkflow(ctx, id, wf.Status, workflow.StatusCancelled, database.WorkflowMutation{}); err != nil {
		return err
	}

	tasks, err := s.store.ListWorkflowTasks(ctx, id)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if t.Status.Terminal() {
			continue
		}
		if _, err := s.store.TransitionTask(ctx, t.ID, t.Status, task.StatusCancelled, database.TaskMutation{}); err != nil && !errors.Is(err, domain.ErrStaleState) {
			return err
		}
	}

	s.events.WorkflowTransition(ctx, id, wf.Status, workflow.StatusCancelled)
	slog.Info("workflow cancelled", "workflow_id", id)
	return nil
}

// ResumeWorkflow validates that the workflow can be resumed and drives
// it in the background, returning immediately.
func (s *OrchestratorService) ResumeWorkflow(ctx context.Context, id string) error {
	wf, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}
	switch wf.Status {
	case workflow.StatusScheduled, workflow.StatusSuspended, workflow.StatusRunning:
	default:
		return fmt.Errorf("resume workflow %s: already %s: %w", id, wf.Status, domain.ErrStaleState)
	}

	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Resume(runCtx, id); err != nil {
			slog.Error("workflow resumption failed", "workflow_id", id, "error", err)
		}
	}()
	return nil
}

// Wait blocks until all in-flight workflow goroutines finish. Used for
// graceful shutdown.
func (s *OrchestratorService) Wait() {
	s.wg.Wait()
}

// Resume drives the workflow from its current stage to a resolved
// state. Called for fresh workflows, after suspension, and by the
// recovery sweep for orphaned runs; completed stages are never
// re-executed.
func (s *OrchestratorService) Resume(ctx context.Context, id string) error {
	wf, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}

	plan, err := s.planFor(wf.Type, wf.Config)
	if err != nil {
		return err
	}

	switch prior := wf.Status; prior {
	case workflow.StatusScheduled, workflow.StatusSuspended:
		started := s.now()
		mut := database.WorkflowMutation{}
		if wf.StartedAt.IsZero() {
			mut.StartedAt = &started
		}
		wf, err = s.store.TransitionWorkflow(ctx, id, prior, workflow.StatusRunning, mut)
		if err != nil {
			return err
		}
		if prior == workflow.StatusSuspended {
			s.events.WorkflowResumed(ctx, id)
		}
	case workflow.StatusRunning:
		// Orphaned run picked up by the sweep; continue in place.
		s.events.WorkflowResumed(ctx, id)
	default:
		return fmt.Errorf("resume workflow %s: status %s is resolved", id, wf.Status)
	}

	return s.drive(ctx, wf, plan)
}

// drive executes the plan level by level from the workflow's current
// stage pointer. Stages at one level run concurrently, bounded by
// MaxParallel; the workflow advances only once a whole level completes.
func (s *OrchestratorService) drive(ctx context.Context, wf *workflow.Workflow, plan *workflow.Plan) error {
	levels := plan.Levels()
	stageMS := wf.Metrics.StageMS
	if stageMS == nil {
		stageMS = make(map[string]int64)
	}

	for levelIdx := wf.CurrentStage; levelIdx < len(levels); levelIdx++ {
		levelStart := s.now()

		outcomes := make([]stageOutcome, len(levels[levelIdx]))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.MaxParallel)
		for i, stage := range levels[levelIdx] {
			g.Go(func() error {
				out, err := s.executeStage(gctx, wf, stage)
				outcomes[i] = out
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("workflow %s level %d: %w", wf.ID, levelIdx, err)
		}

		for i, stage := range levels[levelIdx] {
			stageMS[stage.Name] = s.now().Sub(levelStart).Milliseconds()
			switch outcomes[i] {
			case outcomeSuspend:
				return s.suspend(ctx, wf.ID)
			case outcomeFailed:
				return s.finalize(ctx, wf.ID, stageMS)
			case outcomeCancelled:
				// Workflow-level cancellation already recorded.
				return nil
			}
		}

		next := levelIdx + 1
		updated, err := s.store.TransitionWorkflow(ctx, wf.ID, workflow.StatusRunning, workflow.StatusRunning,
			database.WorkflowMutation{CurrentStage: &next, Metrics: &workflow.Metrics{StageMS: stageMS}})
		if err != nil {
			if errors.Is(err, domain.ErrStaleState) {
				// Cancelled (or suspended) out from under us.
				return nil
			}
			return err
		}
		wf = updated
	}

	return s.finalize(ctx, wf.ID, stageMS)
}

// executeStage drives one stage's task through creation, idempotency
// checks, invocation, and recovery until it reaches a decision point.
func (s *OrchestratorService) executeStage(ctx context.Context, wf *workflow.Workflow, stage workflow.Stage) (stageOutcome, error) {
	params := stageParams(wf, stage)

	t, err := s.obtainTask(ctx, wf, stage, params)
	if err != nil {
		return outcomeFailed, err
	}
	if t == nil {
		// Identical work owned by another workflow completed for us.
		return outcomeCompleted, nil
	}
	switch t.Status {
	case task.StatusCompleted:
		return outcomeCompleted, nil
	case task.StatusCancelled:
		return outcomeSkipped, nil
	}

	// Pending, running after a crash, or failed awaiting another
	// attempt: all re-enter the attempt loop.
	return s.attemptLoop(ctx, wf, stage, t)
}

// obtainTask creates the stage's task or locates the existing one. A
// nil task with nil error means the stage result was satisfied by
// another workflow's identical task (idempotency short-circuit).
func (s *OrchestratorService) obtainTask(ctx context.Context, wf *workflow.Workflow, stage workflow.Stage, params map[string]any) (*task.Task, error) {
	// On resume, the stage may already have a task from the previous run.
	existing, err := s.findWorkflowTask(ctx, wf.ID, stage, params)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	maxAttempts := stage.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.recovery.cfg.DefaultMaxTries
	}
	created, err := s.store.CreateTask(ctx, task.CreateRequest{
		WorkflowID:    wf.ID,
		AgentType:     stage.AgentType,
		Skill:         stage.Skill,
		Params:        params,
		MaxAttempts:   maxAttempts,
		CorrelationID: wf.ID,
	})
	if err == nil {
		s.events.TaskTransition(ctx, created, "")
		return created, nil
	}
	if !errors.Is(err, domain.ErrDuplicateTask) {
		return nil, err
	}

	// Identical work is already in flight somewhere. Reuse its result
	// rather than re-submitting.
	fp := task.Fingerprint{AgentType: stage.AgentType, Skill: stage.Skill, ParamsHash: task.HashParams(params)}
	dup, err := s.store.FindActiveTaskByFingerprint(ctx, fp)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// It finished between our insert and lookup; retry once.
			return s.obtainTask(ctx, wf, stage, params)
		}
		return nil, err
	}
	if dup.WorkflowID == wf.ID {
		return dup, nil
	}

	slog.Info("idempotency short-circuit: awaiting duplicate task",
		"workflow_id", wf.ID, "stage", stage.Name, "duplicate_task_id", dup.ID)
	settled, err := s.awaitTask(ctx, dup.ID)
	if err != nil {
		return nil, err
	}
	if settled.Status == task.StatusCompleted {
		return nil, nil
	}
	// The duplicate did not complete; submit our own task after all.
	return s.obtainTask(ctx, wf, stage, params)
}

// attemptLoop runs the task's attempts until it completes, is skipped,
// or escalates to a workflow-level decision.
func (s *OrchestratorService) attemptLoop(ctx context.Context, wf *workflow.Workflow, stage workflow.Stage, t *task.Task) (stageOutcome, error) {
	for {
		attempt := t.Attempt + 1
		running, err := s.store.TransitionTask(ctx, t.ID, t.Status, task.StatusRunning,
			database.TaskMutation{Attempt: &attempt, ClearRetryAt: true})
		if err != nil {
			if errors.Is(err, domain.ErrStaleState) {
				return s.outcomeFromCurrent(ctx, t.ID)
			}
			return outcomeFailed, err
		}
		t = running
		s.events.TaskTransition(ctx, t, task.StatusPending)
		if s.metrics != nil {
			s.metrics.TaskAttempts.Add(ctx, 1)
		}

		result, invokeErr := s.invokeStage(ctx, stage, t)
		if invokeErr == nil {
			completed, err := s.store.TransitionTask(ctx, t.ID, task.StatusRunning, task.StatusCompleted,
				database.TaskMutation{Result: result})
			if err != nil {
				if errors.Is(err, domain.ErrStaleState) {
					// Cancelled mid-flight: the result is ignored on arrival.
					return outcomeCancelled, nil
				}
				return outcomeFailed, err
			}
			if err := s.recovery.ResolveForTask(ctx, t.ID); err != nil {
				slog.Warn("resolve recovery failed", "task_id", t.ID, "error", err)
			}
			s.events.TaskTransition(ctx, completed, task.StatusRunning)
			return outcomeCompleted, nil
		}

		failed, err := s.store.TransitionTask(ctx, t.ID, task.StatusRunning, task.StatusFailed,
			database.TaskMutation{ErrorDetail: invokeErr.Error()})
		if err != nil {
			if errors.Is(err, domain.ErrStaleState) {
				return outcomeCancelled, nil
			}
			return outcomeFailed, err
		}
		t = failed
		s.events.TaskTransition(ctx, t, task.StatusRunning)

		dec, err := s.recovery.HandleTaskFailure(ctx, t, FailureContext{
			Optional:       stage.Optional,
			HasCompensator: stage.CompensateSkill != "",
			Checkpointable: stage.Checkpointable,
			Checkpoint:     checkpointPayload(stage, t),
		}, invokeErr)
		if err != nil {
			return outcomeFailed, err
		}

		switch dec.Strategy {
		case recovery.StrategyRollback:
			s.compensate(ctx, stage, t)
			fallthrough
		case recovery.StrategyRetry:
			retryAt := s.now().Add(dec.Delay)
			reopened, err := s.store.TransitionTask(ctx, t.ID, task.StatusFailed, task.StatusPending,
				database.TaskMutation{NextRetryAt: &retryAt})
			if err != nil {
				if errors.Is(err, domain.ErrStaleState) {
					return outcomeCancelled, nil
				}
				return outcomeFailed, err
			}
			t = reopened
			if err := s.sleep(ctx, dec.Delay); err != nil {
				return outcomeFailed, err
			}
		case recovery.StrategySkip:
			skipped, err := s.store.TransitionTask(ctx, t.ID, task.StatusFailed, task.StatusCancelled,
				database.TaskMutation{ErrorDetail: "skipped: " + invokeErr.Error()})
			if err != nil && !errors.Is(err, domain.ErrStaleState) {
				return outcomeFailed, err
			}
			if skipped != nil {
				s.events.TaskTransition(ctx, skipped, task.StatusFailed)
			}
			if err := s.recovery.ResolveForTask(ctx, t.ID); err != nil {
				slog.Warn("resolve recovery failed", "task_id", t.ID, "error", err)
			}
			slog.Warn("stage skipped", "workflow_id", wf.ID, "stage", stage.Name)
			return outcomeSkipped, nil
		case recovery.StrategyFail:
			if err := s.recovery.ResolveForTask(ctx, t.ID); err != nil {
				slog.Warn("resolve recovery failed", "task_id", t.ID, "error", err)
			}
			slog.Error("stage exhausted its attempts",
				"workflow_id", wf.ID, "stage", stage.Name, "attempts", t.Attempt)
			return outcomeFailed, nil
		case recovery.StrategyCheckpoint, recovery.StrategyManual:
			return outcomeSuspend, nil
		default:
			return outcomeFailed, nil
		}
	}
}

// invokeStage selects a healthy instance and calls it through the
// dependency's circuit breaker with the per-task deadline applied.
func (s *OrchestratorService) invokeStage(ctx context.Context, stage workflow.Stage, t *task.Task) (map[string]any, error) {
	instance, err := s.registry.SelectInstance(ctx, stage.AgentType, stage.Skill)
	if err != nil {
		// Routing failure is a dependency-unavailable condition.
		return nil, fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}

	params := t.Params
	cp, cpErr := s.recovery.ActiveCheckpoint(ctx, t.ID)
	if cpErr != nil {
		// Proceed without the checkpoint rather than blocking the
		// attempt; the agent redoes sub-steps at worst.
		slog.Warn("checkpoint lookup failed", "task_id", t.ID, "error", cpErr)
	}
	if cp != nil {
		merged := make(map[string]any, len(params)+1)
		for k, v := range params {
			merged[k] = v
		}
		merged["checkpoint"] = cp
		params = merged
	}

	taskCtx := ctx
	if s.cfg.TaskDeadline > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, s.cfg.TaskDeadline)
		defer cancel()
	}

	s.registry.TrackLoad(ctx, instance.InstanceID, 1)
	defer s.registry.TrackLoad(ctx, instance.InstanceID, -1)

	var result map[string]any
	execErr := s.breakers.For(stage.AgentType).Execute(taskCtx, func(callCtx context.Context) error {
		var invokeErr error
		result, invokeErr = s.invoker.Invoke(callCtx, stage.AgentType, instance.Endpoint, stage.Skill, params)
		return invokeErr
	})
	if execErr != nil {
		if errors.Is(execErr, resilience.ErrCircuitOpen) || errors.Is(execErr, resilience.ErrTooManyProbes) {
			// Fail fast surfaces immediately; for recovery purposes the
			// dependency is simply unavailable.
			if s.metrics != nil {
				s.metrics.BreakerTrips.Add(ctx, 1)
			}
			return nil, fmt.Errorf("%s: %w: %w", stage.AgentType, domain.ErrTransient, execErr)
		}
		return nil, execErr
	}
	return result, nil
}

// compensate invokes the stage's compensating skill to undo partial
// side effects before a retry. Best-effort: a failed compensation is
// logged and the retry proceeds.
func (s *OrchestratorService) compensate(ctx context.Context, stage workflow.Stage, t *task.Task) {
	instance, err := s.registry.SelectInstance(ctx, stage.AgentType, stage.CompensateSkill)
	if err != nil {
		slog.Warn("compensation skipped: no instance", "task_id", t.ID, "error", err)
		return
	}
	err = s.breakers.For(stage.AgentType).Execute(ctx, func(callCtx context.Context) error {
		_, invokeErr := s.invoker.Invoke(callCtx, stage.AgentType, instance.Endpoint, stage.CompensateSkill, t.Params)
		return invokeErr
	})
	if err != nil {
		slog.Warn("compensation failed", "task_id", t.ID, "skill", stage.CompensateSkill, "error", err)
	}
}

// suspend parks the workflow for operator intervention or checkpoint
// resumption.
func (s *OrchestratorService) suspend(ctx context.Context, id string) error {
	_, err := s.store.TransitionWorkflow(ctx, id, workflow.StatusRunning, workflow.StatusSuspended, database.WorkflowMutation{})
	if err != nil {
		if errors.Is(err, domain.ErrStaleState) {
			return nil
		}
		return err
	}
	s.events.WorkflowTransition(ctx, id, workflow.StatusRunning, workflow.StatusSuspended)
	if s.metrics != nil {
		s.metrics.WorkflowsSuspended.Add(ctx, 1)
	}
	slog.Warn("workflow suspended", "workflow_id", id)
	return nil
}

// finalize derives the workflow's resolved status from its task set and
// records it.
func (s *OrchestratorService) finalize(ctx context.Context, id string, stageMS map[string]int64) error {
	wf, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}
	if wf.Status != workflow.StatusRunning {
		return nil
	}

	tasks, err := s.store.ListWorkflowTasks(ctx, id)
	if err != nil {
		return err
	}
	derived := workflow.DeriveStatus(wf.Status, tasks)
	if derived == workflow.StatusRunning {
		return fmt.Errorf("finalize workflow %s: tasks still open", id)
	}

	completedAt := s.now()
	metrics := workflow.Metrics{StageMS: stageMS}
	if !wf.StartedAt.IsZero() {
		metrics.DurationMS = completedAt.Sub(wf.StartedAt).Milliseconds()
	}
	if _, err := s.store.TransitionWorkflow(ctx, id, workflow.StatusRunning, derived,
		database.WorkflowMutation{CompletedAt: &completedAt, Metrics: &metrics}); err != nil {
		if errors.Is(err, domain.ErrStaleState) {
			return nil
		}
		return err
	}

	s.events.WorkflowTransition(ctx, id, workflow.StatusRunning, derived)
	if s.metrics != nil {
		switch derived {
		case workflow.StatusCompleted:
			s.metrics.WorkflowsCompleted.Add(ctx, 1)
		case workflow.StatusFailed:
			s.metrics.WorkflowsFailed.Add(ctx, 1)
		}
		s.metrics.WorkflowDuration.Record(ctx, float64(metrics.DurationMS)/1000)
	}
	slog.Info("workflow finalized", "workflow_id", id, "status", derived, "duration_ms", metrics.DurationMS)
	return nil
}

// outcomeFromCurrent re-reads a task after a lost CAS race and maps its
// settled status to a stage outcome.
func (s *OrchestratorService) outcomeFromCurrent(ctx context.Context, taskID string) (stageOutcome, error) {
	current, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return outcomeFailed, err
	}
	switch current.Status {
	case task.StatusCompleted:
		return outcomeCompleted, nil
	case task.StatusCancelled:
		return outcomeCancelled, nil
	case task.StatusFailed:
		return outcomeFailed, nil
	default:
		return outcomeFailed, fmt.Errorf("task %s: unexpected status %s after lost race: %w",
			taskID, current.Status, domain.ErrStaleState)
	}
}

// findWorkflowTask locates this workflow's existing task for a stage.
func (s *OrchestratorService) findWorkflowTask(ctx context.Context, workflowID string, stage workflow.Stage, params map[string]any) (*task.Task, error) {
	tasks, err := s.store.ListWorkflowTasks(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	hash := task.HashParams(params)
	for i := range tasks {
		t := &tasks[i]
		if t.AgentType == stage.AgentType && t.Skill == stage.Skill && t.ParamsHash == hash {
			return t, nil
		}
	}
	return nil, nil
}

// awaitTask polls until the task settles, giving up after the recovery
// staleness window. A duplicate whose owning run died never settles;
// the bounded wait surfaces that as a transient failure and the stale
// sweep picks both runs up later.
func (s *OrchestratorService) awaitTask(ctx context.Context, id string) (*task.Task, error) {
	window := s.recovery.cfg.StalenessWindow
	deadline := s.now().Add(window)
	for {
		t, err := s.store.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if t.Status.Terminal() {
			return t, nil
		}
		if !s.now().Before(deadline) {
			return nil, fmt.Errorf("task %s unsettled after %s: %w", id, window, domain.ErrTransient)
		}
		if err := s.sleep(ctx, s.pollInterval); err != nil {
			return nil, err
		}
	}
}

// planFor resolves the stage plan for a workflow type, falling back to
// an explicit stage list in the configuration.
func (s *OrchestratorService) planFor(wfType string, cfg map[string]any) (*workflow.Plan, error) {
	if plan, ok := workflow.BuiltinPlan(wfType); ok {
		return plan, nil
	}
	return workflow.PlanFromConfig(wfType, cfg)
}

// stageParams merges stage-declared parameters with per-stage overrides
// from the workflow configuration.
func stageParams(wf *workflow.Workflow, stage workflow.Stage) map[string]any {
	params := make(map[string]any, len(stage.Params)+1)
	for k, v := range stage.Params {
		params[k] = v
	}
	if overrides, ok := wf.Config[stage.Name].(map[string]any); ok {
		for k, v := range overrides {
			params[k] = v
		}
	}
	return params
}

// checkpointPayload snapshots what resumption needs to restart the
// stage without redoing completed sub-steps reported by the agent.
func checkpointPayload(stage workflow.Stage, t *task.Task) map[string]any {
	if !stage.Checkpointable {
		return nil
	}
	return map[string]any{
		"stage":   stage.Name,
		"attempt": t.Attempt,
		"task_id": t.ID,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
