package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JyX33/agentic-technical-watch-sub001/internal/adapter/otel"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/config"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/recovery"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/task"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/port/database"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/port/lock"
)

// Resumer re-drives a workflow from its last completed stage. Implemented
// by the orchestrator; declared here so the recovery manager stays
// decoupled from it.
type Resumer interface {
	Resume(ctx context.Context, workflowID string) error
}

// Decision is the outcome of strategy selection for one failed attempt.
type Decision struct {
	Strategy recovery.Strategy
	Reason   recovery.Classification
	// Delay applies to retry-class strategies: the task runs again at
	// now + Delay.
	Delay time.Duration
}

// RecoveryService decides and executes recovery strategies for failed
// tasks and resumes interrupted workflows from the store.
type RecoveryService struct {
	store   database.Store
	locker  lock.Locker
	cfg     config.Recovery
	backoff recovery.BackoffConfig
	resumer Resumer
	metrics *otel.Metrics
	now     func() time.Time // for testing
}

// NewRecoveryService creates a RecoveryService.
func NewRecoveryService(store database.Store, locker lock.Locker, cfg config.Recovery) *RecoveryService {
	return &RecoveryService{
		store:  store,
		locker: locker,
		cfg:    cfg,
		backoff: recovery.BackoffConfig{
			Base:   cfg.BackoffBase,
			Max:    cfg.BackoffMax,
			Jitter: cfg.BackoffJitter,
		},
		now: time.Now,
	}
}

// SetResumer wires the orchestrator in after construction.
func (s *RecoveryService) SetResumer(r Resumer) {
	s.resumer = r
}

// SetMetrics attaches metric instruments. A nil receiver field disables
// instrumentation, which test setups rely on.
func (s *RecoveryService) SetMetrics(m *otel.Metrics) {
	s.metrics = m
}

// FailureContext carries the stage-level knowledge strategy selection
// needs beyond the task itself.
type FailureContext struct {
	Optional       bool
	HasCompensator bool
	Checkpointable bool
	Checkpoint     map[string]any
}

// HandleTaskFailure classifies the error, selects a strategy, and
// persists the recovery record. The caller applies the returned
// decision (scheduling the retry, skipping, or suspending).
func (s *RecoveryService) HandleTaskFailure(ctx context.Context, t *task.Task, fc FailureContext, callErr error) (Decision, error) {
	reason := recovery.Classify(callErr)
	strategy := recovery.Select(recovery.SelectInput{
		Reason:         reason,
		Attempt:        t.Attempt,
		MaxAttempts:    t.MaxAttempts,
		Optional:       fc.Optional,
		HasCompensator: fc.HasCompensator,
		Checkpointable: fc.Checkpointable,
	})

	dec := Decision{Strategy: strategy, Reason: reason}
	if strategy == recovery.StrategyRetry || strategy == recovery.StrategyRollback {
		dec.Delay = s.backoff.Backoff(t.Attempt)
	}

	info := recovery.AttemptInfo{
		Attempt: t.Attempt,
		Reason:  reason,
		Detail:  callErr.Error(),
		At:      s.now(),
	}
	rec := &recovery.Record{
		TaskID:     t.ID,
		Strategy:   strategy,
		Checkpoint: fc.Checkpoint,
		Reason:     reason,
		Detail:     callErr.Error(),
		Attempts:   []recovery.AttemptInfo{info},
	}
	if _, err := s.store.CreateRecovery(ctx, rec); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			return Decision{}, fmt.Errorf("record recovery for task %s: %w", t.ID, err)
		}
		// A record from an earlier attempt is still active: fold this
		// attempt into it so the strategy can escalate.
		if _, err := s.store.AppendRecoveryAttempt(ctx, t.ID, strategy, fc.Checkpoint, info); err != nil {
			return Decision{}, fmt.Errorf("record recovery for task %s: %w", t.ID, err)
		}
	}

	slog.Warn("task failure handled",
		"task_id", t.ID, "attempt", t.Attempt, "reason", reason, "strategy", strategy)
	return dec, nil
}

// ResolveForTask marks the task's active recovery record resolved, if
// one exists. Called when a recovered task finally succeeds or when a
// skip concludes the matter.
func (s *RecoveryService) ResolveForTask(ctx context.Context, taskID string) error {
	rec, err := s.store.GetActiveRecovery(ctx, taskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("resolve recovery for task %s: %w", taskID, err)
	}
	return s.store.ResolveRecovery(ctx, rec.ID)
}

// ActiveCheckpoint returns the checkpoint payload of the task's active
// recovery record, or nil when there is none. Resumed stages receive it
// so completed sub-steps are never redone.
func (s *RecoveryService) ActiveCheckpoint(ctx context.Context, taskID string) (map[string]any, error) {
	rec, err := s.store.GetActiveRecovery(ctx, taskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rec.Checkpoint, nil
}

// RunRecoverySweep finds running workflows whose last update exceeds the
// staleness window (the signature of an orphaned process), takes the
// per-workflow resumption lock, and re-drives the orchestrator from the
// last completed stage. Another sweeper holding the lock means the
// workflow is already being handled: it is skipped, not an error.
//
// Exposed as an externally-schedulable hook so an outer scheduler can
// drive it without the core owning a timer.
func (s *RecoveryService) RunRecoverySweep(ctx context.Context) (resumed int, err error) {
	if s.resumer == nil {
		return 0, fmt.Errorf("recovery sweep: no resumer wired")
	}

	cutoff := s.now().Add(-s.cfg.StalenessWindow)
	stale, err := s.store.ListStaleRunning(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("recovery sweep: %w", err)
	}

	for _, wf := range stale {
		lockName := "workflow-resume:" + wf.ID
		err := lock.WithLock(ctx, s.locker, lockName, s.cfg.SweepLockTTL, func(ctx context.Context) error {
			return s.resumer.Resume(ctx, wf.ID)
		})
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			slog.Debug("workflow resumption already claimed", "workflow_id", wf.ID)
		case err != nil:
			slog.Error("workflow resumption failed", "workflow_id", wf.ID, "error", err)
		default:
			resumed++
			if s.metrics != nil {
				s.metrics.SweepResumptions.Add(ctx, 1)
			}
			slog.Info("workflow resumed by sweep", "workflow_id", wf.ID)
		}
	}
	return resumed, nil
}
