// Package recovery defines failure classification, recovery strategies,
// and the TaskRecovery checkpoint record.
package recovery

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain"
)

// Strategy is the action chosen for a failed task.
type Strategy string

const (
	StrategyRetry      Strategy = "retry"
	StrategyRollback   Strategy = "rollback"
	StrategySkip       Strategy = "skip"
	StrategyCheckpoint Strategy = "checkpoint"
	// StrategyFail ends the workflow: the retry budget is spent and
	// nothing remains to resume from or skip.
	StrategyFail Strategy = "fail"
	// StrategyManual parks the workflow for an operator. Reserved for
	// non-transient failures, which no amount of retrying would clear.
	StrategyManual Strategy = "manual"
)

// Classification is the failure reason fed into strategy selection.
type Classification string

const (
	ReasonTimeout     Classification = "timeout"
	ReasonUnavailable Classification = "dependency_unavailable"
	ReasonPermanent   Classification = "permanent"
	ReasonCancelled   Classification = "cancelled"
)

// Transient reports whether the failure is expected to clear on retry.
func (c Classification) Transient() bool {
	return c == ReasonTimeout || c == ReasonUnavailable
}

// Classify maps an invocation error to a Classification. Selection is a
// pure function of the result, never a catch-based branch.
func Classify(err error) Classification {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCancelled
	case errors.Is(err, domain.ErrTransient):
		return ReasonUnavailable
	default:
		return ReasonPermanent
	}
}

// Record is a checkpoint record for a specific failed task. At most one
// unresolved record exists per task.
type Record struct {
	ID         string         `json:"id"`
	TaskID     string         `json:"task_id"`
	Strategy   Strategy       `json:"strategy"`
	Checkpoint map[string]any `json:"checkpoint,omitempty"`
	Reason     Classification `json:"reason"`
	Detail     string         `json:"detail,omitempty"`
	Attempts   []AttemptInfo  `json:"attempts,omitempty"`
	Resolved   bool           `json:"resolved"`
	CreatedAt  time.Time      `json:"created_at"`
}

// AttemptInfo records one failed attempt for audit.
type AttemptInfo struct {
	Attempt int            `json:"attempt"`
	Reason  Classification `json:"reason"`
	Detail  string         `json:"detail,omitempty"`
	At      time.Time      `json:"at"`
}

// BackoffConfig bounds the retry backoff curve.
type BackoffConfig struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64 // fraction of the interval, 0..1
}

// Backoff returns the delay before the given retry attempt (1-based).
// The interval doubles per attempt, jittered, capped at Max.
func (c BackoffConfig) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := c.Base << (attempt - 1)
	if d <= 0 || d > c.Max {
		d = c.Max
	}
	if c.Jitter > 0 {
		spread := float64(d) * c.Jitter
		d = time.Duration(float64(d) - spread/2 + rand.Float64()*spread)
	}
	if d < 0 {
		d = 0
	}
	return d
}

// SelectInput carries everything strategy selection needs.
type SelectInput struct {
	Reason         Classification
	Attempt        int
	MaxAttempts    int
	Optional       bool // task is best-effort; workflow proceeds without it
	HasCompensator bool // partial side effects need undoing before retry
	Checkpointable bool // task persists sub-step checkpoints
}

// Select chooses a recovery strategy. Pure function so the decision
// table is directly testable.
func Select(in SelectInput) Strategy {
	switch {
	case in.HasCompensator && in.Reason.Transient() && in.Attempt < in.MaxAttempts:
		return StrategyRollback
	case in.Reason.Transient() && in.Attempt < in.MaxAttempts:
		return StrategyRetry
	case in.Checkpointable && in.Reason.Transient():
		// Budget exhausted but the work is resumable from its last
		// completed sub-step.
		return StrategyCheckpoint
	case in.Optional:
		return StrategySkip
	case in.Reason.Transient():
		// Mandatory stage, budget spent, no checkpoint: the failure
		// stands and the workflow ends failed.
		return StrategyFail
	default:
		return StrategyManual
	}
}
