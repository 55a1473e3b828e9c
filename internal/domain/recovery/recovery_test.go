package recovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Classification
	}{
		{"deadline exceeded", context.DeadlineExceeded, ReasonTimeout},
		{"wrapped deadline", fmt.Errorf("invoke: %w", context.DeadlineExceeded), ReasonTimeout},
		{"cancelled", context.Canceled, ReasonCancelled},
		{"transient", fmt.Errorf("%w: connection refused", domain.ErrTransient), ReasonUnavailable},
		{"plain error", errors.New("schema mismatch"), ReasonPermanent},
		{"unrecoverable", domain.ErrUnrecoverable, ReasonPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassificationTransient(t *testing.T) {
	if !ReasonTimeout.Transient() || !ReasonUnavailable.Transient() {
		t.Error("timeout and unavailable should be transient")
	}
	if ReasonPermanent.Transient() || ReasonCancelled.Transient() {
		t.Error("permanent and cancelled should not be transient")
	}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name string
		in   SelectInput
		want Strategy
	}{
		{
			name: "transient with budget retries",
			in:   SelectInput{Reason: ReasonTimeout, Attempt: 1, MaxAttempts: 3},
			want: StrategyRetry,
		},
		{
			name: "compensator takes precedence over plain retry",
			in:   SelectInput{Reason: ReasonUnavailable, Attempt: 1, MaxAttempts: 3, HasCompensator: true},
			want: StrategyRollback,
		},
		{
			name: "budget exhausted checkpointable",
			in:   SelectInput{Reason: ReasonTimeout, Attempt: 3, MaxAttempts: 3, Checkpointable: true},
			want: StrategyCheckpoint,
		},
		{
			name: "budget exhausted optional",
			in:   SelectInput{Reason: ReasonTimeout, Attempt: 3, MaxAttempts: 3, Optional: true},
			want: StrategySkip,
		},
		{
			name: "budget exhausted mandatory fails",
			in:   SelectInput{Reason: ReasonTimeout, Attempt: 3, MaxAttempts: 3},
			want: StrategyFail,
		},
		{
			name: "budget exhausted unavailable fails",
			in:   SelectInput{Reason: ReasonUnavailable, Attempt: 3, MaxAttempts: 3},
			want: StrategyFail,
		},
		{
			name: "permanent failure never retries",
			in:   SelectInput{Reason: ReasonPermanent, Attempt: 1, MaxAttempts: 3},
			want: StrategyManual,
		},
		{
			name: "permanent failure optional skips",
			in:   SelectInput{Reason: ReasonPermanent, Attempt: 1, MaxAttempts: 3, Optional: true},
			want: StrategySkip,
		},
		{
			name: "permanent failure ignores checkpoint",
			in:   SelectInput{Reason: ReasonPermanent, Attempt: 1, MaxAttempts: 3, Checkpointable: true},
			want: StrategyManual,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Select(tt.in); got != tt.want {
				t.Errorf("Select(%+v) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	cfg := BackoffConfig{Base: time.Second, Max: 10 * time.Second}

	if got := cfg.Backoff(1); got != time.Second {
		t.Errorf("attempt 1 = %v, want 1s", got)
	}
	if got := cfg.Backoff(2); got != 2*time.Second {
		t.Errorf("attempt 2 = %v, want 2s", got)
	}
	if got := cfg.Backoff(3); got != 4*time.Second {
		t.Errorf("attempt 3 = %v, want 4s", got)
	}
	if got := cfg.Backoff(5); got != 10*time.Second {
		t.Errorf("attempt 5 = %v, want capped 10s", got)
	}
	// Shift overflow far past the cap must still land on Max.
	if got := cfg.Backoff(70); got != 10*time.Second {
		t.Errorf("attempt 70 = %v, want capped 10s", got)
	}
}

func TestBackoffJitterStaysInBounds(t *testing.T) {
	cfg := BackoffConfig{Base: time.Second, Max: time.Minute, Jitter: 0.5}
	for i := 0; i < 100; i++ {
		d := cfg.Backoff(3) // nominal 4s, jitter window 3s..5s
		if d < 3*time.Second || d > 5*time.Second {
			t.Fatalf("jittered backoff %v outside [3s, 5s]", d)
		}
	}
}
