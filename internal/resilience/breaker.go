// Package resilience provides reliability patterns for external service calls.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrTooManyProbes is returned when the half-open probe slot is taken.
// Treated by callers exactly like an open circuit.
var ErrTooManyProbes = errors.New("circuit breaker is probing")

// State is the breaker state, exported for the health surface.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config holds the breaker thresholds.
type Config struct {
	// MaxFailures is the consecutive-failure count that trips the
	// breaker open.
	MaxFailures int
	// RecoveryTimeout is how long the breaker stays open before
	// admitting a probe.
	RecoveryTimeout time.Duration
	// SuccessThreshold is the consecutive half-open successes needed
	// to close.
	SuccessThreshold int
	// CallTimeout bounds each wrapped call; zero disables the bound.
	CallTimeout time.Duration
}

// Breaker implements a circuit breaker for protecting external calls.
// It tracks consecutive failures and opens the circuit when a threshold
// is reached, preventing further calls until a timeout elapses, then
// admits a single probe at a time until enough probes succeed to close.
//
// The half-open concurrency cap is fixed at one probe: a dependency
// that is just recovering should not absorb a thundering herd.
type Breaker struct {
	mu           sync.Mutex
	cfg          Config
	state        State
	failures     int
	successes    int
	probing      bool
	openedAt     time.Time
	transitionAt time.Time
	totalCalls   int64
	totalFails   int64
	now          func() time.Time // for testing
}

// Snapshot is a point-in-time view of breaker internals for metrics.
type Snapshot struct {
	State                State     `json:"state"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	LastTransition       time.Time `json:"last_transition,omitempty"`
	TotalCalls           int64     `json:"total_calls"`
	TotalFailures        int64     `json:"total_failures"`
}

// NewBreaker creates a circuit breaker from cfg. Zero-value thresholds
// fall back to safe defaults.
func NewBreaker(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	return &Breaker{
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// Execute runs fn if the circuit is closed or a half-open probe slot is
// free. Returns ErrCircuitOpen while open, ErrTooManyProbes when the
// probe slot is taken, otherwise fn's own error. A call that exceeds
// CallTimeout counts as a failure.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	if b.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.CallTimeout)
		defer cancel()
	}

	callErr := fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probing = false
	}
	if callErr != nil {
		b.onFailure()
		return callErr
	}
	b.onSuccess()
	return nil
}

// Snapshot returns the breaker's current counters and state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:                b.state,
		ConsecutiveFailures:  b.failures,
		ConsecutiveSuccesses: b.successes,
		LastTransition:       b.transitionAt,
		TotalCalls:           b.totalCalls,
		TotalFailures:        b.totalFails,
	}
}

// admit decides whether a call may proceed and whether it is a probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++

	switch b.state {
	case StateClosed:
		return false, nil
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cfg.RecoveryTimeout {
			b.transition(StateHalfOpen)
			b.probing = true
			return true, nil
		}
		b.totalCalls--
		return false, ErrCircuitOpen
	case StateHalfOpen:
		if b.probing {
			b.totalCalls--
			return false, ErrTooManyProbes
		}
		b.probing = true
		return true, nil
	}
	return false, ErrCircuitOpen
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure() {
	b.totalFails++
	b.successes = 0
	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.cfg.MaxFailures {
		// A failed probe reopens immediately and resets the recovery
		// timer.
		b.transition(StateOpen)
		b.openedAt = b.now()
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess() {
	b.failures = 0
	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
			b.successes = 0
		}
	case StateOpen:
		// Unreachable: open calls never execute fn.
	default:
		b.successes = 0
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	b.state = to
	b.transitionAt = b.now()
}
