// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrStaleState indicates a compare-and-swap transition lost a race:
// the stored state no longer matches the expected prior value. Callers
// must re-read and decide, never blindly retry the same transition.
var ErrStaleState = errors.New("stale state: entity was modified by another worker")

// ErrTransient indicates a dependency failure that is expected to clear
// on its own (network error, timeout, dependency unavailable). Retryable.
var ErrTransient = errors.New("transient dependency failure")

// ErrUnrecoverable indicates a non-transient failure whose retry budget
// is exhausted. Routed to manual recovery, never auto-retried.
var ErrUnrecoverable = errors.New("unrecoverable failure")

// ErrDuplicateTask indicates logically identical work is already pending
// or running. Not a failure: the caller should reuse the existing task's
// eventual result.
var ErrDuplicateTask = errors.New("duplicate task: identical work already in flight")

// ErrLockHeld indicates another live holder owns the distributed lock.
var ErrLockHeld = errors.New("lock held by another holder")

// ErrLockStore indicates the lock backend itself failed. Never treated
// as "lock available".
var ErrLockStore = errors.New("lock store unavailable")

// ErrNoHealthyInstance indicates no non-stale agent instance is
// registered for the requested agent type.
var ErrNoHealthyInstance = errors.New("no healthy agent instance")

// ErrUnknownInstance indicates a heartbeat or deregistration referenced
// an instance that was never registered or has already been removed.
var ErrUnknownInstance = errors.New("unknown agent instance")

// ErrConflict indicates an insert violated a uniqueness invariant other
// than the duplicate-task one (e.g. a second active recovery record).
var ErrConflict = errors.New("conflict: invariant-violating concurrent write")
