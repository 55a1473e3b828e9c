// Package lock defines the distributed lock port (interface).
package lock

import (
	"context"
	"time"
)

// Locker is the port interface for store-backed mutual exclusion.
type Locker interface {
	// Acquire takes the named lock for ttl and returns the holder
	// token. Fails with domain.ErrLockHeld if another live holder
	// exists, domain.ErrLockStore if the backend is unreachable. An
	// expired lock may be stolen by a new acquirer. Non-blocking.
	Acquire(ctx context.Context, name string, ttl time.Duration) (token string, err error)

	// Release gives up the lock if token matches the current holder.
	// If the lock already expired and was reclaimed, Release is not an
	// error but lost reports the loss of exclusivity.
	Release(ctx context.Context, name, token string) (lost bool, err error)

	// Renew extends the lock's expiry if token matches.
	Renew(ctx context.Context, name, token string, ttl time.Duration) error
}

// WithLock runs fn while holding the named lock. The lock is released
// on every exit path. A release that reports lost exclusivity is
// surfaced only when fn itself succeeded, so callers can detect that
// their critical section may have overlapped another holder's.
func WithLock(ctx context.Context, l Locker, name string, ttl time.Duration, fn func(ctx context.Context) error) error {
	token, err := l.Acquire(ctx, name, ttl)
	if err != nil {
		return err
	}

	fnErr := fn(ctx)

	lost, relErr := l.Release(ctx, name, token)
	if fnErr != nil {
		return fnErr
	}
	if relErr != nil {
		return relErr
	}
	if lost {
		return ErrExclusivityLost
	}
	return nil
}
