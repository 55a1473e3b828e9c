package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain"
)

// LockManager implements lock.Locker on the distributed_locks table.
// Acquisition is a single conditional write: create the row, or steal
// it when the stored expiry has passed. Expiry is judged against the
// database clock so all processes share one notion of "now".
type LockManager struct {
	pool       *pgxpool.Pool
	defaultTTL time.Duration
}

// NewLockManager creates a LockManager on the given pool. defaultTTL
// applies when a caller acquires or renews with a non-positive ttl.
func NewLockManager(pool *pgxpool.Pool, defaultTTL time.Duration) *LockManager {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	return &LockManager{pool: pool, defaultTTL: defaultTTL}
}

// Acquire takes the named lock for ttl, returning the holder token.
func (m *LockManager) Acquire(ctx context.Context, name string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	token := uuid.NewString()

	var got string
	err := m.pool.QueryRow(ctx,
		`INSERT INTO distributed_locks (name, token, acquired_at, expires_at)
		 VALUES ($1, $2, now(), now() + make_interval(secs => $3))
		 ON CONFLICT (name) DO UPDATE SET
			token = EXCLUDED.token,
			acquired_at = EXCLUDED.acquired_at,
			expires_at = EXCLUDED.expires_at
		 WHERE distributed_locks.expires_at <= now()
		 RETURNING token`,
		name, token, ttl.Seconds()).Scan(&got)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The conditional update did not fire: a live holder exists.
			return "", fmt.Errorf("acquire %q: %w", name, domain.ErrLockHeld)
		}
		return "", fmt.Errorf("acquire %q: %w: %w", name, domain.ErrLockStore, err)
	}
	return got, nil
}

// Release gives up the lock if token matches the current holder. A lock
// that expired and was reclaimed is not an error, but lost reports the
// loss of exclusivity so callers can detect it.
func (m *LockManager) Release(ctx context.Context, name, token string) (bool, error) {
	tag, err := m.pool.Exec(ctx,
		`DELETE FROM distributed_locks WHERE name = $1 AND token = $2`, name, token)
	if err != nil {
		return false, fmt.Errorf("release %q: %w: %w", name, domain.ErrLockStore, err)
	}
	return tag.RowsAffected() == 0, nil
}

// Renew extends the lock's expiry if token matches the current holder.
func (m *LockManager) Renew(ctx context.Context, name, token string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	tag, err := m.pool.Exec(ctx,
		`UPDATE distributed_locks SET expires_at = now() + make_interval(secs => $3)
		 WHERE name = $1 AND token = $2 AND expires_at > now()`,
		name, token, ttl.Seconds())
	if err != nil {
		return fmt.Errorf("renew %q: %w: %w", name, domain.ErrLockStore, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("renew %q: %w", name, domain.ErrLockHeld)
	}
	return nil
}
