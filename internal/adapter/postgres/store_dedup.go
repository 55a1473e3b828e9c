package postgres

import (
	"context"
	"fmt"
	"time"
)

// RecordContentHash is an idempotent insert into the dedup ledger.
// A repeat of a known hash bumps its reference count; inserted reports
// whether this call was the first sighting.
func (s *Store) RecordContentHash(ctx context.Context, hash string, at time.Time) (bool, error) {
	var inserted bool
	err := s.pool.QueryRow(ctx,
		`INSERT INTO content_dedup (content_hash, first_seen)
		 VALUES ($1, $2)
		 ON CONFLICT (content_hash) DO UPDATE SET ref_count = content_dedup.ref_count + 1
		 RETURNING ref_count = 1`,
		hash, at).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("record content hash: %w", err)
	}
	return inserted, nil
}

// SweepContentHashes removes ledger entries older than the retention
// window. Entries inside the window are never deleted.
func (s *Store) SweepContentHashes(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM content_dedup WHERE first_seen < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("sweep content hashes: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
