package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JyX33/agentic-technical-watch-sub001/internal/config"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/dedup"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/port/cache"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/port/database"
)

// DedupService decides whether a piece of content has been processed
// before. The Postgres ledger is the source of truth; the tiered cache
// in front of it absorbs repeat lookups without a round trip.
type DedupService struct {
	store database.Store
	cache cache.Cache
	cfg   config.Dedup
	now   func() time.Time
}

func NewDedupService(store database.Store, cache cache.Cache, cfg config.Dedup) *DedupService {
	return &DedupService{store: store, cache: cache, cfg: cfg, now: time.Now}
}

// Seen hashes the content and records it, returning true when an
// identical piece was already processed. The database insert is the
// authoritative check, so two concurrent callers agree on which of
// them saw the content first.
func (s *DedupService) Seen(ctx context.Context, source, content string) (bool, error) {
	hash := dedup.HashContent(content)
	key := "dedup:" + hash

	if s.cache != nil {
		if _, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			return true, nil
		}
	}

	inserted, err := s.store.RecordContentHash(ctx, hash, s.now())
	if err != nil {
		return false, fmt.Errorf("record content hash: %w", err)
	}
	if !inserted {
		slog.Debug("duplicate content", "source", source, "hash", hash)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, []byte("1"), s.cfg.Retention); err != nil {
			slog.Warn("dedup cache set failed", "error", err)
		}
	}
	return !inserted, nil
}

// Sweep removes ledger entries older than the retention window.
func (s *DedupService) Sweep(ctx context.Context) error {
	cutoff := s.now().Add(-s.cfg.Retention)
	removed, err := s.store.SweepContentHashes(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("sweep content hashes: %w", err)
	}
	if removed > 0 {
		slog.Info("dedup ledger swept", "removed", removed, "cutoff", cutoff)
	}
	return nil
}
