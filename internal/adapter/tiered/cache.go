// Package tiered layers a process-local cache over a shared one for
// dedup lookups: ristretto in front, a NATS KV bucket behind it that
// every coordinator sees.
package tiered

import (
	"context"
	"time"

	"github.com/JyX33/agentic-technical-watch-sub001/internal/port/cache"
)

// Cache reads through the local tier into the shared one and writes to
// both. A shared hit is copied into the local tier so repeat lookups on
// this coordinator stay in process.
type Cache struct {
	local       cache.Cache
	shared      cache.Cache
	backfillTTL time.Duration
}

// New creates a tiered cache. backfillTTL bounds how long a copied-down
// shared entry lives locally; the shared entry keeps its own TTL.
func New(local, shared cache.Cache, backfillTTL time.Duration) *Cache {
	return &Cache{local: local, shared: shared, backfillTTL: backfillTTL}
}

func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.local.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	val, found, err = c.shared.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	// Copy down for this coordinator; a failed copy costs a re-read.
	_ = c.local.Set(ctx, key, val, c.backfillTTL)
	return val, true, nil
}

// Set writes the shared tier first so other coordinators observe the
// entry no later than this one.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.shared.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.local.Set(ctx, key, value, ttl)
}

// Delete removes the entry from both tiers.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	return c.shared.Delete(ctx, key)
}
