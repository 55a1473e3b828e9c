// Package ristretto adapts dgraph-io/ristretto as the in-process tier
// of the dedup lookup cache.
package ristretto

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Entries are small: content-hash keys carrying one-byte seen markers.
// Counter space is sized from that expected entry footprint.
const avgEntryBytes = 64

// Cache is a byte-bounded in-process cache. Admission and eviction are
// ristretto's TinyLFU; expired entries are dropped lazily on read.
type Cache struct {
	inner *ristretto.Cache[string, []byte]
}

// New creates a cache holding at most maxBytes of values.
func New(maxBytes int64) (*Cache, error) {
	inner, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		// ~10x the expected item count, per the ristretto guidance.
		NumCounters: maxBytes / avgEntryBytes * 10,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	return &Cache{inner: inner}, nil
}

func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.inner.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores the value at a cost of its byte length. Writes are
// buffered; a rejected admission is not an error.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.inner.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.inner.Del(key)
	return nil
}

// Close stops the background eviction goroutines.
func (c *Cache) Close() {
	c.inner.Close()
}
