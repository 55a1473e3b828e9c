package tiered_test

import (
	"context"
	"testing"
	"time"

	"github.com/JyX33/agentic-technical-watch-sub001/internal/adapter/tiered"
)

// memCache is a simple in-memory cache for testing.
type memCache struct {
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func TestGetPrefersLocalTier(t *testing.T) {
	local := newMemCache()
	shared := newMemCache()
	c := tiered.New(local, shared, 5*time.Minute)
	ctx := context.Background()

	local.data["dedup:a"] = []byte("local")
	shared.data["dedup:a"] = []byte("shared")

	val, found, err := c.Get(ctx, "dedup:a")
	if err != nil {
		t.Fatal(err)
	}
	if !found || string(val) != "local" {
		t.Fatalf("got (%q, %v), want local value", val, found)
	}
}

func TestGetCopiesSharedHitDown(t *testing.T) {
	local := newMemCache()
	shared := newMemCache()
	c := tiered.New(local, shared, 5*time.Minute)
	ctx := context.Background()

	shared.data["dedup:b"] = []byte("remote")

	val, found, err := c.Get(ctx, "dedup:b")
	if err != nil {
		t.Fatal(err)
	}
	if !found || string(val) != "remote" {
		t.Fatalf("got (%q, %v), want shared value", val, found)
	}
	if string(local.data["dedup:b"]) != "remote" {
		t.Fatal("expected local copy after shared hit")
	}
}

func TestGetMiss(t *testing.T) {
	c := tiered.New(newMemCache(), newMemCache(), time.Minute)
	if _, found, err := c.Get(context.Background(), "absent"); err != nil || found {
		t.Fatalf("got (found=%v, err=%v), want clean miss", found, err)
	}
}

func TestSetAndDeleteReachBothTiers(t *testing.T) {
	local := newMemCache()
	shared := newMemCache()
	c := tiered.New(local, shared, time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if string(local.data["k"]) != "v" || string(shared.data["k"]) != "v" {
		t.Fatal("Set did not reach both tiers")
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok := local.data["k"]; ok {
		t.Fatal("Delete left the local entry")
	}
	if _, ok := shared.data["k"]; ok {
		t.Fatal("Delete left the shared entry")
	}
}
