package resilience

import "sync"

// Set holds one independent breaker per dependency key. Failures in one
// dependency never affect another's breaker.
type Set struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*Breaker
}

// NewSet creates a breaker set; each lazily-created breaker uses cfg.
func NewSet(cfg Config) *Set {
	return &Set{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// For returns the breaker for the given dependency key, creating it on
// first use.
func (s *Set) For(key string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[key]
	if !ok {
		b = NewBreaker(s.cfg)
		s.breakers[key] = b
	}
	return b
}

// Snapshots returns the current state of every breaker, keyed by
// dependency.
func (s *Set) Snapshots() map[string]Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Snapshot, len(s.breakers))
	for key, b := range s.breakers {
		out[key] = b.Snapshot()
	}
	return out
}
