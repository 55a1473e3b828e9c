package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JyX33/agentic-technical-watch-sub001/internal/config"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/agent"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/port/database"
)

// HealthProber checks an instance's liveness endpoint directly,
// independent of its heartbeats.
type HealthProber interface {
	HealthCheck(ctx context.Context, endpoint string) bool
}

// RegistryService tracks remote agent instances: registration,
// heartbeats, staleness, and routing selection. The store is the
// authoritative record; nothing here is process-global.
type RegistryService struct {
	store  database.Store
	cfg    config.Registry
	prober HealthProber
	now    func() time.Time // for testing
}

// NewRegistryService creates a RegistryService.
func NewRegistryService(store database.Store, cfg config.Registry) *RegistryService {
	return &RegistryService{store: store, cfg: cfg, now: time.Now}
}

// SetProber wires the transport-level health probe in after
// construction. Without one, sweeps judge instances by heartbeat alone.
func (s *RegistryService) SetProber(p HealthProber) {
	s.prober = p
}

// Register records (or refreshes) an agent instance and its capabilities.
func (s *RegistryService) Register(ctx context.Context, req agent.RegisterRequest) (*agent.State, error) {
	if req.AgentType == "" || req.InstanceID == "" {
		return nil, fmt.Errorf("register: agent type and instance id are required")
	}

	st, err := s.store.UpsertAgentState(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", req.InstanceID, err)
	}

	slog.Info("agent registered",
		"agent_type", st.AgentType, "instance_id", st.InstanceID, "capabilities", len(st.Capabilities))
	return st, nil
}

// Heartbeat refreshes an instance's last-seen timestamp. Fails with
// domain.ErrUnknownInstance if the instance is not registered.
func (s *RegistryService) Heartbeat(ctx context.Context, instanceID string) error {
	if err := s.store.TouchAgentHeartbeat(ctx, instanceID, s.now()); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

// Deregister removes an instance explicitly.
func (s *RegistryService) Deregister(ctx context.Context, instanceID string) error {
	if err := s.store.DeleteAgentState(ctx, instanceID); err != nil {
		return fmt.Errorf("deregister: %w", err)
	}
	slog.Info("agent deregistered", "instance_id", instanceID)
	return nil
}

// SelectInstance returns the least-loaded non-stale instance of the
// given agent type that advertises the skill. An instance registered
// without capabilities accepts any skill of its type. Fails with
// domain.ErrNoHealthyInstance when none qualify.
func (s *RegistryService) SelectInstance(ctx context.Context, agentType, skillName string) (*agent.State, error) {
	states, err := s.store.ListAgentStates(ctx, agentType)
	if err != nil {
		return nil, fmt.Errorf("select instance: %w", err)
	}

	now := s.now()
	var best *agent.State
	for i := range states {
		st := &states[i]
		if st.StaleAt(now, s.cfg.StaleThreshold) || st.Health == agent.HealthStale {
			continue
		}
		if len(st.Capabilities) > 0 && !st.HasCapability(skillName) {
			continue
		}
		if best == nil || st.Load < best.Load {
			best = st
		}
	}
	if best == nil {
		return nil, fmt.Errorf("select instance for %s/%s: %w", agentType, skillName, domain.ErrNoHealthyInstance)
	}
	return best, nil
}

// MarkSweep classifies instances by heartbeat age: past the stale
// threshold they are marked stale and excluded from routing; past the
// removal grace they are deleted. The grace period distinguishes a
// network blip from genuine departure.
func (s *RegistryService) MarkSweep(ctx context.Context) error {
	states, err := s.store.ListAllAgentStates(ctx)
	if err != nil {
		return fmt.Errorf("registry sweep: %w", err)
	}

	now := s.now()
	for i := range states {
		st := &states[i]
		age := now.Sub(st.LastHeartbeat)
		switch {
		case age > s.cfg.StaleThreshold+s.cfg.RemovalGrace:
			if s.revalidate(ctx, st, now) {
				continue
			}
			if err := s.store.DeleteAgentState(ctx, st.InstanceID); err != nil && !errors.Is(err, domain.ErrUnknownInstance) {
				return fmt.Errorf("registry sweep remove %s: %w", st.InstanceID, err)
			}
			slog.Info("agent removed after grace period",
				"instance_id", st.InstanceID, "heartbeat_age", age)
		case age > s.cfg.StaleThreshold && st.Health != agent.HealthStale:
			if s.revalidate(ctx, st, now) {
				continue
			}
			if err := s.store.SetAgentHealth(ctx, st.InstanceID, agent.HealthStale); err != nil && !errors.Is(err, domain.ErrUnknownInstance) {
				return fmt.Errorf("registry sweep mark %s: %w", st.InstanceID, err)
			}
			slog.Warn("agent marked stale",
				"instance_id", st.InstanceID, "heartbeat_age", age)
		}
	}
	return nil
}

// revalidate probes an instance that stopped heartbeating. An instance
// that answers its liveness endpoint gets a fresh heartbeat in place of
// the missed ones, so a lost heartbeat channel alone does not evict a
// working agent.
func (s *RegistryService) revalidate(ctx context.Context, st *agent.State, now time.Time) bool {
	if s.prober == nil || !s.prober.HealthCheck(ctx, st.Endpoint) {
		return false
	}
	if err := s.store.TouchAgentHeartbeat(ctx, st.InstanceID, now); err != nil {
		slog.Warn("heartbeat refresh failed", "instance_id", st.InstanceID, "error", err)
		return false
	}
	slog.Info("silent agent revalidated by probe", "instance_id", st.InstanceID)
	return true
}

// Summary aggregates registry health for the metrics surface.
func (s *RegistryService) Summary(ctx context.Context) (*agent.Summary, error) {
	states, err := s.store.ListAllAgentStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry summary: %w", err)
	}

	now := s.now()
	sum := &agent.Summary{ByType: make(map[string]int), HealthyByType: make(map[string]int)}
	for i := range states {
		st := &states[i]
		sum.Total++
		sum.ByType[st.AgentType]++
		if st.StaleAt(now, s.cfg.StaleThreshold) || st.Health == agent.HealthStale {
			sum.Stale++
			continue
		}
		sum.Healthy++
		sum.HealthyByType[st.AgentType]++
	}
	return sum, nil
}

// TrackLoad adjusts an instance's assigned-task count. Best-effort:
// a missing instance is logged, not fatal, since routing already
// happened.
func (s *RegistryService) TrackLoad(ctx context.Context, instanceID string, delta int) {
	if err := s.store.AdjustAgentLoad(ctx, instanceID, delta); err != nil {
		slog.Warn("track load failed", "instance_id", instanceID, "error", err)
	}
}
