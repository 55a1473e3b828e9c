package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JyX33/agentic-technical-watch-sub001/internal/config"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/agent"
)

func newTestRegistry(t *testing.T) (*RegistryService, *memStore, *time.Time) {
	t.Helper()
	store := newMemStore()
	svc := NewRegistryService(store, config.Registry{
		StaleThreshold: time.Minute,
		RemovalGrace:   2 * time.Minute,
	})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	store.now = func() time.Time { return now }
	return svc, store, &now
}

func TestRegisterAndHeartbeat(t *testing.T) {
	svc, _, _ := newTestRegistry(t)
	ctx := context.Background()

	st, err := svc.Register(ctx, agentRequest("retrieval", "ret-1"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if st.Health != agent.HealthHealthy {
		t.Errorf("health = %s, want healthy", st.Health)
	}

	if err := svc.Heartbeat(ctx, "ret-1"); err != nil {
		t.Errorf("Heartbeat: %v", err)
	}
	if err := svc.Heartbeat(ctx, "ghost"); !errors.Is(err, domain.ErrUnknownInstance) {
		t.Errorf("unknown heartbeat: got %v, want ErrUnknownInstance", err)
	}

	if _, err := svc.Register(ctx, agent.RegisterRequest{InstanceID: "x"}); err == nil {
		t.Error("register without agent type should fail")
	}
}

func TestSelectInstanceLeastLoaded(t *testing.T) {
	svc, store, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, id := range []string{"ret-1", "ret-2"} {
		if _, err := svc.Register(ctx, agentRequest("retrieval", id)); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if err := store.AdjustAgentLoad(ctx, "ret-1", 3); err != nil {
		t.Fatalf("AdjustAgentLoad: %v", err)
	}

	st, err := svc.SelectInstance(ctx, "retrieval", "fetch-updates")
	if err != nil {
		t.Fatalf("SelectInstance: %v", err)
	}
	if st.InstanceID != "ret-2" {
		t.Errorf("selected %s, want least-loaded ret-2", st.InstanceID)
	}

	if _, err := svc.SelectInstance(ctx, "filter", "filter-content"); !errors.Is(err, domain.ErrNoHealthyInstance) {
		t.Errorf("empty type: got %v, want ErrNoHealthyInstance", err)
	}
}

func TestSelectInstanceFiltersByCapability(t *testing.T) {
	svc, _, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, agentRequest("retrieval", "ret-1")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.SelectInstance(ctx, "retrieval", "unadvertised-skill"); !errors.Is(err, domain.ErrNoHealthyInstance) {
		t.Errorf("unadvertised skill: got %v, want ErrNoHealthyInstance", err)
	}

	// No capability list means the instance accepts any skill of its type.
	if _, err := svc.Register(ctx, agent.RegisterRequest{
		AgentType:  "retrieval",
		InstanceID: "ret-wild",
		Endpoint:   "http://ret-wild:9000",
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	st, err := svc.SelectInstance(ctx, "retrieval", "unadvertised-skill")
	if err != nil {
		t.Fatalf("SelectInstance: %v", err)
	}
	if st.InstanceID != "ret-wild" {
		t.Errorf("selected %s, want ret-wild", st.InstanceID)
	}
}

func TestSelectInstanceExcludesStale(t *testing.T) {
	svc, _, now := newTestRegistry(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, agentRequest("retrieval", "ret-1")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	*now = now.Add(2 * time.Minute)
	if _, err := svc.SelectInstance(ctx, "retrieval", "fetch-updates"); !errors.Is(err, domain.ErrNoHealthyInstance) {
		t.Errorf("stale instance selected: %v", err)
	}

	// A heartbeat brings it back.
	if err := svc.Heartbeat(ctx, "ret-1"); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if _, err := svc.SelectInstance(ctx, "retrieval", "fetch-updates"); err != nil {
		t.Errorf("refreshed instance rejected: %v", err)
	}
}

func TestMarkSweepStalenessThenRemoval(t *testing.T) {
	svc, store, now := newTestRegistry(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, agentRequest("retrieval", "ret-1")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Past the stale threshold: marked, kept.
	*now = now.Add(90 * time.Second)
	if err := svc.MarkSweep(ctx); err != nil {
		t.Fatalf("MarkSweep: %v", err)
	}
	states, _ := store.ListAllAgentStates(ctx)
	if len(states) != 1 || states[0].Health != agent.HealthStale {
		t.Fatalf("states = %+v, want one stale instance", states)
	}

	// Past stale threshold plus grace: removed.
	*now = now.Add(3 * time.Minute)
	if err := svc.MarkSweep(ctx); err != nil {
		t.Fatalf("MarkSweep: %v", err)
	}
	states, _ = store.ListAllAgentStates(ctx)
	if len(states) != 0 {
		t.Errorf("states = %+v, want instance removed after grace", states)
	}
}

type fakeProber struct {
	alive map[string]bool
}

func (p fakeProber) HealthCheck(_ context.Context, endpoint string) bool {
	return p.alive[endpoint]
}

func TestMarkSweepProbesSilentInstances(t *testing.T) {
	svc, store, now := newTestRegistry(t)
	ctx := context.Background()

	for _, reg := range []agent.RegisterRequest{
		agentRequest("retrieval", "ret-1"),
		agentRequest("filter", "fil-1"),
	} {
		if _, err := svc.Register(ctx, reg); err != nil {
			t.Fatalf("Register %s: %v", reg.InstanceID, err)
		}
	}
	svc.SetProber(fakeProber{alive: map[string]bool{"http://ret-1:9000": true}})

	// Both stop heartbeating, but ret-1 still answers its probe: it gets
	// a fresh heartbeat instead of the stale mark.
	*now = now.Add(90 * time.Second)
	if err := svc.MarkSweep(ctx); err != nil {
		t.Fatalf("MarkSweep: %v", err)
	}
	states, _ := store.ListAllAgentStates(ctx)
	byID := make(map[string]agent.State, len(states))
	for _, st := range states {
		byID[st.InstanceID] = st
	}
	if st := byID["ret-1"]; st.Health != agent.HealthHealthy || !st.LastHeartbeat.Equal(*now) {
		t.Errorf("ret-1 = %+v, want revalidated with a fresh heartbeat", st)
	}
	if st := byID["fil-1"]; st.Health != agent.HealthStale {
		t.Errorf("fil-1 health = %s, want stale", st.Health)
	}

	// The probe keeps answering: ret-1 survives even the removal
	// horizon, while the silent fil-1 is removed.
	*now = now.Add(5 * time.Minute)
	if err := svc.MarkSweep(ctx); err != nil {
		t.Fatalf("MarkSweep: %v", err)
	}
	states, _ = store.ListAllAgentStates(ctx)
	if len(states) != 1 || states[0].InstanceID != "ret-1" {
		t.Fatalf("states = %+v, want only the probed ret-1", states)
	}
}

func TestSummaryCountsHealthPerType(t *testing.T) {
	svc, _, now := newTestRegistry(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, agentRequest("retrieval", "ret-1")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	*now = now.Add(2 * time.Minute) // ret-1 goes stale
	if _, err := svc.Register(ctx, agentRequest("filter", "fil-1")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	sum, err := svc.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Total != 2 || sum.Healthy != 1 || sum.Stale != 1 {
		t.Errorf("summary = %+v, want total 2, healthy 1, stale 1", sum)
	}
	if sum.HealthyByType["filter"] != 1 || sum.HealthyByType["retrieval"] != 0 {
		t.Errorf("healthy by type = %v", sum.HealthyByType)
	}
}
