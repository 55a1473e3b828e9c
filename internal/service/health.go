package service

import (
	"context"
	"time"

	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/agent"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/workflow"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/port/database"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/resilience"
)

// HealthReport is a point-in-time operational snapshot of the system.
type HealthReport struct {
	Status             string                          `json:"status"` // "ok" | "degraded"
	At                 time.Time                       `json:"at"`
	Breakers           map[string]resilience.Snapshot  `json:"breakers"`
	Agents             *agent.Summary                  `json:"agents"`
	SuspendedWorkflows int                             `json:"suspended_workflows"`
	AwaitingManual     int                             `json:"awaiting_manual"`
	DueRetries         int                             `json:"due_retries"`
}

// HealthService aggregates breaker state, agent fleet health, and
// workflows parked for intervention into one report.
type HealthService struct {
	store    database.Store
	registry *RegistryService
	breakers *resilience.Set
	now      func() time.Time
}

func NewHealthService(store database.Store, registry *RegistryService, breakers *resilience.Set) *HealthService {
	return &HealthService{store: store, registry: registry, breakers: breakers, now: time.Now}
}

// Report builds the current health snapshot. The overall status is
// degraded when any breaker is open, any agent type has no healthy
// instance, or workflows are waiting on an operator.
func (s *HealthService) Report(ctx context.Context) (*HealthReport, error) {
	summary, err := s.registry.Summary(ctx)
	if err != nil {
		return nil, err
	}
	suspended, err := s.store.CountByStatus(ctx, workflow.StatusSuspended)
	if err != nil {
		return nil, err
	}
	manual, err := s.store.CountAwaitingManual(ctx)
	if err != nil {
		return nil, err
	}
	due, err := s.store.ListDueRetries(ctx, s.now())
	if err != nil {
		return nil, err
	}

	report := &HealthReport{
		Status:             "ok",
		At:                 s.now(),
		Breakers:           s.breakers.Snapshots(),
		Agents:             summary,
		SuspendedWorkflows: suspended,
		AwaitingManual:     manual,
		DueRetries:         len(due),
	}
	for _, snap := range report.Breakers {
		if snap.State == resilience.StateOpen {
			report.Status = "degraded"
		}
	}
	for _, healthy := range summary.HealthyByType {
		if healthy == 0 {
			report.Status = "degraded"
		}
	}
	if manual > 0 {
		report.Status = "degraded"
	}
	return report, nil
}
