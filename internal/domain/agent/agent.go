// Package agent defines the AgentState liveness record for remote agents.
package agent

import "time"

// Health represents the liveness classification of an agent instance.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthStale    Health = "stale"
)

// State is the liveness and capability record for one registered remote
// agent instance.
type State struct {
	AgentType     string    `json:"agent_type"`
	InstanceID    string    `json:"instance_id"`
	Endpoint      string    `json:"endpoint"`
	Capabilities  []string  `json:"capabilities"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Load          int       `json:"load"` // assigned task count
	Health        Health    `json:"health"`
	RegisteredAt  time.Time `json:"registered_at"`
}

// StaleAt reports whether the instance's heartbeat age exceeds the
// threshold at the given instant. Stale instances are excluded from
// routing.
func (s *State) StaleAt(now time.Time, threshold time.Duration) bool {
	return now.Sub(s.LastHeartbeat) > threshold
}

// HasCapability reports whether the instance advertises the named skill.
func (s *State) HasCapability(skill string) bool {
	for _, c := range s.Capabilities {
		if c == skill {
			return true
		}
	}
	return false
}

// RegisterRequest holds the fields needed to register an instance.
type RegisterRequest struct {
	AgentType    string   `json:"agent_type"`
	InstanceID   string   `json:"instance_id"`
	Endpoint     string   `json:"endpoint"`
	Capabilities []string `json:"capabilities"`
}

// Summary aggregates registry health for the metrics surface.
type Summary struct {
	Total         int            `json:"total"`
	Healthy       int            `json:"healthy"`
	Stale         int            `json:"stale"`
	ByType        map[string]int `json:"by_type"`
	HealthyByType map[string]int `json:"healthy_by_type"`
}
