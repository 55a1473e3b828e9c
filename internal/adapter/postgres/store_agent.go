package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/agent"
)

const agentColumns = `instance_id, agent_type, endpoint, capabilities, last_heartbeat, load, health, registered_at`

// UpsertAgentState registers an instance or refreshes an existing
// registration. Re-registration resets health and heartbeat.
func (s *Store) UpsertAgentState(ctx context.Context, req agent.RegisterRequest) (*agent.State, error) {
	caps := req.Capabilities
	if caps == nil {
		caps = []string{}
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO agent_states (instance_id, agent_type, endpoint, capabilities)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (instance_id) DO UPDATE SET
			agent_type = EXCLUDED.agent_type,
			endpoint = EXCLUDED.endpoint,
			capabilities = EXCLUDED.capabilities,
			last_heartbeat = now(),
			health = 'healthy'
		 RETURNING `+agentColumns,
		req.InstanceID, req.AgentType, req.Endpoint, caps)

	st, err := scanAgentState(row)
	if err != nil {
		return nil, fmt.Errorf("upsert agent state: %w", err)
	}
	return &st, nil
}

func (s *Store) TouchAgentHeartbeat(ctx context.Context, instanceID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_states SET last_heartbeat = $2, health = 'healthy' WHERE instance_id = $1`,
		instanceID, at)
	if err != nil {
		return fmt.Errorf("touch heartbeat %s: %w", instanceID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("touch heartbeat %s: %w", instanceID, domain.ErrUnknownInstance)
	}
	return nil
}

func (s *Store) SetAgentHealth(ctx context.Context, instanceID string, health agent.Health) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_states SET health = $2 WHERE instance_id = $1`, instanceID, health)
	if err != nil {
		return fmt.Errorf("set agent health %s: %w", instanceID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set agent health %s: %w", instanceID, domain.ErrUnknownInstance)
	}
	return nil
}

func (s *Store) AdjustAgentLoad(ctx context.Context, instanceID string, delta int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_states SET load = GREATEST(load + $2, 0) WHERE instance_id = $1`,
		instanceID, delta)
	if err != nil {
		return fmt.Errorf("adjust agent load %s: %w", instanceID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("adjust agent load %s: %w", instanceID, domain.ErrUnknownInstance)
	}
	return nil
}

func (s *Store) ListAgentStates(ctx context.Context, agentType string) ([]agent.State, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+agentColumns+` FROM agent_states WHERE agent_type = $1 ORDER BY load, last_heartbeat DESC`,
		agentType)
	if err != nil {
		return nil, fmt.Errorf("list agent states: %w", err)
	}
	defer rows.Close()
	return collectAgentStates(rows)
}

func (s *Store) ListAllAgentStates(ctx context.Context) ([]agent.State, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+agentColumns+` FROM agent_states ORDER BY agent_type, instance_id`)
	if err != nil {
		return nil, fmt.Errorf("list all agent states: %w", err)
	}
	defer rows.Close()
	return collectAgentStates(rows)
}

func (s *Store) DeleteAgentState(ctx context.Context, instanceID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM agent_states WHERE instance_id = $1`, instanceID)
	if err != nil {
		return fmt.Errorf("delete agent state %s: %w", instanceID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete agent state %s: %w", instanceID, domain.ErrUnknownInstance)
	}
	return nil
}

func scanAgentState(row scannable) (agent.State, error) {
	var st agent.State
	err := row.Scan(&st.InstanceID, &st.AgentType, &st.Endpoint, &st.Capabilities,
		&st.LastHeartbeat, &st.Load, &st.Health, &st.RegisteredAt)
	if err != nil {
		return agent.State{}, err
	}
	return st, nil
}

func collectAgentStates(rows pgx.Rows) ([]agent.State, error) {
	var states []agent.State
	for rows.Next() {
		st, err := scanAgentState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, rows.Err()
}
