package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/workflow"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/port/database"
)

const workflowColumns = `id, type, config, status, current_stage, started_at, completed_at, metrics, created_at, updated_at`

func (s *Store) CreateWorkflow(ctx context.Context, wfType string, config map[string]any) (*workflow.Workflow, error) {
	configJSON, err := marshalJSON(config)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO workflows (id, type, config) VALUES ($1, $2, $3)
		 RETURNING `+workflowColumns,
		uuid.NewString(), wfType, configJSON)

	w, err := scanWorkflow(row)
	if err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}
	return &w, nil
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id)

	w, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get workflow %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get workflow %s: %w", id, err)
	}
	return &w, nil
}

// TransitionWorkflow is the workflow-level CAS mirror of TransitionTask.
func (s *Store) TransitionWorkflow(ctx context.Context, id string, from, to workflow.Status, mut database.WorkflowMutation) (*workflow.Workflow, error) {
	var metricsJSON any
	if mut.Metrics != nil {
		b, err := json.Marshal(mut.Metrics)
		if err != nil {
			return nil, fmt.Errorf("marshal metrics: %w", err)
		}
		metricsJSON = b
	}

	var startedAt, completedAt any
	if mut.StartedAt != nil {
		startedAt = *mut.StartedAt
	}
	if mut.CompletedAt != nil {
		completedAt = *mut.CompletedAt
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE workflows SET
			status = $3,
			current_stage = COALESCE($4, current_stage),
			metrics = COALESCE($5, metrics),
			started_at = COALESCE($6, started_at),
			completed_at = COALESCE($7, completed_at),
			updated_at = now()
		 WHERE id = $1 AND status = $2
		 RETURNING `+workflowColumns,
		id, from, to, mut.CurrentStage, metricsJSON, startedAt, completedAt)

	w, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.classifyWorkflowCASFailure(ctx, id, from)
		}
		return nil, fmt.Errorf("transition workflow %s %s->%s: %w", id, from, to, err)
	}
	return &w, nil
}

func (s *Store) classifyWorkflowCASFailure(ctx context.Context, id string, expected workflow.Status) error {
	current, err := s.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("transition workflow %s: expected %s, found %s: %w",
		id, expected, current.Status, domain.ErrStaleState)
}

// ListStaleRunning returns running workflows not touched since
// updatedBefore, the signature of an orphaned process.
func (s *Store) ListStaleRunning(ctx context.Context, updatedBefore time.Time) ([]workflow.Workflow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+workflowColumns+` FROM workflows
		 WHERE status = 'running' AND updated_at < $1
		 ORDER BY updated_at`, updatedBefore)
	if err != nil {
		return nil, fmt.Errorf("list stale running workflows: %w", err)
	}
	defer rows.Close()

	var workflows []workflow.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, w)
	}
	return workflows, rows.Err()
}

func (s *Store) CountByStatus(ctx context.Context, status workflow.Status) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM workflows WHERE status = $1`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count workflows by status: %w", err)
	}
	return count, nil
}

func scanWorkflow(row scannable) (workflow.Workflow, error) {
	var (
		w           workflow.Workflow
		configJSON  []byte
		metricsJSON []byte
		startedAt   *time.Time
		completedAt *time.Time
	)
	err := row.Scan(&w.ID, &w.Type, &configJSON, &w.Status, &w.CurrentStage,
		&startedAt, &completedAt, &metricsJSON, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return workflow.Workflow{}, err
	}
	if err := unmarshalJSON(configJSON, &w.Config); err != nil {
		return workflow.Workflow{}, err
	}
	if len(metricsJSON) > 0 {
		if err := json.Unmarshal(metricsJSON, &w.Metrics); err != nil {
			return workflow.Workflow{}, fmt.Errorf("unmarshal metrics: %w", err)
		}
	}
	w.StartedAt = timeOrZero(startedAt)
	w.CompletedAt = timeOrZero(completedAt)
	return w, nil
}
