package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/task"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/port/database"
)

const taskColumns = `id, workflow_id, agent_type, skill, params, params_hash, status, priority,
	attempt, max_attempts, next_retry_at, correlation_id, result, error_detail, created_at, updated_at`

func (s *Store) CreateTask(ctx context.Context, req task.CreateRequest) (*task.Task, error) {
	paramsJSON, err := marshalJSON(req.Params)
	if err != nil {
		return nil, err
	}

	priority := req.Priority
	if priority <= 0 {
		priority = 5
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	hash := task.HashParams(req.Params)

	row := s.pool.QueryRow(ctx,
		`INSERT INTO tasks (id, workflow_id, agent_type, skill, params, params_hash, priority, max_attempts, correlation_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+taskColumns,
		uuid.NewString(), req.WorkflowID, req.AgentType, req.Skill, paramsJSON, hash,
		priority, maxAttempts, req.CorrelationID)

	t, err := scanTask(row)
	if err != nil {
		if isUniqueViolation(err, "idx_tasks_active_fingerprint") {
			return nil, fmt.Errorf("create task %s/%s: %w", req.AgentType, req.Skill, domain.ErrDuplicateTask)
		}
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &t, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get task %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return &t, nil
}

func (s *Store) ListWorkflowTasks(ctx context.Context, workflowID string) ([]task.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE workflow_id = $1 ORDER BY created_at`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list workflow tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// TransitionTask performs a compare-and-swap status change. The UPDATE
// predicate carries the expected status, so a lost race is observable
// as zero affected rows and surfaces as domain.ErrStaleState.
func (s *Store) TransitionTask(ctx context.Context, id string, from, to task.Status, mut database.TaskMutation) (*task.Task, error) {
	resultJSON, err := marshalNullableJSON(mut.Result)
	if err != nil {
		return nil, err
	}

	var nextRetry any
	switch {
	case mut.ClearRetryAt:
		nextRetry = nil
	case mut.NextRetryAt != nil:
		nextRetry = *mut.NextRetryAt
	}
	useRetry := mut.ClearRetryAt || mut.NextRetryAt != nil

	row := s.pool.QueryRow(ctx,
		`UPDATE tasks SET
			status = $3,
			result = COALESCE($4, result),
			error_detail = CASE WHEN $5 <> '' THEN $5 ELSE error_detail END,
			attempt = COALESCE($6, attempt),
			next_retry_at = CASE WHEN $7 THEN $8 ELSE next_retry_at END,
			updated_at = now()
		 WHERE id = $1 AND status = $2
		 RETURNING `+taskColumns,
		id, from, to, resultJSON, mut.ErrorDetail, mut.Attempt, useRetry, nextRetry)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.classifyTaskCASFailure(ctx, id, from)
		}
		return nil, fmt.Errorf("transition task %s %s->%s: %w", id, from, to, err)
	}
	return &t, nil
}

// classifyTaskCASFailure distinguishes a missing task from a lost race.
func (s *Store) classifyTaskCASFailure(ctx context.Context, id string, expected task.Status) error {
	current, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("transition task %s: expected %s, found %s: %w",
		id, expected, current.Status, domain.ErrStaleState)
}

func (s *Store) FindActiveTaskByFingerprint(ctx context.Context, fp task.Fingerprint) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE agent_type = $1 AND skill = $2 AND params_hash = $3
		   AND status IN ('pending', 'running')`,
		fp.AgentType, fp.Skill, fp.ParamsHash)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("find active task: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("find active task: %w", err)
	}
	return &t, nil
}

func (s *Store) ListPendingTasks(ctx context.Context, agentType string) ([]task.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE agent_type = $1 AND status = 'pending'
		 ORDER BY priority, created_at`, agentType)
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s *Store) ListDueRetries(ctx context.Context, now time.Time) ([]task.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE status = 'pending' AND next_retry_at IS NOT NULL AND next_retry_at <= $1
		 ORDER BY next_retry_at`, now)
	if err != nil {
		return nil, fmt.Errorf("list due retries: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func scanTask(row scannable) (task.Task, error) {
	var (
		t          task.Task
		paramsJSON []byte
		resultJSON []byte
		nextRetry  *time.Time
	)
	err := row.Scan(&t.ID, &t.WorkflowID, &t.AgentType, &t.Skill, &paramsJSON, &t.ParamsHash,
		&t.Status, &t.Priority, &t.Attempt, &t.MaxAttempts, &nextRetry, &t.CorrelationID,
		&resultJSON, &t.ErrorDetail, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return task.Task{}, err
	}
	if err := unmarshalJSON(paramsJSON, &t.Params); err != nil {
		return task.Task{}, err
	}
	if err := unmarshalJSON(resultJSON, &t.Result); err != nil {
		return task.Task{}, err
	}
	t.NextRetryAt = timeOrZero(nextRetry)
	return t, nil
}

func collectTasks(rows pgx.Rows) ([]task.Task, error) {
	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// marshalNullableJSON maps nil to SQL NULL so COALESCE keeps the stored value.
func marshalNullableJSON(v map[string]any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return marshalJSON(v)
}
