package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/recovery"
)

const recoveryColumns = `id, task_id, strategy, checkpoint, reason, detail, attempts, resolved, created_at`

func (s *Store) CreateRecovery(ctx context.Context, rec *recovery.Record) (*recovery.Record, error) {
	checkpointJSON, err := marshalNullableJSON(rec.Checkpoint)
	if err != nil {
		return nil, err
	}
	attemptsJSON, err := json.Marshal(rec.Attempts)
	if err != nil {
		return nil, fmt.Errorf("marshal attempts: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO task_recoveries (id, task_id, strategy, checkpoint, reason, detail, attempts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+recoveryColumns,
		uuid.NewString(), rec.TaskID, rec.Strategy, checkpointJSON, rec.Reason, rec.Detail, attemptsJSON)

	created, err := scanRecovery(row)
	if err != nil {
		if isUniqueViolation(err, "idx_recoveries_active") {
			return nil, fmt.Errorf("create recovery for task %s: %w", rec.TaskID, domain.ErrConflict)
		}
		return nil, fmt.Errorf("create recovery: %w", err)
	}
	return &created, nil
}

// AppendRecoveryAttempt folds a later failed attempt into the task's
// active record. The strategy may escalate between attempts (retry
// turning into checkpoint or manual once the budget runs out).
func (s *Store) AppendRecoveryAttempt(ctx context.Context, taskID string, strategy recovery.Strategy, checkpoint map[string]any, attempt recovery.AttemptInfo) (*recovery.Record, error) {
	checkpointJSON, err := marshalNullableJSON(checkpoint)
	if err != nil {
		return nil, err
	}
	attemptJSON, err := json.Marshal(attempt)
	if err != nil {
		return nil, fmt.Errorf("marshal attempt: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE task_recoveries
		 SET strategy = $2,
		     checkpoint = COALESCE($3, checkpoint),
		     reason = $4,
		     detail = $5,
		     attempts = attempts || $6::jsonb
		 WHERE task_id = $1 AND NOT resolved
		 RETURNING `+recoveryColumns,
		taskID, strategy, checkpointJSON, attempt.Reason, attempt.Detail, attemptJSON)

	rec, err := scanRecovery(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("append recovery attempt for task %s: %w", taskID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("append recovery attempt: %w", err)
	}
	return &rec, nil
}

func (s *Store) GetActiveRecovery(ctx context.Context, taskID string) (*recovery.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recoveryColumns+` FROM task_recoveries WHERE task_id = $1 AND NOT resolved`, taskID)

	rec, err := scanRecovery(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("active recovery for task %s: %w", taskID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get active recovery: %w", err)
	}
	return &rec, nil
}

func (s *Store) ResolveRecovery(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE task_recoveries SET resolved = TRUE WHERE id = $1 AND NOT resolved`, id)
	if err != nil {
		return fmt.Errorf("resolve recovery %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("resolve recovery %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) CountAwaitingManual(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM task_recoveries WHERE strategy = 'manual' AND NOT resolved`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count awaiting manual: %w", err)
	}
	return count, nil
}

func scanRecovery(row scannable) (recovery.Record, error) {
	var (
		rec            recovery.Record
		checkpointJSON []byte
		attemptsJSON   []byte
	)
	err := row.Scan(&rec.ID, &rec.TaskID, &rec.Strategy, &checkpointJSON, &rec.Reason,
		&rec.Detail, &attemptsJSON, &rec.Resolved, &rec.CreatedAt)
	if err != nil {
		return recovery.Record{}, err
	}
	if err := unmarshalJSON(checkpointJSON, &rec.Checkpoint); err != nil {
		return recovery.Record{}, err
	}
	if len(attemptsJSON) > 0 {
		if err := json.Unmarshal(attemptsJSON, &rec.Attempts); err != nil {
			return recovery.Record{}, fmt.Errorf("unmarshal attempts: %w", err)
		}
	}
	return rec, nil
}
