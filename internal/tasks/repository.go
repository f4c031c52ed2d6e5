package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrTaskNotFound = errors.New("task not found")

// Repository persists the task ledger in Postgres. Every mutation is
// committed before the call returns; there is no in-memory state.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const taskColumns = `
	id, subject_id, kind, status, triggered_by, result, verification, error,
	created_at, started_at, completed_at, updated_at`

func scanTask(row pgx.Row) (Task, error) {
	var t Task
	var resultJSON, verificationJSON []byte
	err := row.Scan(
		&t.ID, &t.SubjectID, &t.Kind, &t.Status, &t.TriggeredBy,
		&resultJSON, &verificationJSON, &t.Error,
		&t.CreatedAt, &t.StartedAt, &t.CompletedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, ErrTaskNotFound
		}
		return Task{}, fmt.Errorf("failed to scan task: %w", err)
	}
	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &t.Result); err != nil {
			return Task{}, fmt.Errorf("failed to decode task result: %w", err)
		}
	}
	if len(verificationJSON) > 0 {
		var v Verification
		if err := json.Unmarshal(verificationJSON, &v); err != nil {
			return Task{}, fmt.Errorf("failed to decode verification: %w", err)
		}
		t.Verification = &v
	}
	return t, nil
}

// CreateIfAbsent inserts a pending task unless a task of the same
// (subject, kind) was created or finished within the window. The NOT
// EXISTS check alone is not atomic under READ COMMITTED, so the insert
// also arbitrates on the partial unique index over in-flight tasks:
// when two producers race, one insert hits ON CONFLICT and is
// suppressed. Returns the new ID, or false when suppressed.
func (r *Repository) CreateIfAbsent(ctx context.Context, subjectID uuid.UUID, kind Kind, triggeredBy string, window time.Duration) (uuid.UUID, bool, error) {
	id := uuid.New()
	query := `
		INSERT INTO tasks (id, subject_id, kind, status, triggered_by, created_at, updated_at)
		SELECT $1, $2, $3, 'pending', $4, now(), now()
		WHERE NOT EXISTS (
			SELECT 1 FROM tasks
			WHERE subject_id = $2
			  AND kind = $3
			  AND GREATEST(created_at, COALESCE(completed_at, created_at)) > now() - $5::interval
			  AND status <> 'failed'
		)
		ON CONFLICT (subject_id, kind) WHERE status IN ('pending', 'running', 'verifying') DO NOTHING
		RETURNING id`

	interval := fmt.Sprintf("%d seconds", int(window.Seconds()))
	err := r.pool.QueryRow(ctx, query, id, subjectID, kind, triggeredBy, interval).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to create task: %w", err)
	}
	return id, true, nil
}

// Get fetches a task by ID.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	return scanTask(r.pool.QueryRow(ctx, query, id))
}

// GetPending returns pending tasks oldest first.
func (r *Repository) GetPending(ctx context.Context, limit int) ([]Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListForSubject returns a subject's tasks, newest first.
func (r *Repository) ListForSubject(ctx context.Context, subjectID uuid.UUID) ([]Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE subject_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateStatusParams carries an UpdateStatus mutation.
type UpdateStatusParams struct {
	ID     uuid.UUID
	From   Status
	To     Status
	Result map[string]any
	Error  *string
}

// UpdateStatus applies a guarded transition: the row must still be in
// From or nothing is updated and false is returned. Timestamps follow
// the transition (started_at on running, completed_at on terminal).
func (r *Repository) UpdateStatus(ctx context.Context, p UpdateStatusParams) (bool, error) {
	var resultJSON []byte
	if p.Result != nil {
		var err error
		resultJSON, err = json.Marshal(p.Result)
		if err != nil {
			return false, fmt.Errorf("failed to encode task result: %w", err)
		}
	}

	query := `
		UPDATE tasks
		SET status = $3,
		    result = COALESCE($4, result),
		    error = COALESCE($5, error),
		    started_at = CASE WHEN $3 = 'running' THEN now() ELSE started_at END,
		    completed_at = CASE WHEN $3 IN ('completed', 'failed') THEN now() ELSE completed_at END,
		    updated_at = now()
		WHERE id = $1 AND status = $2`

	tag, err := r.pool.Exec(ctx, query, p.ID, p.From, p.To, resultJSON, p.Error)
	if err != nil {
		return false, fmt.Errorf("failed to update task status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetVerification attaches the self-verify outcome to a task.
func (r *Repository) SetVerification(ctx context.Context, id uuid.UUID, v Verification) error {
	verificationJSON, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode verification: %w", err)
	}

	query := `UPDATE tasks SET verification = $2, updated_at = now() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, verificationJSON)
	if err != nil {
		return fmt.Errorf("failed to set verification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// DeleteFinishedBefore removes terminal tasks older than the cutoff.
// Used by the retention cleanup loop.
func (r *Repository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM tasks
		WHERE status IN ('completed', 'failed') AND completed_at < $1`

	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete finished tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountByStatus returns ledger totals per status.
func (r *Repository) CountByStatus(ctx context.Context) (map[Status]int, error) {
	query := `SELECT status, COUNT(*) FROM tasks GROUP BY status`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	defer rows.Close()

	out := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan task count: %w", err)
		}
		out[status] = count
	}
	return out, rows.Err()
}
