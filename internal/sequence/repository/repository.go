package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"outreach_backend/internal/sequence"
)

var (
	ErrNotFound = errors.New("sequence not found")

	// ErrActiveSequenceExists is returned when a lead already has an
	// active sequence. Enforced by a partial unique index, so two
	// concurrent starts can never both succeed.
	ErrActiveSequenceExists = errors.New("lead already has an active sequence")

	// ErrStaleState is returned when a guarded update matched no row,
	// meaning the sequence or step was no longer in the expected state.
	ErrStaleState = errors.New("sequence state changed concurrently")
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const sequenceColumns = `
	id, lead_id, template_id, status, current_step, total_steps,
	emails_sent, last_email_sent_at, lead_context,
	started_at, paused_at, completed_at, created_at, updated_at`

const stepColumns = `
	id, sequence_id, step_number, delay_days, delay_hours,
	subject, body, rendered_subject, rendered_body, status,
	scheduled_at, sent_at, opened_at, clicked_at, created_at, updated_at`

func scanSequence(row pgx.Row) (sequence.Sequence, error) {
	var s sequence.Sequence
	var contextJSON []byte
	err := row.Scan(
		&s.ID, &s.LeadID, &s.TemplateID, &s.Status, &s.CurrentStep, &s.TotalSteps,
		&s.EmailsSent, &s.LastEmailSentAt, &contextJSON,
		&s.StartedAt, &s.PausedAt, &s.CompletedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sequence.Sequence{}, ErrNotFound
		}
		return sequence.Sequence{}, fmt.Errorf("failed to scan sequence: %w", err)
	}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &s.LeadContext); err != nil {
			return sequence.Sequence{}, fmt.Errorf("failed to decode lead context: %w", err)
		}
	}
	return s, nil
}

func scanStep(row pgx.Row) (sequence.Step, error) {
	var s sequence.Step
	err := row.Scan(
		&s.ID, &s.SequenceID, &s.StepNumber, &s.DelayDays, &s.DelayHours,
		&s.Subject, &s.Body, &s.RenderedSubject, &s.RenderedBody, &s.Status,
		&s.ScheduledAt, &s.SentAt, &s.OpenedAt, &s.ClickedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sequence.Step{}, ErrNotFound
		}
		return sequence.Step{}, fmt.Errorf("failed to scan step: %w", err)
	}
	return s, nil
}

// CreateSequence inserts a sequence and all of its steps in one
// transaction. The first step must arrive already Scheduled (the
// cursor); the rest Pending. Returns ErrActiveSequenceExists if the
// lead already has an active sequence.
func (r *Repository) CreateSequence(ctx context.Context, seq sequence.Sequence, steps []sequence.Step) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	contextJSON, err := json.Marshal(seq.LeadContext)
	if err != nil {
		return fmt.Errorf("failed to encode lead context: %w", err)
	}

	seqQuery := `
		INSERT INTO sequences (
			id, lead_id, template_id, status, current_step, total_steps,
			emails_sent, last_email_sent_at, lead_context,
			started_at, paused_at, completed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	if _, err := tx.Exec(ctx, seqQuery,
		seq.ID, seq.LeadID, seq.TemplateID, seq.Status, seq.CurrentStep, seq.TotalSteps,
		seq.EmailsSent, seq.LastEmailSentAt, contextJSON,
		seq.StartedAt, seq.PausedAt, seq.CompletedAt, seq.CreatedAt, seq.UpdatedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrActiveSequenceExists
		}
		return fmt.Errorf("failed to insert sequence: %w", err)
	}

	stepQuery := `
		INSERT INTO sequence_steps (
			id, sequence_id, step_number, delay_days, delay_hours,
			subject, body, rendered_subject, rendered_body, status,
			scheduled_at, sent_at, opened_at, clicked_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	for _, step := range steps {
		if _, err := tx.Exec(ctx, stepQuery,
			step.ID, step.SequenceID, step.StepNumber, step.DelayDays, step.DelayHours,
			step.Subject, step.Body, step.RenderedSubject, step.RenderedBody, step.Status,
			step.ScheduledAt, step.SentAt, step.OpenedAt, step.ClickedAt, step.CreatedAt, step.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert step %d: %w", step.StepNumber, err)
		}
	}

	return tx.Commit(ctx)
}

// GetSequence fetches a sequence by ID.
func (r *Repository) GetSequence(ctx context.Context, id uuid.UUID) (sequence.Sequence, error) {
	query := `SELECT ` + sequenceColumns + ` FROM sequences WHERE id = $1`
	return scanSequence(r.pool.QueryRow(ctx, query, id))
}

// ActiveSequenceForLead returns the lead's active or paused sequence,
// or ErrNotFound when the lead has none in flight.
func (r *Repository) ActiveSequenceForLead(ctx context.Context, leadID uuid.UUID) (sequence.Sequence, error) {
	query := `
		SELECT ` + sequenceColumns + `
		FROM sequences
		WHERE lead_id = $1 AND status IN ('active', 'paused')
		ORDER BY started_at DESC
		LIMIT 1`
	return scanSequence(r.pool.QueryRow(ctx, query, leadID))
}

// ListForLead returns all sequences ever started for a lead, newest first.
func (r *Repository) ListForLead(ctx context.Context, leadID uuid.UUID) ([]sequence.Sequence, error) {
	query := `
		SELECT ` + sequenceColumns + `
		FROM sequences
		WHERE lead_id = $1
		ORDER BY started_at DESC`

	rows, err := r.pool.Query(ctx, query, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sequences: %w", err)
	}
	defer rows.Close()

	var out []sequence.Sequence
	for rows.Next() {
		s, err := scanSequence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MarkPaused transitions an active sequence to paused. Returns
// ErrStaleState when the sequence was not active.
func (r *Repository) MarkPaused(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE sequences
		SET status = 'paused', paused_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'active'`
	return r.guardedExec(ctx, query, id, at)
}

// MarkResumed transitions a paused sequence back to active.
func (r *Repository) MarkResumed(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE sequences
		SET status = 'active', paused_at = NULL, updated_at = $2
		WHERE id = $1 AND status = 'paused'`
	return r.guardedExec(ctx, query, id, at)
}

// MarkCancelled moves an active or paused sequence to cancelled.
// Cancelling an already terminal sequence is a no-op.
func (r *Repository) MarkCancelled(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE sequences
		SET status = 'cancelled', completed_at = COALESCE(completed_at, $2), updated_at = $2
		WHERE id = $1 AND status IN ('active', 'paused')`
	if _, err := r.pool.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to update sequence: %w", err)
	}
	return nil
}

// MarkReplied moves an active or paused sequence to replied. Idempotent
// like MarkCancelled: a second reply changes nothing.
func (r *Repository) MarkReplied(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE sequences
		SET status = 'replied', completed_at = COALESCE(completed_at, $2), updated_at = $2
		WHERE id = $1 AND status IN ('active', 'paused')`
	if _, err := r.pool.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to update sequence: %w", err)
	}
	return nil
}

func (r *Repository) guardedExec(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update sequence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleState
	}
	return nil
}

// CursorStep returns the sequence's single Scheduled step, or
// ErrNotFound when there is no cursor (sequence finished or broken).
func (r *Repository) CursorStep(ctx context.Context, sequenceID uuid.UUID) (sequence.Step, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM sequence_steps
		WHERE sequence_id = $1 AND status = 'scheduled'
		ORDER BY step_number ASC
		LIMIT 1`
	return scanStep(r.pool.QueryRow(ctx, query, sequenceID))
}

// NextPendingStep returns the lowest-numbered pending step.
func (r *Repository) NextPendingStep(ctx context.Context, sequenceID uuid.UUID) (sequence.Step, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM sequence_steps
		WHERE sequence_id = $1 AND status = 'pending'
		ORDER BY step_number ASC
		LIMIT 1`
	return scanStep(r.pool.QueryRow(ctx, query, sequenceID))
}

// StepByNumber fetches one step of a sequence.
func (r *Repository) StepByNumber(ctx context.Context, sequenceID uuid.UUID, number int) (sequence.Step, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM sequence_steps
		WHERE sequence_id = $1 AND step_number = $2`
	return scanStep(r.pool.QueryRow(ctx, query, sequenceID, number))
}

// ListSteps returns a sequence's steps in order.
func (r *Repository) ListSteps(ctx context.Context, sequenceID uuid.UUID) ([]sequence.Step, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM sequence_steps
		WHERE sequence_id = $1
		ORDER BY step_number ASC`

	rows, err := r.pool.Query(ctx, query, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var out []sequence.Step
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RescheduleStep moves a Scheduled step's send time. Used on resume.
func (r *Repository) RescheduleStep(ctx context.Context, stepID uuid.UUID, scheduledAt time.Time) error {
	query := `
		UPDATE sequence_steps
		SET scheduled_at = $2, updated_at = now()
		WHERE id = $1 AND status = 'scheduled'`

	tag, err := r.pool.Exec(ctx, query, stepID, scheduledAt)
	if err != nil {
		return fmt.Errorf("failed to reschedule step: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleState
	}
	return nil
}

// PromoteStep moves a Pending step to Scheduled with the given send
// time, making it the sequence's cursor.
func (r *Repository) PromoteStep(ctx context.Context, stepID uuid.UUID, scheduledAt time.Time) error {
	query := `
		UPDATE sequence_steps
		SET status = 'scheduled', scheduled_at = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'`

	tag, err := r.pool.Exec(ctx, query, stepID, scheduledAt)
	if err != nil {
		return fmt.Errorf("failed to promote step: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleState
	}
	return nil
}

// DueStep is one step ready to send, joined with its parent sequence.
type DueStep struct {
	Step     sequence.Step
	Sequence sequence.Sequence
}

// DueSteps returns Scheduled steps of active sequences whose send time
// has passed, oldest first, capped at limit.
func (r *Repository) DueSteps(ctx context.Context, now time.Time, limit int) ([]DueStep, error) {
	query := `
		SELECT
			st.id, st.sequence_id, st.step_number, st.delay_days, st.delay_hours,
			st.subject, st.body, st.rendered_subject, st.rendered_body, st.status,
			st.scheduled_at, st.sent_at, st.opened_at, st.clicked_at, st.created_at, st.updated_at,
			sq.id, sq.lead_id, sq.template_id, sq.status, sq.current_step, sq.total_steps,
			sq.emails_sent, sq.last_email_sent_at, sq.lead_context,
			sq.started_at, sq.paused_at, sq.completed_at, sq.created_at, sq.updated_at
		FROM sequence_steps st
		JOIN sequences sq ON sq.id = st.sequence_id
		WHERE st.status = 'scheduled'
		  AND st.scheduled_at <= $1
		  AND sq.status = 'active'
		ORDER BY st.scheduled_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due steps: %w", err)
	}
	defer rows.Close()

	var out []DueStep
	for rows.Next() {
		var d DueStep
		var contextJSON []byte
		err := rows.Scan(
			&d.Step.ID, &d.Step.SequenceID, &d.Step.StepNumber, &d.Step.DelayDays, &d.Step.DelayHours,
			&d.Step.Subject, &d.Step.Body, &d.Step.RenderedSubject, &d.Step.RenderedBody, &d.Step.Status,
			&d.Step.ScheduledAt, &d.Step.SentAt, &d.Step.OpenedAt, &d.Step.ClickedAt, &d.Step.CreatedAt, &d.Step.UpdatedAt,
			&d.Sequence.ID, &d.Sequence.LeadID, &d.Sequence.TemplateID, &d.Sequence.Status,
			&d.Sequence.CurrentStep, &d.Sequence.TotalSteps,
			&d.Sequence.EmailsSent, &d.Sequence.LastEmailSentAt, &contextJSON,
			&d.Sequence.StartedAt, &d.Sequence.PausedAt, &d.Sequence.CompletedAt,
			&d.Sequence.CreatedAt, &d.Sequence.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan due step: %w", err)
		}
		if len(contextJSON) > 0 {
			if err := json.Unmarshal(contextJSON, &d.Sequence.LeadContext); err != nil {
				return nil, fmt.Errorf("failed to decode lead context: %w", err)
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CompleteStepParams carries the outcome of a successful send.
type CompleteStepParams struct {
	SequenceID      uuid.UUID
	StepID          uuid.UUID
	SentAt          time.Time
	RenderedSubject string
	RenderedBody    string

	// NextStepID is the pending step to promote, or nil when this was
	// the last step and the sequence completes.
	NextStepID      *uuid.UUID
	NextScheduledAt time.Time
}

// CompleteStepAndAdvance records a sent step and moves the cursor in a
// single transaction: the step becomes Sent, the sequence's counters
// advance, and either the next pending step is promoted to Scheduled or
// the sequence completes. Returns ErrStaleState when the step was no
// longer Scheduled or the sequence no longer active, so a concurrent
// pause or cancel between querying due steps and committing loses the
// step cleanly.
func (r *Repository) CompleteStepAndAdvance(ctx context.Context, p CompleteStepParams) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stepQuery := `
		UPDATE sequence_steps
		SET status = 'sent', sent_at = $2, rendered_subject = $3, rendered_body = $4, updated_at = $2
		WHERE id = $1 AND status = 'scheduled'`

	tag, err := tx.Exec(ctx, stepQuery, p.StepID, p.SentAt, p.RenderedSubject, p.RenderedBody)
	if err != nil {
		return fmt.Errorf("failed to mark step sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleState
	}

	if p.NextStepID != nil {
		promoteQuery := `
			UPDATE sequence_steps
			SET status = 'scheduled', scheduled_at = $2, updated_at = $3
			WHERE id = $1 AND status = 'pending'`

		tag, err = tx.Exec(ctx, promoteQuery, *p.NextStepID, p.NextScheduledAt, p.SentAt)
		if err != nil {
			return fmt.Errorf("failed to promote next step: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrStaleState
		}

		seqQuery := `
			UPDATE sequences
			SET current_step = current_step + 1,
			    emails_sent = emails_sent + 1,
			    last_email_sent_at = $2,
			    updated_at = $2
			WHERE id = $1 AND status = 'active'`

		tag, err = tx.Exec(ctx, seqQuery, p.SequenceID, p.SentAt)
		if err != nil {
			return fmt.Errorf("failed to advance sequence: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrStaleState
		}
	} else {
		seqQuery := `
			UPDATE sequences
			SET status = 'completed',
			    emails_sent = emails_sent + 1,
			    last_email_sent_at = $2,
			    completed_at = $2,
			    updated_at = $2
			WHERE id = $1 AND status = 'active'`

		tag, err = tx.Exec(ctx, seqQuery, p.SequenceID, p.SentAt)
		if err != nil {
			return fmt.Errorf("failed to complete sequence: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrStaleState
		}
	}

	return tx.Commit(ctx)
}

// RecordOpen marks a sent step as opened. Only the first open is kept.
func (r *Repository) RecordOpen(ctx context.Context, stepID uuid.UUID, at time.Time) error {
	query := `
		UPDATE sequence_steps
		SET status = 'opened', opened_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'sent'`
	if _, err := r.pool.Exec(ctx, query, stepID, at); err != nil {
		return fmt.Errorf("failed to record open: %w", err)
	}
	return nil
}

// RecordClick marks a step as clicked. A click implies an open, so both
// sent and opened steps qualify.
func (r *Repository) RecordClick(ctx context.Context, stepID uuid.UUID, at time.Time) error {
	query := `
		UPDATE sequence_steps
		SET status = 'clicked', clicked_at = $2,
		    opened_at = COALESCE(opened_at, $2), updated_at = $2
		WHERE id = $1 AND status IN ('sent', 'opened')`
	if _, err := r.pool.Exec(ctx, query, stepID, at); err != nil {
		return fmt.Errorf("failed to record click: %w", err)
	}
	return nil
}

// MarkStepReplied flags the lead's reply on the step it answered.
func (r *Repository) MarkStepReplied(ctx context.Context, stepID uuid.UUID, at time.Time) error {
	query := `
		UPDATE sequence_steps
		SET status = 'replied', updated_at = $2
		WHERE id = $1 AND status IN ('sent', 'opened', 'clicked')`
	if _, err := r.pool.Exec(ctx, query, stepID, at); err != nil {
		return fmt.Errorf("failed to mark step replied: %w", err)
	}
	return nil
}

// Stats aggregates sequence outcomes for reporting.
type Stats struct {
	Active     int
	Paused     int
	Completed  int
	Replied    int
	Cancelled  int
	EmailsSent int
}

// GetStats counts sequences per status plus total emails sent.
func (r *Repository) GetStats(ctx context.Context) (Stats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'paused'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'replied'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COALESCE(SUM(emails_sent), 0)
		FROM sequences`

	var s Stats
	err := r.pool.QueryRow(ctx, query).Scan(
		&s.Active, &s.Paused, &s.Completed, &s.Replied, &s.Cancelled, &s.EmailsSent,
	)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query sequence stats: %w", err)
	}
	return s, nil
}
