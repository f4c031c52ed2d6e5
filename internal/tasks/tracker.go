package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"outreach_backend/internal/events"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"
)

// ErrInvalidTransition is returned when an UpdateStatus call skips a
// lifecycle state or moves out of a terminal one.
var ErrInvalidTransition = errors.New("invalid task status transition")

// Store is the ledger persistence surface the tracker needs.
type Store interface {
	CreateIfAbsent(ctx context.Context, subjectID uuid.UUID, kind Kind, triggeredBy string, window time.Duration) (uuid.UUID, bool, error)
	Get(ctx context.Context, id uuid.UUID) (Task, error)
	GetPending(ctx context.Context, limit int) ([]Task, error)
	ListForSubject(ctx context.Context, subjectID uuid.UUID) ([]Task, error)
	UpdateStatus(ctx context.Context, p UpdateStatusParams) (bool, error)
	SetVerification(ctx context.Context, id uuid.UUID, v Verification) error
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// Tracker is the anti-waste ledger service. It deduplicates task
// creation per (subject, kind) within a cool-down window and enforces
// the monotone task lifecycle.
type Tracker struct {
	store  Store
	bus    events.Bus
	log    *logger.Logger
	window time.Duration
}

func NewTracker(store Store, bus events.Bus, log *logger.Logger, cfg config.TasksConfig) *Tracker {
	return &Tracker{
		store:  store,
		bus:    bus,
		log:    log,
		window: cfg.GetAntiWasteWindow(),
	}
}

// CreateTask records a new pending task unless one of the same
// (subject, kind) was created or finished within the cool-down window.
// The second return is false when the task was suppressed; suppression
// is not an error.
func (t *Tracker) CreateTask(ctx context.Context, subjectID uuid.UUID, kind Kind, triggeredBy string) (uuid.UUID, bool, error) {
	const op = "tasks.CreateTask"

	if !kind.Valid() {
		return uuid.Nil, false, apperr.BadRequest(fmt.Sprintf("unknown task kind %q", kind)).WithOp(op)
	}

	id, created, err := t.store.CreateIfAbsent(ctx, subjectID, kind, triggeredBy, t.window)
	if err != nil {
		return uuid.Nil, false, apperr.Wrap(apperr.KindInternal, "failed to create task", err).WithOp(op)
	}
	if !created {
		t.log.Debug("task suppressed by anti-waste window",
			"subject_id", subjectID, "kind", kind)
		return uuid.Nil, false, nil
	}

	t.log.Info("task created", "task_id", id, "subject_id", subjectID, "kind", kind, "triggered_by", triggeredBy)
	return id, true, nil
}

// Get returns a task by ID.
func (t *Tracker) Get(ctx context.Context, id uuid.UUID) (Task, error) {
	const op = "tasks.Get"
	task, err := t.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return Task{}, apperr.NotFound("task not found").WithOp(op)
		}
		return Task{}, apperr.Wrap(apperr.KindInternal, "failed to load task", err).WithOp(op)
	}
	return task, nil
}

// GetPendingTasks returns up to limit pending tasks, oldest first.
func (t *Tracker) GetPendingTasks(ctx context.Context, limit int) ([]Task, error) {
	const op = "tasks.GetPendingTasks"
	tasks, err := t.store.GetPending(ctx, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load pending tasks", err).WithOp(op)
	}
	return tasks, nil
}

// ListForSubject returns a subject's task history.
func (t *Tracker) ListForSubject(ctx context.Context, subjectID uuid.UUID) ([]Task, error) {
	const op = "tasks.ListForSubject"
	tasks, err := t.store.ListForSubject(ctx, subjectID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list tasks", err).WithOp(op)
	}
	return tasks, nil
}

// UpdateStatus moves a task along its lifecycle. Transitions are
// validated against the current state and applied with a guard, so a
// concurrent transition makes the slower caller fail with
// ErrInvalidTransition instead of overwriting.
func (t *Tracker) UpdateStatus(ctx context.Context, id uuid.UUID, to Status, result map[string]any, taskErr *string) error {
	const op = "tasks.UpdateStatus"

	task, err := t.Get(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransition(task.Status, to) {
		return apperr.Wrap(apperr.KindConflict,
			fmt.Sprintf("cannot transition task from %s to %s", task.Status, to),
			ErrInvalidTransition).WithOp(op)
	}

	applied, err := t.store.UpdateStatus(ctx, UpdateStatusParams{
		ID: id, From: task.Status, To: to, Result: result, Error: taskErr,
	})
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to update task status", err).WithOp(op)
	}
	if !applied {
		return apperr.Wrap(apperr.KindConflict,
			"task status changed concurrently", ErrInvalidTransition).WithOp(op)
	}

	if to.IsTerminal() {
		t.publishTerminal(ctx, task, to, taskErr)
	}
	return nil
}

// SetVerification attaches a self-verify record to a task before its
// terminal transition.
func (t *Tracker) SetVerification(ctx context.Context, id uuid.UUID, v Verification) error {
	const op = "tasks.SetVerification"
	if err := t.store.SetVerification(ctx, id, v); err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return apperr.NotFound("task not found").WithOp(op)
		}
		return apperr.Wrap(apperr.KindInternal, "failed to set verification", err).WithOp(op)
	}
	return nil
}

// Stats returns ledger totals per status.
func (t *Tracker) Stats(ctx context.Context) (map[Status]int, error) {
	const op = "tasks.Stats"
	counts, err := t.store.CountByStatus(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to count tasks", err).WithOp(op)
	}
	return counts, nil
}

func (t *Tracker) publishTerminal(ctx context.Context, task Task, to Status, taskErr *string) {
	switch to {
	case StatusCompleted:
		t.bus.Publish(ctx, events.TaskCompleted{
			BaseEvent: events.NewBaseEvent(),
			TaskID:    task.ID,
			SubjectID: task.SubjectID,
			Kind:      string(task.Kind),
		})
	case StatusFailed:
		msg := ""
		if taskErr != nil {
			msg = *taskErr
		}
		t.bus.Publish(ctx, events.TaskFailed{
			BaseEvent: events.NewBaseEvent(),
			TaskID:    task.ID,
			SubjectID: task.SubjectID,
			Kind:      string(task.Kind),
			Error:     msg,
		})
	}
}
