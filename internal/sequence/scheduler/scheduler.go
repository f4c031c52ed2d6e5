// Package scheduler drives outreach sequences: it starts them from
// templates, pauses and resumes them, and sends due steps on a tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"outreach_backend/internal/events"
	"outreach_backend/internal/sequence"
	"outreach_backend/internal/sequence/repository"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"
)

// dueStepBatchSize caps how many steps a single tick processes.
const dueStepBatchSize = 100

// Store is the persistence surface the scheduler needs.
type Store interface {
	CreateSequence(ctx context.Context, seq sequence.Sequence, steps []sequence.Step) error
	GetSequence(ctx context.Context, id uuid.UUID) (sequence.Sequence, error)
	ActiveSequenceForLead(ctx context.Context, leadID uuid.UUID) (sequence.Sequence, error)
	ListForLead(ctx context.Context, leadID uuid.UUID) ([]sequence.Sequence, error)
	ListSteps(ctx context.Context, sequenceID uuid.UUID) ([]sequence.Step, error)
	MarkPaused(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkResumed(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkCancelled(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkReplied(ctx context.Context, id uuid.UUID, at time.Time) error
	CursorStep(ctx context.Context, sequenceID uuid.UUID) (sequence.Step, error)
	NextPendingStep(ctx context.Context, sequenceID uuid.UUID) (sequence.Step, error)
	StepByNumber(ctx context.Context, sequenceID uuid.UUID, number int) (sequence.Step, error)
	RescheduleStep(ctx context.Context, stepID uuid.UUID, scheduledAt time.Time) error
	PromoteStep(ctx context.Context, stepID uuid.UUID, scheduledAt time.Time) error
	DueSteps(ctx context.Context, now time.Time, limit int) ([]repository.DueStep, error)
	CompleteStepAndAdvance(ctx context.Context, p repository.CompleteStepParams) error
	RecordOpen(ctx context.Context, stepID uuid.UUID, at time.Time) error
	RecordClick(ctx context.Context, stepID uuid.UUID, at time.Time) error
	MarkStepReplied(ctx context.Context, stepID uuid.UUID, at time.Time) error
	GetStats(ctx context.Context) (repository.Stats, error)
}

// Recipient identifies where a step email goes.
type Recipient struct {
	Name  string
	Email string
}

// LeadDirectory resolves a lead ID to a deliverable address.
type LeadDirectory interface {
	Recipient(ctx context.Context, leadID uuid.UUID) (Recipient, error)
}

// Message is one rendered outbound email.
type Message struct {
	To      Recipient
	Subject string
	Body    string
}

// Sender delivers a rendered step email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Personalizer rewrites a step's template for a specific lead. An
// implementation backed by an AI collaborator may fail or time out; the
// scheduler then falls back to plain variable substitution.
type Personalizer interface {
	Personalize(ctx context.Context, subject, body string, leadContext map[string]string) (string, string, error)
}

// Service implements the sequence lifecycle and the send tick.
type Service struct {
	store        Store
	catalog      *sequence.Catalog
	leads        LeadDirectory
	sender       Sender
	personalizer Personalizer
	bus          events.Bus
	log          *logger.Logger

	grace         time.Duration
	collabTimeout time.Duration

	// tickRunning makes Tick single-flight: an overlapping tick returns
	// immediately instead of racing the running one.
	tickRunning atomic.Bool

	now func() time.Time
}

// NewService wires a scheduler. personalizer may be nil, in which case
// every step uses plain variable substitution.
func NewService(
	store Store,
	catalog *sequence.Catalog,
	leads LeadDirectory,
	sender Sender,
	personalizer Personalizer,
	bus events.Bus,
	log *logger.Logger,
	cfg config.SequenceConfig,
) *Service {
	return &Service{
		store:         store,
		catalog:       catalog,
		leads:         leads,
		sender:        sender,
		personalizer:  personalizer,
		bus:           bus,
		log:           log,
		grace:         cfg.GetResumeGracePeriod(),
		collabTimeout: cfg.GetCollaboratorTimeout(),
		now:           time.Now,
	}
}

// StartParams describes a sequence to start.
type StartParams struct {
	LeadID      uuid.UUID
	TemplateID  string
	LeadContext map[string]string
}

// Start creates a sequence from a template. The first step is scheduled
// at start time plus its own delay (zero for an immediate first touch).
// A lead can have only one active sequence; a second start returns a
// conflict.
func (s *Service) Start(ctx context.Context, p StartParams) (sequence.Sequence, error) {
	const op = "scheduler.Start"

	tmpl, ok := s.catalog.Get(p.TemplateID)
	if !ok {
		return sequence.Sequence{}, apperr.NotFound(fmt.Sprintf("template %q not found", p.TemplateID)).WithOp(op)
	}

	now := s.now()
	seq := sequence.Sequence{
		ID:          uuid.New(),
		LeadID:      p.LeadID,
		TemplateID:  tmpl.ID,
		Status:      sequence.StatusActive,
		CurrentStep: 1,
		TotalSteps:  len(tmpl.Steps),
		LeadContext: p.LeadContext,
		StartedAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	steps := make([]sequence.Step, 0, len(tmpl.Steps))
	for i, ts := range tmpl.Steps {
		step := sequence.Step{
			ID:         uuid.New(),
			SequenceID: seq.ID,
			StepNumber: i + 1,
			DelayDays:  ts.DelayDays,
			DelayHours: ts.DelayHours,
			Subject:    ts.Subject,
			Body:       ts.Body,
			Status:     sequence.StepPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if i == 0 {
			firstSend := now.Add(step.Delay())
			step.Status = sequence.StepScheduled
			step.ScheduledAt = &firstSend
		}
		steps = append(steps, step)
	}

	if err := s.store.CreateSequence(ctx, seq, steps); err != nil {
		if errors.Is(err, repository.ErrActiveSequenceExists) {
			return sequence.Sequence{}, apperr.Conflict("lead already has an active sequence").WithOp(op)
		}
		return sequence.Sequence{}, apperr.Wrap(apperr.KindInternal, "failed to create sequence", err).WithOp(op)
	}

	s.bus.Publish(ctx, events.SequenceStarted{
		BaseEvent:   events.NewBaseEvent(),
		SequenceID:  seq.ID,
		LeadID:      seq.LeadID,
		TemplateID:  seq.TemplateID,
		TotalSteps:  seq.TotalSteps,
		FirstSendAt: steps[0].ScheduledAt.Format(time.RFC3339),
	})

	s.log.Info("sequence started",
		"sequence_id", seq.ID,
		"lead_id", seq.LeadID,
		"template_id", seq.TemplateID,
		"total_steps", seq.TotalSteps,
	)
	return seq, nil
}

// Get returns a sequence by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (sequence.Sequence, error) {
	const op = "scheduler.Get"
	seq, err := s.store.GetSequence(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return sequence.Sequence{}, apperr.NotFound("sequence not found").WithOp(op)
		}
		return sequence.Sequence{}, apperr.Wrap(apperr.KindInternal, "failed to load sequence", err).WithOp(op)
	}
	return seq, nil
}

// ListForLead returns a lead's sequence history.
func (s *Service) ListForLead(ctx context.Context, leadID uuid.UUID) ([]sequence.Sequence, error) {
	const op = "scheduler.ListForLead"
	seqs, err := s.store.ListForLead(ctx, leadID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list sequences", err).WithOp(op)
	}
	return seqs, nil
}

// ListSteps returns a sequence's steps in order.
func (s *Service) ListSteps(ctx context.Context, sequenceID uuid.UUID) ([]sequence.Step, error) {
	const op = "scheduler.ListSteps"
	if _, err := s.Get(ctx, sequenceID); err != nil {
		return nil, err
	}
	steps, err := s.store.ListSteps(ctx, sequenceID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list steps", err).WithOp(op)
	}
	return steps, nil
}

// Pause freezes an active sequence. The cursor step keeps its schedule
// but the tick skips paused sequences, so nothing sends until resume.
func (s *Service) Pause(ctx context.Context, id uuid.UUID) error {
	const op = "scheduler.Pause"

	if err := s.store.MarkPaused(ctx, id, s.now()); err != nil {
		switch {
		case errors.Is(err, repository.ErrStaleState):
			return apperr.Conflict("sequence is not active").WithOp(op)
		case errors.Is(err, repository.ErrNotFound):
			return apperr.NotFound("sequence not found").WithOp(op)
		default:
			return apperr.Wrap(apperr.KindInternal, "failed to pause sequence", err).WithOp(op)
		}
	}
	s.log.Info("sequence paused", "sequence_id", id)
	return nil
}

// Resume reactivates a paused sequence. The cursor step is rescheduled
// to now plus a grace period rather than firing immediately, so a
// sequence paused past its send time does not surprise the lead the
// moment someone clicks resume. If the pause happened mid-advance and
// left no cursor, the next pending step is promoted instead.
func (s *Service) Resume(ctx context.Context, id uuid.UUID) error {
	const op = "scheduler.Resume"

	now := s.now()
	if err := s.store.MarkResumed(ctx, id, now); err != nil {
		switch {
		case errors.Is(err, repository.ErrStaleState):
			return apperr.Conflict("sequence is not paused").WithOp(op)
		case errors.Is(err, repository.ErrNotFound):
			return apperr.NotFound("sequence not found").WithOp(op)
		default:
			return apperr.Wrap(apperr.KindInternal, "failed to resume sequence", err).WithOp(op)
		}
	}

	sendAt := now.Add(s.grace)
	cursor, err := s.store.CursorStep(ctx, id)
	switch {
	case err == nil:
		if err := s.store.RescheduleStep(ctx, cursor.ID, sendAt); err != nil {
			return apperr.Wrap(apperr.KindInternal, "failed to reschedule cursor step", err).WithOp(op)
		}
	case errors.Is(err, repository.ErrNotFound):
		next, err := s.store.NextPendingStep(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			// Nothing left to send.
			return nil
		}
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "failed to find next step", err).WithOp(op)
		}
		if err := s.store.PromoteStep(ctx, next.ID, sendAt); err != nil {
			return apperr.Wrap(apperr.KindInternal, "failed to promote next step", err).WithOp(op)
		}
	default:
		return apperr.Wrap(apperr.KindInternal, "failed to load cursor step", err).WithOp(op)
	}

	s.log.Info("sequence resumed", "sequence_id", id, "next_send_at", sendAt)
	return nil
}

// Cancel terminates a sequence. Cancelling an already finished sequence
// is a no-op so retried requests stay safe.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) error {
	const op = "scheduler.Cancel"

	seq, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if seq.Status.IsTerminal() {
		return nil
	}

	if err := s.store.MarkCancelled(ctx, id, s.now()); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to cancel sequence", err).WithOp(op)
	}

	s.bus.Publish(ctx, events.SequenceCancelled{
		BaseEvent:  events.NewBaseEvent(),
		SequenceID: id,
		LeadID:     seq.LeadID,
		Reason:     reason,
	})
	s.log.Info("sequence cancelled", "sequence_id", id, "reason", reason)
	return nil
}

// HandleReply stops the lead's in-flight sequence because the lead
// answered. The step the lead replied to (the last sent one) is flagged
// too. Returns nil when the lead has no sequence in flight.
func (s *Service) HandleReply(ctx context.Context, leadID uuid.UUID) error {
	const op = "scheduler.HandleReply"

	seq, err := s.store.ActiveSequenceForLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return apperr.Wrap(apperr.KindInternal, "failed to load active sequence", err).WithOp(op)
	}

	now := s.now()
	if err := s.store.MarkReplied(ctx, seq.ID, now); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to mark sequence replied", err).WithOp(op)
	}

	if seq.EmailsSent > 0 {
		if last, err := s.store.StepByNumber(ctx, seq.ID, seq.EmailsSent); err == nil {
			if err := s.store.MarkStepReplied(ctx, last.ID, now); err != nil {
				s.log.Warn("failed to flag replied step", "sequence_id", seq.ID, "error", err)
			}
		}
	}

	s.bus.Publish(ctx, events.SequenceReplied{
		BaseEvent:  events.NewBaseEvent(),
		SequenceID: seq.ID,
		LeadID:     leadID,
	})
	s.log.Info("sequence stopped by reply", "sequence_id", seq.ID, "lead_id", leadID)
	return nil
}

// EngagementKind distinguishes open and click tracking events.
type EngagementKind string

const (
	EngagementOpen  EngagementKind = "open"
	EngagementClick EngagementKind = "click"
)

// RecordEngagement stores an open or click on a sent step.
func (s *Service) RecordEngagement(ctx context.Context, stepID uuid.UUID, kind EngagementKind) error {
	const op = "scheduler.RecordEngagement"

	var err error
	switch kind {
	case EngagementOpen:
		err = s.store.RecordOpen(ctx, stepID, s.now())
	case EngagementClick:
		err = s.store.RecordClick(ctx, stepID, s.now())
	default:
		return apperr.BadRequest(fmt.Sprintf("unknown engagement kind %q", kind)).WithOp(op)
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to record engagement", err).WithOp(op)
	}
	return nil
}

// RecordLeadEngagement attributes an open or click to the last sent
// step of the lead's sequence in flight. No-op when the lead has no
// sequence or nothing was sent yet.
func (s *Service) RecordLeadEngagement(ctx context.Context, leadID uuid.UUID, kind EngagementKind) error {
	seq, err := s.store.ActiveSequenceForLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return apperr.Wrap(apperr.KindInternal, "failed to load active sequence", err).WithOp("scheduler.RecordLeadEngagement")
	}
	if seq.EmailsSent == 0 {
		return nil
	}
	step, err := s.store.StepByNumber(ctx, seq.ID, seq.EmailsSent)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to load last sent step", err).WithOp("scheduler.RecordLeadEngagement")
	}
	return s.RecordEngagement(ctx, step.ID, kind)
}

// Stats returns aggregate sequence counts.
func (s *Service) Stats(ctx context.Context) (repository.Stats, error) {
	const op = "scheduler.Stats"
	stats, err := s.store.GetStats(ctx)
	if err != nil {
		return repository.Stats{}, apperr.Wrap(apperr.KindInternal, "failed to load stats", err).WithOp(op)
	}
	return stats, nil
}

// Tick sends all due steps. It is single-flight: if a previous tick is
// still running the call returns immediately. One failing step never
// blocks the rest of the batch, and each step commits on its own, so a
// crash mid-batch loses at most the step in flight.
func (s *Service) Tick(ctx context.Context) error {
	if !s.tickRunning.CompareAndSwap(false, true) {
		s.log.Debug("tick already running, skipping")
		return nil
	}
	defer s.tickRunning.Store(false)

	due, err := s.store.DueSteps(ctx, s.now(), dueStepBatchSize)
	if err != nil {
		return fmt.Errorf("failed to query due steps: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	s.log.Info("processing due steps", "count", len(due))
	for _, d := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.sendStep(ctx, d); err != nil {
			s.log.Error("failed to send step",
				"sequence_id", d.Sequence.ID,
				"step_number", d.Step.StepNumber,
				"error", err,
			)
		}
	}
	return nil
}

// sendStep renders, delivers and records one due step. The next step's
// send time is anchored to the actual send time, not the planned one,
// so delivery delays never compound across a sequence.
func (s *Service) sendStep(ctx context.Context, d repository.DueStep) error {
	recipient, err := s.leads.Recipient(ctx, d.Sequence.LeadID)
	if err != nil {
		return fmt.Errorf("failed to resolve recipient: %w", err)
	}

	subject, body := s.render(ctx, d.Step, d.Sequence.LeadContext)

	if err := s.sender.Send(ctx, Message{To: recipient, Subject: subject, Body: body}); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	sentAt := s.now()
	params := repository.CompleteStepParams{
		SequenceID:      d.Sequence.ID,
		StepID:          d.Step.ID,
		SentAt:          sentAt,
		RenderedSubject: subject,
		RenderedBody:    body,
	}

	isLast := d.Step.StepNumber >= d.Sequence.TotalSteps
	if !isLast {
		next, err := s.store.StepByNumber(ctx, d.Sequence.ID, d.Step.StepNumber+1)
		if err != nil {
			return fmt.Errorf("failed to load next step: %w", err)
		}
		params.NextStepID = &next.ID
		params.NextScheduledAt = sentAt.Add(next.Delay())
	}

	if err := s.store.CompleteStepAndAdvance(ctx, params); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			// Sequence was paused or cancelled under us; the send
			// happened but the state machine wins.
			s.log.Warn("step outcome discarded, sequence state changed",
				"sequence_id", d.Sequence.ID, "step_number", d.Step.StepNumber)
			return nil
		}
		return fmt.Errorf("failed to record sent step: %w", err)
	}

	s.bus.Publish(ctx, events.SequenceStepSent{
		BaseEvent:  events.NewBaseEvent(),
		SequenceID: d.Sequence.ID,
		LeadID:     d.Sequence.LeadID,
		StepNumber: d.Step.StepNumber,
		Subject:    subject,
	})
	if isLast {
		s.bus.Publish(ctx, events.SequenceCompleted{
			BaseEvent:  events.NewBaseEvent(),
			SequenceID: d.Sequence.ID,
			LeadID:     d.Sequence.LeadID,
			TemplateID: d.Sequence.TemplateID,
		})
		s.log.Info("sequence completed", "sequence_id", d.Sequence.ID)
	}
	return nil
}

// render produces the final subject and body for a step. The AI
// personalizer gets a bounded window; on error or timeout the plain
// template substitution is used so sends never depend on a
// collaborator being up.
func (s *Service) render(ctx context.Context, step sequence.Step, leadContext map[string]string) (string, string) {
	if s.personalizer != nil {
		pctx, cancel := context.WithTimeout(ctx, s.collabTimeout)
		subject, body, err := s.personalizer.Personalize(pctx, step.Subject, step.Body, leadContext)
		cancel()
		if err == nil {
			return subject, body
		}
		s.log.CollaboratorError("personalizer", "personalize", err)
	}
	return RenderTemplate(step.Subject, leadContext), RenderTemplate(step.Body, leadContext)
}
