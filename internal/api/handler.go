// Package api exposes the HTTP surface: ingest webhooks for leads and
// engagement signals, and the operator endpoints for sequences, tasks
// and stats.
package api

import (
	"context"

	"github.com/google/uuid"

	"outreach_backend/internal/leads/repository"
	"outreach_backend/internal/orchestrator"
	"outreach_backend/internal/sequence"
	seqrepo "outreach_backend/internal/sequence/repository"
	"outreach_backend/internal/sequence/scheduler"
	"outreach_backend/internal/tasks"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid id"
)

// Dispatcher feeds events into the orchestration pipelines.
type Dispatcher interface {
	HandleEvent(ctx context.Context, evt orchestrator.Event) orchestrator.Result
}

// LeadStore is the slice of the leads repository the API reads and writes.
type LeadStore interface {
	Create(ctx context.Context, p repository.CreateLeadParams) (repository.Lead, error)
	GetByID(ctx context.Context, id uuid.UUID) (repository.Lead, error)
	List(ctx context.Context, limit, offset int) ([]repository.Lead, error)
}

// SequenceService is the scheduler surface the API exposes.
type SequenceService interface {
	Start(ctx context.Context, p scheduler.StartParams) (sequence.Sequence, error)
	Get(ctx context.Context, id uuid.UUID) (sequence.Sequence, error)
	ListForLead(ctx context.Context, leadID uuid.UUID) ([]sequence.Sequence, error)
	ListSteps(ctx context.Context, sequenceID uuid.UUID) ([]sequence.Step, error)
	Pause(ctx context.Context, id uuid.UUID) error
	Resume(ctx context.Context, id uuid.UUID) error
	Cancel(ctx context.Context, id uuid.UUID, reason string) error
	Stats(ctx context.Context) (seqrepo.Stats, error)
}

// TaskService is the ledger surface the API exposes.
type TaskService interface {
	CreateTask(ctx context.Context, subjectID uuid.UUID, kind tasks.Kind, triggeredBy string) (uuid.UUID, bool, error)
	Get(ctx context.Context, id uuid.UUID) (tasks.Task, error)
	ListForSubject(ctx context.Context, subjectID uuid.UUID) ([]tasks.Task, error)
	Stats(ctx context.Context) (map[tasks.Status]int, error)
}

// Handler handles HTTP requests for the outreach API.
type Handler struct {
	leads      LeadStore
	dispatcher Dispatcher
	sequences  SequenceService
	tasks      TaskService
	val        *validator.Validator
	log        *logger.Logger
	senderName string
}

func New(leads LeadStore, dispatcher Dispatcher, sequences SequenceService, taskSvc TaskService, val *validator.Validator, log *logger.Logger, senderName string) *Handler {
	return &Handler{
		leads:      leads,
		dispatcher: dispatcher,
		sequences:  sequences,
		tasks:      taskSvc,
		val:        val,
		log:        log,
		senderName: senderName,
	}
}
