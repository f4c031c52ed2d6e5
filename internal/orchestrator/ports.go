package orchestrator

import (
	"context"

	"github.com/google/uuid"

	"outreach_backend/internal/leads/repository"
	"outreach_backend/internal/tasks"
)

// ResearchMode selects how much effort a research call spends.
type ResearchMode string

const (
	ResearchLight ResearchMode = "light"
	ResearchDeep  ResearchMode = "deep"
)

// Researcher enriches a lead with external data. Optional: a nil
// Researcher skips the research step of every pipeline.
type Researcher interface {
	Research(ctx context.Context, lead repository.Lead, mode ResearchMode) (map[string]any, error)
}

// Scorer computes a lead's score and tier. Deterministic given the
// lead's current state.
type Scorer interface {
	Score(lead repository.Lead) (int, string)
}

// Embedder stores a lead's profile vector and returns its ID.
// Best-effort: failures are logged, never fatal to the pipeline.
type Embedder interface {
	Embed(ctx context.Context, lead repository.Lead) (string, error)
}

// Notifier is the fire-and-forget side channel for owner alerts and
// escalations.
type Notifier interface {
	Notify(ctx context.Context, channel, subject, body string)
}

// SequenceControl is the slice of the sequence scheduler the
// orchestrator drives: initial outreach on lead creation and stopping
// on reply.
type SequenceControl interface {
	StartForLead(ctx context.Context, leadID uuid.UUID, leadContext map[string]string) error
	StopOnReply(ctx context.Context, leadID uuid.UUID) error
	RecordStepEngagement(ctx context.Context, leadID uuid.UUID, kind string) error
}

// ReplyAgent classifies an inbound message and drafts a response.
// Optional; absence skips intent branching and drafting.
type ReplyAgent interface {
	ClassifyAndDraft(ctx context.Context, lead repository.Lead, message string) (intent string, draft string, err error)
}

// ProposalGenerator renders a proposal document for a lead and returns
// a link to it. Optional.
type ProposalGenerator interface {
	Generate(ctx context.Context, lead repository.Lead) (string, error)
}

// TaskCreator is the anti-waste ledger surface pipelines enqueue
// background work through.
type TaskCreator interface {
	CreateTask(ctx context.Context, subjectID uuid.UUID, kind tasks.Kind, triggeredBy string) (uuid.UUID, bool, error)
}

// LeadStore is the slice of the leads repository pipelines mutate.
type LeadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (repository.Lead, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (repository.Lead, error)
	UpdateScore(ctx context.Context, id uuid.UUID, score int, tier string) (repository.Lead, error)
	SetEnrichment(ctx context.Context, id uuid.UUID, enrichment map[string]any) error
	SetVectorID(ctx context.Context, id uuid.UUID, vectorID string) error
	SetCallScheduled(ctx context.Context, id uuid.UUID, scheduled bool) error
	SetEscalated(ctx context.Context, id uuid.UUID, escalated bool) error
	RecordEngagement(ctx context.Context, id uuid.UUID, opened, clicked int) (repository.Lead, error)
}
