package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"outreach_backend/internal/events"
	"outreach_backend/platform/logger"
)

// handlerFunc is one event pipeline. It appends the actions it took to
// the result for observability.
type handlerFunc func(ctx context.Context, evt Event, res *Result) error

// Orchestrator owns the dispatch table from event type to pipeline.
// Collaborators are injected once at construction; optional ones may be
// nil, which skips their pipeline steps without aborting.
type Orchestrator struct {
	leads     LeadStore
	scorer    Scorer
	research  Researcher
	embedder  Embedder
	notifier  Notifier
	sequences SequenceControl
	replies   ReplyAgent
	proposals ProposalGenerator
	tasker    TaskCreator
	bus       events.Bus
	log       *logger.Logger

	handlers map[EventType]handlerFunc

	// Events for the same lead are processed one at a time so every
	// mutation is persisted before the next event reads the lead.
	leadMu map[uuid.UUID]*sync.Mutex
	mu     sync.Mutex
}

// Deps bundles the orchestrator's collaborators. Leads, Scorer,
// Sequences, Tasker, Bus and Log are required; the rest are optional.
type Deps struct {
	Leads     LeadStore
	Scorer    Scorer
	Research  Researcher
	Embedder  Embedder
	Notifier  Notifier
	Sequences SequenceControl
	Replies   ReplyAgent
	Proposals ProposalGenerator
	Tasker    TaskCreator
	Bus       events.Bus
	Log       *logger.Logger
}

func New(d Deps) *Orchestrator {
	o := &Orchestrator{
		leads:     d.Leads,
		scorer:    d.Scorer,
		research:  d.Research,
		embedder:  d.Embedder,
		notifier:  d.Notifier,
		sequences: d.Sequences,
		replies:   d.Replies,
		proposals: d.Proposals,
		tasker:    d.Tasker,
		bus:       d.Bus,
		log:       d.Log,
		leadMu:    make(map[uuid.UUID]*sync.Mutex),
	}
	o.handlers = map[EventType]handlerFunc{
		LeadCreated:       o.handleLeadCreated,
		MessageReceived:   o.handleMessageReceived,
		CallScheduled:     o.handleCallScheduled,
		CallCompleted:     o.handleCallCompleted,
		DFIOpportunity:    o.handleDFIOpportunity,
		Escalation:        o.handleEscalation,
		ResearchRequested: o.handleResearchRequested,
		NoResponse:        o.handleNoResponse,
		ProposalRequested: o.handleProposalRequested,
		EmailOpened:       o.handleEmailEngagement,
		EmailClicked:      o.handleEmailEngagement,
	}
	return o
}

// HandleEvent dispatches one event to its pipeline and returns a
// summary of the actions taken. Unregistered event types return a
// NoHandler result without error. Handler panics and errors are caught
// at this boundary; failures of critical event types are additionally
// escalated through the notification side channel.
func (o *Orchestrator) HandleEvent(ctx context.Context, evt Event) Result {
	res := Result{EventID: evt.ID, Type: evt.Type}

	handler, ok := o.handlers[evt.Type]
	if !ok {
		res.NoHandler = true
		o.log.Warn("orchestrator: no handler for event type", "type", evt.Type, "event_id", evt.ID)
		return res
	}

	unlock := o.lockLead(evt.SubjectID)
	defer unlock()

	func() {
		defer func() {
			if r := recover(); r != nil {
				res.Err = fmt.Errorf("handler panic: %v", r)
			}
		}()
		res.Err = handler(ctx, evt, &res)
	}()

	if res.Err != nil {
		o.log.Error("orchestrator: handler failed",
			"type", evt.Type, "event_id", evt.ID, "lead_id", evt.SubjectID, "error", res.Err)
		if criticalEvents[evt.Type] {
			o.escalate(ctx, evt, res.Err)
		}
		return res
	}

	o.log.Info("orchestrator: event handled",
		"type", evt.Type, "event_id", evt.ID, "lead_id", evt.SubjectID, "actions", res.Actions)
	return res
}

func (o *Orchestrator) lockLead(leadID uuid.UUID) func() {
	o.mu.Lock()
	mu, ok := o.leadMu[leadID]
	if !ok {
		mu = &sync.Mutex{}
		o.leadMu[leadID] = mu
	}
	o.mu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// escalate flags the lead and alerts the owner about a failed critical
// pipeline. The lead mutex is already held by the caller.
func (o *Orchestrator) escalate(ctx context.Context, evt Event, cause error) {
	if err := o.leads.SetEscalated(ctx, evt.SubjectID, true); err != nil {
		o.log.Error("orchestrator: failed to flag escalated lead", "lead_id", evt.SubjectID, "error", err)
	}
	if o.notifier != nil {
		o.notifier.Notify(ctx, "escalation",
			fmt.Sprintf("Pipeline failure on %s", evt.Type),
			fmt.Sprintf("Handling %s for lead %s failed: %v", evt.Type, evt.SubjectID, cause))
	}
	o.bus.Publish(ctx, events.LeadEscalated{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    evt.SubjectID,
		EventType: string(evt.Type),
		Reason:    cause.Error(),
	})
}
