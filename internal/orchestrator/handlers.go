package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"outreach_backend/internal/events"
	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/leads/repository"
	"outreach_backend/internal/tasks"
)

func (r *Result) act(format string, args ...any) {
	r.Actions = append(r.Actions, fmt.Sprintf(format, args...))
}

// handleLeadCreated runs the intake pipeline: light research, scoring,
// embedding, initial outreach, and an owner alert when the lead lands
// hot. Optional collaborators are skipped, not fatal.
func (o *Orchestrator) handleLeadCreated(ctx context.Context, evt Event, res *Result) error {
	lead, err := o.leads.GetByID(ctx, evt.SubjectID)
	if err != nil {
		return fmt.Errorf("failed to load lead: %w", err)
	}

	if o.research != nil {
		enrichment, err := o.research.Research(ctx, lead, ResearchLight)
		if err != nil {
			// Collaborator failure degrades to an unenriched pipeline.
			o.log.CollaboratorError("researcher", "light research", err)
		} else if len(enrichment) > 0 {
			if err := o.leads.SetEnrichment(ctx, lead.ID, mergeEnrichment(lead.Enrichment, enrichment)); err != nil {
				return fmt.Errorf("failed to save enrichment: %w", err)
			}
			res.act("enriched lead (%d fields)", len(enrichment))
		}
	}

	lead, err = o.rescore(ctx, lead.ID, res)
	if err != nil {
		return err
	}

	if o.embedder != nil {
		if vectorID, err := o.embedder.Embed(ctx, lead); err != nil {
			o.log.CollaboratorError("embedder", "embed profile", err)
		} else if err := o.leads.SetVectorID(ctx, lead.ID, vectorID); err != nil {
			return fmt.Errorf("failed to save vector id: %w", err)
		} else {
			res.act("embedded profile as %s", vectorID)
		}
	}

	if err := o.sequences.StartForLead(ctx, lead.ID, outreachContext(lead)); err != nil {
		return fmt.Errorf("failed to start outreach: %w", err)
	}
	res.act("started outreach sequence")

	if _, err := o.leads.UpdateStatus(ctx, lead.ID, domain.StatusContacted); err != nil {
		return fmt.Errorf("failed to mark lead contacted: %w", err)
	}
	res.act("lead status -> %s", domain.StatusContacted)

	if lead.Tier == domain.TierHot {
		o.notifyOwner(ctx, "hot-lead",
			fmt.Sprintf("Hot lead: %s", lead.FullName()),
			fmt.Sprintf("%s (%s) scored %d on intake.", lead.FullName(), lead.Email, lead.Score))
		res.act("notified owner of hot lead")
	}
	return nil
}

// handleMessageReceived stops the drip, short-circuits the lead to
// Replied, branches on the classified intent and rescores.
func (o *Orchestrator) handleMessageReceived(ctx context.Context, evt Event, res *Result) error {
	lead, err := o.leads.GetByID(ctx, evt.SubjectID)
	if err != nil {
		return fmt.Errorf("failed to load lead: %w", err)
	}

	if err := o.sequences.StopOnReply(ctx, lead.ID); err != nil {
		return fmt.Errorf("failed to stop sequence: %w", err)
	}
	res.act("stopped active sequence")

	if domain.CanTransition(lead.Status, domain.StatusReplied) {
		if _, err := o.leads.UpdateStatus(ctx, lead.ID, domain.StatusReplied); err != nil {
			return fmt.Errorf("failed to mark lead replied: %w", err)
		}
		res.act("lead status -> %s", domain.StatusReplied)
	}

	message := evt.Payload["body"]
	if o.replies != nil && message != "" {
		intent, draft, err := o.replies.ClassifyAndDraft(ctx, lead, message)
		if err != nil {
			o.log.CollaboratorError("reply agent", "classify and draft", err)
		} else {
			res.act("classified intent as %q", intent)
			o.applyIntent(ctx, lead, intent, res)
			if draft != "" {
				o.notifyOwner(ctx, "reply-draft",
					fmt.Sprintf("Reply from %s (%s)", lead.FullName(), intent),
					fmt.Sprintf("Lead wrote:\n%s\n\nSuggested reply:\n%s", message, draft))
				res.act("sent reply draft to owner")
			}
		}
	} else {
		o.notifyOwner(ctx, "reply",
			fmt.Sprintf("Reply from %s", lead.FullName()),
			message)
	}

	if _, err := o.rescore(ctx, lead.ID, res); err != nil {
		return err
	}
	return nil
}

// applyIntent runs the side effects of a classified reply intent. The
// intent set mirrors the reply agent's closed output vocabulary.
func (o *Orchestrator) applyIntent(ctx context.Context, lead repository.Lead, intent string, res *Result) {
	switch intent {
	case "pricing":
		if _, created, err := o.createTask(ctx, lead.ID, tasks.KindRefreshScore, "reply:pricing"); err == nil && created {
			res.act("queued score refresh for pricing interest")
		}
	case "call-request":
		if err := o.leads.SetCallScheduled(ctx, lead.ID, true); err != nil {
			o.log.Error("orchestrator: failed to flag call request", "lead_id", lead.ID, "error", err)
			return
		}
		res.act("flagged call request")
	case "ready-to-buy":
		if domain.CanTransition(lead.Status, domain.StatusQualified) {
			if _, err := o.leads.UpdateStatus(ctx, lead.ID, domain.StatusQualified); err != nil {
				o.log.Error("orchestrator: failed to qualify lead", "lead_id", lead.ID, "error", err)
				return
			}
			res.act("lead status -> %s", domain.StatusQualified)
		}
	}
}

// handleCallScheduled qualifies the lead, runs deep research and
// rescores.
func (o *Orchestrator) handleCallScheduled(ctx context.Context, evt Event, res *Result) error {
	lead, err := o.leads.GetByID(ctx, evt.SubjectID)
	if err != nil {
		return fmt.Errorf("failed to load lead: %w", err)
	}

	if err := o.leads.SetCallScheduled(ctx, lead.ID, true); err != nil {
		return fmt.Errorf("failed to flag scheduled call: %w", err)
	}
	res.act("flagged call scheduled")

	if domain.CanTransition(lead.Status, domain.StatusQualified) {
		if _, err := o.leads.UpdateStatus(ctx, lead.ID, domain.StatusQualified); err != nil {
			return fmt.Errorf("failed to qualify lead: %w", err)
		}
		res.act("lead status -> %s", domain.StatusQualified)
	}

	if o.research != nil {
		enrichment, err := o.research.Research(ctx, lead, ResearchDeep)
		if err != nil {
			o.log.CollaboratorError("researcher", "deep research", err)
		} else if len(enrichment) > 0 {
			if err := o.leads.SetEnrichment(ctx, lead.ID, mergeEnrichment(lead.Enrichment, enrichment)); err != nil {
				return fmt.Errorf("failed to save enrichment: %w", err)
			}
			res.act("deep-enriched lead (%d fields)", len(enrichment))
		}
	}

	if _, err := o.rescore(ctx, lead.ID, res); err != nil {
		return err
	}
	return nil
}

// handleCallCompleted stores the call notes on the lead and rescores.
func (o *Orchestrator) handleCallCompleted(ctx context.Context, evt Event, res *Result) error {
	lead, err := o.leads.GetByID(ctx, evt.SubjectID)
	if err != nil {
		return fmt.Errorf("failed to load lead: %w", err)
	}

	if err := o.leads.SetCallScheduled(ctx, lead.ID, false); err != nil {
		return fmt.Errorf("failed to clear scheduled call: %w", err)
	}
	res.act("cleared call flag")

	if notes := evt.Payload["notes"]; notes != "" {
		enrichment := mergeEnrichment(lead.Enrichment, map[string]any{"last_call_notes": notes})
		if err := o.leads.SetEnrichment(ctx, lead.ID, enrichment); err != nil {
			return fmt.Errorf("failed to save call notes: %w", err)
		}
		res.act("stored call notes")
	}

	if _, err := o.rescore(ctx, lead.ID, res); err != nil {
		return err
	}
	return nil
}

// handleDFIOpportunity treats a detected buying signal as a
// qualification trigger and alerts the owner.
func (o *Orchestrator) handleDFIOpportunity(ctx context.Context, evt Event, res *Result) error {
	lead, err := o.leads.GetByID(ctx, evt.SubjectID)
	if err != nil {
		return fmt.Errorf("failed to load lead: %w", err)
	}

	if domain.CanTransition(lead.Status, domain.StatusQualified) {
		if _, err := o.leads.UpdateStatus(ctx, lead.ID, domain.StatusQualified); err != nil {
			return fmt.Errorf("failed to qualify lead: %w", err)
		}
		res.act("lead status -> %s", domain.StatusQualified)
	}

	o.notifyOwner(ctx, "opportunity",
		fmt.Sprintf("Opportunity signal for %s", lead.FullName()),
		evt.Payload["signal"])
	res.act("notified owner of opportunity")

	if _, err := o.rescore(ctx, lead.ID, res); err != nil {
		return err
	}
	return nil
}

// handleEscalation flags the lead for manual attention.
func (o *Orchestrator) handleEscalation(ctx context.Context, evt Event, res *Result) error {
	if err := o.leads.SetEscalated(ctx, evt.SubjectID, true); err != nil {
		return fmt.Errorf("failed to flag escalated lead: %w", err)
	}
	res.act("flagged lead escalated")

	o.notifyOwner(ctx, "escalation",
		"Lead escalated",
		fmt.Sprintf("Lead %s needs attention: %s", evt.SubjectID, evt.Payload["reason"]))
	res.act("notified owner")

	o.bus.Publish(ctx, events.LeadEscalated{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    evt.SubjectID,
		EventType: string(evt.Type),
		Reason:    evt.Payload["reason"],
	})
	return nil
}

// handleResearchRequested queues an enrichment task. Requesting
// research on a Lost lead reopens it: the request is an explicit
// operator signal that the lead is worth working again.
func (o *Orchestrator) handleResearchRequested(ctx context.Context, evt Event, res *Result) error {
	lead, err := o.leads.GetByID(ctx, evt.SubjectID)
	if err != nil {
		return fmt.Errorf("failed to load lead: %w", err)
	}

	if lead.Status == domain.StatusLost {
		if _, err := o.leads.UpdateStatus(ctx, lead.ID, domain.ReopenStatus); err != nil {
			return fmt.Errorf("failed to reopen lead: %w", err)
		}
		if err := o.leads.SetEscalated(ctx, lead.ID, false); err != nil {
			return fmt.Errorf("failed to clear escalation: %w", err)
		}
		res.act("reopened lost lead as %s", domain.ReopenStatus)
	}

	_, created, err := o.createTask(ctx, lead.ID, tasks.KindEnrichProfile, string(evt.Type))
	if err != nil {
		return fmt.Errorf("failed to queue research task: %w", err)
	}
	if created {
		res.act("queued enrichment task")
	} else {
		res.act("enrichment task suppressed by anti-waste window")
	}
	return nil
}

// handleNoResponse rescores the lead (recency decay) and hands it to
// the owner for a manual touch.
func (o *Orchestrator) handleNoResponse(ctx context.Context, evt Event, res *Result) error {
	lead, err := o.rescore(ctx, evt.SubjectID, res)
	if err != nil {
		return err
	}

	o.notifyOwner(ctx, "follow-up",
		fmt.Sprintf("Sequence exhausted for %s", lead.FullName()),
		fmt.Sprintf("%s finished outreach without replying. Consider a manual follow-up.", lead.FullName()))
	res.act("notified owner for manual follow-up")
	return nil
}

// handleProposalRequested renders a proposal document and advances the
// lead to Proposal.
func (o *Orchestrator) handleProposalRequested(ctx context.Context, evt Event, res *Result) error {
	lead, err := o.leads.GetByID(ctx, evt.SubjectID)
	if err != nil {
		return fmt.Errorf("failed to load lead: %w", err)
	}

	if o.proposals == nil {
		res.act("proposal generator not configured, notified owner")
		o.notifyOwner(ctx, "proposal",
			fmt.Sprintf("Proposal requested by %s", lead.FullName()),
			"No proposal generator is configured; prepare one manually.")
		return nil
	}

	url, err := o.proposals.Generate(ctx, lead)
	if err != nil {
		return fmt.Errorf("failed to generate proposal: %w", err)
	}
	res.act("generated proposal")

	if domain.CanTransition(lead.Status, domain.StatusProposal) {
		if _, err := o.leads.UpdateStatus(ctx, lead.ID, domain.StatusProposal); err != nil {
			return fmt.Errorf("failed to advance lead: %w", err)
		}
		res.act("lead status -> %s", domain.StatusProposal)
	}

	o.notifyOwner(ctx, "proposal",
		fmt.Sprintf("Proposal ready for %s", lead.FullName()),
		url)
	res.act("notified owner with proposal link")
	return nil
}

// handleEmailEngagement counts an open or click, mirrors it on the
// sequence step and rescores.
func (o *Orchestrator) handleEmailEngagement(ctx context.Context, evt Event, res *Result) error {
	opened, clicked := 0, 0
	kind := "open"
	if evt.Type == EmailClicked {
		clicked = 1
		kind = "click"
	} else {
		opened = 1
	}

	if _, err := o.leads.RecordEngagement(ctx, evt.SubjectID, opened, clicked); err != nil {
		return fmt.Errorf("failed to record engagement: %w", err)
	}
	res.act("recorded %s", kind)

	if err := o.sequences.RecordStepEngagement(ctx, evt.SubjectID, kind); err != nil {
		// The engagement may refer to a long-terminal sequence.
		o.log.Warn("orchestrator: failed to mirror engagement on step",
			"lead_id", evt.SubjectID, "kind", kind, "error", err)
	}

	if _, err := o.rescore(ctx, evt.SubjectID, res); err != nil {
		return err
	}
	return nil
}

// rescore recomputes the lead's score from its freshly loaded state and
// persists it. Crossing into the hot tier publishes a HotLeadDetected
// event for the notification fan-out.
func (o *Orchestrator) rescore(ctx context.Context, leadID uuid.UUID, res *Result) (repository.Lead, error) {
	lead, err := o.leads.GetByID(ctx, leadID)
	if err != nil {
		return repository.Lead{}, fmt.Errorf("failed to load lead: %w", err)
	}

	score, tier := o.scorer.Score(lead)
	wasHot := lead.Tier == domain.TierHot

	lead, err = o.leads.UpdateScore(ctx, leadID, score, tier)
	if err != nil {
		return repository.Lead{}, fmt.Errorf("failed to save score: %w", err)
	}
	res.act("rescored to %d (%s)", score, tier)

	o.bus.Publish(ctx, events.LeadScored{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		Score:     score,
		Tier:      tier,
	})

	if tier == domain.TierHot && !wasHot {
		o.bus.Publish(ctx, events.HotLeadDetected{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    leadID,
			Score:     score,
			Tier:      tier,
			Name:      lead.FullName(),
			Email:     lead.Email,
		})
	}
	return lead, nil
}

func (o *Orchestrator) createTask(ctx context.Context, leadID uuid.UUID, kind tasks.Kind, trigger string) (uuid.UUID, bool, error) {
	if o.tasker == nil {
		return uuid.Nil, false, nil
	}
	return o.tasker.CreateTask(ctx, leadID, kind, trigger)
}

func (o *Orchestrator) notifyOwner(ctx context.Context, channel, subject, body string) {
	if o.notifier == nil {
		return
	}
	o.notifier.Notify(ctx, channel, subject, body)
}

// mergeEnrichment overlays new research fields on the existing map
// without mutating either input.
func mergeEnrichment(existing, incoming map[string]any) map[string]any {
	out := make(map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range incoming {
		out[k] = v
	}
	return out
}

// outreachContext snapshots the lead fields templates personalize on.
func outreachContext(lead repository.Lead) map[string]string {
	return map[string]string{
		"first_name": lead.FirstName,
		"last_name":  lead.LastName,
		"company":    lead.Company,
		"title":      lead.Title,
		"email":      lead.Email,
	}
}
