// Package adapters glues the domain services to the narrow ports the
// orchestrator, scheduler and task executors consume.
package adapters

import (
	"context"

	"github.com/google/uuid"

	"outreach_backend/internal/sequence/scheduler"
	"outreach_backend/platform/apperr"
)

// SequenceRunner drives the sequence scheduler on behalf of the
// orchestrator pipelines.
type SequenceRunner struct {
	scheduler  *scheduler.Service
	templateID string
	senderName string
}

func NewSequenceRunner(svc *scheduler.Service, defaultTemplateID, senderName string) *SequenceRunner {
	return &SequenceRunner{scheduler: svc, templateID: defaultTemplateID, senderName: senderName}
}

// StartForLead starts the default outreach sequence. A lead that
// already has one in flight is left alone, duplicate LEAD_CREATED
// events must not spawn parallel sequences.
func (a *SequenceRunner) StartForLead(ctx context.Context, leadID uuid.UUID, leadContext map[string]string) error {
	withSender := make(map[string]string, len(leadContext)+1)
	for k, v := range leadContext {
		withSender[k] = v
	}
	withSender["sender_name"] = a.senderName

	_, err := a.scheduler.Start(ctx, scheduler.StartParams{
		LeadID:      leadID,
		TemplateID:  a.templateID,
		LeadContext: withSender,
	})
	if apperr.Is(err, apperr.KindConflict) {
		return nil
	}
	return err
}

func (a *SequenceRunner) StopOnReply(ctx context.Context, leadID uuid.UUID) error {
	return a.scheduler.HandleReply(ctx, leadID)
}

func (a *SequenceRunner) RecordStepEngagement(ctx context.Context, leadID uuid.UUID, kind string) error {
	return a.scheduler.RecordLeadEngagement(ctx, leadID, scheduler.EngagementKind(kind))
}
