package notification

import (
	"context"
	"fmt"

	"outreach_backend/internal/events"
)

// RegisterSubscribers wires the bus events that warrant an owner alert.
// These run on the bus's async path; a failed alert only logs.
func RegisterSubscribers(bus events.Bus, svc *Service) {
	bus.Subscribe(events.HotLeadDetected{}.EventName(), events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		evt, ok := e.(events.HotLeadDetected)
		if !ok {
			return nil
		}
		svc.Notify(ctx, "hot-lead",
			fmt.Sprintf("Lead went hot: %s", evt.Name),
			fmt.Sprintf("%s (%s) reached score %d. Strike while the iron is hot.", evt.Name, evt.Email, evt.Score))
		return nil
	}))

	bus.Subscribe(events.SequenceReplied{}.EventName(), events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		evt, ok := e.(events.SequenceReplied)
		if !ok {
			return nil
		}
		svc.Notify(ctx, "reply",
			"Lead replied to outreach",
			fmt.Sprintf("Lead %s answered; their sequence was stopped automatically.", evt.LeadID))
		return nil
	}))

	bus.Subscribe(events.LeadEscalated{}.EventName(), events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		evt, ok := e.(events.LeadEscalated)
		if !ok {
			return nil
		}
		svc.Notify(ctx, "escalation",
			fmt.Sprintf("Lead escalated (%s)", evt.EventType),
			fmt.Sprintf("Lead %s: %s", evt.LeadID, evt.Reason))
		return nil
	}))

	bus.Subscribe(events.TaskFailed{}.EventName(), events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		evt, ok := e.(events.TaskFailed)
		if !ok {
			return nil
		}
		svc.Notify(ctx, "task-failure",
			fmt.Sprintf("Background task failed: %s", evt.Kind),
			fmt.Sprintf("Task %s for lead %s failed: %s", evt.TaskID, evt.SubjectID, evt.Error))
		return nil
	}))
}
