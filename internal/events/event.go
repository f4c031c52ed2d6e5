// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"outreach_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Sequence Domain Events
// =============================================================================

// SequenceStarted is published when an outreach sequence is created for a lead.
type SequenceStarted struct {
	BaseEvent
	SequenceID  uuid.UUID `json:"sequenceId"`
	LeadID      uuid.UUID `json:"leadId"`
	TemplateID  string    `json:"templateId"`
	TotalSteps  int       `json:"totalSteps"`
	FirstSendAt string    `json:"firstSendAt"`
}

func (e SequenceStarted) EventName() string { return "sequences.sequence.started" }

// SequenceStepSent is published after a sequence step email is delivered.
type SequenceStepSent struct {
	BaseEvent
	SequenceID uuid.UUID `json:"sequenceId"`
	LeadID     uuid.UUID `json:"leadId"`
	StepNumber int       `json:"stepNumber"`
	Subject    string    `json:"subject"`
}

func (e SequenceStepSent) EventName() string { return "sequences.step.sent" }

// SequenceCompleted is published when the final step of a sequence has been sent.
type SequenceCompleted struct {
	BaseEvent
	SequenceID uuid.UUID `json:"sequenceId"`
	LeadID     uuid.UUID `json:"leadId"`
	TemplateID string    `json:"templateId"`
}

func (e SequenceCompleted) EventName() string { return "sequences.sequence.completed" }

// SequenceReplied is published when a lead reply interrupts a sequence.
// Kept distinct from cancellation so analytics can separate "lead went
// cold" from "lead engaged".
type SequenceReplied struct {
	BaseEvent
	SequenceID uuid.UUID `json:"sequenceId"`
	LeadID     uuid.UUID `json:"leadId"`
}

func (e SequenceReplied) EventName() string { return "sequences.sequence.replied" }

// SequenceCancelled is published when a sequence is cancelled by an operator.
type SequenceCancelled struct {
	BaseEvent
	SequenceID uuid.UUID `json:"sequenceId"`
	LeadID     uuid.UUID `json:"leadId"`
	Reason     string    `json:"reason,omitempty"`
}

func (e SequenceCancelled) EventName() string { return "sequences.sequence.cancelled" }

// =============================================================================
// Lead Domain Events
// =============================================================================

// LeadScored is published after the scoring service recomputes a lead's score.
type LeadScored struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
	Score  int       `json:"score"`
	Tier   string    `json:"tier"`
}

func (e LeadScored) EventName() string { return "leads.lead.scored" }

// HotLeadDetected is published when a lead's score crosses the hot threshold.
// The notification module alerts the owner.
type HotLeadDetected struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
	Score  int       `json:"score"`
	Tier   string    `json:"tier"`
	Name   string    `json:"name"`
	Email  string    `json:"email"`
}

func (e HotLeadDetected) EventName() string { return "leads.lead.hot_detected" }

// LeadEscalated is published when a critical event handler fails or an
// ESCALATION event is processed. Downstream handlers alert the owner.
type LeadEscalated struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	EventType string    `json:"eventType"`
	Reason    string    `json:"reason"`
}

func (e LeadEscalated) EventName() string { return "leads.lead.escalated" }

// InboundMessageReceived is published by inbound channels (mailbox poller,
// webhooks) when a lead message arrives. The orchestrator wiring converts
// it into a MESSAGE_RECEIVED core event.
type InboundMessageReceived struct {
	BaseEvent
	LeadID  uuid.UUID `json:"leadId"`
	Channel string    `json:"channel"`
	Subject string    `json:"subject,omitempty"`
	Body    string    `json:"body"`
}

func (e InboundMessageReceived) EventName() string { return "leads.message.received" }

// =============================================================================
// Task Domain Events
// =============================================================================

// TaskCompleted is published when an enhancement task finishes successfully.
type TaskCompleted struct {
	BaseEvent
	TaskID    uuid.UUID `json:"taskId"`
	SubjectID uuid.UUID `json:"subjectId"`
	Kind      string    `json:"kind"`
}

func (e TaskCompleted) EventName() string { return "tasks.task.completed" }

// TaskFailed is published when an enhancement task fails terminally.
type TaskFailed struct {
	BaseEvent
	TaskID    uuid.UUID `json:"taskId"`
	SubjectID uuid.UUID `json:"subjectId"`
	Kind      string    `json:"kind"`
	Error     string    `json:"error"`
}

func (e TaskFailed) EventName() string { return "tasks.task.failed" }
