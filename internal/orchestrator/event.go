// Package orchestrator routes lead lifecycle events to fixed handler
// pipelines. Each event type maps to exactly one pipeline; pipelines
// call collaborators (research, scoring, embedding, notification) but
// never each other.
package orchestrator

import (
	"time"

	"github.com/google/uuid"
)

// EventType is the closed set of lifecycle events the orchestrator
// dispatches on. Unknown types resolve to a NoHandler result, never an
// error.
type EventType string

const (
	LeadCreated       EventType = "LEAD_CREATED"
	MessageReceived   EventType = "MESSAGE_RECEIVED"
	CallScheduled     EventType = "CALL_SCHEDULED"
	CallCompleted     EventType = "CALL_COMPLETED"
	DFIOpportunity    EventType = "DFI_OPPORTUNITY"
	Escalation        EventType = "ESCALATION"
	ResearchRequested EventType = "RESEARCH_REQUESTED"
	NoResponse        EventType = "NO_RESPONSE"
	ProposalRequested EventType = "PROPOSAL_REQUESTED"
	EmailOpened       EventType = "EMAIL_OPENED"
	EmailClicked      EventType = "EMAIL_CLICKED"
)

// criticalEvents is the subset whose handler failures are escalated
// through the notification side channel on top of the failed Result.
var criticalEvents = map[EventType]bool{
	LeadCreated:   true,
	CallScheduled: true,
}

// Event is an immutable lifecycle occurrence. Producers (webhooks,
// schedulers, inbound channels) create events; the orchestrator
// consumes each one exactly once.
type Event struct {
	ID            uuid.UUID
	Type          EventType
	SubjectID     uuid.UUID
	Payload       map[string]string
	Timestamp     time.Time
	CorrelationID string
	Source        string
}

// NewEvent builds an event for a lead with a fresh ID and timestamp.
func NewEvent(eventType EventType, subjectID uuid.UUID, source string, payload map[string]string) Event {
	return Event{
		ID:            uuid.New(),
		Type:          eventType,
		SubjectID:     subjectID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: uuid.NewString(),
		Source:        source,
	}
}

// Result summarizes what a handler did with an event.
type Result struct {
	EventID   uuid.UUID
	Type      EventType
	NoHandler bool
	Actions   []string
	Err       error
}

// OK reports whether the event was handled without error.
func (r Result) OK() bool {
	return r.Err == nil && !r.NoHandler
}
