// Package sequence defines the outreach sequence domain: a multi-step,
// timed email campaign instance applied to a single lead, and the steps
// it is made of.
package sequence

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a sequence. All states except Active
// are terminal, with the exception of Paused which is resumable.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusReplied   Status = "replied"
)

// IsTerminal reports whether no further sends can happen for this status.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusReplied
}

// StepStatus is the lifecycle state of a single step.
// Pending steps have no schedule yet; exactly one step per active
// sequence is Scheduled (the cursor); Sent and later are terminal.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepScheduled StepStatus = "scheduled"
	StepSent      StepStatus = "sent"
	StepOpened    StepStatus = "opened"
	StepClicked   StepStatus = "clicked"
	StepReplied   StepStatus = "replied"
)

// Sequence is one running instance of a template applied to a lead.
// CurrentStep is the 1-based number of the step holding the cursor,
// advancing on each send, not a count of sends (EmailsSent is that).
// Terminal sequences are retained for analytics, never deleted.
type Sequence struct {
	ID              uuid.UUID
	LeadID          uuid.UUID
	TemplateID      string
	Status          Status
	CurrentStep     int
	TotalSteps      int
	EmailsSent      int
	LastEmailSentAt *time.Time
	LeadContext     map[string]string
	StartedAt       time.Time
	PausedAt        *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Step is one scheduled message within a sequence. The delay is relative
// to the actual send time of the previous step (step 1: sequence start).
type Step struct {
	ID              uuid.UUID
	SequenceID      uuid.UUID
	StepNumber      int
	DelayDays       int
	DelayHours      int
	Subject         string
	Body            string
	RenderedSubject *string
	RenderedBody    *string
	Status          StepStatus
	ScheduledAt     *time.Time
	SentAt          *time.Time
	OpenedAt        *time.Time
	ClickedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Delay returns the step's configured delay as a duration.
func (s Step) Delay() time.Duration {
	return time.Duration(s.DelayDays)*24*time.Hour + time.Duration(s.DelayHours)*time.Hour
}
