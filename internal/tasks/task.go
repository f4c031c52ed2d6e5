// Package tasks implements the anti-waste task ledger and the runner
// that executes enhancement jobs recorded in it. A task is one unit of
// background work on a subject (a lead), deduplicated per (subject,
// kind) within a cool-down window.
package tasks

import (
	"time"

	"github.com/google/uuid"
)

// Kind is a closed enum of supported job families. Adding a kind means
// registering an executor for it; the runner fails tasks of unknown
// kinds instead of silently skipping them.
type Kind string

const (
	KindEnrichProfile Kind = "enrich_profile"
	KindEmbedProfile  Kind = "embed_profile"
	KindRefreshScore  Kind = "refresh_score"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindEnrichProfile, KindEmbedProfile, KindRefreshScore:
		return true
	}
	return false
}

// Status is the task lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusVerifying Status = "verifying"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// allowedTransitions encodes the monotone lifecycle. Skipping a state
// (pending straight to completed) is rejected, as is any move out of a
// terminal state.
var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusRunning},
	StatusRunning:   {StatusVerifying, StatusFailed},
	StatusVerifying: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether from → to is a legal lifecycle move.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Check is one self-verification assertion over a task's result.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Issue  string `json:"issue,omitempty"`
}

// Verification is the outcome of a task's self-verify phase.
type Verification struct {
	Passed bool    `json:"passed"`
	Checks []Check `json:"checks,omitempty"`
}

// Task is one ledger entry.
type Task struct {
	ID           uuid.UUID
	SubjectID    uuid.UUID
	Kind         Kind
	Status       Status
	TriggeredBy  string
	Result       map[string]any
	Verification *Verification
	Error        *string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	UpdatedAt    time.Time
}
