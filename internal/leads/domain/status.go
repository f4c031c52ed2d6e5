// Package domain provides core business rules for the leads bounded context.
package domain

// Lead lifecycle statuses. Transitions are monotonic along the pipeline
// order except for the REPLIED short-circuit and the explicit reopen via
// a research re-trigger.
const (
	StatusNew       = "New"
	StatusContacted = "Contacted"
	StatusQualified = "Qualified"
	StatusProposal  = "Proposal"
	StatusWon       = "Won"
	StatusLost      = "Lost"
	StatusReplied   = "Replied"
)

// statusRank orders the pipeline statuses for monotonicity checks.
// Terminal and short-circuit statuses are not ranked.
var statusRank = map[string]int{
	StatusNew:       0,
	StatusContacted: 1,
	StatusQualified: 2,
	StatusProposal:  3,
}

var terminalStatuses = map[string]bool{
	StatusWon:  true,
	StatusLost: true,
}

var knownStatuses = map[string]bool{
	StatusNew:       true,
	StatusContacted: true,
	StatusQualified: true,
	StatusProposal:  true,
	StatusWon:       true,
	StatusLost:      true,
	StatusReplied:   true,
}

// IsKnownStatus reports whether the status is part of the closed status set.
func IsKnownStatus(status string) bool {
	return knownStatuses[status]
}

// IsTerminalStatus returns true if the status is terminal.
func IsTerminalStatus(status string) bool {
	return terminalStatuses[status]
}

// CanTransition reports whether a status change is permitted.
// Forward moves along the pipeline are allowed, as are moves into Won,
// Lost and the Replied short-circuit. Backward moves are rejected;
// reopening a Lost lead is only possible via ReopenStatus.
func CanTransition(from, to string) bool {
	if !knownStatuses[from] || !knownStatuses[to] || from == to {
		return false
	}
	if terminalStatuses[from] {
		return false
	}
	if to == StatusWon || to == StatusLost || to == StatusReplied {
		return true
	}
	if from == StatusReplied {
		// An engaged lead can re-enter the pipeline at any forward point.
		return true
	}
	fromRank, okFrom := statusRank[from]
	toRank, okTo := statusRank[to]
	return okFrom && okTo && toRank > fromRank
}

// ReopenStatus is the status a Lost lead returns to when research is
// explicitly re-triggered for it.
const ReopenStatus = StatusQualified

// Score tiers.
const (
	TierHot  = "hot"
	TierWarm = "warm"
	TierCold = "cold"
)

const (
	hotThreshold  = 75
	warmThreshold = 45
)

// TierForScore derives the tier from a 0-100 score.
func TierForScore(score int) string {
	switch {
	case score >= hotThreshold:
		return TierHot
	case score >= warmThreshold:
		return TierWarm
	default:
		return TierCold
	}
}
