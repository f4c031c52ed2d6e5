package domain

import "testing"

func TestCanTransitionForward(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{StatusNew, StatusContacted, true},
		{StatusContacted, StatusQualified, true},
		{StatusQualified, StatusProposal, true},
		{StatusContacted, StatusNew, false},
		{StatusProposal, StatusContacted, false},
		{StatusNew, StatusNew, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCanTransitionTerminal(t *testing.T) {
	if !CanTransition(StatusQualified, StatusWon) {
		t.Errorf("expected transition into Won to be allowed")
	}
	if !CanTransition(StatusNew, StatusLost) {
		t.Errorf("expected transition into Lost to be allowed")
	}
	if CanTransition(StatusWon, StatusContacted) {
		t.Errorf("expected transitions out of Won to be rejected")
	}
	if CanTransition(StatusLost, StatusQualified) {
		t.Errorf("expected transitions out of Lost to require explicit reopen")
	}
}

func TestRepliedShortCircuit(t *testing.T) {
	if !CanTransition(StatusContacted, StatusReplied) {
		t.Errorf("expected Replied short-circuit from any active status")
	}
	if !CanTransition(StatusReplied, StatusProposal) {
		t.Errorf("expected engaged lead to re-enter the pipeline")
	}
}

func TestTierForScore(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{100, TierHot},
		{75, TierHot},
		{74, TierWarm},
		{45, TierWarm},
		{44, TierCold},
		{0, TierCold},
	}

	for _, tc := range cases {
		if got := TierForScore(tc.score); got != tc.want {
			t.Errorf("TierForScore(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}
