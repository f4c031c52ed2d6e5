package scoring

import (
	"testing"
	"time"

	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/leads/repository"
)

func freshLead() repository.Lead {
	return repository.Lead{
		FirstName: "Ada",
		LastName:  "Nolan",
		Email:     "ada@example.com",
		Status:    domain.StatusNew,
		CreatedAt: time.Now(),
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	svc := New(nil)
	lead := freshLead()
	lead.Title = "VP of Engineering"
	lead.Company = "Acme"
	lead.Enrichment = map[string]any{"employee_count": float64(50), "budget_signal": true}

	first, firstTier := svc.Score(lead)
	second, secondTier := svc.Score(lead)

	if first != second || firstTier != secondTier {
		t.Fatalf("expected deterministic score, got %d/%s then %d/%s", first, firstTier, second, secondTier)
	}
}

func TestScoreBounds(t *testing.T) {
	svc := New(nil)

	bare := freshLead()
	bare.CreatedAt = time.Now().Add(-90 * 24 * time.Hour)
	low, _ := svc.Score(bare)
	if low < 0 || low > 100 {
		t.Fatalf("score out of bounds: %d", low)
	}

	loaded := freshLead()
	loaded.Title = "Founder and CEO"
	loaded.Company = "Acme"
	loaded.Phone = "+15551234567"
	loaded.EmailsOpened = 5
	loaded.EmailsClicked = 3
	loaded.HasCallScheduled = true
	loaded.Enrichment = map[string]any{
		"employee_count": float64(500),
		"industry_fit":   float64(1),
		"budget_signal":  true,
	}
	high, tier := svc.Score(loaded)
	if high < 0 || high > 100 {
		t.Fatalf("score out of bounds: %d", high)
	}
	if high <= low {
		t.Fatalf("expected loaded lead (%d) to outscore bare lead (%d)", high, low)
	}
	if tier != domain.TierHot {
		t.Fatalf("expected hot tier for fully engaged lead, got %s (score %d)", tier, high)
	}
}

func TestEngagementRaisesScore(t *testing.T) {
	svc := New(nil)
	lead := freshLead()

	before, _ := svc.Score(lead)
	lead.EmailsOpened = 2
	lead.EmailsClicked = 1
	after, _ := svc.Score(lead)

	if after <= before {
		t.Fatalf("expected engagement to raise score: before=%d after=%d", before, after)
	}
}
