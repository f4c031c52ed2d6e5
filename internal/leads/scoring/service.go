// Package scoring computes deterministic lead scores from profile,
// enrichment and engagement signals. Given the same lead and enrichment
// the score is always identical; there is no model call involved.
package scoring

import (
	"math"
	"strings"
	"time"

	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/leads/repository"
	"outreach_backend/platform/logger"
)

const (
	// scoreVersion tracks the scoring model for debugging and analysis.
	// Bump this when changing scoring logic significantly.
	scoreVersion = "2026-v1"

	// Leads start at 40 and factors add/subtract from this.
	baseScore = 40.0

	// Maximum contribution from each factor category, keeping the
	// total inside 0-100.
	maxProfileContribution    = 25.0 // Title seniority, company presence
	maxEnrichmentContribution = 20.0 // Company size, industry fit, budget signal
	maxEngagementContribution = 30.0 // Opens, clicks, call scheduled
	maxRecencyContribution    = 15.0 // Lead age decay
)

// seniorityScores weight the lead's title. Decision makers score highest.
var seniorityScores = map[string]float64{
	"owner":     1.0,
	"founder":   1.0,
	"ceo":       1.0,
	"cto":       0.9,
	"cfo":       0.9,
	"coo":       0.9,
	"president": 0.9,
	"vp":        0.8,
	"director":  0.7,
	"head":      0.7,
	"manager":   0.5,
	"lead":      0.4,
}

// Service computes lead scores.
type Service struct {
	log *logger.Logger
}

// New creates a scoring service.
func New(log *logger.Logger) *Service {
	return &Service{log: log}
}

// Score computes the 0-100 score and tier for a lead. Enrichment may be
// nil, in which case only profile and engagement signals contribute.
func (s *Service) Score(lead repository.Lead) (int, string) {
	total := baseScore
	total += profileScore(lead) * maxProfileContribution
	total += enrichmentScore(lead.Enrichment) * maxEnrichmentContribution
	total += engagementScore(lead) * maxEngagementContribution
	total += recencyScore(lead.CreatedAt) * maxRecencyContribution

	score := int(math.Round(math.Max(0, math.Min(100, total))))
	tier := domain.TierForScore(score)

	if s.log != nil {
		s.log.Debug("lead scored",
			"leadId", lead.ID,
			"score", score,
			"tier", tier,
			"version", scoreVersion)
	}

	return score, tier
}

// profileScore returns 0-1 based on title seniority and company presence.
func profileScore(lead repository.Lead) float64 {
	var score float64

	title := strings.ToLower(lead.Title)
	for keyword, weight := range seniorityScores {
		if strings.Contains(title, keyword) {
			if weight > score {
				score = weight
			}
		}
	}

	// A known company is a weak positive signal on its own.
	if lead.Company != "" {
		score = math.Min(1, score+0.2)
	}
	if lead.Phone != "" {
		score = math.Min(1, score+0.1)
	}

	return score
}

// enrichmentScore returns 0-1 from research enrichment data.
func enrichmentScore(enrichment map[string]any) float64 {
	if len(enrichment) == 0 {
		return 0
	}

	var score float64

	if employees, ok := numberField(enrichment, "employee_count"); ok {
		switch {
		case employees >= 200:
			score += 0.4
		case employees >= 20:
			score += 0.3
		case employees >= 5:
			score += 0.2
		}
	}

	if fit, ok := numberField(enrichment, "industry_fit"); ok {
		score += 0.3 * math.Max(0, math.Min(1, fit))
	}

	if budget, ok := enrichment["budget_signal"].(bool); ok && budget {
		score += 0.3
	}

	return math.Min(1, score)
}

// engagementScore returns 0-1 from email engagement and call activity.
// Clicks weigh more than opens; a scheduled call dominates.
func engagementScore(lead repository.Lead) float64 {
	var score float64

	score += math.Min(0.3, float64(lead.EmailsOpened)*0.1)
	score += math.Min(0.4, float64(lead.EmailsClicked)*0.2)

	if lead.HasCallScheduled {
		score += 0.5
	}

	return math.Min(1, score)
}

// recencyScore decays linearly from 1 to 0 over 30 days of lead age.
func recencyScore(createdAt time.Time) float64 {
	ageDays := time.Since(createdAt).Hours() / 24
	if ageDays <= 0 {
		return 1
	}
	if ageDays >= 30 {
		return 0
	}
	return 1 - ageDays/30
}

func numberField(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
