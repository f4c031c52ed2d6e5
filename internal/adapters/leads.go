package adapters

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"outreach_backend/internal/leads/repository"
	"outreach_backend/internal/leads/scoring"
	"outreach_backend/internal/sequence/scheduler"
	"outreach_backend/internal/tasks"
)

// LeadDirectory resolves recipients for the sequence scheduler.
type LeadDirectory struct {
	repo *repository.Repository
}

func NewLeadDirectory(repo *repository.Repository) *LeadDirectory {
	return &LeadDirectory{repo: repo}
}

func (d *LeadDirectory) Recipient(ctx context.Context, leadID uuid.UUID) (scheduler.Recipient, error) {
	lead, err := d.repo.GetByID(ctx, leadID)
	if err != nil {
		return scheduler.Recipient{}, err
	}
	if lead.Email == "" {
		return scheduler.Recipient{}, fmt.Errorf("lead %s has no email address", leadID)
	}
	return scheduler.Recipient{Name: lead.FullName(), Email: lead.Email}, nil
}

// LeadProfiles exposes leads to the task executors.
type LeadProfiles struct {
	repo *repository.Repository
}

func NewLeadProfiles(repo *repository.Repository) *LeadProfiles {
	return &LeadProfiles{repo: repo}
}

func (p *LeadProfiles) Profile(ctx context.Context, leadID uuid.UUID) (tasks.Profile, error) {
	lead, err := p.repo.GetByID(ctx, leadID)
	if err != nil {
		return tasks.Profile{}, err
	}
	summary := ""
	if s, ok := lead.Enrichment["company_summary"].(string); ok {
		summary = s
	}
	return tasks.Profile{
		LeadID:     lead.ID,
		Name:       lead.FullName(),
		Email:      lead.Email,
		Company:    lead.Company,
		Title:      lead.Title,
		Summary:    summary,
		Enrichment: lead.Enrichment,
	}, nil
}

// SaveEnrichment merges new findings over what is already stored, so a
// re-run never erases earlier research.
func (p *LeadProfiles) SaveEnrichment(ctx context.Context, leadID uuid.UUID, enrichment map[string]any) error {
	lead, err := p.repo.GetByID(ctx, leadID)
	if err != nil {
		return err
	}
	merged := make(map[string]any, len(lead.Enrichment)+len(enrichment))
	for k, v := range lead.Enrichment {
		merged[k] = v
	}
	for k, v := range enrichment {
		merged[k] = v
	}
	return p.repo.SetEnrichment(ctx, leadID, merged)
}

func (p *LeadProfiles) SaveVectorID(ctx context.Context, leadID uuid.UUID, vectorID string) error {
	return p.repo.SetVectorID(ctx, leadID, vectorID)
}

// LeadRescorer recomputes and persists a lead's score for the
// refresh_score executor.
type LeadRescorer struct {
	repo   *repository.Repository
	scorer *scoring.Service
}

func NewLeadRescorer(repo *repository.Repository, scorer *scoring.Service) *LeadRescorer {
	return &LeadRescorer{repo: repo, scorer: scorer}
}

func (r *LeadRescorer) Rescore(ctx context.Context, leadID uuid.UUID) (int, error) {
	lead, err := r.repo.GetByID(ctx, leadID)
	if err != nil {
		return 0, err
	}
	score, tier := r.scorer.Score(lead)
	if _, err := r.repo.UpdateScore(ctx, leadID, score, tier); err != nil {
		return 0, err
	}
	return score, nil
}
