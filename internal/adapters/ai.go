package adapters

import (
	"context"
	"fmt"
	"strings"

	"outreach_backend/internal/leads/agent"
	"outreach_backend/internal/leads/repository"
	"outreach_backend/internal/orchestrator"
	"outreach_backend/internal/tasks"
	"outreach_backend/platform/ai/embeddings"
	"outreach_backend/platform/qdrant"
)

// LeadResearcher exposes the research agent to the orchestrator.
type LeadResearcher struct {
	agent *agent.Researcher
}

func NewLeadResearcher(a *agent.Researcher) *LeadResearcher {
	return &LeadResearcher{agent: a}
}

func (r *LeadResearcher) Research(ctx context.Context, lead repository.Lead, mode orchestrator.ResearchMode) (map[string]any, error) {
	return r.agent.Research(ctx, lead, string(mode))
}

// ProfileEnricher runs light research for the enrich_profile executor.
type ProfileEnricher struct {
	repo  *repository.Repository
	agent *agent.Researcher
}

func NewProfileEnricher(repo *repository.Repository, a *agent.Researcher) *ProfileEnricher {
	return &ProfileEnricher{repo: repo, agent: a}
}

func (e *ProfileEnricher) Enrich(ctx context.Context, profile tasks.Profile) (map[string]any, error) {
	lead, err := e.repo.GetByID(ctx, profile.LeadID)
	if err != nil {
		return nil, err
	}
	return e.agent.Research(ctx, lead, string(orchestrator.ResearchLight))
}

// VectorEmbedder embeds lead profiles and stores them in Qdrant. The
// vector ID doubles as the lead ID so re-embedding replaces the point.
type VectorEmbedder struct {
	embedder *embeddings.Client
	vectors  *qdrant.Client
}

func NewVectorEmbedder(embedder *embeddings.Client, vectors *qdrant.Client) *VectorEmbedder {
	return &VectorEmbedder{embedder: embedder, vectors: vectors}
}

func (v *VectorEmbedder) Embed(ctx context.Context, lead repository.Lead) (string, error) {
	return v.store(ctx, lead.ID.String(), leadProfileText(lead), map[string]any{
		"email":   lead.Email,
		"company": lead.Company,
		"tier":    lead.Tier,
	})
}

func (v *VectorEmbedder) EmbedProfile(ctx context.Context, profile tasks.Profile) (string, error) {
	return v.store(ctx, profile.LeadID.String(), profileText(profile), map[string]any{
		"email":   profile.Email,
		"company": profile.Company,
	})
}

func (v *VectorEmbedder) store(ctx context.Context, id, text string, payload map[string]any) (string, error) {
	vector, err := v.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("failed to embed profile: %w", err)
	}
	err = v.vectors.Upsert(ctx, []qdrant.Point{{
		ID:      id,
		Vector:  vector,
		Payload: payload,
	}})
	if err != nil {
		return "", fmt.Errorf("failed to upsert vector: %w", err)
	}
	return id, nil
}

func leadProfileText(lead repository.Lead) string {
	parts := []string{lead.FullName()}
	if lead.Title != "" {
		parts = append(parts, lead.Title)
	}
	if lead.Company != "" {
		parts = append(parts, "at "+lead.Company)
	}
	if summary, ok := lead.Enrichment["company_summary"].(string); ok && summary != "" {
		parts = append(parts, summary)
	}
	return strings.Join(parts, ", ")
}

func profileText(profile tasks.Profile) string {
	parts := []string{profile.Name}
	if profile.Title != "" {
		parts = append(parts, profile.Title)
	}
	if profile.Company != "" {
		parts = append(parts, "at "+profile.Company)
	}
	if profile.Summary != "" {
		parts = append(parts, profile.Summary)
	}
	return strings.Join(parts, ", ")
}
