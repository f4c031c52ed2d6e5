package tasks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Profile is the lead data the enhancement executors operate on.
type Profile struct {
	LeadID     uuid.UUID
	Name       string
	Email      string
	Company    string
	Title      string
	Summary    string
	Enrichment map[string]any
}

// ProfileSource loads and updates lead profiles for executors.
type ProfileSource interface {
	Profile(ctx context.Context, leadID uuid.UUID) (Profile, error)
	SaveEnrichment(ctx context.Context, leadID uuid.UUID, enrichment map[string]any) error
	SaveVectorID(ctx context.Context, leadID uuid.UUID, vectorID string) error
}

// Enricher researches a lead and returns structured findings.
type Enricher interface {
	Enrich(ctx context.Context, profile Profile) (map[string]any, error)
}

// Embedder turns a profile into a vector and stores it, returning the
// vector's ID in the vector store.
type Embedder interface {
	EmbedProfile(ctx context.Context, profile Profile) (string, error)
}

// Rescorer recomputes a lead's score from its current state.
type Rescorer interface {
	Rescore(ctx context.Context, leadID uuid.UUID) (int, error)
}

// ── enrich_profile ────────────────────────────────────────────────────────────

type EnrichProfileExecutor struct {
	profiles ProfileSource
	enricher Enricher
}

func NewEnrichProfileExecutor(profiles ProfileSource, enricher Enricher) *EnrichProfileExecutor {
	return &EnrichProfileExecutor{profiles: profiles, enricher: enricher}
}

func (e *EnrichProfileExecutor) Kind() Kind { return KindEnrichProfile }

func (e *EnrichProfileExecutor) Execute(ctx context.Context, task Task) (map[string]any, error) {
	profile, err := e.profiles.Profile(ctx, task.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	enrichment, err := e.enricher.Enrich(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("enrichment failed: %w", err)
	}

	if err := e.profiles.SaveEnrichment(ctx, task.SubjectID, enrichment); err != nil {
		return nil, fmt.Errorf("failed to save enrichment: %w", err)
	}
	return map[string]any{"fields": len(enrichment)}, nil
}

func (e *EnrichProfileExecutor) Verify(ctx context.Context, task Task, result map[string]any) Verification {
	profile, err := e.profiles.Profile(ctx, task.SubjectID)
	if err != nil {
		return Verification{Checks: []Check{{Name: "profile_loadable", Issue: err.Error()}}}
	}

	check := Check{Name: "enrichment_persisted", Passed: len(profile.Enrichment) > 0}
	if !check.Passed {
		check.Issue = "no enrichment data on profile after save"
	}
	return Verification{Passed: check.Passed, Checks: []Check{check}}
}

// ── embed_profile ─────────────────────────────────────────────────────────────

type EmbedProfileExecutor struct {
	profiles ProfileSource
	embedder Embedder
}

func NewEmbedProfileExecutor(profiles ProfileSource, embedder Embedder) *EmbedProfileExecutor {
	return &EmbedProfileExecutor{profiles: profiles, embedder: embedder}
}

func (e *EmbedProfileExecutor) Kind() Kind { return KindEmbedProfile }

func (e *EmbedProfileExecutor) Execute(ctx context.Context, task Task) (map[string]any, error) {
	profile, err := e.profiles.Profile(ctx, task.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	vectorID, err := e.embedder.EmbedProfile(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}

	if err := e.profiles.SaveVectorID(ctx, task.SubjectID, vectorID); err != nil {
		return nil, fmt.Errorf("failed to save vector id: %w", err)
	}
	return map[string]any{"vector_id": vectorID}, nil
}

func (e *EmbedProfileExecutor) Verify(_ context.Context, _ Task, result map[string]any) Verification {
	vectorID, _ := result["vector_id"].(string)
	check := Check{Name: "vector_id_present", Passed: vectorID != ""}
	if !check.Passed {
		check.Issue = "embedding produced no vector id"
	}
	return Verification{Passed: check.Passed, Checks: []Check{check}}
}

// ── refresh_score ─────────────────────────────────────────────────────────────

type RefreshScoreExecutor struct {
	rescorer Rescorer
}

func NewRefreshScoreExecutor(rescorer Rescorer) *RefreshScoreExecutor {
	return &RefreshScoreExecutor{rescorer: rescorer}
}

func (e *RefreshScoreExecutor) Kind() Kind { return KindRefreshScore }

func (e *RefreshScoreExecutor) Execute(ctx context.Context, task Task) (map[string]any, error) {
	score, err := e.rescorer.Rescore(ctx, task.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("rescore failed: %w", err)
	}
	return map[string]any{"score": score}, nil
}

func (e *RefreshScoreExecutor) Verify(_ context.Context, _ Task, result map[string]any) Verification {
	score, ok := result["score"].(int)
	if !ok {
		// JSON round-trips numbers as float64.
		if f, fok := result["score"].(float64); fok {
			score, ok = int(f), true
		}
	}
	check := Check{Name: "score_in_range", Passed: ok && score >= 0 && score <= 100}
	if !check.Passed {
		check.Issue = fmt.Sprintf("score %v outside 0-100", result["score"])
	}
	return Verification{Passed: check.Passed, Checks: []Check{check}}
}
