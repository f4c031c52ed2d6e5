// Package proposals renders proposal documents for qualified leads and
// stores them as shareable PDFs.
package proposals

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"time"

	"outreach_backend/internal/leads/repository"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/logger"
)

//go:embed templates/proposal.html
var proposalTemplateHTML string

var proposalTemplate = template.Must(template.New("proposal").Parse(proposalTemplateHTML))

// Renderer converts an HTML document into PDF bytes.
type Renderer interface {
	ConvertHTML(ctx context.Context, indexHTML []byte) ([]byte, error)
}

// ObjectStore persists a PDF and returns a download URL for it.
type ObjectStore interface {
	Store(ctx context.Context, key string, pdf []byte) (string, error)
}

// Service builds a proposal PDF for a lead and returns its download URL.
type Service struct {
	renderer Renderer
	store    ObjectStore
	log      *logger.Logger
	now      func() time.Time
}

func NewService(renderer Renderer, store ObjectStore, log *logger.Logger) *Service {
	return &Service{
		renderer: renderer,
		store:    store,
		log:      log,
		now:      time.Now,
	}
}

type proposalData struct {
	Name        string
	Company     string
	Title       string
	Date        string
	Highlights  []string
	ContactLine string
}

// Generate renders the proposal for the lead, converts it to PDF and
// uploads it. The returned URL is what gets shared with the lead.
func (s *Service) Generate(ctx context.Context, lead repository.Lead) (string, error) {
	const op = "proposals.Generate"

	html, err := s.renderHTML(lead)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "failed to render proposal", err).WithOp(op)
	}

	pdf, err := s.renderer.ConvertHTML(ctx, html)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "failed to convert proposal to PDF", err).WithOp(op)
	}

	key := fmt.Sprintf("%s/proposal_%s.pdf", lead.ID, s.now().UTC().Format("20060102T150405"))
	url, err := s.store.Store(ctx, key, pdf)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "failed to store proposal", err).WithOp(op)
	}

	s.log.Info("proposal generated", "lead_id", lead.ID, "key", key, "size_bytes", len(pdf))
	return url, nil
}

func (s *Service) renderHTML(lead repository.Lead) ([]byte, error) {
	data := proposalData{
		Name:        lead.FullName(),
		Company:     lead.Company,
		Title:       lead.Title,
		Date:        s.now().Format("January 2, 2006"),
		Highlights:  highlightsFor(lead),
		ContactLine: fmt.Sprintf("Prepared for %s", lead.Email),
	}

	var buf bytes.Buffer
	if err := proposalTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// highlightsFor tailors the proposal bullets to what we learned about
// the lead during enrichment.
func highlightsFor(lead repository.Lead) []string {
	highlights := []string{
		"Dedicated onboarding within the first week",
		"Quarterly business reviews with your account team",
	}
	if summary, ok := lead.Enrichment["company_summary"].(string); ok && summary != "" {
		highlights = append([]string{fmt.Sprintf("Tailored rollout plan for %s", lead.Company)}, highlights...)
	}
	if lead.HasCallScheduled {
		highlights = append(highlights, "Pricing walkthrough on your scheduled call")
	}
	return highlights
}
