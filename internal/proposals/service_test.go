package proposals

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"outreach_backend/internal/leads/repository"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/logger"
)

type stubRenderer struct {
	gotHTML []byte
	err     error
}

func (r *stubRenderer) ConvertHTML(_ context.Context, indexHTML []byte) ([]byte, error) {
	r.gotHTML = indexHTML
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-1.7 fake"), nil
}

type stubStore struct {
	gotKey string
	gotPDF []byte
	err    error
}

func (s *stubStore) Store(_ context.Context, key string, pdf []byte) (string, error) {
	s.gotKey = key
	s.gotPDF = pdf
	if s.err != nil {
		return "", s.err
	}
	return "https://files.example.com/" + key, nil
}

func testLead() repository.Lead {
	return repository.Lead{
		ID:        uuid.New(),
		FirstName: "Grace",
		LastName:  "Hopper",
		Email:     "grace@fleetworks.example",
		Company:   "Fleetworks",
		Title:     "VP Engineering",
		Enrichment: map[string]any{
			"company_summary": "Logistics platform, 200 employees",
		},
	}
}

func TestGenerateProducesDownloadURL(t *testing.T) {
	renderer := &stubRenderer{}
	store := &stubStore{}
	svc := NewService(renderer, store, logger.New("development"))
	svc.now = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }

	lead := testLead()
	url, err := svc.Generate(context.Background(), lead)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(url, "https://files.example.com/") {
		t.Errorf("unexpected url %q", url)
	}
	wantKey := lead.ID.String() + "/proposal_20260314T100000.pdf"
	if store.gotKey != wantKey {
		t.Errorf("key = %q, want %q", store.gotKey, wantKey)
	}
	if len(store.gotPDF) == 0 {
		t.Error("no PDF bytes stored")
	}

	html := string(renderer.gotHTML)
	for _, want := range []string{"Grace Hopper", "Fleetworks", "VP Engineering", "Tailored rollout plan for Fleetworks"} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
}

func TestGenerateRendererFailure(t *testing.T) {
	renderer := &stubRenderer{err: errors.New("gotenberg down")}
	svc := NewService(renderer, &stubStore{}, logger.New("development"))

	_, err := svc.Generate(context.Background(), testLead())
	if !apperr.Is(err, apperr.KindInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestGenerateStoreFailure(t *testing.T) {
	store := &stubStore{err: errors.New("bucket missing")}
	svc := NewService(&stubRenderer{}, store, logger.New("development"))

	_, err := svc.Generate(context.Background(), testLead())
	if !apperr.Is(err, apperr.KindInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestHighlightsWithoutEnrichment(t *testing.T) {
	lead := testLead()
	lead.Enrichment = nil
	lead.HasCallScheduled = true

	highlights := highlightsFor(lead)
	for _, h := range highlights {
		if strings.Contains(h, "Tailored rollout") {
			t.Errorf("unexpected tailored highlight without enrichment: %q", h)
		}
	}
	found := false
	for _, h := range highlights {
		if strings.Contains(h, "scheduled call") {
			found = true
		}
	}
	if !found {
		t.Error("expected call walkthrough highlight for leads with a call scheduled")
	}
}
