package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"outreach_backend/internal/events"
	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/leads/repository"
	"outreach_backend/internal/tasks"
	"outreach_backend/platform/logger"
)

// ── Fakes ─────────────────────────────────────────────────────────────────────

type fakeLeadStore struct {
	mu    sync.Mutex
	leads map[uuid.UUID]*repository.Lead
}

func newFakeLeadStore(leads ...*repository.Lead) *fakeLeadStore {
	s := &fakeLeadStore{leads: make(map[uuid.UUID]*repository.Lead)}
	for _, l := range leads {
		s.leads[l.ID] = l
	}
	return s
}

func (s *fakeLeadStore) get(id uuid.UUID) (*repository.Lead, error) {
	l, ok := s.leads[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return l, nil
}

func (s *fakeLeadStore) GetByID(_ context.Context, id uuid.UUID) (repository.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.get(id)
	if err != nil {
		return repository.Lead{}, err
	}
	return *l, nil
}

func (s *fakeLeadStore) UpdateStatus(_ context.Context, id uuid.UUID, status string) (repository.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.get(id)
	if err != nil {
		return repository.Lead{}, err
	}
	l.Status = status
	return *l, nil
}

func (s *fakeLeadStore) UpdateScore(_ context.Context, id uuid.UUID, score int, tier string) (repository.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.get(id)
	if err != nil {
		return repository.Lead{}, err
	}
	l.Score, l.Tier = score, tier
	return *l, nil
}

func (s *fakeLeadStore) SetEnrichment(_ context.Context, id uuid.UUID, enrichment map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.get(id)
	if err != nil {
		return err
	}
	l.Enrichment = enrichment
	return nil
}

func (s *fakeLeadStore) SetVectorID(_ context.Context, id uuid.UUID, vectorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.get(id)
	if err != nil {
		return err
	}
	l.VectorID = &vectorID
	return nil
}

func (s *fakeLeadStore) SetCallScheduled(_ context.Context, id uuid.UUID, scheduled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.get(id)
	if err != nil {
		return err
	}
	l.HasCallScheduled = scheduled
	return nil
}

func (s *fakeLeadStore) SetEscalated(_ context.Context, id uuid.UUID, escalated bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.get(id)
	if err != nil {
		return err
	}
	l.Escalated = escalated
	return nil
}

func (s *fakeLeadStore) RecordEngagement(_ context.Context, id uuid.UUID, opened, clicked int) (repository.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.get(id)
	if err != nil {
		return repository.Lead{}, err
	}
	l.EmailsOpened += opened
	l.EmailsClicked += clicked
	return *l, nil
}

type fixedScorer struct {
	score int
}

func (f fixedScorer) Score(repository.Lead) (int, string) {
	return f.score, domain.TierForScore(f.score)
}

type fakeSequences struct {
	started  []uuid.UUID
	stopped  []uuid.UUID
	startErr error
}

func (f *fakeSequences) StartForLead(_ context.Context, leadID uuid.UUID, _ map[string]string) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, leadID)
	return nil
}

func (f *fakeSequences) StopOnReply(_ context.Context, leadID uuid.UUID) error {
	f.stopped = append(f.stopped, leadID)
	return nil
}

func (f *fakeSequences) RecordStepEngagement(context.Context, uuid.UUID, string) error {
	return nil
}

type fakeNotifier struct {
	mu            sync.Mutex
	notifications []string
}

func (f *fakeNotifier) Notify(_ context.Context, channel, subject, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, channel+": "+subject)
}

type fakeResearcher struct {
	modes []ResearchMode
	err   error
}

func (f *fakeResearcher) Research(_ context.Context, _ repository.Lead, mode ResearchMode) (map[string]any, error) {
	f.modes = append(f.modes, mode)
	if f.err != nil {
		return nil, f.err
	}
	return map[string]any{"industry": "robotics"}, nil
}

type fakeTasker struct {
	created  []tasks.Kind
	suppress bool
}

func (f *fakeTasker) CreateTask(_ context.Context, _ uuid.UUID, kind tasks.Kind, _ string) (uuid.UUID, bool, error) {
	if f.suppress {
		return uuid.Nil, false, nil
	}
	f.created = append(f.created, kind)
	return uuid.New(), true, nil
}

type captureBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *captureBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *captureBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *captureBus) Subscribe(string, events.Handler) {}

func (b *captureBus) has(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.events {
		if e.EventName() == name {
			return true
		}
	}
	return false
}

// ── Harness ───────────────────────────────────────────────────────────────────

type world struct {
	orch      *Orchestrator
	store     *fakeLeadStore
	sequences *fakeSequences
	notifier  *fakeNotifier
	bus       *captureBus
	lead      *repository.Lead
}

func newWorld(t *testing.T, opts func(*Deps)) *world {
	t.Helper()
	lead := &repository.Lead{
		ID:        uuid.New(),
		FirstName: "Grace",
		LastName:  "Hopper",
		Email:     "grace@example.com",
		Company:   "Navy",
		Status:    domain.StatusNew,
		Score:     40,
		Tier:      domain.TierCold,
	}
	w := &world{
		store:     newFakeLeadStore(lead),
		sequences: &fakeSequences{},
		notifier:  &fakeNotifier{},
		bus:       &captureBus{},
		lead:      lead,
	}
	deps := Deps{
		Leads:     w.store,
		Scorer:    fixedScorer{score: 50},
		Notifier:  w.notifier,
		Sequences: w.sequences,
		Bus:       w.bus,
		Log:       logger.New("development"),
	}
	if opts != nil {
		opts(&deps)
	}
	w.orch = New(deps)
	return w
}

func hasAction(res Result, fragment string) bool {
	for _, a := range res.Actions {
		if strings.Contains(a, fragment) {
			return true
		}
	}
	return false
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestHandleEventNoHandler(t *testing.T) {
	w := newWorld(t, nil)
	res := w.orch.HandleEvent(context.Background(), NewEvent("SOLAR_FLARE", w.lead.ID, "test", nil))
	if !res.NoHandler {
		t.Fatal("expected NoHandler result")
	}
	if res.Err != nil {
		t.Fatalf("NoHandler must not error: %v", res.Err)
	}
}

func TestLeadCreatedPipeline(t *testing.T) {
	researcher := &fakeResearcher{}
	w := newWorld(t, func(d *Deps) {
		d.Research = researcher
		d.Scorer = fixedScorer{score: 80}
	})

	res := w.orch.HandleEvent(context.Background(), NewEvent(LeadCreated, w.lead.ID, "test", nil))
	if res.Err != nil {
		t.Fatalf("HandleEvent: %v", res.Err)
	}

	if len(researcher.modes) != 1 || researcher.modes[0] != ResearchLight {
		t.Fatalf("expected one light research call, got %v", researcher.modes)
	}
	if w.lead.Enrichment["industry"] != "robotics" {
		t.Fatal("enrichment not persisted")
	}
	if w.lead.Score != 80 || w.lead.Tier != domain.TierHot {
		t.Fatalf("lead not rescored: score=%d tier=%s", w.lead.Score, w.lead.Tier)
	}
	if len(w.sequences.started) != 1 {
		t.Fatalf("outreach not started: %v", w.sequences.started)
	}
	if w.lead.Status != domain.StatusContacted {
		t.Fatalf("status %q, want Contacted", w.lead.Status)
	}
	if len(w.notifier.notifications) == 0 {
		t.Fatal("hot lead must notify owner")
	}
	if !w.bus.has("leads.lead.hot_detected") {
		t.Fatal("expected hot lead event on bus")
	}
}

func TestLeadCreatedSkipsAbsentCollaborators(t *testing.T) {
	// No researcher, no embedder, cold score: the pipeline still runs.
	w := newWorld(t, nil)

	res := w.orch.HandleEvent(context.Background(), NewEvent(LeadCreated, w.lead.ID, "test", nil))
	if res.Err != nil {
		t.Fatalf("HandleEvent: %v", res.Err)
	}
	if len(w.sequences.started) != 1 {
		t.Fatal("outreach not started")
	}
	if hasAction(res, "enriched") {
		t.Fatal("research action reported without a researcher")
	}
}

func TestResearchFailureDoesNotAbortPipeline(t *testing.T) {
	w := newWorld(t, func(d *Deps) {
		d.Research = &fakeResearcher{err: errors.New("api down")}
	})

	res := w.orch.HandleEvent(context.Background(), NewEvent(LeadCreated, w.lead.ID, "test", nil))
	if res.Err != nil {
		t.Fatalf("collaborator failure must not fail the pipeline: %v", res.Err)
	}
	if len(w.sequences.started) != 1 {
		t.Fatal("outreach not started after research failure")
	}
}

func TestCriticalFailureEscalates(t *testing.T) {
	w := newWorld(t, nil)
	w.sequences.startErr = errors.New("store down")

	res := w.orch.HandleEvent(context.Background(), NewEvent(LeadCreated, w.lead.ID, "test", nil))
	if res.Err == nil {
		t.Fatal("expected failed result")
	}
	if !w.lead.Escalated {
		t.Fatal("critical failure must flag the lead escalated")
	}
	found := false
	for _, n := range w.notifier.notifications {
		if strings.HasPrefix(n, "escalation:") {
			found = true
		}
	}
	if !found {
		t.Fatalf("escalation notification missing: %v", w.notifier.notifications)
	}
	if !w.bus.has("leads.lead.escalated") {
		t.Fatal("expected escalation event on bus")
	}
}

func TestNonCriticalFailureDoesNotEscalate(t *testing.T) {
	w := newWorld(t, nil)
	// NO_RESPONSE on a missing lead fails its handler.
	res := w.orch.HandleEvent(context.Background(), NewEvent(NoResponse, uuid.New(), "test", nil))
	if res.Err == nil {
		t.Fatal("expected failed result")
	}
	if len(w.notifier.notifications) != 0 {
		t.Fatalf("non-critical failure must not notify: %v", w.notifier.notifications)
	}
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	w := newWorld(t, nil)
	w.orch.handlers[NoResponse] = func(context.Context, Event, *Result) error {
		panic("boom")
	}

	res := w.orch.HandleEvent(context.Background(), NewEvent(NoResponse, w.lead.ID, "test", nil))
	if res.Err == nil || !strings.Contains(res.Err.Error(), "handler panic") {
		t.Fatalf("panic not converted to error: %v", res.Err)
	}
}

func TestMessageReceivedStopsSequenceAndShortCircuits(t *testing.T) {
	w := newWorld(t, nil)
	w.lead.Status = domain.StatusContacted

	res := w.orch.HandleEvent(context.Background(),
		NewEvent(MessageReceived, w.lead.ID, "mailbox", map[string]string{"body": "sounds interesting"}))
	if res.Err != nil {
		t.Fatalf("HandleEvent: %v", res.Err)
	}

	if len(w.sequences.stopped) != 1 {
		t.Fatal("sequence not stopped on reply")
	}
	if w.lead.Status != domain.StatusReplied {
		t.Fatalf("status %q, want Replied", w.lead.Status)
	}
	// Without a reply agent the raw message goes to the owner.
	if len(w.notifier.notifications) == 0 {
		t.Fatal("owner not notified of reply")
	}
}

func TestResearchRequestedReopensLostLead(t *testing.T) {
	tasker := &fakeTasker{}
	w := newWorld(t, func(d *Deps) { d.Tasker = tasker })
	w.lead.Status = domain.StatusLost
	w.lead.Escalated = true

	res := w.orch.HandleEvent(context.Background(), NewEvent(ResearchRequested, w.lead.ID, "test", nil))
	if res.Err != nil {
		t.Fatalf("HandleEvent: %v", res.Err)
	}

	if w.lead.Status != domain.ReopenStatus {
		t.Fatalf("status %q, want %q", w.lead.Status, domain.ReopenStatus)
	}
	if w.lead.Escalated {
		t.Fatal("reopen must clear the escalated flag")
	}
	if len(tasker.created) != 1 || tasker.created[0] != tasks.KindEnrichProfile {
		t.Fatalf("enrichment task not created: %v", tasker.created)
	}
}

func TestResearchRequestedReportsSuppression(t *testing.T) {
	w := newWorld(t, func(d *Deps) { d.Tasker = &fakeTasker{suppress: true} })

	res := w.orch.HandleEvent(context.Background(), NewEvent(ResearchRequested, w.lead.ID, "test", nil))
	if res.Err != nil {
		t.Fatalf("HandleEvent: %v", res.Err)
	}
	if !hasAction(res, "suppressed") {
		t.Fatalf("suppression not reported: %v", res.Actions)
	}
}

func TestEmailEngagementCountsAndRescores(t *testing.T) {
	w := newWorld(t, nil)

	if res := w.orch.HandleEvent(context.Background(), NewEvent(EmailOpened, w.lead.ID, "webhook", nil)); res.Err != nil {
		t.Fatalf("open: %v", res.Err)
	}
	if res := w.orch.HandleEvent(context.Background(), NewEvent(EmailClicked, w.lead.ID, "webhook", nil)); res.Err != nil {
		t.Fatalf("click: %v", res.Err)
	}

	if w.lead.EmailsOpened != 1 || w.lead.EmailsClicked != 1 {
		t.Fatalf("counters opened=%d clicked=%d", w.lead.EmailsOpened, w.lead.EmailsClicked)
	}
	if !w.bus.has("leads.lead.scored") {
		t.Fatal("expected rescore event")
	}
}

func TestCallScheduledQualifiesAndDeepResearches(t *testing.T) {
	researcher := &fakeResearcher{}
	w := newWorld(t, func(d *Deps) { d.Research = researcher })
	w.lead.Status = domain.StatusContacted

	res := w.orch.HandleEvent(context.Background(), NewEvent(CallScheduled, w.lead.ID, "calendar", nil))
	if res.Err != nil {
		t.Fatalf("HandleEvent: %v", res.Err)
	}

	if !w.lead.HasCallScheduled {
		t.Fatal("call flag not set")
	}
	if w.lead.Status != domain.StatusQualified {
		t.Fatalf("status %q, want Qualified", w.lead.Status)
	}
	if len(researcher.modes) != 1 || researcher.modes[0] != ResearchDeep {
		t.Fatalf("expected deep research, got %v", researcher.modes)
	}
}

func TestEventsForSameLeadAreSerialized(t *testing.T) {
	w := newWorld(t, nil)
	w.lead.Status = domain.StatusContacted
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.orch.HandleEvent(ctx, NewEvent(EmailOpened, w.lead.ID, "webhook", nil))
		}()
	}
	wg.Wait()

	if w.lead.EmailsOpened != n {
		t.Fatalf("opened counter %d, want %d", w.lead.EmailsOpened, n)
	}
}

func TestResultSummaryIsObservable(t *testing.T) {
	w := newWorld(t, nil)
	res := w.orch.HandleEvent(context.Background(), NewEvent(LeadCreated, w.lead.ID, "test", nil))
	if res.Err != nil {
		t.Fatalf("HandleEvent: %v", res.Err)
	}
	for _, want := range []string{"rescored", "started outreach", fmt.Sprintf("status -> %s", domain.StatusContacted)} {
		if !hasAction(res, want) {
			t.Fatalf("action %q missing from %v", want, res.Actions)
		}
	}
}
