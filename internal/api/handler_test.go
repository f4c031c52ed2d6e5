package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"outreach_backend/internal/leads/repository"
	"outreach_backend/internal/orchestrator"
	"outreach_backend/internal/sequence"
	seqrepo "outreach_backend/internal/sequence/repository"
	"outreach_backend/internal/sequence/scheduler"
	"outreach_backend/internal/tasks"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/validator"
)

type fakeLeads struct {
	created []repository.CreateLeadParams
	leads   map[uuid.UUID]repository.Lead
}

func (f *fakeLeads) Create(_ context.Context, p repository.CreateLeadParams) (repository.Lead, error) {
	f.created = append(f.created, p)
	lead := repository.Lead{
		ID:        uuid.New(),
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		Phone:     p.Phone,
		Company:   p.Company,
		Status:    "New",
		Tier:      "cold",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.leads[lead.ID] = lead
	return lead, nil
}

func (f *fakeLeads) GetByID(_ context.Context, id uuid.UUID) (repository.Lead, error) {
	lead, ok := f.leads[id]
	if !ok {
		return repository.Lead{}, apperr.NotFound("lead not found")
	}
	return lead, nil
}

func (f *fakeLeads) List(_ context.Context, limit, offset int) ([]repository.Lead, error) {
	out := make([]repository.Lead, 0, len(f.leads))
	for _, lead := range f.leads {
		out = append(out, lead)
	}
	return out, nil
}

type fakeDispatcher struct {
	events []orchestrator.Event
}

func (f *fakeDispatcher) HandleEvent(_ context.Context, evt orchestrator.Event) orchestrator.Result {
	f.events = append(f.events, evt)
	return orchestrator.Result{EventID: evt.ID, Type: evt.Type, Actions: []string{"handled"}}
}

type fakeSequences struct {
	startErr error
	started  []scheduler.StartParams
}

func (f *fakeSequences) Start(_ context.Context, p scheduler.StartParams) (sequence.Sequence, error) {
	if f.startErr != nil {
		return sequence.Sequence{}, f.startErr
	}
	f.started = append(f.started, p)
	return sequence.Sequence{ID: uuid.New(), LeadID: p.LeadID, TemplateID: p.TemplateID, Status: sequence.StatusActive, StartedAt: time.Now()}, nil
}

func (f *fakeSequences) Get(_ context.Context, id uuid.UUID) (sequence.Sequence, error) {
	return sequence.Sequence{}, apperr.NotFound("sequence not found")
}

func (f *fakeSequences) ListForLead(_ context.Context, leadID uuid.UUID) ([]sequence.Sequence, error) {
	return nil, nil
}

func (f *fakeSequences) ListSteps(_ context.Context, sequenceID uuid.UUID) ([]sequence.Step, error) {
	return nil, nil
}

func (f *fakeSequences) Pause(_ context.Context, id uuid.UUID) error  { return nil }
func (f *fakeSequences) Resume(_ context.Context, id uuid.UUID) error { return nil }
func (f *fakeSequences) Cancel(_ context.Context, id uuid.UUID, reason string) error {
	return nil
}

func (f *fakeSequences) Stats(_ context.Context) (seqrepo.Stats, error) {
	return seqrepo.Stats{Active: 2, EmailsSent: 7}, nil
}

type fakeTasks struct {
	suppress bool
}

func (f *fakeTasks) CreateTask(_ context.Context, subjectID uuid.UUID, kind tasks.Kind, triggeredBy string) (uuid.UUID, bool, error) {
	if f.suppress {
		return uuid.Nil, false, nil
	}
	return uuid.New(), true, nil
}

func (f *fakeTasks) Get(_ context.Context, id uuid.UUID) (tasks.Task, error) {
	return tasks.Task{}, apperr.NotFound("task not found")
}

func (f *fakeTasks) ListForSubject(_ context.Context, subjectID uuid.UUID) ([]tasks.Task, error) {
	return nil, nil
}

func (f *fakeTasks) Stats(_ context.Context) (map[tasks.Status]int, error) {
	return map[tasks.Status]int{tasks.StatusPending: 1}, nil
}

type harness struct {
	handler    *Handler
	leads      *fakeLeads
	dispatcher *fakeDispatcher
	sequences  *fakeSequences
	tasks      *fakeTasks
	engine     *gin.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &harness{
		leads:      &fakeLeads{leads: make(map[uuid.UUID]repository.Lead)},
		dispatcher: &fakeDispatcher{},
		sequences:  &fakeSequences{},
		tasks:      &fakeTasks{},
	}
	h.handler = New(h.leads, h.dispatcher, h.sequences, h.tasks, validator.New(), logger.New("development"), "Avery Sales")

	engine := gin.New()
	engine.POST("/webhooks/leads", h.handler.IngestLead)
	engine.POST("/webhooks/events", h.handler.IngestEvent)
	engine.POST("/webhooks/engagement", h.handler.RecordEngagement)
	engine.POST("/sequences", h.handler.StartSequence)
	engine.POST("/tasks", h.handler.CreateTask)
	engine.GET("/tasks/:id", h.handler.GetTask)
	engine.GET("/stats", h.handler.Stats)
	h.engine = engine
	return h
}

func (h *harness) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	return rec
}

func TestIngestLead(t *testing.T) {
	h := newHarness(t)

	rec := h.post(t, "/webhooks/leads", IngestLeadRequest{
		FirstName: "Grace",
		LastName:  "Hopper",
		Email:     "Grace@Fleetworks.example",
		Phone:     "(212) 555-0173",
		Company:   "Fleetworks",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(h.leads.created) != 1 {
		t.Fatalf("created %d leads", len(h.leads.created))
	}
	created := h.leads.created[0]
	if created.Email != "grace@fleetworks.example" {
		t.Errorf("email not lowercased: %q", created.Email)
	}
	if created.Phone != "+12125550173" {
		t.Errorf("phone not normalized: %q", created.Phone)
	}
	if len(h.dispatcher.events) != 1 || h.dispatcher.events[0].Type != orchestrator.LeadCreated {
		t.Fatalf("expected one LEAD_CREATED dispatch, got %+v", h.dispatcher.events)
	}
}

func TestIngestLeadValidation(t *testing.T) {
	h := newHarness(t)

	rec := h.post(t, "/webhooks/leads", IngestLeadRequest{FirstName: "Grace", Email: "not-an-email"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(h.dispatcher.events) != 0 {
		t.Error("invalid lead must not be dispatched")
	}
}

func TestIngestEventRejectsUnknownType(t *testing.T) {
	h := newHarness(t)

	rec := h.post(t, "/webhooks/events", IngestEventRequest{
		Type:   "SOLAR_FLARE",
		LeadID: uuid.NewString(),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}

	// LEAD_CREATED is internal-only, the webhook must refuse it too.
	rec = h.post(t, "/webhooks/events", IngestEventRequest{
		Type:   string(orchestrator.LeadCreated),
		LeadID: uuid.NewString(),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("LEAD_CREATED status = %d", rec.Code)
	}
}

func TestIngestEventDispatches(t *testing.T) {
	h := newHarness(t)
	leadID := uuid.New()

	rec := h.post(t, "/webhooks/events", IngestEventRequest{
		Type:    string(orchestrator.MessageReceived),
		LeadID:  leadID.String(),
		Payload: map[string]string{"body": "sounds good"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(h.dispatcher.events) != 1 {
		t.Fatalf("dispatched %d events", len(h.dispatcher.events))
	}
	evt := h.dispatcher.events[0]
	if evt.Type != orchestrator.MessageReceived || evt.SubjectID != leadID {
		t.Errorf("event = %+v", evt)
	}
	if evt.Payload["body"] != "sounds good" {
		t.Errorf("payload not forwarded: %v", evt.Payload)
	}
}

func TestRecordEngagementClick(t *testing.T) {
	h := newHarness(t)

	rec := h.post(t, "/webhooks/engagement", EngagementRequest{
		LeadID: uuid.NewString(),
		Kind:   "click",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(h.dispatcher.events) != 1 || h.dispatcher.events[0].Type != orchestrator.EmailClicked {
		t.Fatalf("events = %+v", h.dispatcher.events)
	}
}

func TestRecordEngagementRejectsUnknownKind(t *testing.T) {
	h := newHarness(t)

	rec := h.post(t, "/webhooks/engagement", EngagementRequest{
		LeadID: uuid.NewString(),
		Kind:   "bounce",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStartSequenceConflict(t *testing.T) {
	h := newHarness(t)
	lead, _ := h.leads.Create(context.Background(), repository.CreateLeadParams{
		FirstName: "Grace", Email: "grace@fleetworks.example",
	})
	h.sequences.startErr = apperr.Conflict("lead already has an active sequence")

	rec := h.post(t, "/sequences", StartSequenceRequest{
		LeadID:     lead.ID.String(),
		TemplateID: "default-outreach",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestStartSequencePassesLeadContext(t *testing.T) {
	h := newHarness(t)
	lead, _ := h.leads.Create(context.Background(), repository.CreateLeadParams{
		FirstName: "Grace", LastName: "Hopper", Email: "grace@fleetworks.example", Company: "Fleetworks",
	})

	rec := h.post(t, "/sequences", StartSequenceRequest{
		LeadID:     lead.ID.String(),
		TemplateID: "default-outreach",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(h.sequences.started) != 1 {
		t.Fatalf("started %d sequences", len(h.sequences.started))
	}
	ctxMap := h.sequences.started[0].LeadContext
	if ctxMap["first_name"] != "Grace" || ctxMap["company"] != "Fleetworks" {
		t.Errorf("lead context = %v", ctxMap)
	}
}

func TestCreateTaskSuppressed(t *testing.T) {
	h := newHarness(t)
	h.tasks.suppress = true

	rec := h.post(t, "/tasks", CreateTaskRequest{
		SubjectID: uuid.NewString(),
		Kind:      "enrich_profile",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp CreateTaskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Created || !resp.Suppressed {
		t.Errorf("resp = %+v", resp)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/tasks/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStats(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Sequences SequenceStatsResponse `json:"sequences"`
		Tasks     map[tasks.Status]int  `json:"tasks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Sequences.Active != 2 || resp.Sequences.EmailsSent != 7 {
		t.Errorf("sequence stats = %+v", resp.Sequences)
	}
	if resp.Tasks[tasks.StatusPending] != 1 {
		t.Errorf("task stats = %v", resp.Tasks)
	}
}
