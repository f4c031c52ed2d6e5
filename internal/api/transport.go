package api

import (
	"time"

	"github.com/google/uuid"

	"outreach_backend/internal/leads/repository"
	"outreach_backend/internal/orchestrator"
	"outreach_backend/internal/sequence"
	seqrepo "outreach_backend/internal/sequence/repository"
	"outreach_backend/internal/tasks"
)

// ── requests ──────────────────────────────────────────────────────────────────

type IngestLeadRequest struct {
	FirstName string `json:"firstName" validate:"required,min=1,max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Phone     string `json:"phone" validate:"max=32"`
	Company   string `json:"company" validate:"max=200"`
	Title     string `json:"title" validate:"max=200"`
	Source    string `json:"source" validate:"max=100"`
}

type IngestEventRequest struct {
	Type    string            `json:"type" validate:"required"`
	LeadID  string            `json:"leadId" validate:"required,uuid"`
	Source  string            `json:"source" validate:"max=100"`
	Payload map[string]string `json:"payload"`
}

type EngagementRequest struct {
	LeadID string `json:"leadId" validate:"required,uuid"`
	Kind   string `json:"kind" validate:"required,oneof=open click"`
}

type StartSequenceRequest struct {
	LeadID     string `json:"leadId" validate:"required,uuid"`
	TemplateID string `json:"templateId" validate:"required,min=1,max=100"`
}

type CancelSequenceRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type CreateTaskRequest struct {
	SubjectID string `json:"subjectId" validate:"required,uuid"`
	Kind      string `json:"kind" validate:"required,oneof=enrich_profile embed_profile refresh_score"`
}

// ── responses ─────────────────────────────────────────────────────────────────

type LeadResponse struct {
	ID               uuid.UUID  `json:"id"`
	FirstName        string     `json:"firstName"`
	LastName         string     `json:"lastName"`
	Email            string     `json:"email"`
	Phone            string     `json:"phone,omitempty"`
	Company          string     `json:"company,omitempty"`
	Title            string     `json:"title,omitempty"`
	Source           string     `json:"source,omitempty"`
	Status           string     `json:"status"`
	Score            int        `json:"score"`
	Tier             string     `json:"tier"`
	EmailsOpened     int        `json:"emailsOpened"`
	EmailsClicked    int        `json:"emailsClicked"`
	HasCallScheduled bool       `json:"hasCallScheduled"`
	Escalated        bool       `json:"escalated"`
	VectorID         *string    `json:"vectorId,omitempty"`
	LastContactedAt  *time.Time `json:"lastContactedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func toLeadResponse(lead repository.Lead) LeadResponse {
	return LeadResponse{
		ID:               lead.ID,
		FirstName:        lead.FirstName,
		LastName:         lead.LastName,
		Email:            lead.Email,
		Phone:            lead.Phone,
		Company:          lead.Company,
		Title:            lead.Title,
		Source:           lead.Source,
		Status:           lead.Status,
		Score:            lead.Score,
		Tier:             lead.Tier,
		EmailsOpened:     lead.EmailsOpened,
		EmailsClicked:    lead.EmailsClicked,
		HasCallScheduled: lead.HasCallScheduled,
		Escalated:        lead.Escalated,
		VectorID:         lead.VectorID,
		LastContactedAt:  lead.LastContactedAt,
		CreatedAt:        lead.CreatedAt,
		UpdatedAt:        lead.UpdatedAt,
	}
}

type OrchestrationResponse struct {
	EventID   uuid.UUID `json:"eventId"`
	Type      string    `json:"type"`
	NoHandler bool      `json:"noHandler,omitempty"`
	Actions   []string  `json:"actions,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func toOrchestrationResponse(res orchestrator.Result) OrchestrationResponse {
	out := OrchestrationResponse{
		EventID:   res.EventID,
		Type:      string(res.Type),
		NoHandler: res.NoHandler,
		Actions:   res.Actions,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

type IngestLeadResponse struct {
	Lead          LeadResponse          `json:"lead"`
	Orchestration OrchestrationResponse `json:"orchestration"`
}

type SequenceResponse struct {
	ID              uuid.UUID  `json:"id"`
	LeadID          uuid.UUID  `json:"leadId"`
	TemplateID      string     `json:"templateId"`
	Status          string     `json:"status"`
	CurrentStep     int        `json:"currentStep"`
	TotalSteps      int        `json:"totalSteps"`
	EmailsSent      int        `json:"emailsSent"`
	LastEmailSentAt *time.Time `json:"lastEmailSentAt,omitempty"`
	StartedAt       time.Time  `json:"startedAt"`
	PausedAt        *time.Time `json:"pausedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

func toSequenceResponse(seq sequence.Sequence) SequenceResponse {
	return SequenceResponse{
		ID:              seq.ID,
		LeadID:          seq.LeadID,
		TemplateID:      seq.TemplateID,
		Status:          string(seq.Status),
		CurrentStep:     seq.CurrentStep,
		TotalSteps:      seq.TotalSteps,
		EmailsSent:      seq.EmailsSent,
		LastEmailSentAt: seq.LastEmailSentAt,
		StartedAt:       seq.StartedAt,
		PausedAt:        seq.PausedAt,
		CompletedAt:     seq.CompletedAt,
	}
}

func toSequenceResponses(seqs []sequence.Sequence) []SequenceResponse {
	out := make([]SequenceResponse, 0, len(seqs))
	for _, seq := range seqs {
		out = append(out, toSequenceResponse(seq))
	}
	return out
}

type StepResponse struct {
	ID          uuid.UUID  `json:"id"`
	StepNumber  int        `json:"stepNumber"`
	Status      string     `json:"status"`
	Subject     string     `json:"subject"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
	OpenedAt    *time.Time `json:"openedAt,omitempty"`
	ClickedAt   *time.Time `json:"clickedAt,omitempty"`
}

func toStepResponses(steps []sequence.Step) []StepResponse {
	out := make([]StepResponse, 0, len(steps))
	for _, step := range steps {
		subject := step.Subject
		if step.RenderedSubject != nil {
			subject = *step.RenderedSubject
		}
		out = append(out, StepResponse{
			ID:          step.ID,
			StepNumber:  step.StepNumber,
			Status:      string(step.Status),
			Subject:     subject,
			ScheduledAt: step.ScheduledAt,
			SentAt:      step.SentAt,
			OpenedAt:    step.OpenedAt,
			ClickedAt:   step.ClickedAt,
		})
	}
	return out
}

type TaskResponse struct {
	ID          uuid.UUID      `json:"id"`
	SubjectID   uuid.UUID      `json:"subjectId"`
	Kind        string         `json:"kind"`
	Status      string         `json:"status"`
	TriggeredBy string         `json:"triggeredBy,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       *string        `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

func toTaskResponse(task tasks.Task) TaskResponse {
	return TaskResponse{
		ID:          task.ID,
		SubjectID:   task.SubjectID,
		Kind:        string(task.Kind),
		Status:      string(task.Status),
		TriggeredBy: task.TriggeredBy,
		Result:      task.Result,
		Error:       task.Error,
		CreatedAt:   task.CreatedAt,
		CompletedAt: task.CompletedAt,
	}
}

func toTaskResponses(list []tasks.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(list))
	for _, task := range list {
		out = append(out, toTaskResponse(task))
	}
	return out
}

type SequenceStatsResponse struct {
	Active     int `json:"active"`
	Paused     int `json:"paused"`
	Completed  int `json:"completed"`
	Replied    int `json:"replied"`
	Cancelled  int `json:"cancelled"`
	EmailsSent int `json:"emailsSent"`
}

func toSequenceStatsResponse(s seqrepo.Stats) SequenceStatsResponse {
	return SequenceStatsResponse{
		Active:     s.Active,
		Paused:     s.Paused,
		Completed:  s.Completed,
		Replied:    s.Replied,
		Cancelled:  s.Cancelled,
		EmailsSent: s.EmailsSent,
	}
}

type CreateTaskResponse struct {
	TaskID     uuid.UUID `json:"taskId,omitempty"`
	Created    bool      `json:"created"`
	Suppressed bool      `json:"suppressed"`
}
