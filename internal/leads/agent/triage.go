package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/google/uuid"

	"outreach_backend/internal/leads/repository"
	"outreach_backend/platform/ai/moonshot"
)

// Reply intents the triage agent is allowed to return. Anything else
// collapses to IntentOther.
const (
	IntentPricing       = "pricing"
	IntentCallRequest   = "call-request"
	IntentReadyToBuy    = "ready-to-buy"
	IntentNotInterested = "not-interested"
	IntentOther         = "other"
)

// ReplyTriage classifies inbound replies from leads and drafts a
// suggested response for the owner to review.
type ReplyTriage struct {
	agent          agent.Agent
	runner         *runner.Runner
	sessionService session.Service
	appName        string
}

// NewReplyTriage builds the ADK triage agent with Kimi.
func NewReplyTriage(apiKey string) (*ReplyTriage, error) {
	kimi := moonshot.NewModel(moonshot.Config{APIKey: apiKey})

	adkAgent, err := llmagent.New(llmagent.Config{
		Name:        "ReplyTriage",
		Model:       kimi,
		Description: "Classifies inbound replies from sales leads and drafts a response.",
		Instruction: `You triage replies from sales prospects.

Classify the message into exactly one intent:
- pricing: they ask about cost, budget or discounts
- call-request: they want a call, demo or meeting
- ready-to-buy: they clearly signal they want to move forward
- not-interested: they decline or ask to stop
- other: anything else

Then draft a short, warm reply the account owner could send as-is.

Respond in EXACTLY this format, nothing else:
INTENT: <intent>
DRAFT:
<draft reply>`,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create triage agent: %w", err)
	}

	appName := "reply_triage"
	sessionService := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          adkAgent,
		SessionService: sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create triage runner: %w", err)
	}

	return &ReplyTriage{
		agent:          adkAgent,
		runner:         r,
		sessionService: sessionService,
		appName:        appName,
	}, nil
}

// ClassifyAndDraft analyzes the lead's message and returns the detected
// intent plus a suggested reply draft.
func (rt *ReplyTriage) ClassifyAndDraft(ctx context.Context, lead repository.Lead, message string) (string, string, error) {
	prompt := buildTriagePrompt(lead, message)

	userID := "lead-" + lead.ID.String()
	sessionID := uuid.New().String()

	_, err := rt.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   rt.appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to create session: %w", err)
	}
	defer func() {
		deleteReq := &session.DeleteRequest{
			AppName:   rt.appName,
			UserID:    userID,
			SessionID: sessionID,
		}
		if deleteErr := rt.sessionService.Delete(ctx, deleteReq); deleteErr != nil {
			log.Printf("warning: failed to delete session %s: %v", sessionID, deleteErr)
		}
	}()

	userMessage := &genai.Content{
		Role: "user",
		Parts: []*genai.Part{
			{Text: prompt},
		},
	}

	var output string
	for event, err := range rt.runner.Run(ctx, userID, sessionID, userMessage, agent.RunConfig{StreamingMode: agent.StreamingModeNone}) {
		if err != nil {
			return "", "", fmt.Errorf("triage run failed: %w", err)
		}
		if event.Content != nil {
			for _, part := range event.Content.Parts {
				output += part.Text
			}
		}
	}

	return parseTriageOutput(output)
}

func buildTriagePrompt(lead repository.Lead, message string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Prospect: %s", lead.FullName())
	if lead.Company != "" {
		fmt.Fprintf(&sb, " at %s", lead.Company)
	}
	if lead.Title != "" {
		fmt.Fprintf(&sb, " (%s)", lead.Title)
	}
	fmt.Fprintf(&sb, "\nPipeline status: %s\n\nTheir message:\n%s\n", lead.Status, message)
	return sb.String()
}

func parseTriageOutput(output string) (string, string, error) {
	output = strings.TrimSpace(output)

	intentIdx := strings.Index(output, "INTENT:")
	draftIdx := strings.Index(output, "DRAFT:")
	if intentIdx < 0 || draftIdx < 0 || draftIdx < intentIdx {
		return "", "", fmt.Errorf("unexpected triage output format")
	}

	intent := strings.ToLower(strings.TrimSpace(output[intentIdx+len("INTENT:") : draftIdx]))
	draft := strings.TrimSpace(output[draftIdx+len("DRAFT:"):])

	switch intent {
	case IntentPricing, IntentCallRequest, IntentReadyToBuy, IntentNotInterested:
	default:
		intent = IntentOther
	}
	if draft == "" {
		return "", "", fmt.Errorf("triage returned an empty draft")
	}
	return intent, draft, nil
}
