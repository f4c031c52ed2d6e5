// Package agent contains the AI collaborators built on the ADK framework
// with the Kimi model: outreach personalization and inbound reply triage.
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

	"outreach_backend/platform/ai/moonshot"
)

// Personalizer rewrites outreach email templates for a specific lead.
type Personalizer struct {
	agent          agent.Agent
	runner         *runner.Runner
	sessionService session.Service
	appName        string
}

// NewPersonalizer builds the ADK personalization agent with Kimi.
func NewPersonalizer(apiKey string) (*Personalizer, error) {
	kimi := moonshot.NewModel(moonshot.Config{APIKey: apiKey})

	adkAgent, err := llmagent.New(llmagent.Config{
		Name:        "OutreachPersonalizer",
		Model:       kimi,
		Description: "Rewrites cold outreach emails so they read as written for one specific person.",
		Instruction: `You personalize outreach emails.
You receive an email template and facts about the recipient.

RULES:
1. Keep the intent and call to action of the template intact.
2. Weave in the recipient facts naturally. Never invent facts.
3. Keep the email roughly the same length as the template.
4. Respond in EXACTLY this format, nothing else:
SUBJECT: <rewritten subject>
BODY:
<rewritten body>`,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create personalizer agent: %w", err)
	}

	appName := "outreach_personalizer"
	sessionService := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          adkAgent,
		SessionService: sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create personalizer runner: %w", err)
	}

	return &Personalizer{
		agent:          adkAgent,
		runner:         r,
		sessionService: sessionService,
		appName:        appName,
	}, nil
}

// Personalize rewrites the subject and body for the lead described by
// leadContext. The caller falls back to plain template rendering on error.
func (p *Personalizer) Personalize(ctx context.Context, subject, body string, leadContext map[string]string) (string, string, error) {
	prompt := buildPersonalizePrompt(subject, body, leadContext)

	output, err := p.run(ctx, prompt)
	if err != nil {
		return "", "", err
	}

	newSubject, newBody, err := parsePersonalizedEmail(output)
	if err != nil {
		return "", "", err
	}
	return newSubject, newBody, nil
}

func (p *Personalizer) run(ctx context.Context, prompt string) (string, error) {
	userID := "personalizer"
	sessionID := uuid.New().String() // Fresh session for each invocation

	_, err := p.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   p.appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer func() {
		deleteReq := &session.DeleteRequest{
			AppName:   p.appName,
			UserID:    userID,
			SessionID: sessionID,
		}
		if deleteErr := p.sessionService.Delete(ctx, deleteReq); deleteErr != nil {
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
	for event, err := range p.runner.Run(ctx, userID, sessionID, userMessage, agent.RunConfig{StreamingMode: agent.StreamingModeNone}) {
		if err != nil {
			return "", fmt.Errorf("personalizer run failed: %w", err)
		}
		if event.Content != nil {
			for _, part := range event.Content.Parts {
				output += part.Text
			}
		}
	}
	return output, nil
}

func buildPersonalizePrompt(subject, body string, leadContext map[string]string) string {
	var sb strings.Builder
	sb.WriteString("Recipient facts:\n")
	for _, key := range []string{"first_name", "last_name", "company", "title", "email"} {
		if v := leadContext[key]; v != "" {
			fmt.Fprintf(&sb, "- %s: %s\n", key, v)
		}
	}
	fmt.Fprintf(&sb, "\nTemplate subject: %s\n\nTemplate body:\n%s\n", subject, body)
	return sb.String()
}

// parsePersonalizedEmail extracts the subject and body from the agent's
// structured response.
func parsePersonalizedEmail(output string) (string, string, error) {
	output = strings.TrimSpace(output)

	subjectIdx := strings.Index(output, "SUBJECT:")
	bodyIdx := strings.Index(output, "BODY:")
	if subjectIdx < 0 || bodyIdx < 0 || bodyIdx < subjectIdx {
		return "", "", fmt.Errorf("unexpected personalizer output format")
	}

	subject := strings.TrimSpace(output[subjectIdx+len("SUBJECT:") : bodyIdx])
	body := strings.TrimSpace(output[bodyIdx+len("BODY:"):])
	if subject == "" || body == "" {
		return "", "", fmt.Errorf("personalizer returned an empty subject or body")
	}
	return subject, body, nil
}
