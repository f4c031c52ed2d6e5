package agent

import (
	"context"
	"encoding/json"
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

// Researcher gathers structured facts about a lead's company and role.
// Light mode returns a quick profile, deep mode adds buying signals and
// talking points for a call.
type Researcher struct {
	agent          agent.Agent
	runner         *runner.Runner
	sessionService session.Service
	appName        string
}

func NewResearcher(apiKey string) (*Researcher, error) {
	kimi := moonshot.NewModel(moonshot.Config{APIKey: apiKey})

	adkAgent, err := llmagent.New(llmagent.Config{
		Name:        "LeadResearcher",
		Model:       kimi,
		Description: "Researches sales leads and returns structured company facts.",
		Instruction: `You research B2B sales prospects.
Given a person and company, produce what you know as strict JSON with
string or number values only. Use these keys when you can fill them:
company_summary, industry, company_size, seniority, pain_points,
buying_signals, talking_points.
Omit keys you cannot fill. Never wrap the JSON in markdown fences.
Respond with the JSON object and nothing else.`,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create researcher agent: %w", err)
	}

	appName := "lead_researcher"
	sessionService := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          adkAgent,
		SessionService: sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create researcher runner: %w", err)
	}

	return &Researcher{
		agent:          adkAgent,
		runner:         r,
		sessionService: sessionService,
		appName:        appName,
	}, nil
}

// Research returns structured findings about the lead. Mode "deep"
// asks for buying signals and talking points on top of the profile.
func (r *Researcher) Research(ctx context.Context, lead repository.Lead, mode string) (map[string]any, error) {
	prompt := buildResearchPrompt(lead, mode)

	userID := "lead-" + lead.ID.String()
	sessionID := uuid.New().String()

	_, err := r.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   r.appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer func() {
		deleteReq := &session.DeleteRequest{
			AppName:   r.appName,
			UserID:    userID,
			SessionID: sessionID,
		}
		if deleteErr := r.sessionService.Delete(ctx, deleteReq); deleteErr != nil {
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
	for event, err := range r.runner.Run(ctx, userID, sessionID, userMessage, agent.RunConfig{StreamingMode: agent.StreamingModeNone}) {
		if err != nil {
			return nil, fmt.Errorf("researcher run failed: %w", err)
		}
		if event.Content != nil {
			for _, part := range event.Content.Parts {
				output += part.Text
			}
		}
	}

	return parseResearchOutput(output)
}

func buildResearchPrompt(lead repository.Lead, mode string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Person: %s\n", lead.FullName())
	if lead.Title != "" {
		fmt.Fprintf(&sb, "Role: %s\n", lead.Title)
	}
	if lead.Company != "" {
		fmt.Fprintf(&sb, "Company: %s\n", lead.Company)
	}
	if lead.Email != "" {
		fmt.Fprintf(&sb, "Email domain: %s\n", emailDomain(lead.Email))
	}
	if mode == "deep" {
		sb.WriteString("\nDepth: full profile including buying_signals and talking_points for an upcoming call.\n")
	} else {
		sb.WriteString("\nDepth: quick profile, company_summary and industry are enough.\n")
	}
	return sb.String()
}

func emailDomain(email string) string {
	if at := strings.LastIndex(email, "@"); at >= 0 {
		return email[at+1:]
	}
	return email
}

// parseResearchOutput tolerates a model that ignores the no-fences rule.
func parseResearchOutput(output string) (map[string]any, error) {
	output = strings.TrimSpace(output)
	output = strings.TrimPrefix(output, "```json")
	output = strings.TrimPrefix(output, "```")
	output = strings.TrimSuffix(output, "```")
	output = strings.TrimSpace(output)

	var findings map[string]any
	if err := json.Unmarshal([]byte(output), &findings); err != nil {
		return nil, fmt.Errorf("researcher returned invalid JSON: %w", err)
	}
	if len(findings) == 0 {
		return nil, fmt.Errorf("researcher returned no findings")
	}
	return findings, nil
}
