package agent

import (
	"strings"
	"testing"
)

func TestParsePersonalizedEmail(t *testing.T) {
	output := `SUBJECT: A quick idea for Fleetworks
BODY:
Hi Grace,

Saw what Fleetworks is doing in logistics. Worth a chat?`

	subject, body, err := parsePersonalizedEmail(output)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if subject != "A quick idea for Fleetworks" {
		t.Errorf("subject = %q", subject)
	}
	if !strings.HasPrefix(body, "Hi Grace,") {
		t.Errorf("body = %q", body)
	}
}

func TestParsePersonalizedEmailBadFormat(t *testing.T) {
	for _, output := range []string{
		"",
		"Here is your email: hello there",
		"BODY:\nsomething\nSUBJECT: backwards",
		"SUBJECT:\nBODY:\n",
	} {
		if _, _, err := parsePersonalizedEmail(output); err == nil {
			t.Errorf("expected error for %q", output)
		}
	}
}

func TestParseTriageOutput(t *testing.T) {
	output := `INTENT: Call-Request
DRAFT:
Happy to set something up. Does Thursday afternoon work?`

	intent, draft, err := parseTriageOutput(output)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if intent != IntentCallRequest {
		t.Errorf("intent = %q, want %q", intent, IntentCallRequest)
	}
	if !strings.Contains(draft, "Thursday") {
		t.Errorf("draft = %q", draft)
	}
}

func TestParseTriageOutputUnknownIntent(t *testing.T) {
	output := "INTENT: confused\nDRAFT:\nThanks for reaching out."
	intent, _, err := parseTriageOutput(output)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if intent != IntentOther {
		t.Errorf("intent = %q, want %q", intent, IntentOther)
	}
}

func TestParseTriageOutputEmptyDraft(t *testing.T) {
	if _, _, err := parseTriageOutput("INTENT: pricing\nDRAFT:\n"); err == nil {
		t.Error("expected error for empty draft")
	}
}

func TestBuildPersonalizePromptSkipsEmptyFacts(t *testing.T) {
	prompt := buildPersonalizePrompt("Quick question", "Hello there", map[string]string{
		"first_name": "Grace",
		"company":    "",
	})
	if !strings.Contains(prompt, "first_name: Grace") {
		t.Errorf("prompt missing first name: %q", prompt)
	}
	if strings.Contains(prompt, "company:") {
		t.Errorf("prompt should omit empty facts: %q", prompt)
	}
}

func TestParseResearchOutput(t *testing.T) {
	output := "```json\n" + `{"company_summary": "Logistics SaaS", "company_size": 200}` + "\n```"
	findings, err := parseResearchOutput(output)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if findings["company_summary"] != "Logistics SaaS" {
		t.Errorf("findings = %v", findings)
	}
}

func TestParseResearchOutputInvalid(t *testing.T) {
	for _, output := range []string{"", "not json", "{}"} {
		if _, err := parseResearchOutput(output); err == nil {
			t.Errorf("expected error for %q", output)
		}
	}
}
