package sequence

import (
	"strings"
	"testing"
)

const catalogYAML = `
templates:
  - id: saas-founder
    name: SaaS founder outreach
    steps:
      - subject: "Intro"
        body: "Hi {{first_name}}"
      - subject: "Follow-up"
        body: "Checking in"
        delayDays: 2
        delayHours: 12
`

func TestParseCatalog(t *testing.T) {
	catalog, err := ParseCatalog([]byte(catalogYAML))
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}

	tmpl, ok := catalog.Get("saas-founder")
	if !ok {
		t.Fatal("expected template saas-founder")
	}
	if len(tmpl.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(tmpl.Steps))
	}
	if tmpl.Steps[1].DelayDays != 2 || tmpl.Steps[1].DelayHours != 12 {
		t.Fatalf("unexpected delay on step 2: %+v", tmpl.Steps[1])
	}
}

func TestParseCatalogRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", "templates: []", "no templates"},
		{"missing id", "templates:\n  - name: x\n    steps:\n      - subject: s\n        body: b", "missing id"},
		{"no steps", "templates:\n  - id: x\n    steps: []", "no steps"},
		{"negative delay", "templates:\n  - id: x\n    steps:\n      - subject: s\n        body: b\n        delayDays: -1", "negative delay"},
		{"duplicate id", "templates:\n  - id: x\n    steps:\n      - subject: s\n        body: b\n  - id: x\n    steps:\n      - subject: s\n        body: b", "duplicate"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestDefaultCatalog(t *testing.T) {
	catalog := DefaultCatalog()
	tmpl, ok := catalog.Get("default-outreach")
	if !ok {
		t.Fatal("expected default-outreach template")
	}
	if len(tmpl.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(tmpl.Steps))
	}
	if tmpl.Steps[0].DelayDays != 0 || tmpl.Steps[0].DelayHours != 0 {
		t.Fatal("first step must send immediately")
	}
}
