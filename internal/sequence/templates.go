package sequence

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// TemplateStep defines one message of a campaign template. Subject and
// body may contain {{variable}} placeholders resolved from the
// sequence's lead context at send time.
type TemplateStep struct {
	Subject    string `yaml:"subject"`
	Body       string `yaml:"body"`
	DelayDays  int    `yaml:"delayDays"`
	DelayHours int    `yaml:"delayHours"`
}

// Template is a named multi-step campaign definition.
type Template struct {
	ID    string         `yaml:"id"`
	Name  string         `yaml:"name"`
	Steps []TemplateStep `yaml:"steps"`
}

// Catalog holds the loaded campaign templates, keyed by template ID.
type Catalog struct {
	templates map[string]Template
}

type catalogFile struct {
	Templates []Template `yaml:"templates"`
}

// LoadCatalog reads campaign templates from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses and validates a YAML template catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse template catalog: %w", err)
	}

	if len(file.Templates) == 0 {
		return nil, fmt.Errorf("template catalog contains no templates")
	}

	templates := make(map[string]Template, len(file.Templates))
	for _, tmpl := range file.Templates {
		if tmpl.ID == "" {
			return nil, fmt.Errorf("template missing id")
		}
		if _, exists := templates[tmpl.ID]; exists {
			return nil, fmt.Errorf("duplicate template id %q", tmpl.ID)
		}
		if len(tmpl.Steps) == 0 {
			return nil, fmt.Errorf("template %q has no steps", tmpl.ID)
		}
		for i, step := range tmpl.Steps {
			if step.DelayDays < 0 || step.DelayHours < 0 {
				return nil, fmt.Errorf("template %q step %d has a negative delay", tmpl.ID, i+1)
			}
			if step.Subject == "" {
				return nil, fmt.Errorf("template %q step %d has no subject", tmpl.ID, i+1)
			}
		}
		templates[tmpl.ID] = tmpl
	}

	return &Catalog{templates: templates}, nil
}

// Get returns the template with the given ID.
func (c *Catalog) Get(id string) (Template, bool) {
	tmpl, ok := c.templates[id]
	return tmpl, ok
}

// IDs returns the sorted template IDs.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.templates))
	for id := range c.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DefaultTemplateID is the template new leads are enrolled in when no
// campaign is chosen explicitly.
const DefaultTemplateID = "default-outreach"

// DefaultCatalog returns the built-in catalog used when no template file
// is configured. It carries a single generic three-touch campaign.
func DefaultCatalog() *Catalog {
	return &Catalog{templates: map[string]Template{
		DefaultTemplateID: {
			ID:   DefaultTemplateID,
			Name: "Default outreach",
			Steps: []TemplateStep{
				{
					Subject: "Quick question, {{first_name}}",
					Body:    "Hi {{first_name}},\n\nI noticed {{company}} and wanted to reach out. Would you be open to a short call this week?\n\nBest,\n{{sender_name}}",
				},
				{
					Subject:   "Re: Quick question, {{first_name}}",
					Body:      "Hi {{first_name}},\n\nFollowing up on my previous note. Happy to share a few ideas relevant to {{company}}.\n\nBest,\n{{sender_name}}",
					DelayDays: 3,
				},
				{
					Subject:   "Closing the loop",
					Body:      "Hi {{first_name}},\n\nI'll stop here for now. If priorities change at {{company}}, feel free to reach out any time.\n\nBest,\n{{sender_name}}",
					DelayDays: 4,
				},
			},
		},
	}}
}
