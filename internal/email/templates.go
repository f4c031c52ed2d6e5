package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

type outreachEmailData struct {
	Subject string
	Body    string
	Sender  string
}

// Paragraphs splits the plain-text body on blank lines for rendering.
func (d outreachEmailData) Paragraphs() []string {
	return splitParagraphs(d.Body)
}

type alertEmailData struct {
	Subject string
	Body    string
}

func (d alertEmailData) Paragraphs() []string {
	return splitParagraphs(d.Body)
}

func splitParagraphs(body string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func renderEmailTemplate(name string, data any) (string, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/"+name)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render email template %s: %w", name, err)
	}
	return buf.String(), nil
}
