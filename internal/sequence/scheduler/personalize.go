package scheduler

import (
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// RenderTemplate substitutes {{variable}} placeholders from the lead
// context. Unknown placeholders are removed rather than left visible,
// so a sparse context never leaks template syntax into a real email.
func RenderTemplate(text string, leadContext map[string]string) string {
	out := placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		return leadContext[key]
	})
	// Collapse the double spaces a removed placeholder leaves behind.
	for strings.Contains(out, "  ") {
		out = strings.ReplaceAll(out, "  ", " ")
	}
	return out
}
