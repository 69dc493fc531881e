// Package template personalizes outbound text with trigger data.
package template

import (
	"regexp"
	"strings"

	"ig-automation/internal/models"
)

// FallbackName replaces {{username}} and {{name}} when the trigger has no username.
const FallbackName = "there"

var tokenPattern = regexp.MustCompile(`(?i)\{\{(username|name|message)\}\}`)

// Personalize substitutes {{username}}, {{name}} and {{message}} in a single
// pass, so substituted values are never expanded again. Unknown tokens stay
// as they are.
func Personalize(tmpl string, t *models.Trigger) string {
	name := FallbackName
	text := ""
	if t != nil {
		if t.ExternalUsername != "" {
			name = t.ExternalUsername
		}
		text = t.SourceText
	}

	return tokenPattern.ReplaceAllStringFunc(tmpl, func(tok string) string {
		switch strings.ToLower(tok[2 : len(tok)-2]) {
		case "message":
			return text
		default:
			return name
		}
	})
}
