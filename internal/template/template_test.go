package template

import (
	"testing"

	"ig-automation/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestPersonalize(t *testing.T) {
	tests := []struct {
		name    string
		tmpl    string
		trigger *models.Trigger
		want    string
	}{
		{
			name:    "username and message",
			tmpl:    "Hi {{username}}, re: {{message}}",
			trigger: &models.Trigger{ExternalUsername: "alex", SourceText: "price?"},
			want:    "Hi alex, re: price?",
		},
		{
			name:    "missing username falls back",
			tmpl:    "Hi {{username}}, re: {{message}}",
			trigger: &models.Trigger{SourceText: "price?"},
			want:    "Hi there, re: price?",
		},
		{
			name:    "case insensitive tokens",
			tmpl:    "{{NAME}} / {{Username}} / {{MESSAGE}}",
			trigger: &models.Trigger{ExternalUsername: "sam", SourceText: "hey"},
			want:    "sam / sam / hey",
		},
		{
			name:    "unknown tokens kept",
			tmpl:    "{{email}} {{username}}",
			trigger: &models.Trigger{ExternalUsername: "sam"},
			want:    "{{email}} sam",
		},
		{
			name:    "substituted text is not expanded",
			tmpl:    "{{message}}",
			trigger: &models.Trigger{ExternalUsername: "sam", SourceText: "{{username}}"},
			want:    "{{username}}",
		},
		{
			name: "nil trigger",
			tmpl: "Hi {{name}}{{message}}",
			want: "Hi there",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Personalize(tt.tmpl, tt.trigger))
		})
	}
}
