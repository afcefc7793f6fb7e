package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		vars    map[string]string
		want    string
	}{
		{"substitutes", "Hello {name}, see you at {time}", map[string]string{"name": "Ana", "time": "14:00"}, "Hello Ana, see you at 14:00"},
		{"repeated", "{x}-{x}", map[string]string{"x": "a"}, "a-a"},
		{"missing renders empty", "Protocol {protocol}.", nil, "Protocol ."},
		{"no placeholders", "plain text", map[string]string{"a": "b"}, "plain text"},
		{"braces without name", "{} and { spaced }", nil, "{} and { spaced }"},
		{"value is not re-expanded", "{a}", map[string]string{"a": "{b}", "b": "no"}, "{b}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.pattern, tt.vars))
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(Template{Name: TemplateSystemAnnouncement, Title: "override"})

	tmpl, ok := r.Get(TemplateSystemAnnouncement)
	assert.True(t, ok)
	assert.Equal(t, "override", tmpl.Title)

	_, ok = r.Get("nope")
	assert.False(t, ok)

	for _, name := range []string{
		TemplateAppointmentScheduled,
		TemplateAppointmentConfirmed,
		TemplateAppointmentCompleted,
		TemplateAppointmentCancelled,
		TemplateAppointmentCreatedSummary,
		TemplateTrainingAssigned,
		TemplateTrainingCompleted,
		TemplateTrainingAchievement,
		TemplateHandoffWaiting,
	} {
		assert.Contains(t, r.Names(), name)
	}
}
