package notify

import (
	"regexp"
	"sort"

	"github.com/fiscaldesk/support-platform/internal/model"
)

// Channel is a delivery channel a template enables by default.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
)

// Template is a named notification pattern. Title, Message and ActionURL may
// contain {name} placeholders.
type Template struct {
	Name         string
	Type         string
	Title        string
	Message      string
	Priority     model.Priority
	Channels     []Channel
	Icon         string
	Color        string
	ActionURL    string
	ExpiresHours int
}

func (t Template) emailByDefault() bool {
	for _, c := range t.Channels {
		if c == ChannelEmail {
			return true
		}
	}
	return false
}

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Render substitutes {name} placeholders from vars. Placeholders without a
// value render as the empty string.
func Render(pattern string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(pattern, func(token string) string {
		return vars[token[1:len(token)-1]]
	})
}

// Registry holds templates by name.
type Registry struct {
	templates map[string]Template
}

// NewRegistry returns a registry with the built-in templates plus extra.
// An extra template replaces a built-in one with the same name.
func NewRegistry(extra ...Template) *Registry {
	r := &Registry{templates: make(map[string]Template, len(builtinTemplates)+len(extra))}
	for _, t := range builtinTemplates {
		r.templates[t.Name] = t
	}
	for _, t := range extra {
		r.templates[t.Name] = t
	}
	return r
}

// Get looks a template up by name.
func (r *Registry) Get(name string) (Template, bool) {
	t, ok := r.templates[name]
	return t, ok
}

// Names lists registered template names in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const (
	TemplateAppointmentScheduled      = "appointment_scheduled"
	TemplateAppointmentConfirmed      = "appointment_confirmed"
	TemplateAppointmentCompleted      = "appointment_completed"
	TemplateAppointmentCancelled      = "appointment_cancelled"
	TemplateAppointmentCreatedSummary = "appointment_created_summary"
	TemplateTrainingAssigned          = "training_assigned"
	TemplateTrainingCompleted         = "training_completed"
	TemplateTrainingAchievement       = "training_achievement"
	TemplateHandoffWaiting            = "handoff_waiting"
	TemplateSystemAnnouncement        = "system_announcement"
)

var builtinTemplates = []Template{
	{
		Name:      TemplateAppointmentScheduled,
		Type:      "appointment",
		Title:     "New appointment: {service_type}",
		Message:   "{client_name} is scheduled for {service_type} on {scheduled_date} at {scheduled_time}. Protocol {protocol}.",
		Priority:  model.PriorityHigh,
		Channels:  []Channel{ChannelInApp, ChannelEmail},
		Icon:      "calendar",
		Color:     "blue",
		ActionURL: "/appointments/{appointment_id}",
	},
	{
		Name:      TemplateAppointmentConfirmed,
		Type:      "appointment",
		Title:     "Appointment confirmed",
		Message:   "The appointment with {client_name} on {scheduled_date} at {scheduled_time} was confirmed. Protocol {protocol}.",
		Priority:  model.PriorityMedium,
		Channels:  []Channel{ChannelInApp},
		Icon:      "check-circle",
		Color:     "green",
		ActionURL: "/appointments/{appointment_id}",
	},
	{
		Name:         TemplateAppointmentCompleted,
		Type:         "appointment",
		Title:        "Appointment completed",
		Message:      "The {service_type} appointment with {client_name} (protocol {protocol}) was completed. Remember to file the attendance report.",
		Priority:     model.PriorityLow,
		Channels:     []Channel{ChannelInApp},
		Icon:         "clipboard-check",
		Color:        "green",
		ActionURL:    "/appointments/{appointment_id}",
		ExpiresHours: 24 * 7,
	},
	{
		Name:      TemplateAppointmentCancelled,
		Type:      "appointment",
		Title:     "Appointment cancelled",
		Message:   "The appointment with {client_name} on {scheduled_date} at {scheduled_time} was cancelled. Protocol {protocol}.",
		Priority:  model.PriorityHigh,
		Channels:  []Channel{ChannelInApp, ChannelEmail},
		Icon:      "calendar-x",
		Color:     "red",
		ActionURL: "/appointments/{appointment_id}",
	},
	{
		Name:         TemplateAppointmentCreatedSummary,
		Type:         "appointment",
		Title:        "New appointment booked",
		Message:      "{client_name} booked {service_type} for {scheduled_date} at {scheduled_time}. Assigned to: {assigned_to}. Protocol {protocol}.",
		Priority:     model.PriorityLow,
		Channels:     []Channel{ChannelInApp},
		Icon:         "calendar-plus",
		Color:        "gray",
		ActionURL:    "/appointments/{appointment_id}",
		ExpiresHours: 24 * 3,
	},
	{
		Name:      TemplateTrainingAssigned,
		Type:      "training",
		Title:     "New training: {training_title}",
		Message:   "You were assigned the training \"{training_title}\". Due date: {due_date}.",
		Priority:  model.PriorityMedium,
		Channels:  []Channel{ChannelInApp, ChannelEmail},
		Icon:      "book-open",
		Color:     "purple",
		ActionURL: "/trainings/{training_id}",
	},
	{
		Name:      TemplateTrainingCompleted,
		Type:      "training",
		Title:     "Training completed",
		Message:   "You completed \"{training_title}\" with a score of {score}.",
		Priority:  model.PriorityLow,
		Channels:  []Channel{ChannelInApp},
		Icon:      "award",
		Color:     "green",
		ActionURL: "/trainings/{training_id}",
	},
	{
		Name:      TemplateTrainingAchievement,
		Type:      "achievement",
		Title:     "Outstanding result!",
		Message:   "Congratulations, you scored {score} on \"{training_title}\".",
		Priority:  model.PriorityMedium,
		Channels:  []Channel{ChannelInApp},
		Icon:      "star",
		Color:     "gold",
		ActionURL: "/trainings/{training_id}",
	},
	{
		Name:         TemplateHandoffWaiting,
		Type:         "support",
		Title:        "A participant is waiting for a specialist",
		Message:      "Conversation {conversation_id} asked for human support. Join it to take over from the assistant.",
		Priority:     model.PriorityUrgent,
		Channels:     []Channel{ChannelInApp},
		Icon:         "message-circle",
		Color:        "orange",
		ActionURL:    "/support/conversations/{conversation_id}",
		ExpiresHours: 1,
	},
	{
		Name:     TemplateSystemAnnouncement,
		Type:     "system",
		Title:    "{title}",
		Message:  "{message}",
		Priority: model.PriorityMedium,
		Channels: []Channel{ChannelInApp},
		Icon:     "bell",
		Color:    "blue",
	},
}
