package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscaldesk/support-platform/internal/model"
	"github.com/fiscaldesk/support-platform/internal/store"
	"github.com/fiscaldesk/support-platform/pkg/logger"
)

type fakeMailer struct {
	mu   sync.Mutex
	err  error
	sent []*Email
}

func (m *fakeMailer) Send(_ context.Context, email *Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

func intPtr(v int) *int { return &v }

func newTestDispatcher(t *testing.T, opts ...Option) (*Dispatcher, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return NewDispatcher(st, logger.NewNop(), opts...), st
}

func TestCreateFromTemplateRendersVariables(t *testing.T) {
	d, _ := newTestDispatcher(t)

	n, err := d.CreateFromTemplate(context.Background(), &TemplateRequest{
		TemplateName:  TemplateAppointmentScheduled,
		RecipientID:   "student-1",
		RecipientType: model.RecipientParticipant,
		Variables: map[string]string{
			"client_name":    "Ana",
			"service_type":   "IR filing",
			"scheduled_date": "2025-01-15",
			"scheduled_time": "14:00",
			"protocol":       "NAF-2025-001",
		},
	})
	require.NoError(t, err)

	assert.Contains(t, n.Title, "IR filing")
	for _, want := range []string{"Ana", "IR filing", "2025-01-15", "14:00", "NAF-2025-001"} {
		assert.Contains(t, n.Message, want)
	}
	assert.NotContains(t, n.Title+n.Message, "{")
	assert.NotContains(t, n.Title+n.Message, "}")
	assert.Equal(t, model.PriorityHigh, n.Priority)
	assert.Equal(t, "calendar", n.Icon)
	assert.Equal(t, TemplateAppointmentScheduled, n.Metadata["template"])
	assert.Nil(t, n.ExpiresAt)
}

func TestCreateFromTemplateOverrides(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	d, _ := newTestDispatcher(t, WithClock(func() time.Time { return now }))

	n, err := d.CreateFromTemplate(context.Background(), &TemplateRequest{
		TemplateName:  TemplateTrainingAssigned,
		RecipientID:   "student-1",
		RecipientType: model.RecipientSpecialist,
		Variables:     map[string]string{"training_title": "CPF basics"},
		Priority:      model.PriorityUrgent,
		ActionURL:     "/custom",
		Icon:          "star",
		Color:         "gold",
		ExpiresHours:  intPtr(48),
	})
	require.NoError(t, err)

	assert.Equal(t, model.PriorityUrgent, n.Priority)
	assert.Equal(t, "/custom", n.ActionURL)
	assert.Equal(t, "star", n.Icon)
	assert.Equal(t, "gold", n.Color)
	require.NotNil(t, n.ExpiresAt)
	assert.Equal(t, now.Add(48*time.Hour), *n.ExpiresAt)
	assert.Contains(t, n.Message, "Due date: .")
}

func TestCreateFromTemplateErrors(t *testing.T) {
	d, st := newTestDispatcher(t)
	ctx := context.Background()

	_, err := d.CreateFromTemplate(ctx, &TemplateRequest{
		TemplateName: "does_not_exist", RecipientID: "u1", RecipientType: model.RecipientParticipant,
	})
	assert.ErrorIs(t, err, model.ErrNotFound)

	tests := []struct {
		name string
		req  TemplateRequest
	}{
		{"missing recipient", TemplateRequest{TemplateName: TemplateSystemAnnouncement, RecipientType: model.RecipientParticipant}},
		{"bad recipient type", TemplateRequest{TemplateName: TemplateSystemAnnouncement, RecipientID: "u1", RecipientType: "admin"}},
		{"bad priority", TemplateRequest{TemplateName: TemplateSystemAnnouncement, RecipientID: "u1", RecipientType: model.RecipientParticipant, Priority: "critical"}},
		{"negative expiry", TemplateRequest{TemplateName: TemplateSystemAnnouncement, RecipientID: "u1", RecipientType: model.RecipientParticipant, ExpiresHours: intPtr(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.CreateFromTemplate(ctx, &tt.req)
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}

	list, err := st.ListNotifications(ctx, "u1", false, time.Now())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateCustomValidation(t *testing.T) {
	d, st := newTestDispatcher(t)
	ctx := context.Background()

	_, err := d.CreateCustom(ctx, &CustomRequest{RecipientID: "u1", RecipientType: model.RecipientCoordinator})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = d.CreateCustom(ctx, &CustomRequest{RecipientType: model.RecipientCoordinator, Title: "t"})
	assert.ErrorIs(t, err, model.ErrValidation)

	list, err := st.ListNotifications(ctx, "u1", false, time.Now())
	require.NoError(t, err)
	assert.Empty(t, list)

	n, err := d.CreateCustom(ctx, &CustomRequest{RecipientID: "u1", RecipientType: model.RecipientCoordinator, Message: "Monthly report is ready"})
	require.NoError(t, err)
	assert.Equal(t, "custom", n.Type)
	assert.Equal(t, model.PriorityMedium, n.Priority)
}

func TestEmailSuccessMarksSent(t *testing.T) {
	mailer := &fakeMailer{}
	d, st := newTestDispatcher(t, WithMailer(mailer))
	ctx := context.Background()

	n, err := d.CreateCustom(ctx, &CustomRequest{
		RecipientID: "coord-1", RecipientType: model.RecipientCoordinator,
		Title: "Report", Message: "Ready", SendEmail: true,
	})
	require.NoError(t, err)
	d.Wait()

	got, err := st.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, got.EmailSent)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "Report", mailer.sent[0].Subject)
}

func TestEmailFailureKeepsNotification(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("smtp down")}
	d, st := newTestDispatcher(t, WithMailer(mailer))
	ctx := context.Background()

	n, err := d.CreateFromTemplate(ctx, &TemplateRequest{
		TemplateName:  TemplateAppointmentCancelled,
		RecipientID:   "student-2",
		RecipientType: model.RecipientSpecialist,
	})
	require.NoError(t, err)
	d.Wait()

	got, err := st.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, got.EmailSent)
}

func TestTemplateEmailChannel(t *testing.T) {
	mailer := &fakeMailer{}
	d, _ := newTestDispatcher(t, WithMailer(mailer))
	ctx := context.Background()

	// The template emails by default; the caller cannot switch it off.
	_, err := d.CreateFromTemplate(ctx, &TemplateRequest{
		TemplateName: TemplateAppointmentScheduled, RecipientID: "student-1", RecipientType: model.RecipientSpecialist,
	})
	require.NoError(t, err)

	// In-app only template; the caller asks for an email copy.
	_, err = d.CreateFromTemplate(ctx, &TemplateRequest{
		TemplateName: TemplateAppointmentConfirmed, RecipientID: "student-2", RecipientType: model.RecipientSpecialist,
		SendEmail: true,
	})
	require.NoError(t, err)

	// In-app only template, no request.
	_, err = d.CreateFromTemplate(ctx, &TemplateRequest{
		TemplateName: TemplateAppointmentConfirmed, RecipientID: "student-3", RecipientType: model.RecipientSpecialist,
	})
	require.NoError(t, err)
	d.Wait()

	mailer.mu.Lock()
	defer mailer.mu.Unlock()
	recipients := make([]string, 0, len(mailer.sent))
	for _, e := range mailer.sent {
		recipients = append(recipients, e.RecipientID)
	}
	assert.ElementsMatch(t, []string{"student-1", "student-2"}, recipients)
}

func TestEmailRespectsTimeout(t *testing.T) {
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer relay.Close()

	d, st := newTestDispatcher(t,
		WithMailer(NewRelayMailer(relay.URL, "", time.Minute)),
		WithEmailTimeout(50*time.Millisecond),
	)
	ctx := context.Background()

	n, err := d.CreateCustom(ctx, &CustomRequest{
		RecipientID: "u1", RecipientType: model.RecipientParticipant, Title: "hi", SendEmail: true,
	})
	require.NoError(t, err)

	start := time.Now()
	d.Wait()
	assert.Less(t, time.Since(start), time.Second)

	got, err := st.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, got.EmailSent)
}

func TestRelayMailer(t *testing.T) {
	var gotAuth string
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/send" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer relay.Close()

	m := NewRelayMailer(relay.URL, "relay-token", time.Second)
	require.NoError(t, m.Send(context.Background(), &Email{RecipientID: "u1", Subject: "s"}))
	assert.Equal(t, "Bearer relay-token", gotAuth)

	bad := NewRelayMailer(relay.URL+"/nope", "", time.Second)
	assert.ErrorIs(t, bad.Send(context.Background(), &Email{}), model.ErrTransientDelivery)
}

func TestListReadAndPurge(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	clock := &now
	d, _ := newTestDispatcher(t, WithClock(func() time.Time { return *clock }))
	ctx := context.Background()

	short, err := d.CreateCustom(ctx, &CustomRequest{RecipientID: "u1", RecipientType: model.RecipientParticipant, Title: "short", ExpiresHours: 1})
	require.NoError(t, err)
	long, err := d.CreateCustom(ctx, &CustomRequest{RecipientID: "u1", RecipientType: model.RecipientParticipant, Title: "long"})
	require.NoError(t, err)
	_, err = d.CreateCustom(ctx, &CustomRequest{RecipientID: "u2", RecipientType: model.RecipientParticipant, Title: "other"})
	require.NoError(t, err)

	list, err := d.List(ctx, "u1", false)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	assert.ErrorIs(t, d.MarkRead(ctx, "u2", long.ID), model.ErrNotFound)
	require.NoError(t, d.MarkRead(ctx, "u1", long.ID))

	unread, err := d.List(ctx, "u1", true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, short.ID, unread[0].ID)

	later := now.Add(2 * time.Hour)
	clock = &later

	list, err = d.List(ctx, "u1", false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, long.ID, list[0].ID)

	purged, err := d.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	marked, err := d.MarkAllRead(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, marked)
}
