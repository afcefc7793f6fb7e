package trigger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscaldesk/support-platform/internal/model"
	"github.com/fiscaldesk/support-platform/internal/notify"
	"github.com/fiscaldesk/support-platform/internal/store"
	"github.com/fiscaldesk/support-platform/pkg/logger"
)

// flakyNotifier fails for selected recipients and delegates the rest.
type flakyNotifier struct {
	next    Notifier
	failFor map[string]bool

	mu       sync.Mutex
	requests []notify.TemplateRequest
}

func (f *flakyNotifier) CreateFromTemplate(ctx context.Context, req *notify.TemplateRequest) (*model.Notification, error) {
	f.mu.Lock()
	f.requests = append(f.requests, *req)
	f.mu.Unlock()

	if f.failFor[req.RecipientID] {
		return nil, errors.New("database is locked")
	}
	return f.next.CreateFromTemplate(ctx, req)
}

func (f *flakyNotifier) templatesFor(recipient string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, r := range f.requests {
		if r.RecipientID == recipient {
			out = append(out, r.TemplateName)
		}
	}
	sort.Strings(out)
	return out
}

type fixture struct {
	store    *store.MemoryStore
	notifier *flakyNotifier
	triggers *Triggers
}

func newFixture(t *testing.T, dir Directory, failFor ...string) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	fail := map[string]bool{}
	for _, id := range failFor {
		fail[id] = true
	}
	n := &flakyNotifier{next: notify.NewDispatcher(st, logger.NewNop()), failFor: fail}
	return &fixture{
		store:    st,
		notifier: n,
		triggers: New(n, dir, 4, logger.NewNop()),
	}
}

func (f *fixture) count(t *testing.T, recipient string) int {
	t.Helper()
	list, err := f.store.ListNotifications(context.Background(), recipient, false, time.Now())
	require.NoError(t, err)
	return len(list)
}

func sampleAppointment() *model.Appointment {
	return &model.Appointment{
		ID:            "appt-1",
		Protocol:      "NAF-2025-001",
		ClientName:    "Ana",
		ServiceType:   "IR filing",
		ScheduledDate: "2025-01-15",
		ScheduledTime: "14:00",
		AssignedTo:    "student-1",
		Status:        model.AppointmentScheduled,
	}
}

func TestAppointmentCreatedSurvivesFailedCoordinator(t *testing.T) {
	dir := &StaticDirectory{CoordinatorIDs: []string{"coord-1", "coord-2", "coord-3"}}
	f := newFixture(t, dir, "coord-2")

	result, err := f.triggers.OnAppointmentCreated(context.Background(), sampleAppointment())
	require.NoError(t, err)

	assert.Equal(t, 1, f.count(t, "coord-1"))
	assert.Equal(t, 0, f.count(t, "coord-2"))
	assert.Equal(t, 1, f.count(t, "coord-3"))
	assert.Equal(t, 1, f.count(t, "student-1"))

	assert.Equal(t, 3, result.Succeeded())
	failed := result.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "coord-2", failed[0].RecipientID)
	assert.Error(t, result.Err())
}

func TestAppointmentCreatedLooksUpAssignee(t *testing.T) {
	dir := &lookupDirectory{StaticDirectory: StaticDirectory{}, assignee: "student-9"}
	f := newFixture(t, dir)

	appt := sampleAppointment()
	appt.AssignedTo = ""
	_, err := f.triggers.OnAppointmentCreated(context.Background(), appt)
	require.NoError(t, err)

	assert.Equal(t, []string{notify.TemplateAppointmentScheduled}, f.notifier.templatesFor("student-9"))
}

type lookupDirectory struct {
	StaticDirectory
	assignee string
	err      error
}

func (d *lookupDirectory) AssignedSpecialist(context.Context, string) (string, error) {
	return d.assignee, d.err
}

func TestAppointmentCreatedNotifiesCoordinatorsWhenAssigneeLookupFails(t *testing.T) {
	dir := &lookupDirectory{
		StaticDirectory: StaticDirectory{CoordinatorIDs: []string{"coord-1", "coord-2"}},
		err:             errors.New("user service unavailable"),
	}
	f := newFixture(t, dir)

	appt := sampleAppointment()
	appt.AssignedTo = ""
	result, err := f.triggers.OnAppointmentCreated(context.Background(), appt)
	require.NoError(t, err)

	assert.Equal(t, 1, f.count(t, "coord-1"))
	assert.Equal(t, 1, f.count(t, "coord-2"))
	assert.Equal(t, 2, result.Succeeded())

	failed := result.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, RecipientAssignee, failed[0].RecipientID)
	assert.Equal(t, notify.TemplateAppointmentScheduled, failed[0].Template)
}

func TestAppointmentCreatedCoordinatorLookupFailureKeepsSpecialistNotice(t *testing.T) {
	f := newFixture(t, &brokenDirectory{})
	r := NewRouter(f.triggers)
	event := &model.DomainEvent{Type: model.DomainAppointmentCreated, Appointment: sampleAppointment()}

	result, err := r.Handle(context.Background(), event)
	require.NoError(t, err, "a lookup failure must not ask for redelivery")

	assert.Equal(t, 1, f.count(t, "student-1"))
	assert.Equal(t, 1, result.Succeeded())
	failed := result.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "coordinators", failed[0].RecipientID)
	assert.ErrorContains(t, result.Err(), "user service unavailable")
}

func TestAppointmentStatusChangedAssigneeLookupFailure(t *testing.T) {
	f := newFixture(t, &lookupDirectory{err: errors.New("timeout")})

	appt := sampleAppointment()
	appt.AssignedTo = ""
	appt.Status = model.AppointmentCancelled
	result, err := f.triggers.OnAppointmentStatusChanged(context.Background(), appt, model.AppointmentScheduled, model.AppointmentCancelled)
	require.NoError(t, err)

	failed := result.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, RecipientAssignee, failed[0].RecipientID)
	assert.Equal(t, notify.TemplateAppointmentCancelled, failed[0].Template)
}

func TestAppointmentStatusChanged(t *testing.T) {
	tests := []struct {
		status model.AppointmentStatus
		want   []string
	}{
		{model.AppointmentConfirmed, []string{notify.TemplateAppointmentConfirmed}},
		{model.AppointmentCompleted, []string{notify.TemplateAppointmentCompleted}},
		{model.AppointmentCancelled, []string{notify.TemplateAppointmentCancelled}},
		{model.AppointmentInProgress, nil},
		{model.AppointmentNoShow, nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			f := newFixture(t, &StaticDirectory{})
			_, err := f.triggers.OnAppointmentStatusChanged(context.Background(), sampleAppointment(), model.AppointmentScheduled, tt.status)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.notifier.templatesFor("student-1"))
		})
	}
}

func TestAppointmentStatusUnchangedIsNoop(t *testing.T) {
	f := newFixture(t, &StaticDirectory{})

	result, err := f.triggers.OnAppointmentStatusChanged(context.Background(), sampleAppointment(), model.AppointmentConfirmed, model.AppointmentConfirmed)
	require.NoError(t, err)
	assert.Empty(t, result.Deliveries)
}

func TestTrainingCompletedAchievement(t *testing.T) {
	training := &model.Training{ID: "tr-1", Title: "MEI registration"}

	tests := []struct {
		score int
		want  []string
	}{
		{89, []string{notify.TemplateTrainingCompleted}},
		{90, []string{notify.TemplateTrainingAchievement, notify.TemplateTrainingCompleted}},
		{100, []string{notify.TemplateTrainingAchievement, notify.TemplateTrainingCompleted}},
	}
	for _, tt := range tests {
		f := newFixture(t, &StaticDirectory{})
		_, err := f.triggers.OnTrainingCompleted(context.Background(), training, "student-1", tt.score)
		require.NoError(t, err)
		assert.Equal(t, tt.want, f.notifier.templatesFor("student-1"), "score %d", tt.score)
	}

	f := newFixture(t, &StaticDirectory{})
	_, err := f.triggers.OnTrainingCompleted(context.Background(), training, "student-1", 101)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestTrainingAssigned(t *testing.T) {
	f := newFixture(t, &StaticDirectory{})
	ctx := context.Background()

	_, err := f.triggers.OnTrainingAssigned(ctx, &model.Training{ID: "tr-1", Title: "CPF", DueDate: "2025-02-01"}, "student-1")
	require.NoError(t, err)

	list, err := f.store.ListNotifications(ctx, "student-1", false, time.Now())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.RecipientSpecialist, list[0].RecipientType)
	assert.Contains(t, list[0].Message, "2025-02-01")

	_, err = f.triggers.OnTrainingAssigned(ctx, &model.Training{ID: "tr-1"}, "")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestNotifyAllStudents(t *testing.T) {
	dir := &StaticDirectory{StudentIDs: []string{"s1", "s2", "s3", "s4", "s5"}}
	f := newFixture(t, dir, "s4")

	result, err := f.triggers.NotifyAllStudents(context.Background(), notify.TemplateSystemAnnouncement,
		map[string]string{"title": "Maintenance", "message": "The portal is offline on Sunday."}, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Succeeded())
	assert.Len(t, result.Failed(), 1)
	for _, id := range []string{"s1", "s2", "s3", "s5"} {
		assert.Equal(t, 1, f.count(t, id), id)
	}
}

type brokenDirectory struct{ StaticDirectory }

func (brokenDirectory) Coordinators(context.Context) ([]string, error) {
	return nil, errors.New("user service unavailable")
}

func TestNotifyAllCoordinatorsDirectoryFailure(t *testing.T) {
	f := newFixture(t, &brokenDirectory{})

	result, err := f.triggers.NotifyAllCoordinators(context.Background(), notify.TemplateSystemAnnouncement, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, result.Succeeded())
	require.Len(t, result.Failed(), 1)
	assert.Error(t, result.Err())
}

func TestRouter(t *testing.T) {
	dir := &StaticDirectory{CoordinatorIDs: []string{"coord-1"}}
	f := newFixture(t, dir)
	r := NewRouter(f.triggers)
	ctx := context.Background()

	_, err := r.Handle(ctx, &model.DomainEvent{Type: model.DomainAppointmentCreated, Appointment: sampleAppointment()})
	require.NoError(t, err)
	assert.Equal(t, 1, f.count(t, "coord-1"))

	appt := sampleAppointment()
	appt.Status = model.AppointmentConfirmed
	_, err = r.Handle(ctx, &model.DomainEvent{Type: model.DomainAppointmentStatusChanged, Appointment: appt, OldStatus: model.AppointmentScheduled})
	require.NoError(t, err)
	assert.Contains(t, f.notifier.templatesFor("student-1"), notify.TemplateAppointmentConfirmed)

	_, err = r.Handle(ctx, &model.DomainEvent{Type: "invoice.paid"})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = r.Handle(ctx, &model.DomainEvent{Type: model.DomainAppointmentCreated})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestHandoffNotifier(t *testing.T) {
	dir := &StaticDirectory{StudentIDs: []string{"s1", "s2"}}
	f := newFixture(t, dir)
	h := NewHandoffNotifier(f.triggers, logger.NewNop())
	ctx := context.Background()

	require.NoError(t, h.PublishConversationEvent(ctx, &model.ConversationEvent{Type: model.EventMessage, ConversationID: "c1"}))
	require.NoError(t, h.PublishConversationEvent(ctx, &model.ConversationEvent{Type: model.EventHandoffRequested, ConversationID: "c1"}))
	h.Wait()

	assert.Equal(t, []string{notify.TemplateHandoffWaiting}, f.notifier.templatesFor("s1"))
	assert.Equal(t, []string{notify.TemplateHandoffWaiting}, f.notifier.templatesFor("s2"))
}

func TestHTTPDirectory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("role") {
		case "coordinator":
			w.Write([]byte(`{"ids":["coord-1","coord-2"]}`))
		default:
			w.Write([]byte(`{"ids":["s1"]}`))
		}
	})
	mux.HandleFunc("GET /appointments/{id}/assignee", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "appt-1" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"student-4"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := NewHTTPDirectory(srv.URL, "", time.Second)
	ctx := context.Background()

	coords, err := d.Coordinators(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"coord-1", "coord-2"}, coords)

	students, err := d.Students(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, students)

	id, err := d.AssignedSpecialist(ctx, "appt-1")
	require.NoError(t, err)
	assert.Equal(t, "student-4", id)

	id, err = d.AssignedSpecialist(ctx, "appt-2")
	require.NoError(t, err)
	assert.Empty(t, id)
}
