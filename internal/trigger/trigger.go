// Package trigger turns appointment, training and handoff events into
// notifications for the people involved.
package trigger

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fiscaldesk/support-platform/internal/model"
	"github.com/fiscaldesk/support-platform/internal/notify"
	"github.com/fiscaldesk/support-platform/pkg/logger"
)

// AchievementScore is the training score that earns an extra achievement notice.
const AchievementScore = 90

const (
	groupStudents     = "students"
	groupCoordinators = "coordinators"
	groupDirect       = "direct"
)

// RecipientAssignee stands in for the specialist of an appointment when the
// directory could not resolve who that is.
const RecipientAssignee = "assignee"

// Notifier creates notifications from templates.
type Notifier interface {
	CreateFromTemplate(ctx context.Context, req *notify.TemplateRequest) (*model.Notification, error)
}

// Triggers maps domain events onto notifications.
type Triggers struct {
	notifier  Notifier
	directory Directory
	workers   int
	logger    *logger.Logger
}

// New creates the triggers. workers bounds concurrent broadcast deliveries.
func New(notifier Notifier, directory Directory, workers int, log *logger.Logger) *Triggers {
	if workers < 1 {
		workers = 1
	}
	return &Triggers{
		notifier:  notifier,
		directory: directory,
		workers:   workers,
		logger:    log.Component("trigger"),
	}
}

// OnAppointmentCreated notifies the assigned specialist and every coordinator.
// The two audiences are resolved separately: a directory failure for one is
// recorded as a failed delivery and the other is still notified.
func (t *Triggers) OnAppointmentCreated(ctx context.Context, appt *model.Appointment) (*BroadcastResult, error) {
	if err := validateAppointment(appt); err != nil {
		return nil, err
	}

	vars := appointmentVars(appt)
	meta := map[string]string{"appointment_id": appt.ID, "protocol": appt.Protocol}
	result := &BroadcastResult{}

	assignee, err := t.assignee(ctx, appt)
	switch {
	case err != nil:
		result.merge(lookupFailed(groupDirect, RecipientAssignee, notify.TemplateAppointmentScheduled, err))
	case assignee != "":
		result.merge(t.fanOut(ctx, groupDirect, []string{assignee}, model.RecipientSpecialist, notify.TemplateAppointmentScheduled, vars, meta))
	}

	coordinators, err := t.directory.Coordinators(ctx)
	if err != nil {
		result.merge(lookupFailed(groupCoordinators, groupCoordinators, notify.TemplateAppointmentCreatedSummary,
			fmt.Errorf("failed to list coordinators: %w", err)))
	} else {
		result.merge(t.fanOut(ctx, groupCoordinators, coordinators, model.RecipientCoordinator, notify.TemplateAppointmentCreatedSummary, vars, meta))
	}

	t.logResult("appointment created", result, zap.String("appointment_id", appt.ID))
	return result, nil
}

// OnAppointmentStatusChanged notifies the assigned specialist about
// confirmations, completions and cancellations. Other transitions are ignored.
func (t *Triggers) OnAppointmentStatusChanged(ctx context.Context, appt *model.Appointment, oldStatus, newStatus model.AppointmentStatus) (*BroadcastResult, error) {
	if err := validateAppointment(appt); err != nil {
		return nil, err
	}
	if oldStatus == newStatus {
		return &BroadcastResult{}, nil
	}

	var template string
	switch newStatus {
	case model.AppointmentConfirmed:
		template = notify.TemplateAppointmentConfirmed
	case model.AppointmentCompleted:
		template = notify.TemplateAppointmentCompleted
	case model.AppointmentCancelled:
		template = notify.TemplateAppointmentCancelled
	default:
		return &BroadcastResult{}, nil
	}

	assignee, err := t.assignee(ctx, appt)
	if err != nil {
		result := lookupFailed(groupDirect, RecipientAssignee, template, err)
		t.logResult("appointment status changed", result, zap.String("appointment_id", appt.ID))
		return result, nil
	}
	if assignee == "" {
		t.logger.Debug("no specialist assigned, skipping status notification", zap.String("appointment_id", appt.ID))
		return &BroadcastResult{}, nil
	}

	vars := appointmentVars(appt)
	vars["old_status"] = string(oldStatus)
	vars["status"] = string(newStatus)
	meta := map[string]string{"appointment_id": appt.ID, "status": string(newStatus)}

	result := t.fanOut(ctx, groupDirect, []string{assignee}, model.RecipientSpecialist, template, vars, meta)
	t.logResult("appointment status changed", result, zap.String("appointment_id", appt.ID))
	return result, nil
}

// OnTrainingAssigned notifies the student of a new training.
func (t *Triggers) OnTrainingAssigned(ctx context.Context, training *model.Training, studentID string) (*BroadcastResult, error) {
	if err := validateTraining(training, studentID); err != nil {
		return nil, err
	}
	result := t.fanOut(ctx, groupDirect, []string{studentID}, model.RecipientSpecialist,
		notify.TemplateTrainingAssigned, trainingVars(training, 0), map[string]string{"training_id": training.ID})
	return result, nil
}

// OnTrainingCompleted notifies the student of the result, adding an
// achievement notice for high scores.
func (t *Triggers) OnTrainingCompleted(ctx context.Context, training *model.Training, studentID string, score int) (*BroadcastResult, error) {
	if err := validateTraining(training, studentID); err != nil {
		return nil, err
	}
	if score < 0 || score > 100 {
		return nil, fmt.Errorf("%w: score must be between 0 and 100", model.ErrValidation)
	}

	vars := trainingVars(training, score)
	meta := map[string]string{"training_id": training.ID, "score": strconv.Itoa(score)}

	result := t.fanOut(ctx, groupDirect, []string{studentID}, model.RecipientSpecialist, notify.TemplateTrainingCompleted, vars, meta)
	if score >= AchievementScore {
		result.merge(t.fanOut(ctx, groupDirect, []string{studentID}, model.RecipientSpecialist, notify.TemplateTrainingAchievement, vars, meta))
	}
	return result, nil
}

// NotifyAllStudents sends a templated notification to every student. A
// directory failure is reported as a failed delivery to the whole group.
func (t *Triggers) NotifyAllStudents(ctx context.Context, template string, vars, metadata map[string]string) (*BroadcastResult, error) {
	var result *BroadcastResult
	if students, err := t.directory.Students(ctx); err != nil {
		result = lookupFailed(groupStudents, groupStudents, template, fmt.Errorf("failed to list students: %w", err))
	} else {
		result = t.fanOut(ctx, groupStudents, students, model.RecipientSpecialist, template, vars, metadata)
	}
	t.logResult("students notified", result, zap.String("template", template))
	return result, nil
}

// NotifyAllCoordinators sends a templated notification to every coordinator.
func (t *Triggers) NotifyAllCoordinators(ctx context.Context, template string, vars, metadata map[string]string) (*BroadcastResult, error) {
	var result *BroadcastResult
	if coordinators, err := t.directory.Coordinators(ctx); err != nil {
		result = lookupFailed(groupCoordinators, groupCoordinators, template, fmt.Errorf("failed to list coordinators: %w", err))
	} else {
		result = t.fanOut(ctx, groupCoordinators, coordinators, model.RecipientCoordinator, template, vars, metadata)
	}
	t.logResult("coordinators notified", result, zap.String("template", template))
	return result, nil
}

func (t *Triggers) assignee(ctx context.Context, appt *model.Appointment) (string, error) {
	if id := strings.TrimSpace(appt.AssignedTo); id != "" {
		return id, nil
	}
	id, err := t.directory.AssignedSpecialist(ctx, appt.ID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve assigned specialist: %w", err)
	}
	return id, nil
}

func (t *Triggers) logResult(msg string, result *BroadcastResult, fields ...zap.Field) {
	fields = append(fields,
		zap.Int("delivered", result.Succeeded()),
		zap.Int("failed", len(result.Failed())),
	)
	if err := result.Err(); err != nil {
		t.logger.Warn(msg, append(fields, zap.Error(err))...)
		return
	}
	t.logger.Info(msg, fields...)
}

func appointmentVars(appt *model.Appointment) map[string]string {
	assigned := appt.AssignedTo
	if assigned == "" {
		assigned = "unassigned"
	}
	return map[string]string{
		"appointment_id": appt.ID,
		"protocol":       appt.Protocol,
		"client_name":    appt.ClientName,
		"service_type":   appt.ServiceType,
		"scheduled_date": appt.ScheduledDate,
		"scheduled_time": appt.ScheduledTime,
		"assigned_to":    assigned,
		"status":         string(appt.Status),
	}
}

func trainingVars(training *model.Training, score int) map[string]string {
	return map[string]string{
		"training_id":    training.ID,
		"training_title": training.Title,
		"category":       training.Category,
		"due_date":       training.DueDate,
		"score":          strconv.Itoa(score),
	}
}

func validateAppointment(appt *model.Appointment) error {
	if appt == nil || strings.TrimSpace(appt.ID) == "" {
		return fmt.Errorf("%w: appointment with id is required", model.ErrValidation)
	}
	return nil
}

func validateTraining(training *model.Training, studentID string) error {
	if training == nil || strings.TrimSpace(training.ID) == "" {
		return fmt.Errorf("%w: training with id is required", model.ErrValidation)
	}
	if strings.TrimSpace(studentID) == "" {
		return fmt.Errorf("%w: student id is required", model.ErrValidation)
	}
	return nil
}
