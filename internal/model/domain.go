package model

import (
	"time"
)

// AppointmentStatus is the lifecycle state of an appointment owned by the scheduling system.
type AppointmentStatus string

const (
	AppointmentScheduled  AppointmentStatus = "scheduled"
	AppointmentConfirmed  AppointmentStatus = "confirmed"
	AppointmentInProgress AppointmentStatus = "in_progress"
	AppointmentCompleted  AppointmentStatus = "completed"
	AppointmentCancelled  AppointmentStatus = "cancelled"
	AppointmentNoShow     AppointmentStatus = "no_show"
)

// Appointment is the subset of a scheduling record carried by domain events.
type Appointment struct {
	ID            string            `json:"id"`
	Protocol      string            `json:"protocol"`
	ClientName    string            `json:"client_name"`
	ServiceType   string            `json:"service_type"`
	ScheduledDate string            `json:"scheduled_date"`
	ScheduledTime string            `json:"scheduled_time"`
	AssignedTo    string            `json:"assigned_to,omitempty"`
	Status        AppointmentStatus `json:"status"`
}

// Training is the subset of a training record carried by domain events.
type Training struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category,omitempty"`
	DueDate  string `json:"due_date,omitempty"`
}

// DomainEventType names an event emitted by an external collaborator.
type DomainEventType string

const (
	DomainAppointmentCreated       DomainEventType = "appointment.created"
	DomainAppointmentStatusChanged DomainEventType = "appointment.status_changed"
	DomainTrainingAssigned         DomainEventType = "training.assigned"
	DomainTrainingCompleted        DomainEventType = "training.completed"
)

// DomainEvent is the envelope appointment and training subsystems publish.
type DomainEvent struct {
	ID          string            `json:"id,omitempty"`
	Type        DomainEventType   `json:"type"`
	Appointment *Appointment      `json:"appointment,omitempty"`
	OldStatus   AppointmentStatus `json:"old_status,omitempty"`
	NewStatus   AppointmentStatus `json:"new_status,omitempty"`
	Training    *Training         `json:"training,omitempty"`
	StudentID   string            `json:"student_id,omitempty"`
	Score       int               `json:"score,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}
