package model

import (
	"time"
)

// RecipientType identifies the audience a notification is addressed to.
type RecipientType string

const (
	RecipientParticipant RecipientType = "participant"
	RecipientSpecialist  RecipientType = "specialist"
	RecipientCoordinator RecipientType = "coordinator"
)

// Valid reports whether t is a known recipient type.
func (t RecipientType) Valid() bool {
	switch t {
	case RecipientParticipant, RecipientSpecialist, RecipientCoordinator:
		return true
	}
	return false
}

// Priority is the urgency of a notification.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Notification is a persisted message addressed to a single recipient.
type Notification struct {
	ID            string            `json:"id"`
	RecipientID   string            `json:"recipient_id"`
	RecipientType RecipientType     `json:"recipient_type"`
	Title         string            `json:"title"`
	Message       string            `json:"message"`
	Type          string            `json:"type"`
	Priority      Priority          `json:"priority"`
	ActionURL     string            `json:"action_url,omitempty"`
	Icon          string            `json:"icon,omitempty"`
	Color         string            `json:"color,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty"`
	Read          bool              `json:"read"`
	ReadAt        *time.Time        `json:"read_at,omitempty"`
	EmailSent     bool              `json:"email_sent"`
}

// Expired reports whether the notification is past its expiry at now.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && !now.Before(*n.ExpiresAt)
}

// ListNotificationsResponse is the response for listing notifications.
type ListNotificationsResponse struct {
	Notifications []Notification `json:"notifications"`
	Unread        int            `json:"unread"`
}
