package model

import (
	"time"
)

// EventType represents the type of conversation event.
type EventType string

const (
	EventCreated          EventType = "created"
	EventMessage          EventType = "message"
	EventStatusChanged    EventType = "status_changed"
	EventHandoffRequested EventType = "handoff_requested"
	EventHandoffResolved  EventType = "handoff_resolved"
	EventFeedback         EventType = "feedback"
)

// ConversationEvent is a change in a conversation, mirrored to the event bus.
type ConversationEvent struct {
	ID             string             `json:"id"`
	ConversationID string             `json:"conversation_id"`
	ParticipantID  string             `json:"participant_id,omitempty"`
	Type           EventType          `json:"type"`
	FromStatus     ConversationStatus `json:"from_status,omitempty"`
	ToStatus       ConversationStatus `json:"to_status,omitempty"`
	Sequence       uint64             `json:"sequence,omitempty"`
	Reason         string             `json:"reason,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}
