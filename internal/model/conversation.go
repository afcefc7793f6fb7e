// Package model defines data structures for the support platform.
package model

import (
	"time"
)

// ConversationStatus is the lifecycle state of a support conversation.
type ConversationStatus string

const (
	StatusAI           ConversationStatus = "ai"
	StatusWaitingHuman ConversationStatus = "waiting_human"
	StatusActiveHuman  ConversationStatus = "active_human"
	StatusEnded        ConversationStatus = "ended"
)

// Valid reports whether s is a known status.
func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusAI, StatusWaitingHuman, StatusActiveHuman, StatusEnded:
		return true
	}
	return false
}

// rank orders statuses along the forward-only lifecycle.
func (s ConversationStatus) rank() int {
	switch s {
	case StatusAI:
		return 0
	case StatusWaitingHuman:
		return 1
	case StatusActiveHuman:
		return 2
	case StatusEnded:
		return 3
	}
	return -1
}

// CanTransition reports whether a conversation may move from s to next.
// Statuses only advance one step along ai -> waiting_human -> active_human,
// and ended is reachable from every non-terminal status through Close.
func (s ConversationStatus) CanTransition(next ConversationStatus) bool {
	if s == StatusEnded || !next.Valid() || !s.Valid() {
		return false
	}
	if next == StatusEnded {
		return true
	}
	return next.rank() == s.rank()+1
}

// Conversation represents a support chat session.
type Conversation struct {
	ID                   string             `json:"id"`
	ParticipantID        string             `json:"participant_id"`
	Status               ConversationStatus `json:"status"`
	AssignedSpecialistID string             `json:"assigned_specialist_id,omitempty"`
	LastSequence         uint64             `json:"last_sequence"`
	CreatedAt            time.Time          `json:"created_at"`
	LastActivityAt       time.Time          `json:"last_activity_at"`
	EndedAt              *time.Time         `json:"ended_at,omitempty"`
}

// HandoffResolution records how a handoff request was closed.
type HandoffResolution string

const (
	HandoffAccepted HandoffResolution = "accepted"
	HandoffExpired  HandoffResolution = "expired"
	HandoffClosed   HandoffResolution = "closed"
)

// HandoffRequest is an escalation from the assistant to a human specialist.
type HandoffRequest struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	RequestedAt    time.Time         `json:"requested_at"`
	ResolvedAt     *time.Time        `json:"resolved_at,omitempty"`
	Resolution     HandoffResolution `json:"resolution,omitempty"`
}

// Open reports whether the request is still unresolved.
func (h *HandoffRequest) Open() bool {
	return h.ResolvedAt == nil
}

// Feedback is a participant rating of an ended conversation.
type Feedback struct {
	ConversationID string    `json:"conversation_id"`
	Rating         int       `json:"rating"`
	Comment        string    `json:"comment,omitempty"`
	SpecialistID   string    `json:"specialist_id,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// CreateConversationRequest is the request to open a conversation.
type CreateConversationRequest struct {
	ParticipantID string `json:"participant_id,omitempty"`
}

// HandoffRequestBody is the request to escalate to a human.
type HandoffRequestBody struct {
	ParticipantID string `json:"participant_id,omitempty"`
}

// CloseConversationRequest is the request to end a conversation.
type CloseConversationRequest struct {
	ClosingMessage string `json:"closing_message"`
}

// FeedbackRequest is the request to rate an ended conversation.
type FeedbackRequest struct {
	ConversationID string `json:"-"`
	Rating         int    `json:"rating"`
	Comment        string `json:"comment,omitempty"`
	SpecialistID   string `json:"specialist_id,omitempty"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}
