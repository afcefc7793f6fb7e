package model

import (
	"time"
)

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderParticipant SenderType = "participant"
	SenderAssistant   SenderType = "assistant"
	SenderSpecialist  SenderType = "specialist"
	SenderSystem      SenderType = "system"
)

// Valid reports whether t is a known sender type.
func (t SenderType) Valid() bool {
	switch t {
	case SenderParticipant, SenderAssistant, SenderSpecialist, SenderSystem:
		return true
	}
	return false
}

// Message represents a conversation message. Messages are immutable once appended.
type Message struct {
	// Identity
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Sequence       uint64 `json:"sequence"`

	// Author
	SenderType SenderType `json:"sender_type"`
	SenderID   string     `json:"sender_id,omitempty"`
	SenderName string     `json:"sender_name"`

	// Content
	Content string `json:"content"`

	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

// AppendMessageRequest is the request to post a message into a conversation.
type AppendMessageRequest struct {
	SenderType SenderType `json:"sender_type"`
	SenderID   string     `json:"sender_id,omitempty"`
	SenderName string     `json:"sender_name"`
	Content    string     `json:"content"`
}

// AppendMessageResponse is the response after posting a message.
type AppendMessageResponse struct {
	Message *Message           `json:"message"`
	Status  ConversationStatus `json:"status"`
}

// ListMessagesResponse is the response for fetching messages after a watermark.
type ListMessagesResponse struct {
	Messages     []Message          `json:"messages"`
	LastSequence uint64             `json:"last_sequence"`
	Status       ConversationStatus `json:"status"`
}

// ErrorEvent is emitted on the SSE stream when reconciliation fails.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent keeps idle SSE connections alive.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
