// Package store persists conversations, messages, handoffs, feedback and notifications.
package store

import (
	"context"
	"time"

	"github.com/fiscaldesk/support-platform/internal/model"
)

// ConversationRepository stores conversation records.
type ConversationRepository interface {
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	UpdateConversation(ctx context.Context, conv *model.Conversation) error
	ListConversations(ctx context.Context, status model.ConversationStatus) ([]model.Conversation, error)
}

// MessageLog is the append-only, per-conversation ordered message storage.
type MessageLog interface {
	// Append assigns msg.Sequence as the next sequence of its conversation and persists it.
	Append(ctx context.Context, msg *model.Message) error

	// Since returns messages with sequence > since in ascending order.
	// A non-positive limit returns everything.
	Since(ctx context.Context, conversationID string, since uint64, limit int) ([]model.Message, error)

	// LastSequence returns the highest sequence appended, or 0.
	LastSequence(ctx context.Context, conversationID string) (uint64, error)
}

// HandoffRepository stores escalation requests.
type HandoffRepository interface {
	CreateHandoff(ctx context.Context, req *model.HandoffRequest) error
	// OpenHandoff returns the unresolved request of a conversation or ErrNotFound.
	OpenHandoff(ctx context.Context, conversationID string) (*model.HandoffRequest, error)
	ResolveHandoff(ctx context.Context, conversationID string, resolution model.HandoffResolution, at time.Time) error
	ListHandoffs(ctx context.Context, conversationID string) ([]model.HandoffRequest, error)
	// StaleHandoffs returns unresolved requests made before cutoff.
	StaleHandoffs(ctx context.Context, cutoff time.Time) ([]model.HandoffRequest, error)
}

// FeedbackRepository stores conversation ratings.
type FeedbackRepository interface {
	CreateFeedback(ctx context.Context, fb *model.Feedback) error
	GetFeedback(ctx context.Context, conversationID string) (*model.Feedback, error)
}

// NotificationRepository stores notifications.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	GetNotification(ctx context.Context, id string) (*model.Notification, error)
	SetEmailSent(ctx context.Context, id string, sent bool) error
	// ListNotifications returns unexpired notifications of a recipient, newest first.
	ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, now time.Time) ([]model.Notification, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Tx is the conversation state that commits or rolls back as one unit.
type Tx interface {
	ConversationRepository
	MessageLog
	HandoffRepository
	FeedbackRepository
}

// Transactor runs fn so that its writes commit together or not at all.
// An error from fn rolls every write back, including consumed sequences.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Store groups every repository behind one backend.
type Store interface {
	ConversationRepository
	MessageLog
	HandoffRepository
	FeedbackRepository
	NotificationRepository
	Transactor

	Ping(ctx context.Context) error
	Close() error
}
