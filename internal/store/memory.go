package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fiscaldesk/support-platform/internal/model"
)

// MemoryStore keeps every record in process memory. Records are copied on
// the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	messages      map[string][]model.Message
	handoffs      map[string][]model.HandoffRequest
	feedback      map[string]model.Feedback
	notifications map[string]*model.Notification
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]model.Message),
		handoffs:      make(map[string][]model.HandoffRequest),
		feedback:      make(map[string]model.Feedback),
		notifications: make(map[string]*model.Notification),
	}
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[conv.ID]; exists {
		return fmt.Errorf("%w: conversation %s already exists", model.ErrPreconditionFailed, conv.ID)
	}
	c := *conv
	s.conversations[conv.ID] = &c
	return nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, exists := s.conversations[id]
	if !exists {
		return nil, fmt.Errorf("%w: conversation %s", model.ErrNotFound, id)
	}
	c := *conv
	return &c, nil
}

func (s *MemoryStore) UpdateConversation(ctx context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[conv.ID]; !exists {
		return fmt.Errorf("%w: conversation %s", model.ErrNotFound, conv.ID)
	}
	c := *conv
	s.conversations[conv.ID] = &c
	return nil
}

func (s *MemoryStore) ListConversations(ctx context.Context, status model.ConversationStatus) ([]model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	convs := make([]model.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		if status == "" || conv.Status == status {
			convs = append(convs, *conv)
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].CreatedAt.Before(convs[j].CreatedAt)
	})
	return convs, nil
}

func (s *MemoryStore) Append(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[msg.ConversationID]; !exists {
		return fmt.Errorf("%w: conversation %s", model.ErrNotFound, msg.ConversationID)
	}
	log := s.messages[msg.ConversationID]
	msg.Sequence = uint64(len(log)) + 1
	s.messages[msg.ConversationID] = append(log, *msg)
	return nil
}

func (s *MemoryStore) Since(ctx context.Context, conversationID string, since uint64, limit int) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.messages[conversationID]
	if since >= uint64(len(log)) {
		return []model.Message{}, nil
	}
	// Sequences are 1-based and gapless, so the slice index is sequence-1.
	tail := log[since:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}
	out := make([]model.Message, len(tail))
	copy(out, tail)
	return out, nil
}

func (s *MemoryStore) LastSequence(ctx context.Context, conversationID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.messages[conversationID])), nil
}

func (s *MemoryStore) CreateHandoff(ctx context.Context, req *model.HandoffRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range s.handoffs[req.ConversationID] {
		if h.Open() {
			return fmt.Errorf("%w: conversation %s already has an open handoff", model.ErrPreconditionFailed, req.ConversationID)
		}
	}
	s.handoffs[req.ConversationID] = append(s.handoffs[req.ConversationID], *req)
	return nil
}

func (s *MemoryStore) OpenHandoff(ctx context.Context, conversationID string) (*model.HandoffRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, h := range s.handoffs[conversationID] {
		if h.Open() {
			req := h
			return &req, nil
		}
	}
	return nil, fmt.Errorf("%w: open handoff for %s", model.ErrNotFound, conversationID)
}

func (s *MemoryStore) ResolveHandoff(ctx context.Context, conversationID string, resolution model.HandoffResolution, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.handoffs[conversationID]
	for i := range list {
		if list[i].Open() {
			resolved := at
			list[i].ResolvedAt = &resolved
			list[i].Resolution = resolution
			return nil
		}
	}
	return fmt.Errorf("%w: open handoff for %s", model.ErrNotFound, conversationID)
}

func (s *MemoryStore) ListHandoffs(ctx context.Context, conversationID string) ([]model.HandoffRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.HandoffRequest, len(s.handoffs[conversationID]))
	copy(out, s.handoffs[conversationID])
	return out, nil
}

func (s *MemoryStore) StaleHandoffs(ctx context.Context, cutoff time.Time) ([]model.HandoffRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.HandoffRequest
	for _, list := range s.handoffs {
		for _, h := range list {
			if h.Open() && h.RequestedAt.Before(cutoff) {
				out = append(out, h)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out, nil
}

func (s *MemoryStore) CreateFeedback(ctx context.Context, fb *model.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.feedback[fb.ConversationID]; exists {
		return fmt.Errorf("%w: feedback already submitted for %s", model.ErrPreconditionFailed, fb.ConversationID)
	}
	s.feedback[fb.ConversationID] = *fb
	return nil
}

func (s *MemoryStore) GetFeedback(ctx context.Context, conversationID string) (*model.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fb, exists := s.feedback[conversationID]
	if !exists {
		return nil, fmt.Errorf("%w: feedback for %s", model.ErrNotFound, conversationID)
	}
	return &fb, nil
}

func (s *MemoryStore) CreateNotification(ctx context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifications[n.ID] = cloneNotification(n)
	return nil
}

func (s *MemoryStore) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, exists := s.notifications[id]
	if !exists {
		return nil, fmt.Errorf("%w: notification %s", model.ErrNotFound, id)
	}
	return cloneNotification(n), nil
}

func (s *MemoryStore) SetEmailSent(ctx context.Context, id string, sent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, exists := s.notifications[id]
	if !exists {
		return fmt.Errorf("%w: notification %s", model.ErrNotFound, id)
	}
	n.EmailSent = sent
	return nil
}

func (s *MemoryStore) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, now time.Time) ([]model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Notification
	for _, n := range s.notifications {
		if n.RecipientID != recipientID || n.Expired(now) {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, *cloneNotification(n))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, exists := s.notifications[id]
	if !exists {
		return fmt.Errorf("%w: notification %s", model.ErrNotFound, id)
	}
	if !n.Read {
		readAt := at
		n.Read = true
		n.ReadAt = &readAt
	}
	return nil
}

func (s *MemoryStore) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, n := range s.notifications {
		if n.RecipientID == recipientID && !n.Read {
			readAt := at
			n.Read = true
			n.ReadAt = &readAt
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, n := range s.notifications {
		if n.Expired(now) {
			delete(s.notifications, id)
			count++
		}
	}
	return count, nil
}

func cloneNotification(n *model.Notification) *model.Notification {
	c := *n
	if n.Metadata != nil {
		c.Metadata = make(map[string]string, len(n.Metadata))
		for k, v := range n.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
