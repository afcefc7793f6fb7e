package store

import (
	"context"
	"time"

	"github.com/fiscaldesk/support-platform/internal/model"
)

// memoryTx journals the conversations it writes to and restores them when
// the transaction fails. Callers serialize writes per conversation, so no
// other writer can interleave with a journaled conversation.
type memoryTx struct {
	*MemoryStore
	saved map[string]memorySnapshot
}

type memorySnapshot struct {
	conversation *model.Conversation
	messages     int
	handoffs     []model.HandoffRequest
	feedback     *model.Feedback
}

// WithinTx runs fn against a journaled view of the store and undoes its
// writes if fn returns an error.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memoryTx{MemoryStore: s, saved: make(map[string]memorySnapshot)}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (t *memoryTx) touch(conversationID string) {
	if _, ok := t.saved[conversationID]; ok {
		return
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var snap memorySnapshot
	if conv, ok := t.conversations[conversationID]; ok {
		c := *conv
		snap.conversation = &c
	}
	snap.messages = len(t.messages[conversationID])
	if list, ok := t.handoffs[conversationID]; ok {
		snap.handoffs = make([]model.HandoffRequest, len(list))
		copy(snap.handoffs, list)
	}
	if fb, ok := t.feedback[conversationID]; ok {
		snap.feedback = &fb
	}
	t.saved[conversationID] = snap
}

func (t *memoryTx) rollback() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, snap := range t.saved {
		if snap.conversation != nil {
			t.conversations[id] = snap.conversation
		} else {
			delete(t.conversations, id)
		}

		if snap.messages == 0 {
			delete(t.messages, id)
		} else if log := t.messages[id]; len(log) > snap.messages {
			t.messages[id] = log[:snap.messages]
		}

		if snap.handoffs != nil {
			t.handoffs[id] = snap.handoffs
		} else {
			delete(t.handoffs, id)
		}

		if snap.feedback != nil {
			t.feedback[id] = *snap.feedback
		} else {
			delete(t.feedback, id)
		}
	}
}

func (t *memoryTx) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	t.touch(conv.ID)
	return t.MemoryStore.CreateConversation(ctx, conv)
}

func (t *memoryTx) UpdateConversation(ctx context.Context, conv *model.Conversation) error {
	t.touch(conv.ID)
	return t.MemoryStore.UpdateConversation(ctx, conv)
}

func (t *memoryTx) Append(ctx context.Context, msg *model.Message) error {
	t.touch(msg.ConversationID)
	return t.MemoryStore.Append(ctx, msg)
}

func (t *memoryTx) CreateHandoff(ctx context.Context, req *model.HandoffRequest) error {
	t.touch(req.ConversationID)
	return t.MemoryStore.CreateHandoff(ctx, req)
}

func (t *memoryTx) ResolveHandoff(ctx context.Context, conversationID string, resolution model.HandoffResolution, at time.Time) error {
	t.touch(conversationID)
	return t.MemoryStore.ResolveHandoff(ctx, conversationID, resolution, at)
}

func (t *memoryTx) CreateFeedback(ctx context.Context, fb *model.Feedback) error {
	t.touch(fb.ConversationID)
	return t.MemoryStore.CreateFeedback(ctx, fb)
}
