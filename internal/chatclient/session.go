package chatclient

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fiscaldesk/support-platform/internal/model"
	"github.com/fiscaldesk/support-platform/pkg/logger"
)

// API is the server surface a session talks to.
type API interface {
	Fetcher
	SendMessage(ctx context.Context, conversationID string, req *model.AppendMessageRequest) (*model.Message, error)
	RequestHuman(ctx context.Context, conversationID string) (*model.Conversation, error)
}

// SessionState is a snapshot of a session's UI state.
type SessionState struct {
	Open             bool
	Unread           int
	Draft            string
	Status           model.ConversationStatus
	SpecialistOnline bool
	Ended            bool
	Watermark        uint64
}

// Session owns the client-side state of one participant's chat window and
// runs a Poller while the window is open.
type Session struct {
	api            API
	conversationID string
	participant    model.AppendMessageRequest
	cfg            PollerConfig
	callbacks      Callbacks
	log            *logger.Logger

	mu               sync.Mutex
	open             bool
	unread           int
	draft            string
	specialistOnline bool
	ended            bool
	watermark        uint64
	poller           *Poller
}

// NewSession creates a closed session. participantID and name are stamped on
// every sent message.
func NewSession(api API, conversationID, participantID, participantName string, cfg PollerConfig, callbacks Callbacks, log *logger.Logger) *Session {
	return &Session{
		api:            api,
		conversationID: conversationID,
		participant: model.AppendMessageRequest{
			SenderType: model.SenderParticipant,
			SenderID:   participantID,
			SenderName: participantName,
		},
		cfg:       cfg,
		callbacks: callbacks,
		log:       log,
		watermark: cfg.Watermark,
	}
}

// Open shows the chat and starts reconciliation unless the conversation has ended.
func (s *Session) Open(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return
	}
	s.open = true
	s.unread = 0
	if s.ended {
		return
	}

	cfg := s.cfg
	cfg.Watermark = s.watermark
	cfg.SpecialistOnlineSeen = s.specialistOnline
	s.poller = NewPoller(s.api, s.conversationID, cfg, Callbacks{
		OnMessages:         s.onMessages,
		OnStatus:           s.callbacks.OnStatus,
		OnSpecialistOnline: s.onSpecialistOnline,
		OnEnded:            s.onEnded,
		OnError:            s.callbacks.OnError,
	}, s.log)
	s.poller.Start(ctx)
}

// Close hides the chat and stops reconciliation. The draft is kept.
func (s *Session) Close() {
	s.mu.Lock()
	poller := s.poller
	s.poller = nil
	s.open = false
	s.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}
}

// Wait blocks until the running poller exits on its own, e.g. after the
// conversation ended, or ctx is done.
func (s *Session) Wait(ctx context.Context) {
	s.mu.Lock()
	poller := s.poller
	s.mu.Unlock()
	if poller == nil {
		return
	}

	select {
	case <-poller.Done():
	case <-ctx.Done():
	}
}

// MarkRead clears the unread indicator.
func (s *Session) MarkRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread = 0
}

// SetDraft replaces the unsent text.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
}

// Send posts the current draft. The draft is cleared only after the server
// accepted the message, so a failed send can simply be retried.
func (s *Session) Send(ctx context.Context) (*model.Message, error) {
	s.mu.Lock()
	draft := s.draft
	ended := s.ended
	req := s.participant
	s.mu.Unlock()

	if strings.TrimSpace(draft) == "" {
		return nil, fmt.Errorf("%w: nothing to send", model.ErrValidation)
	}
	if ended {
		return nil, fmt.Errorf("%w: conversation has ended", model.ErrPreconditionFailed)
	}

	req.Content = draft
	msg, err := s.api.SendMessage(ctx, s.conversationID, &req)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	s.mu.Lock()
	if s.draft == draft {
		s.draft = ""
	}
	s.mu.Unlock()
	return msg, nil
}

// RequestHuman asks the server for a specialist.
func (s *Session) RequestHuman(ctx context.Context) (model.ConversationStatus, error) {
	conv, err := s.api.RequestHuman(ctx, s.conversationID)
	if err != nil {
		return "", fmt.Errorf("failed to request specialist: %w", err)
	}
	return conv.Status, nil
}

// State returns a snapshot of the session.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SessionState{
		Open:             s.open,
		Unread:           s.unread,
		Draft:            s.draft,
		SpecialistOnline: s.specialistOnline,
		Ended:            s.ended,
		Watermark:        s.watermark,
	}
	if s.poller != nil {
		st.Status = s.poller.Status()
		st.Watermark = s.poller.Watermark()
	}
	return st
}

func (s *Session) onMessages(messages []model.Message) {
	s.mu.Lock()
	for _, m := range messages {
		if m.SenderType != model.SenderParticipant {
			s.unread++
		}
		s.watermark = m.Sequence
	}
	s.mu.Unlock()

	if s.callbacks.OnMessages != nil {
		s.callbacks.OnMessages(messages)
	}
}

func (s *Session) onSpecialistOnline() {
	s.mu.Lock()
	s.specialistOnline = true
	s.mu.Unlock()

	if s.callbacks.OnSpecialistOnline != nil {
		s.callbacks.OnSpecialistOnline()
	}
}

func (s *Session) onEnded() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()

	if s.callbacks.OnEnded != nil {
		s.callbacks.OnEnded()
	}
}
