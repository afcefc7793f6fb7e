// Package service provides business logic for the support platform.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fiscaldesk/support-platform/internal/model"
	"github.com/fiscaldesk/support-platform/internal/store"
	"github.com/fiscaldesk/support-platform/pkg/logger"
	"github.com/fiscaldesk/support-platform/pkg/metrics"
	"github.com/fiscaldesk/support-platform/pkg/tracing"
)

const (
	// MaxContentLength bounds a single message body.
	MaxContentLength = 100_000

	// MaxCommentLength bounds a feedback comment.
	MaxCommentLength = 2_000

	systemSenderName = "Sistema"

	handoffNotice  = "We are connecting you with a specialist. Please stay on this chat, someone will join shortly."
	defaultClosing = "This conversation has been closed. Thank you for contacting us."
	expiredNotice  = "No specialist was available to take over this conversation, so it has been closed. Please open a new conversation or schedule an appointment."
)

// Repository is the persistence the conversation service needs.
type Repository interface {
	store.ConversationRepository
	store.MessageLog
	store.HandoffRepository
	store.FeedbackRepository
	store.Transactor
}

// ConversationService owns conversation state and every status transition.
// All writes to one conversation are serialized; different conversations
// proceed in parallel.
type ConversationService struct {
	repo      Repository
	detector  EscalationDetector
	publisher EventPublisher
	logger    *logger.Logger
	tracer    trace.Tracer
	locks     *keyedMutex
	now       func() time.Time
}

// Option configures a ConversationService.
type Option func(*ConversationService)

// WithDetector replaces the escalation detector.
func WithDetector(d EscalationDetector) Option {
	return func(s *ConversationService) { s.detector = d }
}

// WithPublisher sets where conversation events are published.
func WithPublisher(p EventPublisher) Option {
	return func(s *ConversationService) { s.publisher = p }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *ConversationService) { s.now = now }
}

// NewConversationService creates a new conversation service.
func NewConversationService(repo Repository, log *logger.Logger, opts ...Option) *ConversationService {
	s := &ConversationService{
		repo:      repo,
		detector:  NewPhraseDetector(nil),
		publisher: NopPublisher{},
		logger:    log.Component("conversation"),
		tracer:    tracing.Tracer("service"),
		locks:     newKeyedMutex(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a conversation in the ai status.
func (s *ConversationService) Create(ctx context.Context, participantID string) (*model.Conversation, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, fmt.Errorf("%w: participant id is required", model.ErrValidation)
	}

	now := s.now()
	conv := &model.Conversation{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ParticipantID:  participantID,
		Status:         model.StatusAI,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	metrics.ConversationsTotal.Inc()
	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("participant_id", participantID),
	)
	s.publish(ctx, s.event(conv, model.EventCreated, func(e *model.ConversationEvent) {
		e.ToStatus = conv.Status
	}))

	return conv, nil
}

// Get retrieves a conversation by ID.
func (s *ConversationService) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	return s.repo.GetConversation(ctx, conversationID)
}

// ListByStatus lists conversations, optionally filtered by status.
func (s *ConversationService) ListByStatus(ctx context.Context, status model.ConversationStatus) ([]model.Conversation, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrValidation, status)
	}
	return s.repo.ListConversations(ctx, status)
}

// Messages returns messages with sequence greater than since, in order.
func (s *ConversationService) Messages(ctx context.Context, conversationID string, since uint64, limit int) ([]model.Message, error) {
	if _, err := s.repo.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.repo.Since(ctx, conversationID, since, limit)
}

// AppendMessage persists a message and applies the transition rules it triggers.
func (s *ConversationService) AppendMessage(ctx context.Context, conversationID string, req *model.AppendMessageRequest) (*model.Message, error) {
	msg, _, err := s.AppendIfStatus(ctx, conversationID, req, "")
	return msg, err
}

// AppendIfStatus behaves like AppendMessage but only appends while the
// conversation is in want. An empty want accepts any non-ended status.
// The boolean reports whether the message was appended.
func (s *ConversationService) AppendIfStatus(ctx context.Context, conversationID string, req *model.AppendMessageRequest, want model.ConversationStatus) (*model.Message, bool, error) {
	if err := validateAppend(req); err != nil {
		metrics.MessagesRejected.WithLabelValues("invalid").Inc()
		return nil, false, err
	}

	ctx, span := s.tracer.Start(ctx, "conversation.append", trace.WithAttributes(
		attribute.String("conversation_id", conversationID),
		attribute.String("sender_type", string(req.SenderType)),
	))
	defer span.End()

	unlock := s.locks.Lock(conversationID)
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		unlock()
		return nil, false, err
	}
	if conv.Status == model.StatusEnded {
		unlock()
		metrics.MessagesRejected.WithLabelValues("ended").Inc()
		return nil, false, fmt.Errorf("%w: conversation %s has ended", model.ErrPreconditionFailed, conversationID)
	}
	if want != "" && conv.Status != want {
		unlock()
		return nil, false, nil
	}

	var (
		msg    *model.Message
		events []*model.ConversationEvent
	)
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		msg, events, err = s.appendLocked(ctx, tx, conv, req)
		return err
	})
	unlock()
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}

	for _, e := range events {
		s.publish(ctx, e)
	}
	return msg, true, nil
}

// appendLocked writes the message, any transition it triggers and the
// conversation row in tx. Nothing is kept unless all of it succeeds.
func (s *ConversationService) appendLocked(ctx context.Context, tx store.Tx, conv *model.Conversation, req *model.AppendMessageRequest) (*model.Message, []*model.ConversationEvent, error) {
	msg, err := s.writeMessage(ctx, tx, conv, req)
	if err != nil {
		return nil, nil, err
	}
	events := []*model.ConversationEvent{s.event(conv, model.EventMessage, func(e *model.ConversationEvent) {
		e.Sequence = msg.Sequence
	})}

	switch {
	case req.SenderType == model.SenderParticipant && conv.Status == model.StatusAI && s.detector.Detect(req.Content):
		escalated, err := s.escalateLocked(ctx, tx, conv, "escalation phrase")
		if err != nil {
			return nil, nil, err
		}
		events = append(events, escalated...)

	case req.SenderType == model.SenderSpecialist && conv.Status == model.StatusWaitingHuman:
		accepted, err := s.acceptLocked(ctx, tx, conv, req.SenderID)
		if err != nil {
			return nil, nil, err
		}
		events = append(events, accepted...)
	}

	if err := tx.UpdateConversation(ctx, conv); err != nil {
		return nil, nil, fmt.Errorf("failed to update conversation: %w", err)
	}
	return msg, events, nil
}

// RequestHuman escalates a conversation to a specialist. It is a no-op when
// a specialist is already requested or engaged.
func (s *ConversationService) RequestHuman(ctx context.Context, conversationID, participantID string) (*model.Conversation, error) {
	unlock := s.locks.Lock(conversationID)
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		unlock()
		return nil, err
	}
	if participantID != "" && participantID != conv.ParticipantID {
		unlock()
		return nil, fmt.Errorf("%w: participant %s does not own conversation %s", model.ErrPreconditionFailed, participantID, conversationID)
	}

	switch conv.Status {
	case model.StatusEnded:
		unlock()
		return nil, fmt.Errorf("%w: conversation %s has ended", model.ErrPreconditionFailed, conversationID)
	case model.StatusWaitingHuman, model.StatusActiveHuman:
		unlock()
		return conv, nil
	}

	var events []*model.ConversationEvent
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		if events, err = s.escalateLocked(ctx, tx, conv, "explicit request"); err != nil {
			return err
		}
		return tx.UpdateConversation(ctx, conv)
	})
	unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to request handoff: %w", err)
	}

	for _, e := range events {
		s.publish(ctx, e)
	}
	return conv, nil
}

// Close appends a closing system message and ends the conversation.
func (s *ConversationService) Close(ctx context.Context, conversationID, closingMessage string) (*model.Conversation, error) {
	if strings.TrimSpace(closingMessage) == "" {
		closingMessage = defaultClosing
	}
	if err := validateContent(closingMessage); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(conversationID)
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		unlock()
		return nil, err
	}
	if conv.Status == model.StatusEnded {
		unlock()
		return nil, fmt.Errorf("%w: conversation %s has already ended", model.ErrPreconditionFailed, conversationID)
	}

	events, err := s.endInTx(ctx, conv, closingMessage, model.HandoffClosed)
	unlock()
	if err != nil {
		return nil, err
	}

	for _, e := range events {
		s.publish(ctx, e)
	}
	s.logger.Info("conversation closed", zap.String("conversation_id", conversationID))
	return conv, nil
}

// ExpireHandoff ends a conversation whose handoff request went unanswered.
// It reports false when the conversation is no longer waiting for a human.
func (s *ConversationService) ExpireHandoff(ctx context.Context, conversationID string) (bool, error) {
	unlock := s.locks.Lock(conversationID)
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		unlock()
		return false, err
	}
	if conv.Status != model.StatusWaitingHuman {
		unlock()
		return false, nil
	}

	events, err := s.endInTx(ctx, conv, expiredNotice, model.HandoffExpired)
	unlock()
	if err != nil {
		return false, err
	}

	for _, e := range events {
		s.publish(ctx, e)
	}
	s.logger.Warn("handoff expired without a specialist", zap.String("conversation_id", conversationID))
	return true, nil
}

// SubmitFeedback records a rating for an ended conversation.
func (s *ConversationService) SubmitFeedback(ctx context.Context, req *model.FeedbackRequest) (*model.Feedback, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, fmt.Errorf("%w: rating must be an integer between 1 and 5", model.ErrValidation)
	}
	if utf8.RuneCountInString(req.Comment) > MaxCommentLength {
		return nil, fmt.Errorf("%w: comment exceeds maximum length", model.ErrValidation)
	}

	unlock := s.locks.Lock(req.ConversationID)
	defer unlock()

	conv, err := s.repo.GetConversation(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status != model.StatusEnded {
		return nil, fmt.Errorf("%w: feedback is accepted only after the conversation ends", model.ErrPreconditionFailed)
	}

	fb := &model.Feedback{
		ConversationID: conv.ID,
		Rating:         req.Rating,
		Comment:        strings.TrimSpace(req.Comment),
		SpecialistID:   req.SpecialistID,
		SubmittedAt:    s.now(),
	}
	if fb.SpecialistID == "" {
		fb.SpecialistID = conv.AssignedSpecialistID
	}
	if err := s.repo.CreateFeedback(ctx, fb); err != nil {
		return nil, err
	}

	s.publish(ctx, s.event(conv, model.EventFeedback, func(e *model.ConversationEvent) {
		e.Reason = fmt.Sprintf("rating=%d", fb.Rating)
	}))
	return fb, nil
}

// escalateLocked moves an ai conversation to waiting_human. Callers hold the
// conversation lock and persist conv in the same tx afterwards.
func (s *ConversationService) escalateLocked(ctx context.Context, tx store.Tx, conv *model.Conversation, reason string) ([]*model.ConversationEvent, error) {
	if !conv.Status.CanTransition(model.StatusWaitingHuman) {
		return nil, fmt.Errorf("%w: cannot request a specialist from %s", model.ErrPreconditionFailed, conv.Status)
	}

	req := &model.HandoffRequest{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		RequestedAt:    s.now(),
	}
	if err := tx.CreateHandoff(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create handoff request: %w", err)
	}

	from := conv.Status
	conv.Status = model.StatusWaitingHuman
	notice, err := s.writeMessage(ctx, tx, conv, &model.AppendMessageRequest{
		SenderType: model.SenderSystem,
		SenderName: systemSenderName,
		Content:    handoffNotice,
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTransition(string(from), string(conv.Status))
	metrics.HandoffsTotal.WithLabelValues("requested").Inc()
	s.logger.Info("handoff requested",
		zap.String("conversation_id", conv.ID),
		zap.String("reason", reason),
	)

	return []*model.ConversationEvent{
		s.event(conv, model.EventHandoffRequested, func(e *model.ConversationEvent) {
			e.Reason = reason
		}),
		s.event(conv, model.EventStatusChanged, func(e *model.ConversationEvent) {
			e.FromStatus = from
			e.ToStatus = conv.Status
		}),
		s.event(conv, model.EventMessage, func(e *model.ConversationEvent) {
			e.Sequence = notice.Sequence
		}),
	}, nil
}

func (s *ConversationService) acceptLocked(ctx context.Context, tx store.Tx, conv *model.Conversation, specialistID string) ([]*model.ConversationEvent, error) {
	if err := tx.ResolveHandoff(ctx, conv.ID, model.HandoffAccepted, s.now()); err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("failed to resolve handoff: %w", err)
	}

	from := conv.Status
	conv.Status = model.StatusActiveHuman
	if specialistID != "" {
		conv.AssignedSpecialistID = specialistID
	}

	metrics.RecordTransition(string(from), string(conv.Status))
	metrics.HandoffsTotal.WithLabelValues("accepted").Inc()
	s.logger.Info("specialist joined conversation",
		zap.String("conversation_id", conv.ID),
		zap.String("specialist_id", specialistID),
	)

	return []*model.ConversationEvent{
		s.event(conv, model.EventHandoffResolved, func(e *model.ConversationEvent) {
			e.Reason = string(model.HandoffAccepted)
		}),
		s.event(conv, model.EventStatusChanged, func(e *model.ConversationEvent) {
			e.FromStatus = from
			e.ToStatus = conv.Status
		}),
	}, nil
}

func (s *ConversationService) endInTx(ctx context.Context, conv *model.Conversation, content string, resolution model.HandoffResolution) ([]*model.ConversationEvent, error) {
	var events []*model.ConversationEvent
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		events, err = s.endLocked(ctx, tx, conv, content, resolution)
		return err
	})
	return events, err
}

// endLocked appends the final system message, resolves any open handoff and
// persists the ended status.
func (s *ConversationService) endLocked(ctx context.Context, tx store.Tx, conv *model.Conversation, content string, resolution model.HandoffResolution) ([]*model.ConversationEvent, error) {
	msg, err := s.writeMessage(ctx, tx, conv, &model.AppendMessageRequest{
		SenderType: model.SenderSystem,
		SenderName: systemSenderName,
		Content:    content,
	})
	if err != nil {
		return nil, err
	}

	events := []*model.ConversationEvent{s.event(conv, model.EventMessage, func(e *model.ConversationEvent) {
		e.Sequence = msg.Sequence
	})}

	now := s.now()
	err = tx.ResolveHandoff(ctx, conv.ID, resolution, now)
	switch {
	case err == nil:
		metrics.HandoffsTotal.WithLabelValues(string(resolution)).Inc()
		events = append(events, s.event(conv, model.EventHandoffResolved, func(e *model.ConversationEvent) {
			e.Reason = string(resolution)
		}))
	case !errors.Is(err, model.ErrNotFound):
		return nil, fmt.Errorf("failed to resolve handoff: %w", err)
	}

	from := conv.Status
	conv.Status = model.StatusEnded
	conv.EndedAt = &now
	if err := tx.UpdateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to end conversation: %w", err)
	}

	metrics.RecordTransition(string(from), string(conv.Status))
	events = append(events, s.event(conv, model.EventStatusChanged, func(e *model.ConversationEvent) {
		e.FromStatus = from
		e.ToStatus = conv.Status
	}))
	return events, nil
}

// writeMessage appends to the log and advances the in-memory conversation.
func (s *ConversationService) writeMessage(ctx context.Context, tx store.Tx, conv *model.Conversation, req *model.AppendMessageRequest) (*model.Message, error) {
	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		SenderType:     req.SenderType,
		SenderID:       req.SenderID,
		SenderName:     strings.TrimSpace(req.SenderName),
		Content:        req.Content,
		CreatedAt:      s.now(),
	}
	if err := tx.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	conv.LastSequence = msg.Sequence
	conv.LastActivityAt = msg.CreatedAt
	metrics.MessagesTotal.WithLabelValues(string(msg.SenderType)).Inc()
	return msg, nil
}

func (s *ConversationService) event(conv *model.Conversation, typ model.EventType, fill func(*model.ConversationEvent)) *model.ConversationEvent {
	e := &model.ConversationEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		ParticipantID:  conv.ParticipantID,
		Type:           typ,
		CreatedAt:      s.now(),
	}
	if fill != nil {
		fill(e)
	}
	return e
}

func (s *ConversationService) publish(ctx context.Context, e *model.ConversationEvent) {
	if err := s.publisher.PublishConversationEvent(ctx, e); err != nil {
		s.logger.Warn("failed to publish conversation event",
			zap.String("conversation_id", e.ConversationID),
			zap.String("event_type", string(e.Type)),
			zap.Error(err),
		)
	}
}

func validateAppend(req *model.AppendMessageRequest) error {
	if req == nil {
		return fmt.Errorf("%w: message is required", model.ErrValidation)
	}
	if !req.SenderType.Valid() {
		return fmt.Errorf("%w: unknown sender type %q", model.ErrValidation, req.SenderType)
	}
	return validateContent(req.Content)
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content cannot be empty", model.ErrValidation)
	}
	if len(content) > MaxContentLength {
		return fmt.Errorf("%w: content exceeds maximum length", model.ErrValidation)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("%w: content must be valid UTF-8", model.ErrValidation)
	}
	return nil
}
