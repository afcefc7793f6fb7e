// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fiscaldesk/support-platform/internal/middleware"
	"github.com/fiscaldesk/support-platform/internal/model"
	"github.com/fiscaldesk/support-platform/internal/service"
	"github.com/fiscaldesk/support-platform/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  log.Component("conversation-handler"),
	}
}

// Create handles POST /api/v1/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.CreateConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	participantID := middleware.GetUserID(ctx)
	if middleware.GetRole(ctx) != middleware.RoleParticipant && strings.TrimSpace(req.ParticipantID) != "" {
		participantID = req.ParticipantID
	}

	conv, err := h.service.Create(ctx, participantID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

// List handles GET /api/v1/conversations?status=
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	status := model.ConversationStatus(r.URL.Query().Get("status"))

	convs, err := h.service.ListByStatus(r.Context(), status)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if convs == nil {
		convs = []model.Conversation{}
	}

	writeJSON(w, http.StatusOK, &model.ListConversationsResponse{
		Conversations: convs,
		Total:         len(convs),
	})
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// RequestHuman handles POST /api/v1/conversations/{id}/handoff
func (h *ConversationHandler) RequestHuman(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conv, ok := h.load(w, r)
	if !ok {
		return
	}

	var req model.HandoffRequestBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	participantID := req.ParticipantID
	if middleware.GetRole(ctx) == middleware.RoleParticipant {
		participantID = middleware.GetUserID(ctx)
	}

	updated, err := h.service.RequestHuman(ctx, conv.ID, participantID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Close handles POST /api/v1/conversations/{id}/close
func (h *ConversationHandler) Close(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.load(w, r)
	if !ok {
		return
	}

	var req model.CloseConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	updated, err := h.service.Close(r.Context(), conv.ID, req.ClosingMessage)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Feedback handles POST /api/v1/conversations/{id}/feedback
func (h *ConversationHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conv, ok := h.load(w, r)
	if !ok {
		return
	}
	if middleware.GetUserID(ctx) != conv.ParticipantID {
		writeError(w, http.StatusForbidden, "only the participant can rate a conversation")
		return
	}

	var req model.FeedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	req.ConversationID = conv.ID

	fb, err := h.service.SubmitFeedback(ctx, &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, fb)
}

// load resolves {id} and enforces that participants only see their own
// conversations. It writes the error response itself.
func (h *ConversationHandler) load(w http.ResponseWriter, r *http.Request) (*model.Conversation, bool) {
	conv, err := loadConversation(r.Context(), h.service, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return nil, false
	}
	return conv, true
}

func loadConversation(ctx context.Context, svc *service.ConversationService, id string) (*model.Conversation, error) {
	if err := middleware.ValidateConversationID(id); err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrValidation, err.Error())
	}

	conv, err := svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	role := middleware.GetRole(ctx)
	if !role.Staff() && role != middleware.RoleService && conv.ParticipantID != middleware.GetUserID(ctx) {
		return nil, fmt.Errorf("%w: conversation %s", model.ErrNotFound, id)
	}
	return conv, nil
}
