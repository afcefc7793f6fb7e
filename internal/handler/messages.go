package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fiscaldesk/support-platform/internal/middleware"
	"github.com/fiscaldesk/support-platform/internal/model"
	"github.com/fiscaldesk/support-platform/internal/service"
	"github.com/fiscaldesk/support-platform/pkg/logger"
)

const (
	defaultMessageLimit = 200
	maxMessageLimit     = 500
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	conversations *service.ConversationService
	assistant     *service.Assistant
	logger        *logger.Logger
}

// NewMessageHandler creates a new message handler. assistant may be nil.
func NewMessageHandler(convSvc *service.ConversationService, assistant *service.Assistant, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		conversations: convSvc,
		assistant:     assistant,
		logger:        log.Component("message-handler"),
	}
}

// List handles GET /api/v1/conversations/{id}/messages?since=N&limit=M
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conv, err := loadConversation(ctx, h.conversations, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var since uint64
	if s := r.URL.Query().Get("since"); s != "" {
		parsed, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be a non-negative integer")
			return
		}
		since = parsed
	}

	limit := defaultMessageLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxMessageLimit {
			limit = parsed
		}
	}

	msgs, err := h.conversations.Messages(ctx, conv.ID, since, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}

	last := since
	if n := len(msgs); n > 0 {
		last = msgs[n-1].Sequence
	}

	writeJSON(w, http.StatusOK, &model.ListMessagesResponse{
		Messages:     msgs,
		LastSequence: last,
		Status:       conv.Status,
	})
}

// Append handles POST /api/v1/conversations/{id}/messages
func (h *MessageHandler) Append(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conv, err := loadConversation(ctx, h.conversations, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req model.AppendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	// The token decides who is speaking; only trusted services choose freely.
	role := middleware.GetRole(ctx)
	switch {
	case role == middleware.RoleParticipant:
		req.SenderType = model.SenderParticipant
		req.SenderID = middleware.GetUserID(ctx)
	case role.Staff():
		req.SenderType = model.SenderSpecialist
		req.SenderID = middleware.GetUserID(ctx)
	}
	if req.SenderName == "" {
		req.SenderName = middleware.GetName(ctx)
	}

	msg, err := h.conversations.AppendMessage(ctx, conv.ID, &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	updated, err := h.conversations.Get(ctx, conv.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if h.assistant != nil && msg.SenderType == model.SenderParticipant && updated.Status == model.StatusAI {
		h.assistant.RespondAsync(conv.ID)
	}

	writeJSON(w, http.StatusCreated, &model.AppendMessageResponse{
		Message: msg,
		Status:  updated.Status,
	})
}
