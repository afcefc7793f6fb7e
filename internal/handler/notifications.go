package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fiscaldesk/support-platform/internal/middleware"
	"github.com/fiscaldesk/support-platform/internal/model"
	"github.com/fiscaldesk/support-platform/internal/notify"
	"github.com/fiscaldesk/support-platform/pkg/logger"
)

// NotificationHandler handles notification endpoints.
type NotificationHandler struct {
	dispatcher *notify.Dispatcher
	logger     *logger.Logger
}

// NewNotificationHandler creates a new notification handler.
func NewNotificationHandler(dispatcher *notify.Dispatcher, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		dispatcher: dispatcher,
		logger:     log.Component("notification-handler"),
	}
}

// CreateFromTemplate handles POST /api/v1/notifications/template
func (h *NotificationHandler) CreateFromTemplate(w http.ResponseWriter, r *http.Request) {
	var req notify.TemplateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	n, err := h.dispatcher.CreateFromTemplate(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// CreateCustom handles POST /api/v1/notifications
func (h *NotificationHandler) CreateCustom(w http.ResponseWriter, r *http.Request) {
	var req notify.CustomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	n, err := h.dispatcher.CreateCustom(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// List handles GET /api/v1/notifications?unread=true
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	unreadOnly := parseBool(r.URL.Query().Get("unread"))

	list, err := h.dispatcher.List(ctx, middleware.GetUserID(ctx), unreadOnly)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if list == nil {
		list = []model.Notification{}
	}

	unread := 0
	for _, n := range list {
		if !n.Read {
			unread++
		}
	}

	writeJSON(w, http.StatusOK, &model.ListNotificationsResponse{
		Notifications: list,
		Unread:        unread,
	})
}

// MarkRead handles POST /api/v1/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateNotificationID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.dispatcher.MarkRead(ctx, middleware.GetUserID(ctx), id); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /api/v1/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	n, err := h.dispatcher.MarkAllRead(ctx, middleware.GetUserID(ctx))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": n})
}
