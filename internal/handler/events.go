package handler

import (
	"net/http"
	"time"

	"github.com/fiscaldesk/support-platform/internal/model"
	"github.com/fiscaldesk/support-platform/internal/trigger"
	"github.com/fiscaldesk/support-platform/pkg/logger"
)

// EventHandler ingests domain events over HTTP for publishers without NATS.
type EventHandler struct {
	router *trigger.Router
	logger *logger.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(router *trigger.Router, log *logger.Logger) *EventHandler {
	return &EventHandler{
		router: router,
		logger: log.Component("event-handler"),
	}
}

// Ingest handles POST /api/v1/events
// Partial broadcast failures still answer 202 with the per-recipient outcome.
func (h *EventHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var event model.DomainEvent
	if err := decodeJSON(w, r, &event); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	result, err := h.router.Handle(r.Context(), &event)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if result == nil {
		result = &trigger.BroadcastResult{}
	}

	failed := make([]string, 0)
	for _, d := range result.Failed() {
		failed = append(failed, d.RecipientID)
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"delivered": result.Succeeded(),
		"failed":    failed,
	})
}
