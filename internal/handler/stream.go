package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fiscaldesk/support-platform/internal/chatclient"
	"github.com/fiscaldesk/support-platform/internal/model"
	"github.com/fiscaldesk/support-platform/internal/service"
	"github.com/fiscaldesk/support-platform/pkg/logger"
	"github.com/fiscaldesk/support-platform/pkg/metrics"
)

const heartbeatInterval = 30 * time.Second

// StreamHandler serves conversation updates as server-sent events. Each
// connection reconciles against the store with the same poller clients use,
// so events carry the no-gap, no-duplicate guarantees of the message log.
type StreamHandler struct {
	conversations *service.ConversationService
	interval      time.Duration
	logger        *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(convSvc *service.ConversationService, interval time.Duration, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		conversations: convSvc,
		interval:      interval,
		logger:        log.Component("stream-handler"),
	}
}

// serviceFetcher reads conversation state straight from the service.
type serviceFetcher struct {
	svc *service.ConversationService
}

func (f serviceFetcher) FetchConversation(ctx context.Context, id string) (*model.Conversation, error) {
	return f.svc.Get(ctx, id)
}

func (f serviceFetcher) FetchMessages(ctx context.Context, id string, since uint64) ([]model.Message, error) {
	return f.svc.Messages(ctx, id, since, maxMessageLimit)
}

// Stream handles GET /api/v1/conversations/{id}/stream
// Resumes after ?since=N or the Last-Event-ID header.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conv, err := loadConversation(ctx, h.conversations, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var since uint64
	for _, v := range []string{r.Header.Get("Last-Event-ID"), r.URL.Query().Get("since")} {
		if v == "" {
			continue
		}
		if parsed, err := strconv.ParseUint(v, 10, 64); err == nil {
			since = parsed
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	log := h.logger.With(zap.String("conversation_id", conv.ID))
	sse := &sseWriter{w: w, flusher: flusher}

	poller := chatclient.NewPoller(serviceFetcher{svc: h.conversations}, conv.ID, chatclient.PollerConfig{
		Interval:  h.interval,
		Watermark: since,
	}, chatclient.Callbacks{
		OnMessages: func(msgs []model.Message) {
			for i := range msgs {
				sse.send(strconv.FormatUint(msgs[i].Sequence, 10), "message", &msgs[i])
			}
		},
		OnStatus: func(status model.ConversationStatus) {
			sse.send("", "status", map[string]model.ConversationStatus{"status": status})
		},
		OnSpecialistOnline: func() {
			sse.send("", "specialist_online", map[string]string{"conversation_id": conv.ID})
		},
		OnEnded: func() {
			sse.send("", "ended", map[string]string{"conversation_id": conv.ID})
		},
		OnError: func(err error) {
			sse.send("", "error", &model.ErrorEvent{Code: "reconcile_error", Message: "failed to refresh conversation"})
		},
	}, log)

	sse.send("", "connected", map[string]any{"conversation_id": conv.ID, "since": since})

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		if ended := poller.Poll(ctx); ended {
			log.Debug("conversation ended, closing stream")
			return
		}
		if sse.err != nil {
			log.Debug("stream write failed", zap.Error(sse.err))
			return
		}

		select {
		case <-ctx.Done():
			log.Debug("SSE client disconnected")
			return
		case <-heartbeat.C:
			sse.send("", "heartbeat", &model.HeartbeatEvent{Timestamp: time.Now().UTC()})
		case <-ticker.C:
		}
	}
}

// sseWriter writes events and remembers the first write error.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	err     error
}

func (s *sseWriter) send(id, event string, data interface{}) {
	if s.err != nil {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		s.err = err
		return
	}
	if id != "" {
		if _, s.err = fmt.Fprintf(s.w, "id: %s\n", id); s.err != nil {
			return
		}
	}
	if _, s.err = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); s.err != nil {
		return
	}
	s.flusher.Flush()
}
