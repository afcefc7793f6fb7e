package trigger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fiscaldesk/support-platform/internal/model"
	"github.com/fiscaldesk/support-platform/internal/notify"
	"github.com/fiscaldesk/support-platform/pkg/logger"
)

const handoffBroadcastTimeout = 30 * time.Second

// HandoffNotifier alerts every student when a conversation starts waiting
// for a specialist. It is plugged in as a conversation event publisher.
type HandoffNotifier struct {
	triggers *Triggers
	logger   *logger.Logger
	wg       sync.WaitGroup
}

// NewHandoffNotifier creates a HandoffNotifier.
func NewHandoffNotifier(triggers *Triggers, log *logger.Logger) *HandoffNotifier {
	return &HandoffNotifier{triggers: triggers, logger: log.Component("handoff-notifier")}
}

// PublishConversationEvent broadcasts handoff_waiting for handoff requests
// in the background and ignores every other event.
func (h *HandoffNotifier) PublishConversationEvent(_ context.Context, event *model.ConversationEvent) error {
	if event.Type != model.EventHandoffRequested {
		return nil
	}

	conversationID := event.ConversationID
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), handoffBroadcastTimeout)
		defer cancel()

		result, err := h.triggers.NotifyAllStudents(ctx, notify.TemplateHandoffWaiting,
			map[string]string{"conversation_id": conversationID},
			map[string]string{"conversation_id": conversationID},
		)
		if err == nil {
			err = result.Err()
		}
		if err != nil {
			h.logger.Warn("failed to alert students of handoff",
				zap.String("conversation_id", conversationID),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// Wait blocks until in-flight broadcasts finish.
func (h *HandoffNotifier) Wait() {
	h.wg.Wait()
}
