package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fiscaldesk/support-platform/internal/llm"
	"github.com/fiscaldesk/support-platform/internal/model"
	"github.com/fiscaldesk/support-platform/pkg/logger"
	"github.com/fiscaldesk/support-platform/pkg/metrics"
)

const (
	assistantName   = "Assistente Virtual"
	historyWindow   = 30
	assistantPrompt = `You are the virtual assistant of a university tax-advisory service (income tax filing, CPF regularisation, MEI registration and similar).
Answer briefly and politely in the participant's language. Never ask for passwords or full document numbers.
If the participant wants a human, tell them to write "talk to a specialist" and a specialist will be called.`
)

// Assistant writes automated replies while a conversation is in the ai status.
type Assistant struct {
	conversations *ConversationService
	client        llm.Client
	model         string
	timeout       time.Duration
	logger        *logger.Logger

	wg sync.WaitGroup
}

// NewAssistant creates an assistant. A nil client yields nil, meaning no
// automated replies.
func NewAssistant(conversations *ConversationService, client llm.Client, modelName string, timeout time.Duration, log *logger.Logger) *Assistant {
	if client == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Assistant{
		conversations: conversations,
		client:        client,
		model:         modelName,
		timeout:       timeout,
		logger:        log.Component("assistant"),
	}
}

// RespondAsync generates a reply in the background.
func (a *Assistant) RespondAsync(conversationID string) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if _, err := a.Respond(ctx, conversationID); err != nil {
			a.logger.Warn("assistant reply failed",
				zap.String("conversation_id", conversationID),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until background replies finish.
func (a *Assistant) Wait() {
	a.wg.Wait()
}

// Respond generates and appends one reply. It returns nil without error when
// the conversation is no longer handled by the assistant.
func (a *Assistant) Respond(ctx context.Context, conversationID string) (*model.Message, error) {
	conv, err := a.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status != model.StatusAI {
		return nil, nil
	}

	history, err := a.conversations.Messages(ctx, conversationID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	turns := make([]llm.ChatMessage, 0, len(history))
	for _, m := range history {
		switch m.SenderType {
		case model.SenderParticipant:
			turns = append(turns, llm.ChatMessage{Role: "user", Content: m.Content})
		case model.SenderAssistant:
			turns = append(turns, llm.ChatMessage{Role: "assistant", Content: m.Content})
		}
	}
	if len(llm.Alternate(turns)) == 0 {
		return nil, nil
	}

	start := time.Now()
	resp, err := a.client.Complete(ctx, &llm.CompletionRequest{
		Model:    a.model,
		System:   assistantPrompt,
		Messages: turns,
	})
	if err != nil {
		metrics.RecordLLM(a.model, "error", time.Since(start).Seconds(), 0, 0)
		return nil, fmt.Errorf("failed to complete reply: %w", err)
	}
	metrics.RecordLLM(resp.Model, "success", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return nil, errors.New("assistant returned an empty reply")
	}

	msg, appended, err := a.conversations.AppendIfStatus(ctx, conversationID, &model.AppendMessageRequest{
		SenderType: model.SenderAssistant,
		SenderName: assistantName,
		Content:    content,
	}, model.StatusAI)
	if err != nil {
		if errors.Is(err, model.ErrPreconditionFailed) {
			return nil, nil
		}
		return nil, err
	}
	if !appended {
		a.logger.Debug("dropped assistant reply after handoff", zap.String("conversation_id", conversationID))
		return nil, nil
	}
	return msg, nil
}
