package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/fiscaldesk/support-platform/internal/model"
	"github.com/fiscaldesk/support-platform/pkg/logger"
)

// Email is an outbound email for one notification. The relay resolves the
// recipient's address from its ID.
type Email struct {
	NotificationID string              `json:"notification_id"`
	RecipientID    string              `json:"recipient_id"`
	RecipientType  model.RecipientType `json:"recipient_type"`
	Subject        string              `json:"subject"`
	Body           string              `json:"body"`
	ActionURL      string              `json:"action_url,omitempty"`
	Priority       model.Priority      `json:"priority"`
}

// Mailer delivers emails.
type Mailer interface {
	Send(ctx context.Context, email *Email) error
}

// RelayMailer posts emails to an HTTP mail relay.
type RelayMailer struct {
	client *resty.Client
}

// NewRelayMailer creates a mailer for the relay at url.
func NewRelayMailer(url, token string, timeout time.Duration) *RelayMailer {
	client := resty.New().
		SetBaseURL(url).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &RelayMailer{client: client}
}

// Send implements Mailer.
func (m *RelayMailer) Send(ctx context.Context, email *Email) error {
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(email).
		Post("/send")
	if err != nil {
		return fmt.Errorf("%w: mail relay: %v", model.ErrTransientDelivery, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: mail relay returned %s", model.ErrTransientDelivery, resp.Status())
	}
	return nil
}

// LogMailer writes emails to the log instead of sending them.
type LogMailer struct {
	logger *logger.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(log *logger.Logger) *LogMailer {
	return &LogMailer{logger: log.Component("mailer")}
}

// Send implements Mailer.
func (m *LogMailer) Send(_ context.Context, email *Email) error {
	m.logger.Info("email",
		zap.String("notification_id", email.NotificationID),
		zap.String("recipient_id", email.RecipientID),
		zap.String("subject", email.Subject),
	)
	return nil
}
