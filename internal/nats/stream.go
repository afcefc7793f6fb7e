package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/fiscaldesk/support-platform/internal/model"
	"github.com/fiscaldesk/support-platform/pkg/metrics"
)

const (
	// SupportStream holds events this service emits.
	SupportStream = "SUPPORT"

	// DomainStream holds appointment and training events from other services.
	DomainStream = "DOMAIN_EVENTS"

	// SupportPrefix is the subject prefix of SupportStream.
	SupportPrefix = "support"

	// DomainPrefix is the subject prefix of DomainStream.
	DomainPrefix = "events"
)

// StreamManager publishes support events to JetStream.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStreams creates the support and domain streams when missing.
func (m *StreamManager) EnsureStreams(ctx context.Context) error {
	configs := []jetstream.StreamConfig{
		{
			Name:        SupportStream,
			Subjects:    []string{SupportPrefix + ".>"},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      90 * 24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Replicas:    1,
			Compression: jetstream.S2Compression,
			Description: "Conversation and notification events",
		},
		{
			Name:        DomainStream,
			Subjects:    []string{DomainPrefix + ".>"},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      7 * 24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Replicas:    1,
			Description: "Appointment and training events awaiting notification",
		},
	}

	js := m.client.JetStream()
	for _, cfg := range configs {
		_, err := js.Stream(ctx, cfg.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, jetstream.ErrStreamNotFound) {
			return fmt.Errorf("failed to look up stream %s: %w", cfg.Name, err)
		}
		if _, err := js.CreateStream(ctx, cfg); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// ConversationSubject returns the subject of a conversation event.
func ConversationSubject(conversationID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.conversation.%s.%s", SupportPrefix, token(conversationID), eventType)
}

// NotificationSubject returns the subject of a created notification.
func NotificationSubject(n *model.Notification) string {
	return fmt.Sprintf("%s.notification.%s.%s", SupportPrefix, n.RecipientType, token(n.RecipientID))
}

// DomainSubject returns the subject a domain event is published on.
func DomainSubject(eventType model.DomainEventType) string {
	return fmt.Sprintf("%s.%s", DomainPrefix, eventType)
}

// token makes an ID safe as a single subject token.
func token(id string) string {
	r := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")
	return r.Replace(id)
}

// PublishConversationEvent implements service.EventPublisher.
func (m *StreamManager) PublishConversationEvent(ctx context.Context, event *model.ConversationEvent) error {
	err := m.publish(ctx, ConversationSubject(event.ConversationID, event.Type), event.ID, event)
	recordPublish(string(event.Type), err)
	return err
}

// PublishNotification implements notify.Publisher.
func (m *StreamManager) PublishNotification(ctx context.Context, n *model.Notification) error {
	err := m.publish(ctx, NotificationSubject(n), n.ID, n)
	recordPublish("notification", err)
	return err
}

// PublishDomainEvent puts a domain event on the domain stream. Used by
// tooling and tests; production events come from other services.
func (m *StreamManager) PublishDomainEvent(ctx context.Context, event *model.DomainEvent) error {
	return m.publish(ctx, DomainSubject(event.Type), event.ID, event)
}

func (m *StreamManager) publish(ctx context.Context, subject, msgID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	var opts []jetstream.PublishOpt
	if msgID != "" {
		opts = append(opts, jetstream.WithMsgID(msgID))
	}
	if _, err := m.client.JetStream().Publish(ctx, subject, data, opts...); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

func recordPublish(eventType string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.EventsPublished.WithLabelValues(eventType, status).Inc()
}
