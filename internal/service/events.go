package service

import (
	"context"
	"errors"

	"github.com/fiscaldesk/support-platform/internal/model"
)

// EventPublisher receives conversation events after a change is persisted.
type EventPublisher interface {
	PublishConversationEvent(ctx context.Context, event *model.ConversationEvent) error
}

// NopPublisher discards events.
type NopPublisher struct{}

// PublishConversationEvent implements EventPublisher.
func (NopPublisher) PublishConversationEvent(context.Context, *model.ConversationEvent) error {
	return nil
}

// MultiPublisher forwards every event to each publisher and joins their errors.
type MultiPublisher []EventPublisher

// PublishConversationEvent implements EventPublisher.
func (m MultiPublisher) PublishConversationEvent(ctx context.Context, event *model.ConversationEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishConversationEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
