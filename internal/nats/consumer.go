package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/fiscaldesk/support-platform/internal/model"
	"github.com/fiscaldesk/support-platform/internal/trigger"
	"github.com/fiscaldesk/support-platform/pkg/logger"
)

// ConsumerName is the durable consumer that feeds the notification triggers.
const ConsumerName = "support-triggers"

// EventHandler handles one domain event.
type EventHandler interface {
	Handle(ctx context.Context, event *model.DomainEvent) (*trigger.BroadcastResult, error)
}

// EventConsumer feeds domain events from JetStream into the triggers.
type EventConsumer struct {
	client         *Client
	handler        EventHandler
	handlerTimeout time.Duration
	logger         *logger.Logger
}

// NewEventConsumer creates a consumer.
func NewEventConsumer(client *Client, handler EventHandler, log *logger.Logger) *EventConsumer {
	return &EventConsumer{
		client:         client,
		handler:        handler,
		handlerTimeout: time.Minute,
		logger:         log.Component("event-consumer"),
	}
}

// Run consumes until ctx is cancelled.
func (c *EventConsumer) Run(ctx context.Context) error {
	cons, err := c.client.JetStream().CreateOrUpdateConsumer(ctx, DomainStream, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		FilterSubject: DomainPrefix + ".>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       2 * time.Minute,
		MaxDeliver:    5,
		BackOff:       []time.Duration{5 * time.Second, 30 * time.Second, 2 * time.Minute},
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		c.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer cc.Stop()

	c.logger.Info("consuming domain events", zap.String("stream", DomainStream))
	<-ctx.Done()
	c.logger.Info("event consumer stopped")
	return nil
}

// ack is the acknowledgement a processed message gets.
type ack int

const (
	ackDone ack = iota
	ackRetry
	ackDrop
)

// classify decides the acknowledgement for a handler outcome. Bad input is
// dropped and anything else is retried. Failed deliveries and failed
// directory lookups never reach here: Handle reports them in the result, so a
// redelivery cannot notify a recipient twice.
func classify(err error) ack {
	switch {
	case err == nil:
		return ackDone
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrNotFound):
		return ackDrop
	default:
		return ackRetry
	}
}

func (c *EventConsumer) handle(ctx context.Context, msg jetstream.Msg) {
	var event model.DomainEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		c.logger.Warn("dropping malformed domain event",
			zap.String("subject", msg.Subject()),
			zap.Error(err),
		)
		_ = msg.Term()
		return
	}

	hctx, cancel := context.WithTimeout(ctx, c.handlerTimeout)
	defer cancel()

	_, err := c.handler.Handle(hctx, &event)
	switch classify(err) {
	case ackDone:
		_ = msg.Ack()
	case ackDrop:
		c.logger.Warn("dropping invalid domain event",
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
		_ = msg.Term()
	case ackRetry:
		c.logger.Error("domain event failed, will retry",
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
		_ = msg.Nak()
	}
}
