package nats

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fiscaldesk/support-platform/internal/model"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "support.conversation.abc.handoff_requested",
		ConversationSubject("abc", model.EventHandoffRequested))

	n := &model.Notification{RecipientType: model.RecipientCoordinator, RecipientID: "maria.silva"}
	assert.Equal(t, "support.notification.coordinator.maria_silva", NotificationSubject(n))

	assert.Equal(t, "events.appointment.created", DomainSubject(model.DomainAppointmentCreated))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ack
	}{
		{nil, ackDone},
		{fmt.Errorf("%w: unknown event type", model.ErrValidation), ackDrop},
		{fmt.Errorf("%w: template", model.ErrNotFound), ackDrop},
		{errors.New("directory unavailable"), ackRetry},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classify(tt.err), "%v", tt.err)
	}
}
