package middleware

import (
	"errors"

	"github.com/google/uuid"
)

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateNotificationID validates a notification ID.
func ValidateNotificationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid notification ID format")
	}
	return nil
}
