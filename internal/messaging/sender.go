package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SendResult is the provider's acknowledgment of an accepted message
type SendResult struct {
	MessageID string
	Status    string
	Timestamp time.Time
}

// Sender delivers a single WhatsApp message to one phone number. The device
// identifies which connected business number the message goes out from.
type Sender interface {
	SendMessage(ctx context.Context, deviceID uuid.UUID, phoneNumber, message string, mediaURL *string) (SendResult, error)
}
