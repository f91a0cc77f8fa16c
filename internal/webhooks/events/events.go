package events

import (
	"context"

	"wa-server/internal/observability"
	"wa-server/internal/webhooks/producer"

	"github.com/google/uuid"
)

// Event types
const (
	// Message events
	EventMessageReceived  = "message.received"
	EventMessageSent      = "message.sent"
	EventMessageDelivered = "message.delivered"
	EventMessageFailed    = "message.failed"

	// Device events
	EventDeviceConnected    = "device.connected"
	EventDeviceDisconnected = "device.disconnected"
	EventDeviceQRUpdated    = "device.qr_updated"

	// EventWebhookTest is reserved for endpoint verification. It is always
	// deliverable regardless of a webhook's subscription list.
	EventWebhookTest = "webhook.test"
)

// SubscribableEvents are the event types a webhook may subscribe to
var SubscribableEvents = []string{
	EventMessageReceived,
	EventMessageSent,
	EventMessageDelivered,
	EventMessageFailed,
	EventDeviceConnected,
	EventDeviceDisconnected,
	EventDeviceQRUpdated,
}

// IsValidEvent reports whether eventType is a subscribable event type
func IsValidEvent(eventType string) bool {
	for _, e := range SubscribableEvents {
		if e == eventType {
			return true
		}
	}
	return false
}

// EventDispatcher provides convenience methods for emitting webhook events
type EventDispatcher struct {
	eventProducer *producer.EventProducer
	logger        *observability.Logger
}

// NewEventDispatcher creates a new EventDispatcher
func NewEventDispatcher(eventProducer *producer.EventProducer, logger *observability.Logger) *EventDispatcher {
	return &EventDispatcher{
		eventProducer: eventProducer,
		logger:        logger,
	}
}

// DispatchMessageSent emits a message.sent event
func (d *EventDispatcher) DispatchMessageSent(ctx context.Context, businessID uuid.UUID, messageData map[string]interface{}) {
	err := d.eventProducer.PublishEvent(ctx, businessID, EventMessageSent, messageData)
	if err != nil {
		d.logger.Error(ctx, "failed to dispatch message.sent event", err)
	}
}

// DispatchMessageDelivered emits a message.delivered event
func (d *EventDispatcher) DispatchMessageDelivered(ctx context.Context, businessID uuid.UUID, messageData map[string]interface{}) {
	err := d.eventProducer.PublishEvent(ctx, businessID, EventMessageDelivered, messageData)
	if err != nil {
		d.logger.Error(ctx, "failed to dispatch message.delivered event", err)
	}
}

// DispatchMessageFailed emits a message.failed event
func (d *EventDispatcher) DispatchMessageFailed(ctx context.Context, businessID uuid.UUID, messageData map[string]interface{}) {
	err := d.eventProducer.PublishEvent(ctx, businessID, EventMessageFailed, messageData)
	if err != nil {
		d.logger.Error(ctx, "failed to dispatch message.failed event", err)
	}
}

// DispatchMessageReceived emits a message.received event
func (d *EventDispatcher) DispatchMessageReceived(ctx context.Context, businessID uuid.UUID, messageData map[string]interface{}) {
	err := d.eventProducer.PublishEvent(ctx, businessID, EventMessageReceived, messageData)
	if err != nil {
		d.logger.Error(ctx, "failed to dispatch message.received event", err)
	}
}

// DispatchDeviceConnected emits a device.connected event
func (d *EventDispatcher) DispatchDeviceConnected(ctx context.Context, businessID, deviceID uuid.UUID) {
	data := map[string]interface{}{
		"device_id": deviceID.String(),
	}
	err := d.eventProducer.PublishEvent(ctx, businessID, EventDeviceConnected, data)
	if err != nil {
		d.logger.Error(ctx, "failed to dispatch device.connected event", err)
	}
}

// DispatchDeviceDisconnected emits a device.disconnected event
func (d *EventDispatcher) DispatchDeviceDisconnected(ctx context.Context, businessID, deviceID uuid.UUID) {
	data := map[string]interface{}{
		"device_id": deviceID.String(),
	}
	err := d.eventProducer.PublishEvent(ctx, businessID, EventDeviceDisconnected, data)
	if err != nil {
		d.logger.Error(ctx, "failed to dispatch device.disconnected event", err)
	}
}

// DispatchDeviceQRUpdated emits a device.qr_updated event
func (d *EventDispatcher) DispatchDeviceQRUpdated(ctx context.Context, businessID, deviceID uuid.UUID, qrCode string) {
	data := map[string]interface{}{
		"device_id": deviceID.String(),
		"qr_code":   qrCode,
	}
	err := d.eventProducer.PublishEvent(ctx, businessID, EventDeviceQRUpdated, data)
	if err != nil {
		d.logger.Error(ctx, "failed to dispatch device.qr_updated event", err)
	}
}
