package apierrors

import (
	"errors"

	broadcastProcessor "wa-server/internal/broadcasts/processor"
	"wa-server/internal/store"
	webhookProcessor "wa-server/internal/webhooks/processor"
)

// MapError converts domain/processor errors to APIErrors.
// Centralizing the mapping keeps error responses consistent across the API.
//
// Unknown errors map to a sanitized InternalError (500).
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	// Validation errors - never retried, surfaced synchronously
	case errors.Is(err, broadcastProcessor.ErrTooManyRecipients):
		return &APIError{StatusCode: 400, Code: CodeTooManyRecipients, Message: err.Error()}
	case errors.Is(err, webhookProcessor.ErrInvalidURL),
		errors.Is(err, webhookProcessor.ErrNoEvents),
		errors.Is(err, webhookProcessor.ErrInvalidEvent),
		errors.Is(err, broadcastProcessor.ErrInvalidRecipientStatus):
		return BadRequest(CodeInvalidInput, err.Error())

	// State-conflict errors
	case errors.Is(err, broadcastProcessor.ErrOnlyDraftUpdatable),
		errors.Is(err, broadcastProcessor.ErrOnlyDraftDeletable),
		errors.Is(err, broadcastProcessor.ErrBroadcastCannotStart),
		errors.Is(err, broadcastProcessor.ErrBroadcastCannotCancel),
		errors.Is(err, broadcastProcessor.ErrNoRecipients),
		errors.Is(err, broadcastProcessor.ErrDeviceNotConnected):
		return Conflict(err.Error())

	// Not-found errors (including rows owned by another business)
	case errors.Is(err, broadcastProcessor.ErrBroadcastNotFound),
		errors.Is(err, broadcastProcessor.ErrRecipientNotFound),
		errors.Is(err, broadcastProcessor.ErrDeviceNotFound),
		errors.Is(err, broadcastProcessor.ErrContactListNotFound),
		errors.Is(err, webhookProcessor.ErrWebhookNotFound),
		errors.Is(err, store.ErrNotFound):
		return NotFound(err.Error())
	}

	return InternalError()
}
