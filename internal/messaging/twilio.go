package messaging

import (
	"context"
	"fmt"
	"time"

	"wa-server/internal/observability"

	"github.com/google/uuid"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioSender sends WhatsApp messages through the Twilio Messaging API
type TwilioSender struct {
	client     *twilio.RestClient
	fromNumber string
	logger     *observability.Logger
}

// TwilioConfig contains Twilio API credentials and the sending number
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// NewTwilioSender creates a Twilio-backed sender
func NewTwilioSender(config TwilioConfig, logger *observability.Logger) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: config.AccountSID,
		Password: config.AuthToken,
	})
	return &TwilioSender{
		client:     client,
		fromNumber: config.FromNumber,
		logger:     logger,
	}
}

// SendMessage sends one WhatsApp message via Twilio
func (s *TwilioSender) SendMessage(ctx context.Context, deviceID uuid.UUID, phoneNumber, message string, mediaURL *string) (SendResult, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "device_id", Value: deviceID.String()},
		observability.Field{Key: "phone_number", Value: phoneNumber},
	)

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:" + phoneNumber)
	params.SetFrom("whatsapp:" + s.fromNumber)
	params.SetBody(message)
	if mediaURL != nil {
		params.SetMediaUrl([]string{*mediaURL})
	}

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		s.logger.Error(ctx, "failed to send message via twilio", err)
		return SendResult{}, fmt.Errorf("failed to send message via twilio: %w", err)
	}

	result := SendResult{Timestamp: time.Now().UTC()}
	if resp.Sid != nil {
		result.MessageID = *resp.Sid
	}
	if resp.Status != nil {
		result.Status = *resp.Status
	}

	s.logger.Info(ctx, "message accepted by twilio")
	return result, nil
}
