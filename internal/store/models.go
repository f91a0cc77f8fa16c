package store

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JSONB represents a PostgreSQL JSONB column
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("incompatible type for JSONB")
	}

	if len(bytes) == 0 || string(bytes) == "null" {
		*j = make(JSONB)
		return nil
	}

	result := make(JSONB)
	if err := json.Unmarshal(bytes, &result); err != nil {
		return err
	}
	*j = result
	return nil
}

// StringArray represents a PostgreSQL text[] column
type StringArray []string

// Value implements the driver.Valuer interface for StringArray
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	if len(a) == 0 {
		return "{}", nil
	}
	return "{" + strings.Join(a, ",") + "}", nil
}

// Scan implements the sql.Scanner interface for StringArray
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}

	var str string
	switch v := value.(type) {
	case []byte:
		str = string(v)
	case string:
		str = v
	default:
		return fmt.Errorf("unsupported type for StringArray: %T", value)
	}

	str = strings.Trim(str, "{}")
	if str == "" {
		*a = []string{}
		return nil
	}

	*a = strings.Split(str, ",")
	return nil
}

// Broadcast represents one bulk-send campaign against a set of recipients.
// Counters are always recomputable from the recipients' statuses;
// TotalRecipients is fixed at creation.
type Broadcast struct {
	ID         uuid.UUID `db:"id" json:"id"`
	BusinessID uuid.UUID `db:"business_id" json:"business_id"`
	DeviceID   uuid.UUID `db:"device_id" json:"device_id"`

	Name        string  `db:"name" json:"name"`
	Message     string  `db:"message" json:"message"`
	MessageType string  `db:"message_type" json:"message_type"`
	MediaURL    *string `db:"media_url" json:"media_url,omitempty"`

	Status string `db:"status" json:"status"`

	SendSpeed          string `db:"send_speed" json:"send_speed"`
	CustomDelaySeconds *int   `db:"custom_delay_seconds" json:"custom_delay_seconds,omitempty"`

	TotalRecipients int `db:"total_recipients" json:"total_recipients"`
	SentCount       int `db:"sent_count" json:"sent_count"`
	DeliveredCount  int `db:"delivered_count" json:"delivered_count"`
	FailedCount     int `db:"failed_count" json:"failed_count"`

	ScheduledAt *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// BroadcastRecipient represents one phone-number target inside a broadcast.
// Phone numbers are unique per broadcast.
type BroadcastRecipient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	BroadcastID uuid.UUID  `db:"broadcast_id" json:"broadcast_id"`
	ContactID   *uuid.UUID `db:"contact_id" json:"contact_id,omitempty"`

	PhoneNumber string  `db:"phone_number" json:"phone_number"`
	FullName    *string `db:"full_name" json:"full_name,omitempty"`
	Message     string  `db:"message" json:"message"`

	Status       string  `db:"status" json:"status"`
	MessageID    *string `db:"message_id" json:"message_id,omitempty"`
	ErrorMessage *string `db:"error_message" json:"error_message,omitempty"`

	SentAt      *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// RecipientStats aggregates recipient statuses for one broadcast
type RecipientStats struct {
	Total     int `db:"total"`
	Sent      int `db:"sent"`
	Delivered int `db:"delivered"`
	Failed    int `db:"failed"`
	Skipped   int `db:"skipped"`
}

// Webhook represents a registered HTTP callback subscription.
// The secret is immutable after creation and never re-displayed.
type Webhook struct {
	ID         uuid.UUID `db:"id" json:"id"`
	BusinessID uuid.UUID `db:"business_id" json:"business_id"`

	URL    string `db:"url" json:"url"`
	Secret string `db:"secret" json:"-"`

	Events      StringArray `db:"events" json:"events"`
	Active      bool        `db:"active" json:"active"`
	Description string      `db:"description" json:"description"`

	TotalSuccess    int        `db:"total_success" json:"total_success"`
	TotalFailure    int        `db:"total_failure" json:"total_failure"`
	LastTriggeredAt *time.Time `db:"last_triggered_at" json:"last_triggered_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// WebhookDelivery represents one attempt (of up to five) to POST an event
// payload to a webhook's URL. Attempts of one logical delivery share EventID.
type WebhookDelivery struct {
	ID        uuid.UUID `db:"id" json:"id"`
	WebhookID uuid.UUID `db:"webhook_id" json:"webhook_id"`
	EventID   uuid.UUID `db:"event_id" json:"event_id"`

	EventType string `db:"event_type" json:"event_type"`
	Payload   JSONB  `db:"payload" json:"payload"`

	AttemptNumber  int     `db:"attempt_number" json:"attempt_number"`
	Success        bool    `db:"success" json:"success"`
	ResponseStatus *int    `db:"response_status" json:"response_status,omitempty"`
	ResponseBody   *string `db:"response_body" json:"response_body,omitempty"`
	ErrorMessage   *string `db:"error_message" json:"error_message,omitempty"`
	DurationMs     *int    `db:"duration_ms" json:"duration_ms,omitempty"`

	NextRetryAt *time.Time `db:"next_retry_at" json:"next_retry_at,omitempty"`
	DeliveredAt *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// Device represents a connected WhatsApp number owned by a business
type Device struct {
	ID         uuid.UUID `db:"id" json:"id"`
	BusinessID uuid.UUID `db:"business_id" json:"business_id"`
	Name       string    `db:"name" json:"name"`
	Status     string    `db:"status" json:"status"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ContactListMember is one contact as seen through a list membership
type ContactListMember struct {
	ContactID    uuid.UUID `db:"contact_id" json:"contact_id"`
	PhoneNumber  string    `db:"phone_number" json:"phone_number"`
	FullName     *string   `db:"full_name" json:"full_name,omitempty"`
	CustomFields JSONB     `db:"custom_fields" json:"custom_fields,omitempty"`
}
