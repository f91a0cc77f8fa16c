package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateBroadcastParams represents parameters for creating a broadcast
type CreateBroadcastParams struct {
	BusinessID         uuid.UUID
	DeviceID           uuid.UUID
	Name               string
	Message            string
	MessageType        string
	MediaURL           *string
	SendSpeed          string
	CustomDelaySeconds *int
	ScheduledAt        *time.Time
}

// NewRecipient is one generated recipient row, ready for insertion
type NewRecipient struct {
	ContactID   *uuid.UUID
	PhoneNumber string
	FullName    *string
	Message     string
}

const sqlCreateBroadcast = `
INSERT INTO broadcasts (business_id, device_id, name, message, message_type, media_url, status, send_speed, custom_delay_seconds, scheduled_at, total_recipients)
VALUES ($1, $2, $3, $4, $5, $6, 'draft', $7, $8, $9, $10)
RETURNING id, business_id, device_id, name, message, message_type, media_url, status, send_speed, custom_delay_seconds, total_recipients, sent_count, delivered_count, failed_count, scheduled_at, started_at, completed_at, created_at, updated_at
`

const sqlInsertRecipient = `
INSERT INTO broadcast_recipients (broadcast_id, contact_id, phone_number, full_name, message, status)
VALUES ($1, $2, $3, $4, $5, 'pending')
`

// CreateBroadcastWithRecipients creates a broadcast and its full recipient
// list in one transaction. If recipient insertion fails the broadcast is
// rolled back - a broadcast is never left created-but-empty.
func (s *Store) CreateBroadcastWithRecipients(ctx context.Context, params CreateBroadcastParams, recipients []NewRecipient) (Broadcast, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.Error(ctx, "failed to begin transaction", err)
		return Broadcast{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var broadcast Broadcast
	err = tx.GetContext(ctx, &broadcast, sqlCreateBroadcast,
		params.BusinessID,
		params.DeviceID,
		params.Name,
		params.Message,
		params.MessageType,
		params.MediaURL,
		params.SendSpeed,
		params.CustomDelaySeconds,
		params.ScheduledAt,
		len(recipients))
	if err != nil {
		s.logger.Error(ctx, "failed to create broadcast", err)
		return Broadcast{}, fmt.Errorf("failed to create broadcast: %w", err)
	}

	for _, r := range recipients {
		if _, err := tx.ExecContext(ctx, sqlInsertRecipient,
			broadcast.ID, r.ContactID, r.PhoneNumber, r.FullName, r.Message); err != nil {
			s.logger.Error(ctx, "failed to insert broadcast recipient", err)
			return Broadcast{}, fmt.Errorf("failed to insert broadcast recipient: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error(ctx, "failed to commit broadcast creation", err)
		return Broadcast{}, fmt.Errorf("failed to commit broadcast creation: %w", err)
	}
	return broadcast, nil
}

const sqlGetBroadcastByID = `
SELECT id, business_id, device_id, name, message, message_type, media_url, status, send_speed, custom_delay_seconds, total_recipients, sent_count, delivered_count, failed_count, scheduled_at, started_at, completed_at, created_at, updated_at
FROM broadcasts
WHERE id = $1 AND business_id = $2
`

// GetBroadcastByID retrieves a broadcast scoped to its owning business
func (s *Store) GetBroadcastByID(ctx context.Context, broadcastID, businessID uuid.UUID) (Broadcast, error) {
	var broadcast Broadcast
	err := s.db.GetContext(ctx, &broadcast, sqlGetBroadcastByID, broadcastID, businessID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Broadcast{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get broadcast", err)
		return Broadcast{}, fmt.Errorf("failed to get broadcast: %w", err)
	}
	return broadcast, nil
}

const sqlGetBroadcastsByBusiness = `
SELECT id, business_id, device_id, name, message, message_type, media_url, status, send_speed, custom_delay_seconds, total_recipients, sent_count, delivered_count, failed_count, scheduled_at, started_at, completed_at, created_at, updated_at
FROM broadcasts
WHERE business_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`

// GetBroadcastsByBusiness retrieves broadcasts for a business with pagination
func (s *Store) GetBroadcastsByBusiness(ctx context.Context, businessID uuid.UUID, limit, offset int) ([]Broadcast, error) {
	var broadcasts []Broadcast
	err := s.db.SelectContext(ctx, &broadcasts, sqlGetBroadcastsByBusiness, businessID, limit, offset)
	if err != nil {
		s.logger.Error(ctx, "failed to get broadcasts by business", err)
		return nil, fmt.Errorf("failed to get broadcasts by business: %w", err)
	}
	return broadcasts, nil
}

// CountBroadcastsByBusiness counts broadcasts for a business
func (s *Store) CountBroadcastsByBusiness(ctx context.Context, businessID uuid.UUID) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM broadcasts WHERE business_id = $1`, businessID)
	if err != nil {
		s.logger.Error(ctx, "failed to count broadcasts", err)
		return 0, fmt.Errorf("failed to count broadcasts: %w", err)
	}
	return count, nil
}

const sqlUpdateBroadcast = `
UPDATE broadcasts
SET device_id = COALESCE($2, device_id),
    name = COALESCE($3, name),
    message = COALESCE($4, message),
    message_type = COALESCE($5, message_type),
    media_url = COALESCE($6, media_url),
    send_speed = COALESCE($7, send_speed),
    custom_delay_seconds = COALESCE($8, custom_delay_seconds),
    scheduled_at = COALESCE($9, scheduled_at),
    updated_at = CURRENT_TIMESTAMP
WHERE id = $1
RETURNING id, business_id, device_id, name, message, message_type, media_url, status, send_speed, custom_delay_seconds, total_recipients, sent_count, delivered_count, failed_count, scheduled_at, started_at, completed_at, created_at, updated_at
`

// UpdateBroadcastParams represents a typed partial update: only non-nil
// fields are written, everything else is left untouched.
type UpdateBroadcastParams struct {
	DeviceID           *uuid.UUID
	Name               *string
	Message            *string
	MessageType        *string
	MediaURL           *string
	SendSpeed          *string
	CustomDelaySeconds *int
	ScheduledAt        *time.Time
}

// UpdateBroadcast applies a partial update to a broadcast
func (s *Store) UpdateBroadcast(ctx context.Context, broadcastID uuid.UUID, params UpdateBroadcastParams) (Broadcast, error) {
	var broadcast Broadcast
	err := s.db.GetContext(ctx, &broadcast, sqlUpdateBroadcast,
		broadcastID,
		params.DeviceID,
		params.Name,
		params.Message,
		params.MessageType,
		params.MediaURL,
		params.SendSpeed,
		params.CustomDelaySeconds,
		params.ScheduledAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Broadcast{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to update broadcast", err)
		return Broadcast{}, fmt.Errorf("failed to update broadcast: %w", err)
	}
	return broadcast, nil
}

// UpdateBroadcastStatus sets the broadcast status
func (s *Store) UpdateBroadcastStatus(ctx context.Context, broadcastID uuid.UUID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE broadcasts SET status = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`,
		broadcastID, status)
	if err != nil {
		s.logger.Error(ctx, "failed to update broadcast status", err)
		return fmt.Errorf("failed to update broadcast status: %w", err)
	}
	return nil
}

// MarkBroadcastSending transitions a broadcast to sending and stamps started_at
func (s *Store) MarkBroadcastSending(ctx context.Context, broadcastID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE broadcasts SET status = 'sending', started_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = $1`,
		broadcastID)
	if err != nil {
		s.logger.Error(ctx, "failed to mark broadcast sending", err)
		return fmt.Errorf("failed to mark broadcast sending: %w", err)
	}
	return nil
}

// CancelBroadcast transitions a broadcast to cancelled and stamps completed_at
func (s *Store) CancelBroadcast(ctx context.Context, broadcastID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE broadcasts SET status = 'cancelled', completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = $1`,
		broadcastID)
	if err != nil {
		s.logger.Error(ctx, "failed to cancel broadcast", err)
		return fmt.Errorf("failed to cancel broadcast: %w", err)
	}
	return nil
}

// UpdateBroadcastCounters writes the aggregated recipient counters
func (s *Store) UpdateBroadcastCounters(ctx context.Context, broadcastID uuid.UUID, sent, delivered, failed int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE broadcasts SET sent_count = $2, delivered_count = $3, failed_count = $4, updated_at = CURRENT_TIMESTAMP WHERE id = $1`,
		broadcastID, sent, delivered, failed)
	if err != nil {
		s.logger.Error(ctx, "failed to update broadcast counters", err)
		return fmt.Errorf("failed to update broadcast counters: %w", err)
	}
	return nil
}

// CompleteBroadcast transitions a sending broadcast to completed. The status
// guard makes completion monotonic: a broadcast that already left the
// sending state is never touched.
func (s *Store) CompleteBroadcast(ctx context.Context, broadcastID uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE broadcasts SET status = 'completed', completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = $1 AND status = 'sending'`,
		broadcastID)
	if err != nil {
		s.logger.Error(ctx, "failed to complete broadcast", err)
		return false, fmt.Errorf("failed to complete broadcast: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// DeleteBroadcast removes a broadcast and its recipients
func (s *Store) DeleteBroadcast(ctx context.Context, broadcastID uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM broadcast_recipients WHERE broadcast_id = $1`, broadcastID); err != nil {
		s.logger.Error(ctx, "failed to delete broadcast recipients", err)
		return fmt.Errorf("failed to delete broadcast recipients: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM broadcasts WHERE id = $1`, broadcastID)
	if err != nil {
		s.logger.Error(ctx, "failed to delete broadcast", err)
		return fmt.Errorf("failed to delete broadcast: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

const sqlGetScheduledBroadcastsToStart = `
SELECT id, business_id, device_id, name, message, message_type, media_url, status, send_speed, custom_delay_seconds, total_recipients, sent_count, delivered_count, failed_count, scheduled_at, started_at, completed_at, created_at, updated_at
FROM broadcasts
WHERE status = 'scheduled' AND scheduled_at <= $1
ORDER BY scheduled_at ASC
`

// GetScheduledBroadcastsToStart retrieves scheduled broadcasts whose
// scheduled_at has passed
func (s *Store) GetScheduledBroadcastsToStart(ctx context.Context, beforeTime time.Time) ([]Broadcast, error) {
	var broadcasts []Broadcast
	err := s.db.SelectContext(ctx, &broadcasts, sqlGetScheduledBroadcastsToStart, beforeTime)
	if err != nil {
		s.logger.Error(ctx, "failed to get scheduled broadcasts", err)
		return nil, fmt.Errorf("failed to get scheduled broadcasts: %w", err)
	}
	return broadcasts, nil
}

const sqlGetSendingBroadcasts = `
SELECT id, business_id, device_id, name, message, message_type, media_url, status, send_speed, custom_delay_seconds, total_recipients, sent_count, delivered_count, failed_count, scheduled_at, started_at, completed_at, created_at, updated_at
FROM broadcasts
WHERE status = 'sending'
ORDER BY started_at ASC
`

// GetSendingBroadcasts retrieves all broadcasts currently in the sending state
func (s *Store) GetSendingBroadcasts(ctx context.Context) ([]Broadcast, error) {
	var broadcasts []Broadcast
	err := s.db.SelectContext(ctx, &broadcasts, sqlGetSendingBroadcasts)
	if err != nil {
		s.logger.Error(ctx, "failed to get sending broadcasts", err)
		return nil, fmt.Errorf("failed to get sending broadcasts: %w", err)
	}
	return broadcasts, nil
}
