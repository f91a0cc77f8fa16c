package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const recipientColumns = `id, broadcast_id, contact_id, phone_number, full_name, message, status, message_id, error_message, sent_at, delivered_at, created_at`

const sqlGetRecipientByID = `
SELECT ` + recipientColumns + `
FROM broadcast_recipients
WHERE id = $1
`

// GetRecipientByID retrieves a single broadcast recipient
func (s *Store) GetRecipientByID(ctx context.Context, recipientID uuid.UUID) (BroadcastRecipient, error) {
	var recipient BroadcastRecipient
	err := s.db.GetContext(ctx, &recipient, sqlGetRecipientByID, recipientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BroadcastRecipient{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get recipient", err)
		return BroadcastRecipient{}, fmt.Errorf("failed to get recipient: %w", err)
	}
	return recipient, nil
}

const sqlGetRecipientsByBroadcast = `
SELECT ` + recipientColumns + `
FROM broadcast_recipients
WHERE broadcast_id = $1
ORDER BY created_at ASC
LIMIT $2 OFFSET $3
`

// GetRecipientsByBroadcast retrieves a page of a broadcast's recipients
func (s *Store) GetRecipientsByBroadcast(ctx context.Context, broadcastID uuid.UUID, limit, offset int) ([]BroadcastRecipient, error) {
	var recipients []BroadcastRecipient
	err := s.db.SelectContext(ctx, &recipients, sqlGetRecipientsByBroadcast, broadcastID, limit, offset)
	if err != nil {
		s.logger.Error(ctx, "failed to get recipients by broadcast", err)
		return nil, fmt.Errorf("failed to get recipients by broadcast: %w", err)
	}
	return recipients, nil
}

const sqlGetAllRecipientsByBroadcast = `
SELECT ` + recipientColumns + `
FROM broadcast_recipients
WHERE broadcast_id = $1
ORDER BY created_at ASC
`

// GetAllRecipientsByBroadcast retrieves every recipient of a broadcast
func (s *Store) GetAllRecipientsByBroadcast(ctx context.Context, broadcastID uuid.UUID) ([]BroadcastRecipient, error) {
	var recipients []BroadcastRecipient
	err := s.db.SelectContext(ctx, &recipients, sqlGetAllRecipientsByBroadcast, broadcastID)
	if err != nil {
		s.logger.Error(ctx, "failed to get all recipients by broadcast", err)
		return nil, fmt.Errorf("failed to get all recipients by broadcast: %w", err)
	}
	return recipients, nil
}

const sqlGetQueuedRecipients = `
SELECT ` + recipientColumns + `
FROM broadcast_recipients
WHERE broadcast_id = $1 AND status = 'queued'
ORDER BY created_at ASC
LIMIT $2
`

// GetQueuedRecipients retrieves the oldest queued recipients of a broadcast,
// bounded by limit so a dispatch pass never loads an unbounded set.
func (s *Store) GetQueuedRecipients(ctx context.Context, broadcastID uuid.UUID, limit int) ([]BroadcastRecipient, error) {
	var recipients []BroadcastRecipient
	err := s.db.SelectContext(ctx, &recipients, sqlGetQueuedRecipients, broadcastID, limit)
	if err != nil {
		s.logger.Error(ctx, "failed to get queued recipients", err)
		return nil, fmt.Errorf("failed to get queued recipients: %w", err)
	}
	return recipients, nil
}

// QueuePendingRecipients flips every pending recipient of a broadcast to
// queued. Called when a broadcast starts sending.
func (s *Store) QueuePendingRecipients(ctx context.Context, broadcastID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE broadcast_recipients SET status = 'queued' WHERE broadcast_id = $1 AND status = 'pending'`,
		broadcastID)
	if err != nil {
		s.logger.Error(ctx, "failed to queue pending recipients", err)
		return fmt.Errorf("failed to queue pending recipients: %w", err)
	}
	return nil
}

// SkipUnsentRecipients marks every not-yet-sent recipient of a broadcast as
// skipped. Recipients that already reached a terminal or in-flight state are
// left untouched.
func (s *Store) SkipUnsentRecipients(ctx context.Context, broadcastID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE broadcast_recipients SET status = 'skipped' WHERE broadcast_id = $1 AND status IN ('pending', 'queued')`,
		broadcastID)
	if err != nil {
		s.logger.Error(ctx, "failed to skip unsent recipients", err)
		return fmt.Errorf("failed to skip unsent recipients: %w", err)
	}
	return nil
}

// UpdateRecipientStatusParams carries the optional result details of a
// recipient status change
type UpdateRecipientStatusParams struct {
	Status       string
	MessageID    *string
	ErrorMessage *string
}

const sqlUpdateRecipientStatus = `
UPDATE broadcast_recipients
SET status = $2,
    message_id = COALESCE($3, message_id),
    error_message = COALESCE($4, error_message),
    sent_at = CASE WHEN $2 = 'sent' AND sent_at IS NULL THEN CURRENT_TIMESTAMP ELSE sent_at END,
    delivered_at = CASE WHEN $2 = 'delivered' AND delivered_at IS NULL THEN CURRENT_TIMESTAMP ELSE delivered_at END
WHERE id = $1
RETURNING ` + recipientColumns + `
`

// UpdateRecipientStatus updates a recipient's status and stamps sent_at or
// delivered_at on the first transition into those states
func (s *Store) UpdateRecipientStatus(ctx context.Context, recipientID uuid.UUID, params UpdateRecipientStatusParams) (BroadcastRecipient, error) {
	var recipient BroadcastRecipient
	err := s.db.GetContext(ctx, &recipient, sqlUpdateRecipientStatus,
		recipientID, params.Status, params.MessageID, params.ErrorMessage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BroadcastRecipient{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to update recipient status", err)
		return BroadcastRecipient{}, fmt.Errorf("failed to update recipient status: %w", err)
	}
	return recipient, nil
}

// ReplaceRecipients swaps a broadcast's recipient list for a freshly
// generated one in a single transaction. Used when a draft's message or
// contact lists change.
func (s *Store) ReplaceRecipients(ctx context.Context, broadcastID uuid.UUID, recipients []NewRecipient) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM broadcast_recipients WHERE broadcast_id = $1`, broadcastID); err != nil {
		s.logger.Error(ctx, "failed to delete old recipients", err)
		return fmt.Errorf("failed to delete old recipients: %w", err)
	}

	for _, r := range recipients {
		if _, err := tx.ExecContext(ctx, sqlInsertRecipient,
			broadcastID, r.ContactID, r.PhoneNumber, r.FullName, r.Message); err != nil {
			s.logger.Error(ctx, "failed to insert replacement recipient", err)
			return fmt.Errorf("failed to insert replacement recipient: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE broadcasts SET total_recipients = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`,
		broadcastID, len(recipients)); err != nil {
		s.logger.Error(ctx, "failed to update total recipients", err)
		return fmt.Errorf("failed to update total recipients: %w", err)
	}

	return tx.Commit()
}

// UpdateRecipientMessages rewrites the personalized message of each listed
// recipient in one transaction. Statuses and timestamps are untouched; this
// backs template regeneration on draft broadcasts.
func (s *Store) UpdateRecipientMessages(ctx context.Context, messages map[uuid.UUID]string) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for recipientID, message := range messages {
		if _, err := tx.ExecContext(ctx,
			`UPDATE broadcast_recipients SET message = $2 WHERE id = $1`,
			recipientID, message); err != nil {
			s.logger.Error(ctx, "failed to update recipient message", err)
			return fmt.Errorf("failed to update recipient message: %w", err)
		}
	}

	return tx.Commit()
}

const sqlGetRecipientStats = `
SELECT COUNT(*) AS total,
       COUNT(*) FILTER (WHERE status = 'sent') AS sent,
       COUNT(*) FILTER (WHERE status = 'delivered') AS delivered,
       COUNT(*) FILTER (WHERE status = 'failed') AS failed,
       COUNT(*) FILTER (WHERE status = 'skipped') AS skipped
FROM broadcast_recipients
WHERE broadcast_id = $1
`

// GetRecipientStats aggregates the recipient status counts for a broadcast
func (s *Store) GetRecipientStats(ctx context.Context, broadcastID uuid.UUID) (RecipientStats, error) {
	var stats RecipientStats
	err := s.db.GetContext(ctx, &stats, sqlGetRecipientStats, broadcastID)
	if err != nil {
		s.logger.Error(ctx, "failed to get recipient stats", err)
		return RecipientStats{}, fmt.Errorf("failed to get recipient stats: %w", err)
	}
	return stats, nil
}
