package processor

import (
	"context"
	"errors"
	"time"

	"wa-server/internal/observability"
	"wa-server/internal/store"

	"github.com/google/uuid"
)

// MaxRecipients caps the merged recipient count of one broadcast
const MaxRecipients = 1000

var (
	ErrBroadcastNotFound      = errors.New("broadcast not found")
	ErrRecipientNotFound      = errors.New("recipient not found")
	ErrDeviceNotFound         = errors.New("device not found")
	ErrContactListNotFound    = errors.New("contact list not found")
	ErrDeviceNotConnected     = errors.New("device is not connected")
	ErrTooManyRecipients      = errors.New("broadcast exceeds the maximum of 1000 recipients")
	ErrNoRecipients           = errors.New("broadcast has no recipients")
	ErrOnlyDraftUpdatable     = errors.New("only draft broadcasts can be updated")
	ErrOnlyDraftDeletable     = errors.New("only draft broadcasts can be deleted")
	ErrBroadcastCannotStart   = errors.New("broadcast cannot be started from its current status")
	ErrBroadcastCannotCancel  = errors.New("completed broadcasts cannot be cancelled")
	ErrInvalidRecipientStatus = errors.New("invalid recipient status")
)

// BroadcastProcessor handles broadcast lifecycle business logic
type BroadcastProcessor struct {
	store  BroadcastStore
	logger *observability.Logger
}

// New creates a new BroadcastProcessor
func New(broadcastStore BroadcastStore, logger *observability.Logger) *BroadcastProcessor {
	return &BroadcastProcessor{
		store:  broadcastStore,
		logger: logger,
	}
}

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
	ContactListIDs     []uuid.UUID
}

// CreateBroadcast creates a draft broadcast and generates its recipient list
// from the selected contact lists. Recipient generation happens inside the
// creation transaction: over-cap or insert failures leave no broadcast behind.
func (p *BroadcastProcessor) CreateBroadcast(ctx context.Context, params CreateBroadcastParams) (store.Broadcast, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "business_id", Value: params.BusinessID})

	device, err := p.store.GetDeviceByID(ctx, params.DeviceID, params.BusinessID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Broadcast{}, ErrDeviceNotFound
		}
		return store.Broadcast{}, err
	}
	if device.Status != store.DeviceStatusConnected {
		return store.Broadcast{}, ErrDeviceNotConnected
	}

	if params.SendSpeed == "" {
		params.SendSpeed = store.SendSpeedNormal
	}

	recipients, err := p.generateRecipients(ctx, params.BusinessID, params.ContactListIDs, params.Message)
	if err != nil {
		return store.Broadcast{}, err
	}

	broadcast, err := p.store.CreateBroadcastWithRecipients(ctx, store.CreateBroadcastParams{
		BusinessID:         params.BusinessID,
		DeviceID:           params.DeviceID,
		Name:               params.Name,
		Message:            params.Message,
		MessageType:        params.MessageType,
		MediaURL:           params.MediaURL,
		SendSpeed:          params.SendSpeed,
		CustomDelaySeconds: params.CustomDelaySeconds,
		ScheduledAt:        params.ScheduledAt,
	}, recipients)
	if err != nil {
		return store.Broadcast{}, err
	}

	p.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "broadcast_id", Value: broadcast.ID},
		observability.Field{Key: "total_recipients", Value: broadcast.TotalRecipients},
	), "broadcast created")
	return broadcast, nil
}

// generateRecipients merges the members of the selected contact lists into
// one deduplicated, personalized recipient set. Duplicate phone numbers take
// the contact from the last list that mentions them; insertion order follows
// first appearance so generation stays deterministic.
func (p *BroadcastProcessor) generateRecipients(ctx context.Context, businessID uuid.UUID, listIDs []uuid.UUID, template string) ([]store.NewRecipient, error) {
	merged := make(map[string]store.ContactListMember)
	var order []string

	for _, listID := range listIDs {
		exists, err := p.store.ContactListExists(ctx, listID, businessID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrContactListNotFound
		}

		members, err := p.store.GetContactListMembers(ctx, listID, true)
		if err != nil {
			return nil, err
		}

		for _, member := range members {
			if _, seen := merged[member.PhoneNumber]; !seen {
				order = append(order, member.PhoneNumber)
			}
			merged[member.PhoneNumber] = member
		}
	}

	if len(merged) > MaxRecipients {
		return nil, ErrTooManyRecipients
	}

	recipients := make([]store.NewRecipient, 0, len(merged))
	for _, phone := range order {
		member := merged[phone]
		contactID := member.ContactID
		recipients = append(recipients, store.NewRecipient{
			ContactID:   &contactID,
			PhoneNumber: member.PhoneNumber,
			FullName:    member.FullName,
			Message:     Personalize(template, member),
		})
	}
	return recipients, nil
}

// GetBroadcast retrieves a broadcast scoped to its owning business
func (p *BroadcastProcessor) GetBroadcast(ctx context.Context, broadcastID, businessID uuid.UUID) (store.Broadcast, error) {
	broadcast, err := p.store.GetBroadcastByID(ctx, broadcastID, businessID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Broadcast{}, ErrBroadcastNotFound
		}
		return store.Broadcast{}, err
	}
	return broadcast, nil
}

// ListBroadcasts retrieves a page of a business's broadcasts plus the total count
func (p *BroadcastProcessor) ListBroadcasts(ctx context.Context, businessID uuid.UUID, limit, offset int) ([]store.Broadcast, int, error) {
	broadcasts, err := p.store.GetBroadcastsByBusiness(ctx, businessID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := p.store.CountBroadcastsByBusiness(ctx, businessID)
	if err != nil {
		return nil, 0, err
	}
	return broadcasts, total, nil
}

// UpdateBroadcastParams represents a partial broadcast update. Nil fields are
// left unchanged. A non-nil ContactListIDs regenerates the recipient list.
type UpdateBroadcastParams struct {
	DeviceID           *uuid.UUID
	Name               *string
	Message            *string
	MessageType        *string
	MediaURL           *string
	SendSpeed          *string
	CustomDelaySeconds *int
	ScheduledAt        *time.Time
	ContactListIDs     []uuid.UUID
}

// UpdateBroadcast applies a partial update to a draft broadcast. Changing the
// contact lists regenerates the recipient set from scratch; changing only the
// message template recomputes every recipient's personalized message in
// place, preserving statuses.
func (p *BroadcastProcessor) UpdateBroadcast(ctx context.Context, broadcastID, businessID uuid.UUID, params UpdateBroadcastParams) (store.Broadcast, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "broadcast_id", Value: broadcastID})

	broadcast, err := p.GetBroadcast(ctx, broadcastID, businessID)
	if err != nil {
		return store.Broadcast{}, err
	}
	if broadcast.Status != store.BroadcastStatusDraft {
		return store.Broadcast{}, ErrOnlyDraftUpdatable
	}

	if params.DeviceID != nil {
		device, err := p.store.GetDeviceByID(ctx, *params.DeviceID, businessID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return store.Broadcast{}, ErrDeviceNotFound
			}
			return store.Broadcast{}, err
		}
		if device.Status != store.DeviceStatusConnected {
			return store.Broadcast{}, ErrDeviceNotConnected
		}
	}

	updated, err := p.store.UpdateBroadcast(ctx, broadcastID, store.UpdateBroadcastParams{
		DeviceID:           params.DeviceID,
		Name:               params.Name,
		Message:            params.Message,
		MessageType:        params.MessageType,
		MediaURL:           params.MediaURL,
		SendSpeed:          params.SendSpeed,
		CustomDelaySeconds: params.CustomDelaySeconds,
		ScheduledAt:        params.ScheduledAt,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Broadcast{}, ErrBroadcastNotFound
		}
		return store.Broadcast{}, err
	}

	if params.ContactListIDs != nil {
		recipients, err := p.generateRecipients(ctx, businessID, params.ContactListIDs, updated.Message)
		if err != nil {
			return store.Broadcast{}, err
		}
		if err := p.store.ReplaceRecipients(ctx, updated.ID, recipients); err != nil {
			return store.Broadcast{}, err
		}
		return p.GetBroadcast(ctx, broadcastID, businessID)
	}

	templateChanged := params.Message != nil && *params.Message != broadcast.Message
	if templateChanged {
		if err := p.regenerateMessages(ctx, updated.ID, updated.Message); err != nil {
			return store.Broadcast{}, err
		}
	}

	return updated, nil
}

// regenerateMessages recomputes each recipient's personalized message from
// the new template, preserving status and timestamps
func (p *BroadcastProcessor) regenerateMessages(ctx context.Context, broadcastID uuid.UUID, template string) error {
	recipients, err := p.store.GetAllRecipientsByBroadcast(ctx, broadcastID)
	if err != nil {
		return err
	}

	var contactIDs []uuid.UUID
	for _, r := range recipients {
		if r.ContactID != nil {
			contactIDs = append(contactIDs, *r.ContactID)
		}
	}
	contacts, err := p.store.GetContactsByIDs(ctx, contactIDs)
	if err != nil {
		return err
	}

	messages := make(map[uuid.UUID]string, len(recipients))
	for _, r := range recipients {
		member := store.ContactListMember{
			PhoneNumber: r.PhoneNumber,
			FullName:    r.FullName,
		}
		if r.ContactID != nil {
			if contact, ok := contacts[*r.ContactID]; ok {
				member = contact
			}
		}
		messages[r.ID] = Personalize(template, member)
	}

	return p.store.UpdateRecipientMessages(ctx, messages)
}

// StartBroadcast starts a draft or scheduled broadcast. While scheduled_at is
// in the future the broadcast only transitions to scheduled and never begins
// sending, no matter how often start is requested; once due, the broadcast
// enters sending and its pending recipients are queued for the dispatch
// worker.
func (p *BroadcastProcessor) StartBroadcast(ctx context.Context, broadcastID, businessID uuid.UUID) (store.Broadcast, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "broadcast_id", Value: broadcastID})

	broadcast, err := p.GetBroadcast(ctx, broadcastID, businessID)
	if err != nil {
		return store.Broadcast{}, err
	}

	if broadcast.Status != store.BroadcastStatusDraft && broadcast.Status != store.BroadcastStatusScheduled {
		return store.Broadcast{}, ErrBroadcastCannotStart
	}
	if broadcast.TotalRecipients == 0 {
		return store.Broadcast{}, ErrNoRecipients
	}

	if broadcast.ScheduledAt != nil && broadcast.ScheduledAt.After(time.Now()) {
		if broadcast.Status != store.BroadcastStatusScheduled {
			if err := p.store.UpdateBroadcastStatus(ctx, broadcastID, store.BroadcastStatusScheduled); err != nil {
				return store.Broadcast{}, err
			}
			p.logger.Info(ctx, "broadcast scheduled")
		}
		return p.GetBroadcast(ctx, broadcastID, businessID)
	}

	if err := p.store.MarkBroadcastSending(ctx, broadcastID); err != nil {
		return store.Broadcast{}, err
	}
	if err := p.store.QueuePendingRecipients(ctx, broadcastID); err != nil {
		return store.Broadcast{}, err
	}

	p.logger.Info(ctx, "broadcast started")
	return p.GetBroadcast(ctx, broadcastID, businessID)
}

// CancelBroadcast cancels a broadcast from any non-completed state, skipping
// every recipient not yet handed to the sender. Cancelling an already
// cancelled broadcast succeeds and re-stamps completed_at.
func (p *BroadcastProcessor) CancelBroadcast(ctx context.Context, broadcastID, businessID uuid.UUID) (store.Broadcast, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "broadcast_id", Value: broadcastID})

	broadcast, err := p.GetBroadcast(ctx, broadcastID, businessID)
	if err != nil {
		return store.Broadcast{}, err
	}
	if broadcast.Status == store.BroadcastStatusCompleted {
		return store.Broadcast{}, ErrBroadcastCannotCancel
	}

	if err := p.store.CancelBroadcast(ctx, broadcastID); err != nil {
		return store.Broadcast{}, err
	}
	if err := p.store.SkipUnsentRecipients(ctx, broadcastID); err != nil {
		return store.Broadcast{}, err
	}

	p.logger.Info(ctx, "broadcast cancelled")
	return p.GetBroadcast(ctx, broadcastID, businessID)
}

// DeleteBroadcast removes a draft broadcast and its recipients
func (p *BroadcastProcessor) DeleteBroadcast(ctx context.Context, broadcastID, businessID uuid.UUID) error {
	broadcast, err := p.GetBroadcast(ctx, broadcastID, businessID)
	if err != nil {
		return err
	}
	if broadcast.Status != store.BroadcastStatusDraft {
		return ErrOnlyDraftDeletable
	}

	if err := p.store.DeleteBroadcast(ctx, broadcastID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrBroadcastNotFound
		}
		return err
	}
	return nil
}

// FailBroadcast marks a broadcast failed. Used by the scheduler when a due
// scheduled broadcast cannot start.
func (p *BroadcastProcessor) FailBroadcast(ctx context.Context, broadcastID uuid.UUID) error {
	return p.store.UpdateBroadcastStatus(ctx, broadcastID, store.BroadcastStatusFailed)
}

// GetPendingRecipients returns the oldest queued recipients of a broadcast,
// bounded by limit. This is retrieval order only; processing order belongs
// to the dispatch worker.
func (p *BroadcastProcessor) GetPendingRecipients(ctx context.Context, broadcastID uuid.UUID, limit int) ([]store.BroadcastRecipient, error) {
	return p.store.GetQueuedRecipients(ctx, broadcastID, limit)
}

// ListRecipients retrieves a page of a broadcast's recipients
func (p *BroadcastProcessor) ListRecipients(ctx context.Context, broadcastID, businessID uuid.UUID, limit, offset int) ([]store.BroadcastRecipient, error) {
	if _, err := p.GetBroadcast(ctx, broadcastID, businessID); err != nil {
		return nil, err
	}
	return p.store.GetRecipientsByBroadcast(ctx, broadcastID, limit, offset)
}

// GetSendingBroadcasts returns every broadcast currently in the sending state
func (p *BroadcastProcessor) GetSendingBroadcasts(ctx context.Context) ([]store.Broadcast, error) {
	return p.store.GetSendingBroadcasts(ctx)
}

// GetScheduledBroadcastsToStart returns scheduled broadcasts whose
// scheduled_at has passed
func (p *BroadcastProcessor) GetScheduledBroadcastsToStart(ctx context.Context) ([]store.Broadcast, error) {
	return p.store.GetScheduledBroadcastsToStart(ctx, time.Now())
}

var validRecipientStatuses = map[string]bool{
	store.RecipientStatusPending:   true,
	store.RecipientStatusQueued:    true,
	store.RecipientStatusSending:   true,
	store.RecipientStatusSent:      true,
	store.RecipientStatusDelivered: true,
	store.RecipientStatusFailed:    true,
	store.RecipientStatusSkipped:   true,
}

// UpdateRecipientStatus sets a recipient's status and recomputes the parent
// broadcast's counters from a full recipient aggregate. When every recipient
// is sent or failed the broadcast auto-completes; this is the sole completion
// trigger. Skipped recipients count as neither sent nor failed, so a
// broadcast with skipped rows never completes through this path.
func (p *BroadcastProcessor) UpdateRecipientStatus(ctx context.Context, recipientID uuid.UUID, status string, messageID, errorMessage *string) (store.BroadcastRecipient, error) {
	if !validRecipientStatuses[status] {
		return store.BroadcastRecipient{}, ErrInvalidRecipientStatus
	}

	recipient, err := p.store.UpdateRecipientStatus(ctx, recipientID, store.UpdateRecipientStatusParams{
		Status:       status,
		MessageID:    messageID,
		ErrorMessage: errorMessage,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.BroadcastRecipient{}, ErrRecipientNotFound
		}
		return store.BroadcastRecipient{}, err
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "broadcast_id", Value: recipient.BroadcastID},
		observability.Field{Key: "recipient_id", Value: recipient.ID},
	)

	stats, err := p.store.GetRecipientStats(ctx, recipient.BroadcastID)
	if err != nil {
		return recipient, err
	}

	// sent_count counts delivered recipients too: delivered implies sent
	sentCount := stats.Sent + stats.Delivered
	if err := p.store.UpdateBroadcastCounters(ctx, recipient.BroadcastID, sentCount, stats.Delivered, stats.Failed); err != nil {
		return recipient, err
	}

	if stats.Total > 0 && sentCount+stats.Failed >= stats.Total {
		completed, err := p.store.CompleteBroadcast(ctx, recipient.BroadcastID)
		if err != nil {
			return recipient, err
		}
		if completed {
			p.logger.Info(ctx, "broadcast completed")
		}
	}

	return recipient, nil
}

// BroadcastProgress summarizes a broadcast's delivery state
type BroadcastProgress struct {
	BroadcastID uuid.UUID `json:"broadcast_id"`
	Status      string    `json:"status"`
	Total       int       `json:"total"`
	Sent        int       `json:"sent"`
	Delivered   int       `json:"delivered"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	Percent     float64   `json:"percent"`
}

// GetProgress reports live counters for a broadcast
func (p *BroadcastProcessor) GetProgress(ctx context.Context, broadcastID, businessID uuid.UUID) (BroadcastProgress, error) {
	broadcast, err := p.GetBroadcast(ctx, broadcastID, businessID)
	if err != nil {
		return BroadcastProgress{}, err
	}

	stats, err := p.store.GetRecipientStats(ctx, broadcastID)
	if err != nil {
		return BroadcastProgress{}, err
	}

	progress := BroadcastProgress{
		BroadcastID: broadcast.ID,
		Status:      broadcast.Status,
		Total:       stats.Total,
		Sent:        stats.Sent + stats.Delivered,
		Delivered:   stats.Delivered,
		Failed:      stats.Failed,
		Skipped:     stats.Skipped,
	}
	if stats.Total > 0 {
		processed := stats.Sent + stats.Delivered + stats.Failed + stats.Skipped
		progress.Percent = float64(processed) / float64(stats.Total) * 100
	}
	return progress, nil
}
