package processor

import (
	"context"
	"time"

	"wa-server/internal/store"

	"github.com/google/uuid"
)

// BroadcastStore defines the database operations required by BroadcastProcessor
type BroadcastStore interface {
	CreateBroadcastWithRecipients(ctx context.Context, params store.CreateBroadcastParams, recipients []store.NewRecipient) (store.Broadcast, error)
	GetBroadcastByID(ctx context.Context, broadcastID, businessID uuid.UUID) (store.Broadcast, error)
	GetBroadcastsByBusiness(ctx context.Context, businessID uuid.UUID, limit, offset int) ([]store.Broadcast, error)
	CountBroadcastsByBusiness(ctx context.Context, businessID uuid.UUID) (int, error)
	UpdateBroadcast(ctx context.Context, broadcastID uuid.UUID, params store.UpdateBroadcastParams) (store.Broadcast, error)
	UpdateBroadcastStatus(ctx context.Context, broadcastID uuid.UUID, status string) error
	MarkBroadcastSending(ctx context.Context, broadcastID uuid.UUID) error
	CancelBroadcast(ctx context.Context, broadcastID uuid.UUID) error
	UpdateBroadcastCounters(ctx context.Context, broadcastID uuid.UUID, sent, delivered, failed int) error
	CompleteBroadcast(ctx context.Context, broadcastID uuid.UUID) (bool, error)
	DeleteBroadcast(ctx context.Context, broadcastID uuid.UUID) error
	GetScheduledBroadcastsToStart(ctx context.Context, beforeTime time.Time) ([]store.Broadcast, error)
	GetSendingBroadcasts(ctx context.Context) ([]store.Broadcast, error)

	QueuePendingRecipients(ctx context.Context, broadcastID uuid.UUID) error
	SkipUnsentRecipients(ctx context.Context, broadcastID uuid.UUID) error
	GetQueuedRecipients(ctx context.Context, broadcastID uuid.UUID, limit int) ([]store.BroadcastRecipient, error)
	GetRecipientByID(ctx context.Context, recipientID uuid.UUID) (store.BroadcastRecipient, error)
	GetRecipientsByBroadcast(ctx context.Context, broadcastID uuid.UUID, limit, offset int) ([]store.BroadcastRecipient, error)
	GetAllRecipientsByBroadcast(ctx context.Context, broadcastID uuid.UUID) ([]store.BroadcastRecipient, error)
	UpdateRecipientStatus(ctx context.Context, recipientID uuid.UUID, params store.UpdateRecipientStatusParams) (store.BroadcastRecipient, error)
	UpdateRecipientMessages(ctx context.Context, messages map[uuid.UUID]string) error
	ReplaceRecipients(ctx context.Context, broadcastID uuid.UUID, recipients []store.NewRecipient) error
	GetRecipientStats(ctx context.Context, broadcastID uuid.UUID) (store.RecipientStats, error)

	ContactListExists(ctx context.Context, listID, businessID uuid.UUID) (bool, error)
	GetContactListMembers(ctx context.Context, listID uuid.UUID, excludeOptedOut bool) ([]store.ContactListMember, error)
	GetContactsByIDs(ctx context.Context, contactIDs []uuid.UUID) (map[uuid.UUID]store.ContactListMember, error)
	GetDeviceByID(ctx context.Context, deviceID, businessID uuid.UUID) (store.Device, error)
}
