package processor

import (
	"context"
	"time"

	"wa-server/internal/store"

	"github.com/google/uuid"
)

// fakeStore is an in-memory BroadcastStore for processor tests
type fakeStore struct {
	broadcasts     map[uuid.UUID]store.Broadcast
	recipients     map[uuid.UUID]store.BroadcastRecipient
	recipientOrder []uuid.UUID
	devices        map[uuid.UUID]store.Device
	lists          map[uuid.UUID][]store.ContactListMember
	listOwners     map[uuid.UUID]uuid.UUID
	contacts       map[uuid.UUID]store.ContactListMember
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		broadcasts: make(map[uuid.UUID]store.Broadcast),
		recipients: make(map[uuid.UUID]store.BroadcastRecipient),
		devices:    make(map[uuid.UUID]store.Device),
		lists:      make(map[uuid.UUID][]store.ContactListMember),
		listOwners: make(map[uuid.UUID]uuid.UUID),
		contacts:   make(map[uuid.UUID]store.ContactListMember),
	}
}

func (f *fakeStore) addDevice(businessID uuid.UUID, status string) uuid.UUID {
	id := uuid.New()
	f.devices[id] = store.Device{ID: id, BusinessID: businessID, Name: "test device", Status: status}
	return id
}

func (f *fakeStore) addList(businessID uuid.UUID, members ...store.ContactListMember) uuid.UUID {
	id := uuid.New()
	f.lists[id] = members
	f.listOwners[id] = businessID
	for _, m := range members {
		f.contacts[m.ContactID] = m
	}
	return id
}

func member(phone string, name string) store.ContactListMember {
	m := store.ContactListMember{ContactID: uuid.New(), PhoneNumber: phone}
	if name != "" {
		m.FullName = &name
	}
	return m
}

func (f *fakeStore) CreateBroadcastWithRecipients(ctx context.Context, params store.CreateBroadcastParams, recipients []store.NewRecipient) (store.Broadcast, error) {
	now := time.Now()
	broadcast := store.Broadcast{
		ID:                 uuid.New(),
		BusinessID:         params.BusinessID,
		DeviceID:           params.DeviceID,
		Name:               params.Name,
		Message:            params.Message,
		MessageType:        params.MessageType,
		MediaURL:           params.MediaURL,
		Status:             store.BroadcastStatusDraft,
		SendSpeed:          params.SendSpeed,
		CustomDelaySeconds: params.CustomDelaySeconds,
		ScheduledAt:        params.ScheduledAt,
		TotalRecipients:    len(recipients),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	f.broadcasts[broadcast.ID] = broadcast

	for _, r := range recipients {
		row := store.BroadcastRecipient{
			ID:          uuid.New(),
			BroadcastID: broadcast.ID,
			ContactID:   r.ContactID,
			PhoneNumber: r.PhoneNumber,
			FullName:    r.FullName,
			Message:     r.Message,
			Status:      store.RecipientStatusPending,
			CreatedAt:   now,
		}
		f.recipients[row.ID] = row
		f.recipientOrder = append(f.recipientOrder, row.ID)
	}
	return broadcast, nil
}

func (f *fakeStore) GetBroadcastByID(ctx context.Context, broadcastID, businessID uuid.UUID) (store.Broadcast, error) {
	b, ok := f.broadcasts[broadcastID]
	if !ok || b.BusinessID != businessID {
		return store.Broadcast{}, store.ErrNotFound
	}
	return b, nil
}

func (f *fakeStore) GetBroadcastsByBusiness(ctx context.Context, businessID uuid.UUID, limit, offset int) ([]store.Broadcast, error) {
	var out []store.Broadcast
	for _, b := range f.broadcasts {
		if b.BusinessID == businessID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeStore) CountBroadcastsByBusiness(ctx context.Context, businessID uuid.UUID) (int, error) {
	count := 0
	for _, b := range f.broadcasts {
		if b.BusinessID == businessID {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) UpdateBroadcast(ctx context.Context, broadcastID uuid.UUID, params store.UpdateBroadcastParams) (store.Broadcast, error) {
	b, ok := f.broadcasts[broadcastID]
	if !ok {
		return store.Broadcast{}, store.ErrNotFound
	}
	if params.DeviceID != nil {
		b.DeviceID = *params.DeviceID
	}
	if params.Name != nil {
		b.Name = *params.Name
	}
	if params.Message != nil {
		b.Message = *params.Message
	}
	if params.MessageType != nil {
		b.MessageType = *params.MessageType
	}
	if params.MediaURL != nil {
		b.MediaURL = params.MediaURL
	}
	if params.SendSpeed != nil {
		b.SendSpeed = *params.SendSpeed
	}
	if params.CustomDelaySeconds != nil {
		b.CustomDelaySeconds = params.CustomDelaySeconds
	}
	if params.ScheduledAt != nil {
		b.ScheduledAt = params.ScheduledAt
	}
	b.UpdatedAt = time.Now()
	f.broadcasts[broadcastID] = b
	return b, nil
}

func (f *fakeStore) UpdateBroadcastStatus(ctx context.Context, broadcastID uuid.UUID, status string) error {
	b, ok := f.broadcasts[broadcastID]
	if !ok {
		return store.ErrNotFound
	}
	b.Status = status
	f.broadcasts[broadcastID] = b
	return nil
}

func (f *fakeStore) MarkBroadcastSending(ctx context.Context, broadcastID uuid.UUID) error {
	b, ok := f.broadcasts[broadcastID]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	b.Status = store.BroadcastStatusSending
	b.StartedAt = &now
	f.broadcasts[broadcastID] = b
	return nil
}

func (f *fakeStore) CancelBroadcast(ctx context.Context, broadcastID uuid.UUID) error {
	b, ok := f.broadcasts[broadcastID]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	b.Status = store.BroadcastStatusCancelled
	b.CompletedAt = &now
	f.broadcasts[broadcastID] = b
	return nil
}

func (f *fakeStore) UpdateBroadcastCounters(ctx context.Context, broadcastID uuid.UUID, sent, delivered, failed int) error {
	b, ok := f.broadcasts[broadcastID]
	if !ok {
		return store.ErrNotFound
	}
	b.SentCount = sent
	b.DeliveredCount = delivered
	b.FailedCount = failed
	f.broadcasts[broadcastID] = b
	return nil
}

func (f *fakeStore) CompleteBroadcast(ctx context.Context, broadcastID uuid.UUID) (bool, error) {
	b, ok := f.broadcasts[broadcastID]
	if !ok {
		return false, store.ErrNotFound
	}
	if b.Status != store.BroadcastStatusSending {
		return false, nil
	}
	now := time.Now()
	b.Status = store.BroadcastStatusCompleted
	b.CompletedAt = &now
	f.broadcasts[broadcastID] = b
	return true, nil
}

func (f *fakeStore) DeleteBroadcast(ctx context.Context, broadcastID uuid.UUID) error {
	if _, ok := f.broadcasts[broadcastID]; !ok {
		return store.ErrNotFound
	}
	delete(f.broadcasts, broadcastID)
	for id, r := range f.recipients {
		if r.BroadcastID == broadcastID {
			delete(f.recipients, id)
		}
	}
	return nil
}

func (f *fakeStore) GetScheduledBroadcastsToStart(ctx context.Context, beforeTime time.Time) ([]store.Broadcast, error) {
	var out []store.Broadcast
	for _, b := range f.broadcasts {
		if b.Status == store.BroadcastStatusScheduled && b.ScheduledAt != nil && !b.ScheduledAt.After(beforeTime) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeStore) GetSendingBroadcasts(ctx context.Context) ([]store.Broadcast, error) {
	var out []store.Broadcast
	for _, b := range f.broadcasts {
		if b.Status == store.BroadcastStatusSending {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeStore) QueuePendingRecipients(ctx context.Context, broadcastID uuid.UUID) error {
	for id, r := range f.recipients {
		if r.BroadcastID == broadcastID && r.Status == store.RecipientStatusPending {
			r.Status = store.RecipientStatusQueued
			f.recipients[id] = r
		}
	}
	return nil
}

func (f *fakeStore) SkipUnsentRecipients(ctx context.Context, broadcastID uuid.UUID) error {
	for id, r := range f.recipients {
		if r.BroadcastID == broadcastID &&
			(r.Status == store.RecipientStatusPending || r.Status == store.RecipientStatusQueued) {
			r.Status = store.RecipientStatusSkipped
			f.recipients[id] = r
		}
	}
	return nil
}

func (f *fakeStore) GetQueuedRecipients(ctx context.Context, broadcastID uuid.UUID, limit int) ([]store.BroadcastRecipient, error) {
	var out []store.BroadcastRecipient
	for _, id := range f.recipientOrder {
		r := f.recipients[id]
		if r.BroadcastID == broadcastID && r.Status == store.RecipientStatusQueued {
			out = append(out, r)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) GetRecipientByID(ctx context.Context, recipientID uuid.UUID) (store.BroadcastRecipient, error) {
	r, ok := f.recipients[recipientID]
	if !ok {
		return store.BroadcastRecipient{}, store.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) GetRecipientsByBroadcast(ctx context.Context, broadcastID uuid.UUID, limit, offset int) ([]store.BroadcastRecipient, error) {
	all, _ := f.GetAllRecipientsByBroadcast(ctx, broadcastID)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (f *fakeStore) GetAllRecipientsByBroadcast(ctx context.Context, broadcastID uuid.UUID) ([]store.BroadcastRecipient, error) {
	var out []store.BroadcastRecipient
	for _, id := range f.recipientOrder {
		r := f.recipients[id]
		if r.BroadcastID == broadcastID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateRecipientStatus(ctx context.Context, recipientID uuid.UUID, params store.UpdateRecipientStatusParams) (store.BroadcastRecipient, error) {
	r, ok := f.recipients[recipientID]
	if !ok {
		return store.BroadcastRecipient{}, store.ErrNotFound
	}
	now := time.Now()
	r.Status = params.Status
	if params.MessageID != nil {
		r.MessageID = params.MessageID
	}
	if params.ErrorMessage != nil {
		r.ErrorMessage = params.ErrorMessage
	}
	if params.Status == store.RecipientStatusSent && r.SentAt == nil {
		r.SentAt = &now
	}
	if params.Status == store.RecipientStatusDelivered && r.DeliveredAt == nil {
		r.DeliveredAt = &now
	}
	f.recipients[recipientID] = r
	return r, nil
}

func (f *fakeStore) ReplaceRecipients(ctx context.Context, broadcastID uuid.UUID, recipients []store.NewRecipient) error {
	for id, r := range f.recipients {
		if r.BroadcastID == broadcastID {
			delete(f.recipients, id)
			for i, orderedID := range f.recipientOrder {
				if orderedID == id {
					f.recipientOrder = append(f.recipientOrder[:i], f.recipientOrder[i+1:]...)
					break
				}
			}
		}
	}
	now := time.Now()
	for _, r := range recipients {
		row := store.BroadcastRecipient{
			ID:          uuid.New(),
			BroadcastID: broadcastID,
			ContactID:   r.ContactID,
			PhoneNumber: r.PhoneNumber,
			FullName:    r.FullName,
			Message:     r.Message,
			Status:      store.RecipientStatusPending,
			CreatedAt:   now,
		}
		f.recipients[row.ID] = row
		f.recipientOrder = append(f.recipientOrder, row.ID)
	}
	b, ok := f.broadcasts[broadcastID]
	if !ok {
		return store.ErrNotFound
	}
	b.TotalRecipients = len(recipients)
	f.broadcasts[broadcastID] = b
	return nil
}

func (f *fakeStore) UpdateRecipientMessages(ctx context.Context, messages map[uuid.UUID]string) error {
	for id, message := range messages {
		r, ok := f.recipients[id]
		if !ok {
			return store.ErrNotFound
		}
		r.Message = message
		f.recipients[id] = r
	}
	return nil
}

func (f *fakeStore) GetRecipientStats(ctx context.Context, broadcastID uuid.UUID) (store.RecipientStats, error) {
	var stats store.RecipientStats
	for _, r := range f.recipients {
		if r.BroadcastID != broadcastID {
			continue
		}
		stats.Total++
		switch r.Status {
		case store.RecipientStatusSent:
			stats.Sent++
		case store.RecipientStatusDelivered:
			stats.Delivered++
		case store.RecipientStatusFailed:
			stats.Failed++
		case store.RecipientStatusSkipped:
			stats.Skipped++
		}
	}
	return stats, nil
}

func (f *fakeStore) ContactListExists(ctx context.Context, listID, businessID uuid.UUID) (bool, error) {
	owner, ok := f.listOwners[listID]
	return ok && owner == businessID, nil
}

func (f *fakeStore) GetContactListMembers(ctx context.Context, listID uuid.UUID, excludeOptedOut bool) ([]store.ContactListMember, error) {
	return f.lists[listID], nil
}

func (f *fakeStore) GetContactsByIDs(ctx context.Context, contactIDs []uuid.UUID) (map[uuid.UUID]store.ContactListMember, error) {
	out := make(map[uuid.UUID]store.ContactListMember)
	for _, id := range contactIDs {
		if c, ok := f.contacts[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (f *fakeStore) GetDeviceByID(ctx context.Context, deviceID, businessID uuid.UUID) (store.Device, error) {
	d, ok := f.devices[deviceID]
	if !ok || d.BusinessID != businessID {
		return store.Device{}, store.ErrNotFound
	}
	return d, nil
}
