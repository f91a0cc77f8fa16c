package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"wa-server/internal/messaging"
	"wa-server/internal/observability"
	"wa-server/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type fakeEngine struct {
	broadcasts []store.Broadcast
	recipients map[uuid.UUID][]store.BroadcastRecipient
	statuses   map[uuid.UUID][]string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		recipients: make(map[uuid.UUID][]store.BroadcastRecipient),
		statuses:   make(map[uuid.UUID][]string),
	}
}

func (f *fakeEngine) addBroadcast(phones ...string) store.Broadcast {
	broadcast := store.Broadcast{
		ID:         uuid.New(),
		BusinessID: uuid.New(),
		DeviceID:   uuid.New(),
		Status:     store.BroadcastStatusSending,
		SendSpeed:  store.SendSpeedNormal,
	}
	f.broadcasts = append(f.broadcasts, broadcast)
	for _, phone := range phones {
		f.recipients[broadcast.ID] = append(f.recipients[broadcast.ID], store.BroadcastRecipient{
			ID:          uuid.New(),
			BroadcastID: broadcast.ID,
			PhoneNumber: phone,
			Message:     "hello " + phone,
			Status:      store.RecipientStatusQueued,
		})
	}
	return broadcast
}

func (f *fakeEngine) GetSendingBroadcasts(ctx context.Context) ([]store.Broadcast, error) {
	return f.broadcasts, nil
}

func (f *fakeEngine) GetPendingRecipients(ctx context.Context, broadcastID uuid.UUID, limit int) ([]store.BroadcastRecipient, error) {
	var out []store.BroadcastRecipient
	for _, r := range f.recipients[broadcastID] {
		if r.Status == store.RecipientStatusQueued {
			out = append(out, r)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeEngine) UpdateRecipientStatus(ctx context.Context, recipientID uuid.UUID, status string, messageID, errorMessage *string) (store.BroadcastRecipient, error) {
	f.statuses[recipientID] = append(f.statuses[recipientID], status)
	for broadcastID, recipients := range f.recipients {
		for i, r := range recipients {
			if r.ID != recipientID {
				continue
			}
			r.Status = status
			if messageID != nil {
				r.MessageID = messageID
			}
			if errorMessage != nil {
				r.ErrorMessage = errorMessage
			}
			f.recipients[broadcastID][i] = r
			return r, nil
		}
	}
	return store.BroadcastRecipient{}, store.ErrNotFound
}

type fakeSender struct {
	failFor map[string]error
	sent    []string
}

func (f *fakeSender) SendMessage(ctx context.Context, deviceID uuid.UUID, phoneNumber, message string, mediaURL *string) (messaging.SendResult, error) {
	if err, ok := f.failFor[phoneNumber]; ok {
		return messaging.SendResult{}, err
	}
	f.sent = append(f.sent, phoneNumber)
	return messaging.SendResult{MessageID: "msg-" + phoneNumber, Status: "queued"}, nil
}

type emittedEvent struct {
	eventType  string
	businessID uuid.UUID
	data       map[string]interface{}
}

type fakeEmitter struct {
	events []emittedEvent
}

func (f *fakeEmitter) DispatchMessageSent(ctx context.Context, businessID uuid.UUID, data map[string]interface{}) {
	f.events = append(f.events, emittedEvent{"message.sent", businessID, data})
}

func (f *fakeEmitter) DispatchMessageFailed(ctx context.Context, businessID uuid.UUID, data map[string]interface{}) {
	f.events = append(f.events, emittedEvent{"message.failed", businessID, data})
}

func newTestWorker(engine *fakeEngine, sender *fakeSender, emitter *fakeEmitter) *Worker {
	w := New(engine, sender, emitter, observability.NewLogger(), 50, time.Second)
	// unpaced in tests
	for _, b := range engine.broadcasts {
		w.limiters[b.ID] = rate.NewLimiter(rate.Inf, 1)
	}
	return w
}

func TestDispatchPassSendsQueuedRecipients(t *testing.T) {
	ctx := context.Background()

	engine := newFakeEngine()
	broadcast := engine.addBroadcast("+100", "+200")
	sender := &fakeSender{}
	emitter := &fakeEmitter{}
	w := newTestWorker(engine, sender, emitter)

	w.dispatchPass(ctx)

	assert.Equal(t, []string{"+100", "+200"}, sender.sent)

	recipients := engine.recipients[broadcast.ID]
	for _, r := range recipients {
		assert.Equal(t, store.RecipientStatusSent, r.Status)
		require.NotNil(t, r.MessageID)
		assert.Equal(t, "msg-"+r.PhoneNumber, *r.MessageID)
		// marked sending before the send, sent after
		assert.Equal(t, []string{store.RecipientStatusSending, store.RecipientStatusSent}, engine.statuses[r.ID])
	}

	require.Len(t, emitter.events, 2)
	for i, e := range emitter.events {
		assert.Equal(t, "message.sent", e.eventType)
		assert.Equal(t, broadcast.BusinessID, e.businessID)
		assert.Equal(t, broadcast.ID.String(), e.data["broadcast_id"])
		assert.Equal(t, recipients[i].PhoneNumber, e.data["phone_number"])
	}
}

func TestDispatchPassRecordsSendFailures(t *testing.T) {
	ctx := context.Background()

	engine := newFakeEngine()
	broadcast := engine.addBroadcast("+100", "+200")
	sender := &fakeSender{failFor: map[string]error{"+100": errors.New("number not on whatsapp")}}
	emitter := &fakeEmitter{}
	w := newTestWorker(engine, sender, emitter)

	w.dispatchPass(ctx)

	recipients := engine.recipients[broadcast.ID]
	assert.Equal(t, store.RecipientStatusFailed, recipients[0].Status)
	require.NotNil(t, recipients[0].ErrorMessage)
	assert.Equal(t, "number not on whatsapp", *recipients[0].ErrorMessage)

	// one failure does not stop the batch
	assert.Equal(t, store.RecipientStatusSent, recipients[1].Status)

	require.Len(t, emitter.events, 2)
	assert.Equal(t, "message.failed", emitter.events[0].eventType)
	assert.Equal(t, "number not on whatsapp", emitter.events[0].data["error"])
	assert.Equal(t, "message.sent", emitter.events[1].eventType)
}

func TestDispatchPassPrunesStaleLimiters(t *testing.T) {
	ctx := context.Background()

	engine := newFakeEngine()
	broadcast := engine.addBroadcast("+100")
	w := newTestWorker(engine, &fakeSender{}, &fakeEmitter{})

	w.dispatchPass(ctx)
	assert.Contains(t, w.limiters, broadcast.ID)

	// broadcast leaves the sending state
	engine.broadcasts = nil
	w.dispatchPass(ctx)
	assert.NotContains(t, w.limiters, broadcast.ID)
}

func TestLimiterHonorsSpeedPolicy(t *testing.T) {
	engine := newFakeEngine()
	w := New(engine, &fakeSender{}, &fakeEmitter{}, observability.NewLogger(), 50, time.Second)

	custom := 3
	fast := store.Broadcast{ID: uuid.New(), SendSpeed: store.SendSpeedFast}
	slow := store.Broadcast{ID: uuid.New(), SendSpeed: store.SendSpeedCustom, CustomDelaySeconds: &custom}

	assert.Equal(t, rate.Every(10*time.Second), w.limiterFor(fast).Limit())
	assert.Equal(t, rate.Every(3*time.Second), w.limiterFor(slow).Limit())

	// cached per broadcast
	assert.Same(t, w.limiterFor(fast), w.limiterFor(fast))
}
