package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqy/wabiz/chatstore"
	"github.com/mqy/wabiz/media"
	"github.com/mqy/wabiz/notify"
	"github.com/mqy/wabiz/store"
	store_mock "github.com/mqy/wabiz/store/mock"
)

const phoneID = "1001"

type recorder struct {
	sync.Mutex
	events []*Event
	err    error
}

func (r *recorder) Broadcast(ctx context.Context, ev *Event) error {
	r.Lock()
	defer r.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) types() []EventType {
	r.Lock()
	defer r.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type fakeFetcher struct {
	err   error
	delay time.Duration
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, req *media.Request) (*chatstore.MediaRef, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &chatstore.MediaRef{MediaID: req.MediaID, MimeType: req.MimeType, Path: media.Path(req.FileName), Kind: req.Kind}, nil
}

func newStore(t *testing.T) store.IChatStore {
	s, err := store.NewBoltStore(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newEngine(t *testing.T, fetcher media.Fetcher) (*Engine, store.IChatStore, *recorder) {
	st := newStore(t)
	rec := &recorder{}
	e := New(Config{PhoneNumberID: phoneID}, st, fetcher, rec)
	return e, st, rec
}

func note(id, from string, p notify.Payload) *notify.Notification {
	return &notify.Notification{
		MessengerID: id,
		From:        from,
		ChannelID:   phoneID,
		Timestamp:   1700000000,
		Payload:     p,
	}
}

func statusNote(id, status string) *notify.Notification {
	return note(id, "7999", &notify.Status{Status: status})
}

func getMessage(t *testing.T, s store.IChatStore, id string) *chatstore.Message {
	var m *chatstore.Message
	require.NoError(t, s.WithTx(context.Background(), func(ctx context.Context, tx store.ITx) error {
		var err error
		m, err = tx.GetMessage(ctx, chatstore.Channel, id)
		return err
	}))
	return m
}

func getRoom(t *testing.T, s store.IChatStore, chatID string) *chatstore.Room {
	var r *chatstore.Room
	require.NoError(t, s.WithTx(context.Background(), func(ctx context.Context, tx store.ITx) error {
		var err error
		r, err = tx.GetRoom(ctx, chatstore.Channel, chatID)
		return err
	}))
	return r
}

func setUnread(t *testing.T, s store.IChatStore, chatID string, unread int32) {
	require.NoError(t, s.WithTx(context.Background(), func(ctx context.Context, tx store.ITx) error {
		r, err := tx.GetRoom(ctx, chatstore.Channel, chatID)
		if err != nil {
			return err
		}
		r.UnreadCount = unread
		return tx.UpdateRoom(ctx, r)
	}))
}

// insertOutgoing stores a message sent by the business side, not yet
// acknowledged by the provider.
func insertOutgoing(t *testing.T, s store.IChatStore, chatID, id string) {
	require.NoError(t, s.WithTx(context.Background(), func(ctx context.Context, tx store.ITx) error {
		room, err := tx.GetRoom(ctx, chatstore.Channel, chatID)
		if err != nil {
			return err
		}
		if room == nil {
			room = &chatstore.Room{Channel: chatstore.Channel, ChatID: chatID, StatusState: chatstore.PresenceOffline}
			if err := tx.InsertRoom(ctx, room); err != nil {
				return err
			}
		}
		return tx.InsertMessage(ctx, &chatstore.Message{
			RoomID:      room.ID,
			Channel:     chatstore.Channel,
			ChatID:      chatID,
			MessengerID: id,
			Content:     "outgoing",
			FromMe:      true,
		})
	}))
}

func batch(phoneNumberID, items string) []byte {
	return []byte(fmt.Sprintf(`{"object":"whatsapp_business_account","entry":[{"id":"WABA1","changes":[{"field":"messages",
		"value":{"messaging_product":"whatsapp","metadata":{"display_phone_number":"15550001111","phone_number_id":%q},
		"contacts":[{"profile":{"name":"Alice"},"wa_id":"7999"}],%s}}]}]}`, phoneNumberID, items))
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	e, st, rec := newEngine(t, nil)

	results, err := e.Process(ctx, batch(phoneID, `"messages":[{"from":"7999","id":"wamid.1","timestamp":"1700000000",
		"type":"text","text":{"body":"hello"}}]`))
	require.NoError(t, err)
	require.Len(t, results, 1)
	res := results[0]
	require.True(t, res.Success, res.Reason)
	assert.True(t, res.Changed)
	assert.True(t, res.NewRoom)

	room := getRoom(t, st, "7999")
	require.NotNil(t, room)
	assert.Equal(t, "Alice", room.Name)
	assert.Equal(t, "Alice", room.Username)
	assert.Equal(t, "7999", room.Phone)
	assert.Equal(t, chatstore.DefaultAvatar, room.Avatar)
	assert.Equal(t, chatstore.PresenceOffline, room.StatusState)
	assert.Equal(t, int32(1), room.UnreadCount)
	require.NotNil(t, room.LastMessageID)
	assert.Equal(t, int64(1700000000), room.LastActivity)

	msg := getMessage(t, st, "wamid.1")
	require.NotNil(t, msg)
	assert.Equal(t, *room.LastMessageID, msg.ID)
	assert.Equal(t, room.ID, msg.RoomID)
	assert.Equal(t, "hello", msg.Content)
	assert.False(t, msg.FromMe)
	assert.True(t, msg.Saved)
	assert.True(t, msg.Distributed)
	assert.False(t, msg.Seen)

	results, err = e.Process(ctx, batch(phoneID, `"statuses":[{"id":"wamid.1","status":"read",
		"timestamp":"1700000005","recipient_id":"7999"}]`))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Success, results[0].Reason)
	assert.True(t, results[0].Changed)

	assert.True(t, getMessage(t, st, "wamid.1").Seen)
	assert.Equal(t, int32(0), getRoom(t, st, "7999").UnreadCount)

	assert.Equal(t, []EventType{EventNewMessage, EventMessageStatus}, rec.types())
	status := rec.events[1].Status
	require.NotNil(t, status)
	assert.Equal(t, "wamid.1", status.MessengerID)
	assert.True(t, status.Seen)
	require.NotNil(t, status.UnreadCount)
	assert.Equal(t, int32(0), *status.UnreadCount)
	assert.Equal(t, room.ID, rec.events[1].RoomID())
}

func TestProcessInvalidBody(t *testing.T) {
	e, _, rec := newEngine(t, nil)
	_, err := e.Process(context.Background(), []byte("{"))
	assert.Error(t, err)
	assert.Empty(t, rec.types())
}

func TestIngestIdempotent(t *testing.T) {
	ctx := context.Background()
	e, st, rec := newEngine(t, nil)
	body := batch(phoneID, `"messages":[{"from":"7999","id":"wamid.1","type":"text","text":{"body":"hi"}}]`)

	first, err := e.Process(ctx, body)
	require.NoError(t, err)
	second, err := e.Process(ctx, body)
	require.NoError(t, err)

	require.True(t, first[0].Changed)
	assert.True(t, second[0].Success)
	assert.True(t, second[0].Duplicate)
	assert.False(t, second[0].Changed)
	require.NotNil(t, second[0].Message)
	assert.Equal(t, first[0].Message.ID, second[0].Message.ID)
	assert.Nil(t, second[0].Event)

	assert.Equal(t, int32(1), getRoom(t, st, "7999").UnreadCount)
	assert.Equal(t, []EventType{EventNewMessage}, rec.types())
}

func TestIngestConcurrentDelivery(t *testing.T) {
	ctx := context.Background()
	e, st, rec := newEngine(t, nil)

	const N = 10
	results := make([]*Result, N)
	var wg sync.WaitGroup
	for i := 0; i < N; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.Handle(ctx, note("wamid.1", "7999", &notify.Text{Body: "hi"}))
		}(i)
	}
	wg.Wait()

	var changed, dup int
	for _, res := range results {
		require.True(t, res.Success, res.Reason)
		if res.Changed {
			changed++
		}
		if res.Duplicate {
			dup++
		}
	}
	assert.Equal(t, 1, changed)
	assert.Equal(t, N-1, dup)
	assert.Equal(t, int32(1), getRoom(t, st, "7999").UnreadCount)
	assert.Len(t, rec.types(), 1)
}

func TestConcurrentFirstContact(t *testing.T) {
	ctx := context.Background()
	e, st, _ := newEngine(t, nil)

	const N = 10
	var wg sync.WaitGroup
	var lock sync.Mutex
	roomIDs := make(map[int64]bool)
	var newRooms int
	for i := 0; i < N; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := e.Handle(ctx, note(fmt.Sprintf("wamid.%d", i), "7999", &notify.Text{Body: "hi"}))
			lock.Lock()
			defer lock.Unlock()
			assert.True(t, res.Success, res.Reason)
			if res.Room != nil {
				roomIDs[res.Room.ID] = true
			}
			if res.NewRoom {
				newRooms++
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, roomIDs, 1)
	assert.Equal(t, 1, newRooms)
	assert.Equal(t, int32(N), getRoom(t, st, "7999").UnreadCount)
}

func TestStatusMonotonic(t *testing.T) {
	ctx := context.Background()
	e, st, rec := newEngine(t, nil)
	insertOutgoing(t, st, "7999", "wamid.out")

	res := e.Handle(ctx, statusNote("wamid.out", "sent"))
	require.True(t, res.Success, res.Reason)
	assert.True(t, res.Changed)
	m := getMessage(t, st, "wamid.out")
	assert.True(t, m.Saved)
	assert.False(t, m.Distributed)

	res = e.Handle(ctx, statusNote("wamid.out", "read"))
	require.True(t, res.Success, res.Reason)
	assert.True(t, res.Changed)

	for _, status := range []string{"delivered", "sent", "read"} {
		res = e.Handle(ctx, statusNote("wamid.out", status))
		require.True(t, res.Success, res.Reason)
		assert.False(t, res.Changed, status)

		m := getMessage(t, st, "wamid.out")
		assert.True(t, m.Saved)
		assert.True(t, m.Distributed)
		assert.True(t, m.Seen)
	}

	// Outgoing reads leave the unread counter alone.
	assert.Equal(t, int32(0), getRoom(t, st, "7999").UnreadCount)
	assert.Equal(t, []EventType{EventMessageStatus, EventMessageStatus}, rec.types())
}

func TestStatusReadMarksEarlierMessages(t *testing.T) {
	ctx := context.Background()
	e, st, _ := newEngine(t, nil)
	insertOutgoing(t, st, "7999", "out.1")
	insertOutgoing(t, st, "7999", "out.2")
	insertOutgoing(t, st, "7999", "out.3")

	res := e.Handle(ctx, statusNote("out.2", "read"))
	require.True(t, res.Success, res.Reason)
	require.NotNil(t, res.Event)
	assert.Equal(t, 2, res.Event.Status.SeenCount)

	assert.True(t, getMessage(t, st, "out.1").Seen)
	assert.True(t, getMessage(t, st, "out.2").Seen)
	assert.False(t, getMessage(t, st, "out.3").Seen)
}

func TestUnreadAccounting(t *testing.T) {
	ctx := context.Background()
	e, st, _ := newEngine(t, nil)
	for _, id := range []string{"w1", "w2", "w3"} {
		require.True(t, e.Handle(ctx, note(id, "7999", &notify.Text{Body: id})).Success)
	}
	require.Equal(t, int32(3), getRoom(t, st, "7999").UnreadCount)

	res := e.Handle(ctx, statusNote("w2", "read"))
	require.True(t, res.Success, res.Reason)
	assert.Equal(t, 2, res.Event.Status.SeenCount)
	assert.Equal(t, int32(1), getRoom(t, st, "7999").UnreadCount)

	// The counter never goes below zero.
	setUnread(t, st, "7999", 0)
	res = e.Handle(ctx, statusNote("w3", "read"))
	require.True(t, res.Success, res.Reason)
	assert.Equal(t, int32(0), getRoom(t, st, "7999").UnreadCount)
}

func TestUnreadExplicit(t *testing.T) {
	ctx := context.Background()
	e, st, _ := newEngine(t, nil)
	require.True(t, e.Handle(ctx, note("w1", "7999", &notify.Text{Body: "a"})).Success)
	require.True(t, e.Handle(ctx, note("w2", "7999", &notify.Text{Body: "b"})).Success)

	unread := int32(5)
	n := note("w1", "7999", &notify.Status{Status: "read", Unread: &unread})
	res := e.Handle(ctx, n)
	require.True(t, res.Success, res.Reason)
	assert.Equal(t, int32(5), getRoom(t, st, "7999").UnreadCount)
}

func TestStatusUnknownMessage(t *testing.T) {
	ctx := context.Background()
	e, st, rec := newEngine(t, nil)

	res := e.Handle(ctx, statusNote("wamid.none", "delivered"))
	assert.False(t, res.Success)
	assert.Equal(t, errNotFound.Error(), res.Reason)
	assert.Nil(t, getMessage(t, st, "wamid.none"))
	assert.Nil(t, getRoom(t, st, "7999"))
	assert.Empty(t, rec.types())
}

func TestStatusUnsupported(t *testing.T) {
	ctx := context.Background()
	e, st, rec := newEngine(t, nil)
	insertOutgoing(t, st, "7999", "wamid.out")

	res := e.Handle(ctx, statusNote("wamid.out", "deleted"))
	assert.False(t, res.Success)
	assert.Contains(t, res.Reason, "unsupported status")
	assert.False(t, getMessage(t, st, "wamid.out").Saved)
	assert.Empty(t, rec.types())
}

func TestStatusFailed(t *testing.T) {
	ctx := context.Background()
	e, st, _ := newEngine(t, nil)
	insertOutgoing(t, st, "7999", "out.1")
	insertOutgoing(t, st, "7999", "out.2")

	failed := note("out.1", "7999", &notify.Status{Status: "failed", Errors: []string{"131047: Re-engagement message"}})
	res := e.Handle(ctx, failed)
	require.True(t, res.Success, res.Reason)
	assert.True(t, res.Changed)
	m := getMessage(t, st, "out.1")
	assert.True(t, m.Failure)
	assert.Equal(t, "131047: Re-engagement message", m.FailureReason)

	// A failure reported after delivery is ignored.
	require.True(t, e.Handle(ctx, statusNote("out.2", "delivered")).Success)
	res = e.Handle(ctx, statusNote("out.2", "failed"))
	require.True(t, res.Success, res.Reason)
	assert.False(t, res.Changed)
	assert.False(t, getMessage(t, st, "out.2").Failure)
}

func TestMergeReaction(t *testing.T) {
	ctx := context.Background()
	e, st, rec := newEngine(t, nil)
	require.True(t, e.Handle(ctx, note("wamid.1", "7999", &notify.Text{Body: "hi"})).Success)

	react := func(id, emoji string) *Result {
		return e.Handle(ctx, note(id, "7999", &notify.Reaction{MessageID: "wamid.1", Emoji: emoji}))
	}

	res := react("r1", "👍")
	require.True(t, res.Success, res.Reason)
	assert.Equal(t, chatstore.Reactions{"7999": "👍"}, getMessage(t, st, "wamid.1").Reactions)

	res = react("r2", "❤️")
	require.True(t, res.Success, res.Reason)
	assert.Equal(t, chatstore.Reactions{"7999": "❤️"}, getMessage(t, st, "wamid.1").Reactions)
	require.NotNil(t, res.Event)
	assert.Equal(t, EventMessageEdited, res.Event.Type)
	assert.Equal(t, "wamid.1", res.Event.Message.MessengerID)

	res = react("r3", "")
	require.True(t, res.Success, res.Reason)
	assert.Empty(t, getMessage(t, st, "wamid.1").Reactions)

	res = react("r4", "")
	require.True(t, res.Success, res.Reason)
	assert.False(t, res.Changed)

	res = e.Handle(ctx, note("r5", "7999", &notify.Reaction{MessageID: "wamid.none", Emoji: "👍"}))
	assert.False(t, res.Success)
	assert.Equal(t, errNotFound.Error(), res.Reason)

	assert.Equal(t, []EventType{EventNewMessage, EventMessageEdited, EventMessageEdited, EventMessageEdited}, rec.types())
}

func TestChannelMismatch(t *testing.T) {
	ctx := context.Background()
	e, st, rec := newEngine(t, nil)

	results, err := e.Process(ctx, batch("2002", `"messages":[{"from":"7999","id":"wamid.1","type":"text",
		"text":{"body":"hi"}}],"statuses":[{"id":"wamid.1","status":"read","recipient_id":"7999"}]`))
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.False(t, res.Success)
		assert.Equal(t, "channel mismatch", res.Reason)
	}
	assert.Nil(t, getRoom(t, st, "7999"))
	assert.Nil(t, getMessage(t, st, "wamid.1"))
	assert.Empty(t, rec.types())
}

func TestMissingMetadataIsUnknown(t *testing.T) {
	ctx := context.Background()
	e, st, rec := newEngine(t, nil)

	results, err := e.Process(ctx, []byte(`{"object":"whatsapp_business_account","entry":[{"id":"WABA1",
		"changes":[{"field":"messages","value":{"messages":[{"from":"7999","id":"wamid.1","type":"text",
		"text":{"body":"hi"}}]}}]}]}`))
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.False(t, res.Success)
	assert.Equal(t, notify.KindUnknown, res.Kind)
	assert.Equal(t, "unknown notification: missing metadata", res.Reason)
	assert.Nil(t, getMessage(t, st, "wamid.1"))
	assert.Empty(t, rec.types())
}

func TestUnknownDoesNotBlockBatch(t *testing.T) {
	ctx := context.Background()
	e, st, rec := newEngine(t, nil)

	results, err := e.Process(ctx, batch(phoneID, `"messages":[
		"garbage",
		{"from":"7999","id":"wamid.u","type":"order"},
		{"type":"text","text":{"body":"no id"}},
		{"from":"7999","id":"wamid.2","type":"text","text":{"body":"after"}}]`))
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.False(t, results[0].Success)
	assert.True(t, results[1].Success, results[1].Reason)
	assert.False(t, results[2].Success)
	assert.True(t, results[3].Success, results[3].Reason)

	unknown := getMessage(t, st, "wamid.u")
	require.NotNil(t, unknown)
	assert.Equal(t, "", unknown.Content)
	assert.Equal(t, "after", getMessage(t, st, "wamid.2").Content)
	assert.Len(t, rec.types(), 2)
}

func TestIngestMedia(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{}
	e, st, _ := newEngine(t, fetcher)

	res := e.Handle(ctx, note("wamid.1", "7999", &notify.Media{
		MediaKind: chatstore.MediaAudio,
		MediaID:   "m1",
		MimeType:  "audio/ogg; codecs=opus",
	}))
	require.True(t, res.Success, res.Reason)
	m := getMessage(t, st, "wamid.1")
	require.NotNil(t, m.File)
	assert.Equal(t, "files/temp/m1.ogg", m.File.Path)
	assert.Equal(t, chatstore.MediaAudio, m.File.Kind)

	res = e.Handle(ctx, note("wamid.2", "7999", &notify.Media{
		MediaKind: chatstore.MediaDocument,
		MediaID:   "d1",
		MimeType:  "application/pdf",
		Caption:   "invoice",
		FileName:  "invoice.pdf",
	}))
	require.True(t, res.Success, res.Reason)
	m = getMessage(t, st, "wamid.2")
	assert.Equal(t, "invoice", m.Content)
	assert.Equal(t, "files/temp/d1/invoice.pdf", m.File.Path)

	// Redelivery does not fetch again.
	e.Handle(ctx, note("wamid.2", "7999", &notify.Media{MediaKind: chatstore.MediaDocument, MediaID: "d1"}))
	assert.Equal(t, 2, fetcher.calls)
}

func TestIngestMediaDegrades(t *testing.T) {
	ctx := context.Background()

	e, st, rec := newEngine(t, &fakeFetcher{err: errors.New("status=500")})
	res := e.Handle(ctx, note("wamid.1", "7999", &notify.Media{MediaKind: chatstore.MediaImage, MediaID: "m1", Caption: "pic"}))
	require.True(t, res.Success, res.Reason)
	m := getMessage(t, st, "wamid.1")
	assert.Nil(t, m.File)
	assert.Equal(t, "pic", m.Content)
	assert.Len(t, rec.types(), 1)

	slow := New(Config{PhoneNumberID: phoneID, MediaTimeout: 10 * time.Millisecond}, st, &fakeFetcher{delay: time.Minute}, nil)
	start := time.Now()
	res = slow.Handle(ctx, note("wamid.2", "7999", &notify.Media{MediaKind: chatstore.MediaVideo, MediaID: "m2"}))
	require.True(t, res.Success, res.Reason)
	assert.Less(t, int64(time.Since(start)), int64(10*time.Second))
	assert.Nil(t, getMessage(t, st, "wamid.2").File)
}

func TestReplyResolution(t *testing.T) {
	ctx := context.Background()
	e, st, _ := newEngine(t, nil)
	require.True(t, e.Handle(ctx, note("wamid.1", "7999", &notify.Text{Body: "question"})).Success)

	reply := note("wamid.2", "7999", &notify.Text{Body: "answer"})
	reply.ReplyTo = "wamid.1"
	reply.Forwarded = true
	require.True(t, e.Handle(ctx, reply).Success)

	dangling := note("wamid.3", "7999", &notify.Text{Body: "orphan"})
	dangling.ReplyTo = "wamid.none"
	require.True(t, e.Handle(ctx, dangling).Success)

	m := getMessage(t, st, "wamid.2")
	require.NotNil(t, m.ReplyID)
	assert.Equal(t, getMessage(t, st, "wamid.1").ID, *m.ReplyID)
	assert.True(t, m.Forwarded)
	assert.Nil(t, getMessage(t, st, "wamid.3").ReplyID)
}

func TestSystemMessage(t *testing.T) {
	ctx := context.Background()
	e, st, _ := newEngine(t, nil)

	res := e.Handle(ctx, note("wamid.s", "7999", &notify.System{Body: "number changed", SystemType: "user_changed_number"}))
	require.True(t, res.Success, res.Reason)
	m := getMessage(t, st, "wamid.s")
	assert.True(t, m.System)
	assert.True(t, m.Seen)
	assert.Equal(t, int32(0), getRoom(t, st, "7999").UnreadCount)
}

func TestRoomSeedWithoutProfile(t *testing.T) {
	ctx := context.Background()
	e, st, _ := newEngine(t, nil)

	require.True(t, e.Handle(ctx, note("wamid.1", "7999", &notify.Text{Body: "hi"})).Success)
	room := getRoom(t, st, "7999")
	assert.Equal(t, "7999", room.Name)
	assert.Equal(t, "", room.Username)
	assert.Equal(t, chatstore.DefaultAvatar, room.Avatar)
}

func TestContent(t *testing.T) {
	cases := []struct {
		payload notify.Payload
		expect  string
	}{
		{&notify.Text{Body: "hi"}, "hi"},
		{&notify.Media{Caption: "pic"}, "pic"},
		{&notify.Location{Latitude: 55.7558, Longitude: -37.6173}, "https://www.google.com/maps?q=55.7558,-37.6173"},
		{&notify.Contact{FormattedName: "Bob", Phone: "+1 555"}, "Bob (+1 555)"},
		{&notify.Contact{FormattedName: "Bob"}, "Bob"},
		{&notify.Button{Text: "Yes", Payload: "Y"}, "Yes"},
		{&notify.Interactive{ID: "b1", Title: "Ok"}, "Ok"},
		{&notify.Flow{Name: "flow", Body: "Sent"}, "Sent"},
		{&notify.Flow{Name: "flow"}, "flow"},
		{&notify.System{Body: "changed"}, "changed"},
		{&notify.Unknown{Type: "order"}, ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.expect, Content(c.payload), "%T", c.payload)
	}
}

func TestFanout(t *testing.T) {
	a := &recorder{err: errors.New("down")}
	b := &recorder{}
	err := Fanout{a, b}.Broadcast(context.Background(), &Event{Type: EventNewMessage})
	assert.Error(t, err)
	assert.Len(t, a.types(), 1)
	assert.Len(t, b.types(), 1)
}

func TestStoreFailure(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	storeMock := store_mock.NewMockIChatStore(mockCtrl)
	storeMock.EXPECT().WithTx(gomock.Any(), gomock.Any()).Return(errors.New("db down")).AnyTimes()
	storeMock.EXPECT().IsDupKeyError(gomock.Any()).Return(false).AnyTimes()

	rec := &recorder{}
	e := New(Config{PhoneNumberID: phoneID}, storeMock, nil, rec)

	for _, n := range []*notify.Notification{
		note("wamid.1", "7999", &notify.Text{Body: "hi"}),
		statusNote("wamid.1", "read"),
		note("r1", "7999", &notify.Reaction{MessageID: "wamid.1", Emoji: "👍"}),
	} {
		res := e.Handle(context.Background(), n)
		assert.False(t, res.Success)
		assert.Equal(t, "db down", res.Reason)
	}
	assert.Empty(t, rec.types())
}

func TestReconcileOutgoingReadWithMocks(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	ctx := context.Background()
	storeMock := store_mock.NewMockIChatStore(mockCtrl)
	txMock := store_mock.NewMockITx(mockCtrl)

	storeMock.EXPECT().WithTx(ctx, gomock.Any()).DoAndReturn(
		func(ctx context.Context, exec func(context.Context, store.ITx) error) error {
			return exec(ctx, txMock)
		})

	msg := &chatstore.Message{ID: 3, RoomID: 7, Channel: chatstore.Channel, MessengerID: "out.3", FromMe: true, Saved: true}
	room := &chatstore.Room{ID: 7, UnreadCount: 4, StatusState: chatstore.PresenceOnline}
	gomock.InOrder(
		txMock.EXPECT().GetMessage(ctx, chatstore.Channel, "out.3").Return(msg, nil),
		txMock.EXPECT().MarkSeenUpTo(ctx, int64(7), true, int64(3)).Return(2, nil),
		txMock.EXPECT().GetRoomByID(ctx, int64(7)).Return(room, nil),
	)

	e := New(Config{PhoneNumberID: phoneID}, storeMock, nil, nil)
	res := e.ReconcileStatus(ctx, statusNote("out.3", "read"))
	require.True(t, res.Success, res.Reason)
	assert.True(t, res.Changed)
	assert.True(t, msg.Seen)
	assert.Equal(t, 2, res.Event.Status.SeenCount)
	// Outgoing reads neither touch unread nor presence.
	assert.Equal(t, int32(4), room.UnreadCount)
	assert.Equal(t, chatstore.PresenceOnline, room.StatusState)
}
