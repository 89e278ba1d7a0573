package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/golang/glog"

	"github.com/mqy/wabiz/chatstore"
	"github.com/mqy/wabiz/media"
	"github.com/mqy/wabiz/notify"
	"github.com/mqy/wabiz/store"
)

// Ingest stores an inbound message notification. Redelivery of a known
// (channel, messenger_id) is a successful no-op reported as Duplicate.
func (e *Engine) Ingest(ctx context.Context, n *notify.Notification) *Result {
	res := &Result{Kind: n.Kind(), MessengerID: n.MessengerID}
	if n.MessengerID == "" || n.From == "" {
		res.Reason = "missing message id or sender"
		return res
	}

	existing, err := e.findMessage(ctx, n.MessengerID)
	if err != nil {
		glog.Errorf("ingest %s: lookup err: %v", n.MessengerID, err)
		res.Reason = err.Error()
		return res
	}
	if existing != nil {
		return duplicate(res, existing)
	}

	// Fetched before the transaction so no row lock is held over the network.
	msg := e.newMessage(n, e.fetchMedia(ctx, n))

	var room *chatstore.Room
	var newRoom bool
	err = e.store.WithTx(ctx, func(ctx context.Context, tx store.ITx) error {
		var err error
		room, newRoom, err = e.resolveRoom(ctx, tx, n)
		if err != nil {
			return err
		}
		msg.RoomID = room.ID
		if msg.ReplyID, err = e.resolveReply(ctx, tx, n.ReplyTo); err != nil {
			return err
		}
		if err := tx.InsertMessage(ctx, msg); err != nil {
			return err
		}

		id := msg.ID
		room.LastMessageID = &id
		room.LastActivity = msg.Timestamp
		if !msg.System {
			room.UnreadCount++
		}
		return tx.UpdateRoom(ctx, room)
	})
	if err != nil {
		if e.store.IsDupKeyError(err) {
			glog.V(5).Infof("ingest %s: concurrent duplicate", n.MessengerID)
			if existing, err := e.findMessage(ctx, n.MessengerID); err == nil && existing != nil {
				return duplicate(res, existing)
			}
			res.Success = true
			res.Duplicate = true
			return res
		}
		glog.Errorf("ingest %s: tx err: %v", n.MessengerID, err)
		res.Reason = err.Error()
		return res
	}

	res.Success = true
	res.Changed = true
	res.Room = room
	res.Message = msg
	res.NewRoom = newRoom
	res.Event = &Event{Type: EventNewMessage, Room: room, Message: msg, NewRoom: newRoom}
	return res
}

func duplicate(res *Result, existing *chatstore.Message) *Result {
	res.Success = true
	res.Duplicate = true
	res.Message = existing
	return res
}

func (e *Engine) findMessage(ctx context.Context, messengerID string) (*chatstore.Message, error) {
	var m *chatstore.Message
	err := e.store.WithTx(ctx, func(ctx context.Context, tx store.ITx) error {
		var err error
		m, err = tx.GetMessage(ctx, e.channel, messengerID)
		return err
	})
	return m, err
}

// resolveRoom finds the room of the sender or creates it seeded from the
// profile. A duplicate key on insert means a concurrent first contact won,
// its row is read back.
func (e *Engine) resolveRoom(ctx context.Context, tx store.ITx, n *notify.Notification) (*chatstore.Room, bool, error) {
	room, err := tx.GetRoom(ctx, e.channel, n.From)
	if err != nil || room != nil {
		return room, false, err
	}

	room = &chatstore.Room{
		Channel:     e.channel,
		ChatID:      n.From,
		Name:        n.From,
		Avatar:      chatstore.DefaultAvatar,
		Phone:       n.From,
		StatusState: chatstore.PresenceOffline,
	}
	if p := n.Profile; p != nil {
		if p.Name != "" {
			room.Name = p.Name
			room.Username = p.Name
		}
		if p.WaID != "" {
			room.Phone = p.WaID
		}
	}

	if err := tx.InsertRoom(ctx, room); err != nil {
		if !e.store.IsDupKeyError(err) {
			return nil, false, err
		}
		existing, err := tx.GetRoom(ctx, e.channel, n.From)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, fmt.Errorf("room %s: duplicate key but no row", n.From)
		}
		return existing, false, nil
	}
	glog.V(5).Infof("new room %d for chat %s", room.ID, room.ChatID)
	return room, true, nil
}

// resolveReply maps a provider reply-to id to the internal message id, nil
// when it is not known.
func (e *Engine) resolveReply(ctx context.Context, tx store.ITx, replyTo string) (*int64, error) {
	if replyTo == "" {
		return nil, nil
	}
	m, err := tx.GetMessage(ctx, e.channel, replyTo)
	if err != nil {
		return nil, err
	}
	if m == nil {
		glog.V(5).Infof("reply target %s not found", replyTo)
		return nil, nil
	}
	id := m.ID
	return &id, nil
}

// fetchMedia copies the media of n, nil when n has none or the fetch fails.
func (e *Engine) fetchMedia(ctx context.Context, n *notify.Notification) *chatstore.MediaRef {
	p, ok := n.Payload.(*notify.Media)
	if !ok || e.fetcher == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.mediaTimeout)
	defer cancel()

	req := &media.Request{
		MediaID:  p.MediaID,
		MimeType: p.MimeType,
		FileName: media.FileName(p.MediaKind, p.MediaID, p.MimeType, p.FileName),
		Kind:     p.MediaKind,
	}
	ref, err := e.fetcher.Fetch(ctx, req)
	if err != nil {
		glog.Warningf("media %s of message %s not stored: %v", p.MediaID, n.MessengerID, err)
		return nil
	}
	return ref
}

func (e *Engine) newMessage(n *notify.Notification, file *chatstore.MediaRef) *chatstore.Message {
	_, system := n.Payload.(*notify.System)
	return &chatstore.Message{
		Channel:     e.channel,
		ChatID:      n.From,
		MessengerID: n.MessengerID,
		Content:     Content(n.Payload),
		FromMe:      false,
		Saved:       true,
		Distributed: true,
		Seen:        system,
		System:      system,
		Forwarded:   n.Forwarded,
		File:        file,
		Timestamp:   e.timestamp(n),
	}
}

// Content derives the stored message text of a payload.
func Content(p notify.Payload) string {
	switch v := p.(type) {
	case *notify.Text:
		return v.Body
	case *notify.Media:
		return v.Caption
	case *notify.Location:
		return "https://www.google.com/maps?q=" + formatCoord(v.Latitude) + "," + formatCoord(v.Longitude)
	case *notify.Contact:
		if v.Phone != "" {
			return v.FormattedName + " (" + v.Phone + ")"
		}
		return v.FormattedName
	case *notify.Button:
		return v.Text
	case *notify.Interactive:
		return v.Title
	case *notify.Flow:
		if v.Body != "" {
			return v.Body
		}
		return v.Name
	case *notify.System:
		return v.Body
	}
	return ""
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
