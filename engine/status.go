package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/mqy/wabiz/chatstore"
	"github.com/mqy/wabiz/notify"
	"github.com/mqy/wabiz/store"
)

const (
	statusSent      = "sent"
	statusDelivered = "delivered"
	statusRead      = "read"
	statusFailed    = "failed"
)

// ReconcileStatus applies a delivery status to the message it names. The
// delivery flags only move forward: redundant or out of order statuses
// succeed with Changed=false. Statuses of unknown messages fail, nothing is
// created.
func (e *Engine) ReconcileStatus(ctx context.Context, n *notify.Notification) *Result {
	res := &Result{Kind: notify.KindStatus, MessengerID: n.MessengerID}
	st, ok := n.Payload.(*notify.Status)
	if !ok {
		res.Reason = fmt.Sprintf("not a status: %s", n.Kind())
		return res
	}
	switch st.Status {
	case statusSent, statusDelivered, statusRead, statusFailed:
	default:
		res.Reason = fmt.Sprintf("unsupported status %q", st.Status)
		return res
	}

	var msg *chatstore.Message
	var room *chatstore.Room
	var seenCount int
	var changed bool

	err := e.store.WithTx(ctx, func(ctx context.Context, tx store.ITx) error {
		var err error
		msg, err = tx.GetMessage(ctx, e.channel, n.MessengerID)
		if err != nil {
			return err
		}
		if msg == nil {
			return errNotFound
		}

		switch st.Status {
		case statusSent:
			changed = msg.MarkSaved()
		case statusDelivered:
			changed = msg.MarkDistributed()
		case statusFailed:
			if !msg.Distributed && !msg.Failure {
				msg.Failure = true
				msg.FailureReason = statusFailed
				if len(st.Errors) > 0 {
					msg.FailureReason = st.Errors[0]
				}
				changed = true
			}
		case statusRead:
			room, seenCount, changed, err = e.markRead(ctx, tx, n, st, msg)
			return err
		}
		if !changed {
			return nil
		}
		return tx.UpdateMessage(ctx, msg)
	})
	if err != nil {
		if errors.Is(err, errNotFound) {
			glog.V(5).Infof("status %s for unknown message %s dropped", st.Status, n.MessengerID)
		} else {
			glog.Errorf("status %s of %s: tx err: %v", st.Status, n.MessengerID, err)
		}
		res.Reason = err.Error()
		return res
	}

	res.Success = true
	res.Changed = changed
	res.Message = msg
	res.Room = room
	if !changed {
		return res
	}

	update := &StatusUpdate{
		MessageID:     msg.ID,
		MessengerID:   msg.MessengerID,
		RoomID:        msg.RoomID,
		Saved:         msg.Saved,
		Distributed:   msg.Distributed,
		Seen:          msg.Seen,
		Failure:       msg.Failure,
		FailureReason: msg.FailureReason,
		SeenCount:     seenCount,
	}
	if room != nil {
		unread := room.UnreadCount
		update.UnreadCount = &unread
	}
	res.Event = &Event{Type: EventMessageStatus, Status: update}
	return res
}

// markRead marks msg and every earlier unseen message of the same room and
// direction as seen. For inbound messages the room unread counter drops by
// the number newly seen, bounded at zero, unless the provider supplies it.
func (e *Engine) markRead(ctx context.Context, tx store.ITx, n *notify.Notification, st *notify.Status,
	msg *chatstore.Message) (*chatstore.Room, int, bool, error) {

	wasSeen := msg.Seen
	seenCount, err := tx.MarkSeenUpTo(ctx, msg.RoomID, msg.FromMe, msg.ID)
	if err != nil {
		return nil, 0, false, err
	}
	msg.MarkSeen()
	changed := !wasSeen || seenCount > 0

	room, err := tx.GetRoomByID(ctx, msg.RoomID)
	if err != nil {
		return nil, 0, false, err
	}
	if room == nil || msg.FromMe {
		return room, seenCount, changed, nil
	}

	unread := room.UnreadCount - int32(seenCount)
	if st.Unread != nil {
		unread = *st.Unread
	}
	if unread < 0 {
		unread = 0
	}
	roomChanged := unread != room.UnreadCount || room.StatusState != chatstore.PresenceOffline
	if !roomChanged {
		return room, seenCount, changed, nil
	}

	room.UnreadCount = unread
	if room.StatusState != chatstore.PresenceOffline {
		room.StatusState = chatstore.PresenceOffline
		room.StatusChanged = e.timestamp(n)
	}
	if err := tx.UpdateRoom(ctx, room); err != nil {
		return nil, 0, false, err
	}
	return room, seenCount, true, nil
}
