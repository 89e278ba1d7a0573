package engine

import (
	"context"

	"github.com/golang/glog"

	"github.com/mqy/wabiz/chatstore"
	"github.com/mqy/wabiz/metrics"
	"github.com/mqy/wabiz/notify"
)

type EventType string

const (
	EventNewMessage    EventType = "updateNewMessage"
	EventMessageStatus EventType = "updateMessageStatus"
	EventMessageEdited EventType = "updateMessageEdited"
)

// Event is the normalized outbound event. `_` is the discriminator key.
type Event struct {
	Type    EventType          `json:"_"`
	Room    *chatstore.Room    `json:"room,omitempty"`
	Message *chatstore.Message `json:"message,omitempty"`
	NewRoom bool               `json:"new_room,omitempty"`
	Status  *StatusUpdate      `json:"status,omitempty"`
}

// StatusUpdate is the delivery state of one message after reconciliation.
type StatusUpdate struct {
	MessageID     int64  `json:"message_id"`
	MessengerID   string `json:"messenger_id"`
	RoomID        int64  `json:"room_id"`
	Saved         bool   `json:"saved"`
	Distributed   bool   `json:"distributed"`
	Seen          bool   `json:"seen"`
	Failure       bool   `json:"failure"`
	FailureReason string `json:"failure_reason,omitempty"`
	// SeenCount is the number of messages newly marked seen.
	SeenCount   int    `json:"seen_count,omitempty"`
	UnreadCount *int32 `json:"unread_count,omitempty"`
}

// RoomID returns the room the event belongs to, 0 if unknown.
func (e *Event) RoomID() int64 {
	switch {
	case e.Room != nil:
		return e.Room.ID
	case e.Message != nil:
		return e.Message.RoomID
	case e.Status != nil:
		return e.Status.RoomID
	}
	return 0
}

// Result is the outcome of one notification. Failures are values, never
// errors: the batch goes on whatever a single item does.
type Result struct {
	Kind        notify.Kind
	MessengerID string

	Success bool
	// Changed is false for duplicates and redundant status updates.
	Changed   bool
	Duplicate bool
	Reason    string

	Room    *chatstore.Room
	Message *chatstore.Message
	NewRoom bool

	// Event is broadcast after commit when not nil.
	Event *Event
}

func (r *Result) outcome() string {
	switch {
	case !r.Success:
		return "failure"
	case r.Duplicate:
		return "duplicate"
	case r.Changed:
		return "changed"
	}
	return "unchanged"
}

// Broadcaster delivers normalized events to subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, ev *Event) error
}

// Fanout broadcasts to every member, a failing member does not stop the rest.
type Fanout []Broadcaster

func (f Fanout) Broadcast(ctx context.Context, ev *Event) error {
	var first error
	for _, b := range f {
		if err := b.Broadcast(ctx, ev); err != nil {
			glog.Errorf("broadcast %s err: %v", ev.Type, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func broadcast(ctx context.Context, b Broadcaster, ev *Event) {
	if b == nil || ev == nil {
		return
	}
	metrics.Broadcasts.WithLabelValues(string(ev.Type)).Inc()
	if err := b.Broadcast(ctx, ev); err != nil {
		glog.Errorf("broadcast %s failed: %v", ev.Type, err)
	}
}
