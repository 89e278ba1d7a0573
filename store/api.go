package store

import (
	"context"
	"errors"

	"github.com/mqy/wabiz/chatstore"
)

// ErrDuplicate is returned by embedded stores on a uniqueness violation.
var ErrDuplicate = errors.New("store: duplicate key")

type IChatStore interface {
	// WithTx runs exec in a transaction, commits when exec returns nil and
	// rolls back otherwise.
	WithTx(ctx context.Context, exec func(ctx context.Context, tx ITx) error) error

	// IsDupKeyError reports whether err violates (channel, chat_id) or
	// (channel, messenger_id) uniqueness.
	IsDupKeyError(err error) bool

	Close() error
}

// ITx is the set of operations available inside a transaction.
// Getters return (nil, nil) when nothing matches.
type ITx interface {
	GetRoom(ctx context.Context, channel, chatID string) (*chatstore.Room, error)
	GetRoomByID(ctx context.Context, id int64) (*chatstore.Room, error)

	// InsertRoom inserts and sets room.ID.
	InsertRoom(ctx context.Context, room *chatstore.Room) error
	UpdateRoom(ctx context.Context, room *chatstore.Room) error

	GetMessage(ctx context.Context, channel, messengerID string) (*chatstore.Message, error)

	// InsertMessage inserts and sets m.ID.
	InsertMessage(ctx context.Context, m *chatstore.Message) error
	UpdateMessage(ctx context.Context, m *chatstore.Message) error

	// MarkSeenUpTo marks every unseen message of the room sent in the given
	// direction with id <= maxID as seen, returns the number of rows changed.
	MarkSeenUpTo(ctx context.Context, roomID int64, fromMe bool, maxID int64) (int, error)
}
