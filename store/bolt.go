package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/mqy/wabiz/chatstore"
)

var (
	roomsBucket        = []byte("rooms")
	roomKeysBucket     = []byte("room_keys")
	messagesBucket     = []byte("messages")
	messageKeysBucket  = []byte("message_keys")
	roomMessagesBucket = []byte("room_messages")
)

// boltStore implements interface `IChatStore` on an embedded bbolt file.
// bbolt serializes write transactions, so check-then-insert inside WithTx
// is atomic and key buckets act as unique indexes.
type boltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*boltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{roomsBucket, roomKeysBucket, messagesBucket, messageKeysBucket, roomMessagesBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) WithTx(ctx context.Context, exec func(ctx context.Context, tx ITx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return exec(ctx, &boltTx{tx})
	})
}

func (s *boltStore) IsDupKeyError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

func (s *boltStore) Close() error {
	return s.db.Close()
}

type boltTx struct {
	tx *bbolt.Tx
}

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func btoi(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

func compositeKey(channel, id string) []byte {
	return []byte(channel + "\x00" + id)
}

func (t *boltTx) GetRoom(ctx context.Context, channel, chatID string) (*chatstore.Room, error) {
	id := t.tx.Bucket(roomKeysBucket).Get(compositeKey(channel, chatID))
	if id == nil {
		return nil, nil
	}
	return t.GetRoomByID(ctx, btoi(id))
}

func (t *boltTx) GetRoomByID(ctx context.Context, id int64) (*chatstore.Room, error) {
	v := t.tx.Bucket(roomsBucket).Get(itob(id))
	if v == nil {
		return nil, nil
	}
	var r chatstore.Room
	if err := json.Unmarshal(v, &r); err != nil {
		return nil, fmt.Errorf("decode room %d: %w", id, err)
	}
	return &r, nil
}

func (t *boltTx) InsertRoom(ctx context.Context, r *chatstore.Room) error {
	keys := t.tx.Bucket(roomKeysBucket)
	key := compositeKey(r.Channel, r.ChatID)
	if keys.Get(key) != nil {
		return fmt.Errorf("room %s/%s: %w", r.Channel, r.ChatID, ErrDuplicate)
	}
	rooms := t.tx.Bucket(roomsBucket)
	seq, err := rooms.NextSequence()
	if err != nil {
		return err
	}
	r.ID = int64(seq)
	if err := keys.Put(key, itob(r.ID)); err != nil {
		return err
	}
	return t.putRoom(r)
}

func (t *boltTx) UpdateRoom(ctx context.Context, r *chatstore.Room) error {
	if t.tx.Bucket(roomsBucket).Get(itob(r.ID)) == nil {
		return fmt.Errorf("room %d does not exist", r.ID)
	}
	return t.putRoom(r)
}

func (t *boltTx) putRoom(r *chatstore.Room) error {
	v, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return t.tx.Bucket(roomsBucket).Put(itob(r.ID), v)
}

func (t *boltTx) GetMessage(ctx context.Context, channel, messengerID string) (*chatstore.Message, error) {
	id := t.tx.Bucket(messageKeysBucket).Get(compositeKey(channel, messengerID))
	if id == nil {
		return nil, nil
	}
	return t.getMessageByID(btoi(id))
}

func (t *boltTx) getMessageByID(id int64) (*chatstore.Message, error) {
	v := t.tx.Bucket(messagesBucket).Get(itob(id))
	if v == nil {
		return nil, nil
	}
	var m chatstore.Message
	if err := json.Unmarshal(v, &m); err != nil {
		return nil, fmt.Errorf("decode message %d: %w", id, err)
	}
	return &m, nil
}

func (t *boltTx) InsertMessage(ctx context.Context, m *chatstore.Message) error {
	keys := t.tx.Bucket(messageKeysBucket)
	key := compositeKey(m.Channel, m.MessengerID)
	if keys.Get(key) != nil {
		return fmt.Errorf("message %s/%s: %w", m.Channel, m.MessengerID, ErrDuplicate)
	}
	seq, err := t.tx.Bucket(messagesBucket).NextSequence()
	if err != nil {
		return err
	}
	m.ID = int64(seq)
	if err := keys.Put(key, itob(m.ID)); err != nil {
		return err
	}
	index, err := t.tx.Bucket(roomMessagesBucket).CreateBucketIfNotExists(itob(m.RoomID))
	if err != nil {
		return err
	}
	if err := index.Put(itob(m.ID), []byte{}); err != nil {
		return err
	}
	return t.putMessage(m)
}

func (t *boltTx) UpdateMessage(ctx context.Context, m *chatstore.Message) error {
	if t.tx.Bucket(messagesBucket).Get(itob(m.ID)) == nil {
		return fmt.Errorf("message %d does not exist", m.ID)
	}
	return t.putMessage(m)
}

func (t *boltTx) putMessage(m *chatstore.Message) error {
	v, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return t.tx.Bucket(messagesBucket).Put(itob(m.ID), v)
}

func (t *boltTx) MarkSeenUpTo(ctx context.Context, roomID int64, fromMe bool, maxID int64) (int, error) {
	index := t.tx.Bucket(roomMessagesBucket).Bucket(itob(roomID))
	if index == nil {
		return 0, nil
	}

	var changed []*chatstore.Message
	c := index.Cursor()
	for k, _ := c.First(); k != nil && btoi(k) <= maxID; k, _ = c.Next() {
		m, err := t.getMessageByID(btoi(k))
		if err != nil {
			return 0, err
		}
		if m == nil || m.FromMe != fromMe || m.Seen {
			continue
		}
		m.MarkSeen()
		changed = append(changed, m)
	}

	// Puts are deferred until the cursor is done, bbolt cursors are not
	// stable across writes to other buckets of the same tx.
	for _, m := range changed {
		if err := t.putMessage(m); err != nil {
			return 0, err
		}
	}
	return len(changed), nil
}
