package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/golang/glog"

	"github.com/mqy/wabiz/chatstore"
)

const (
	roomColumns = "id, channel, chat_id, name, avatar, username, phone, status_state, status_changed, " +
		"unread_count, last_message_id, last_activity"
	getRoomSQL     = "SELECT " + roomColumns + " FROM rooms WHERE channel = ? AND chat_id = ? FOR UPDATE"
	getRoomByIDSQL = "SELECT " + roomColumns + " FROM rooms WHERE id = ? FOR UPDATE"
	insertRoomSQL  = "INSERT INTO rooms (channel, chat_id, name, avatar, username, phone, status_state, " +
		"status_changed, unread_count, last_message_id, last_activity) VALUES (?,?,?,?,?,?,?,?,?,?,?)"
	updateRoomSQL = "UPDATE rooms SET name = ?, avatar = ?, username = ?, phone = ?, status_state = ?, " +
		"status_changed = ?, unread_count = ?, last_message_id = ?, last_activity = ? WHERE id = ?"
)

const (
	messageColumns = "id, room_id, channel, chat_id, messenger_id, content, from_me, saved, distributed, seen, " +
		"is_system, deleted, failure, failure_reason, forwarded, media_id, file_mime, file_path, file_type, " +
		"reply_id, reactions, timestamp"
	getMessageSQL    = "SELECT " + messageColumns + " FROM messages WHERE channel = ? AND messenger_id = ? FOR UPDATE"
	insertMessageSQL = "INSERT INTO messages (room_id, channel, chat_id, messenger_id, content, from_me, saved, " +
		"distributed, seen, is_system, deleted, failure, failure_reason, forwarded, media_id, file_mime, file_path, " +
		"file_type, reply_id, reactions, timestamp) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)"
	updateMessageSQL = "UPDATE messages SET content = ?, saved = ?, distributed = ?, seen = ?, deleted = ?, " +
		"failure = ?, failure_reason = ?, media_id = ?, file_mime = ?, file_path = ?, file_type = ?, " +
		"reply_id = ?, reactions = ? WHERE id = ?"
	markSeenSQL = "UPDATE messages SET seen = 1, saved = 1, distributed = 1 " +
		"WHERE room_id = ? AND from_me = ? AND seen = 0 AND id <= ?"
)

var schemaSQL = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		channel VARCHAR(64) NOT NULL,
		chat_id VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL DEFAULT '',
		avatar VARCHAR(255) NOT NULL DEFAULT '',
		username VARCHAR(255) NOT NULL DEFAULT '',
		phone VARCHAR(64) NOT NULL DEFAULT '',
		status_state VARCHAR(16) NOT NULL DEFAULT 'offline',
		status_changed BIGINT NOT NULL DEFAULT 0,
		unread_count INT NOT NULL DEFAULT 0,
		last_message_id BIGINT NULL,
		last_activity BIGINT NOT NULL DEFAULT 0,
		UNIQUE KEY uk_rooms_channel_chat (channel, chat_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		room_id BIGINT NOT NULL,
		channel VARCHAR(64) NOT NULL,
		chat_id VARCHAR(64) NOT NULL,
		messenger_id VARCHAR(191) NOT NULL,
		content TEXT NOT NULL,
		from_me TINYINT(1) NOT NULL DEFAULT 0,
		saved TINYINT(1) NOT NULL DEFAULT 0,
		distributed TINYINT(1) NOT NULL DEFAULT 0,
		seen TINYINT(1) NOT NULL DEFAULT 0,
		is_system TINYINT(1) NOT NULL DEFAULT 0,
		deleted TINYINT(1) NOT NULL DEFAULT 0,
		failure TINYINT(1) NOT NULL DEFAULT 0,
		failure_reason VARCHAR(255) NOT NULL DEFAULT '',
		forwarded TINYINT(1) NOT NULL DEFAULT 0,
		media_id VARCHAR(128) NULL,
		file_mime VARCHAR(128) NULL,
		file_path VARCHAR(512) NULL,
		file_type VARCHAR(16) NULL,
		reply_id BIGINT NULL,
		reactions TEXT NOT NULL,
		timestamp BIGINT NOT NULL DEFAULT 0,
		UNIQUE KEY uk_messages_channel_messenger (channel, messenger_id),
		KEY idx_messages_room (room_id, id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// mysqlStore implements interface `IChatStore`.
type mysqlStore struct {
	*sql.DB
}

func NewMySQLStore(db *sql.DB) *mysqlStore {
	return &mysqlStore{db}
}

// Migrate creates tables when they do not exist.
func (s *mysqlStore) Migrate(ctx context.Context) error {
	for _, q := range schemaSQL {
		if _, err := s.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// WithTx runs in READ COMMITTED so a locking re-read after a duplicate key
// error sees the row committed by the concurrent writer.
func (s *mysqlStore) WithTx(ctx context.Context, exec func(ctx context.Context, tx ITx) error) error {
	tx, err := s.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}

	if err := exec(ctx, &mysqlTx{tx}); err != nil {
		if err2 := tx.Rollback(); err2 != nil {
			glog.Errorf("failed to rollback: %v, cause: %v", err2, err)
		}
		return err
	}

	return tx.Commit()
}

func (s *mysqlStore) IsDupKeyError(err error) bool {
	var val *mysql.MySQLError
	if errors.As(err, &val) {
		return val.Number == 1062
	}
	return false
}

type mysqlTx struct {
	tx *sql.Tx
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRoom(row scanner) (*chatstore.Room, error) {
	var r chatstore.Room
	var lastMessageID sql.NullInt64
	var state string
	if err := row.Scan(&r.ID, &r.Channel, &r.ChatID, &r.Name, &r.Avatar, &r.Username, &r.Phone, &state,
		&r.StatusChanged, &r.UnreadCount, &lastMessageID, &r.LastActivity); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		glog.Errorf("scan room err: %v", err)
		return nil, err
	}
	r.StatusState = chatstore.Presence(state)
	if lastMessageID.Valid {
		v := lastMessageID.Int64
		r.LastMessageID = &v
	}
	return &r, nil
}

func (t *mysqlTx) GetRoom(ctx context.Context, channel, chatID string) (*chatstore.Room, error) {
	return scanRoom(t.tx.QueryRowContext(ctx, getRoomSQL, channel, chatID))
}

func (t *mysqlTx) GetRoomByID(ctx context.Context, id int64) (*chatstore.Room, error) {
	return scanRoom(t.tx.QueryRowContext(ctx, getRoomByIDSQL, id))
}

func (t *mysqlTx) InsertRoom(ctx context.Context, r *chatstore.Room) error {
	res, err := t.tx.ExecContext(ctx, insertRoomSQL, r.Channel, r.ChatID, r.Name, r.Avatar, r.Username, r.Phone,
		string(r.StatusState), r.StatusChanged, r.UnreadCount, nullInt64(r.LastMessageID), r.LastActivity)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

func (t *mysqlTx) UpdateRoom(ctx context.Context, r *chatstore.Room) error {
	_, err := t.tx.ExecContext(ctx, updateRoomSQL, r.Name, r.Avatar, r.Username, r.Phone, string(r.StatusState),
		r.StatusChanged, r.UnreadCount, nullInt64(r.LastMessageID), r.LastActivity, r.ID)
	if err != nil {
		glog.Errorf("update room exec err: %v", err)
	}
	return err
}

func (t *mysqlTx) GetMessage(ctx context.Context, channel, messengerID string) (*chatstore.Message, error) {
	var m chatstore.Message
	var mediaID, mime, path, fileType sql.NullString
	var replyID sql.NullInt64

	row := t.tx.QueryRowContext(ctx, getMessageSQL, channel, messengerID)
	if err := row.Scan(&m.ID, &m.RoomID, &m.Channel, &m.ChatID, &m.MessengerID, &m.Content, &m.FromMe, &m.Saved,
		&m.Distributed, &m.Seen, &m.System, &m.Deleted, &m.Failure, &m.FailureReason, &m.Forwarded,
		&mediaID, &mime, &path, &fileType, &replyID, &m.Reactions, &m.Timestamp); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		glog.Errorf("scan message err: %v", err)
		return nil, err
	}
	if path.Valid {
		m.File = &chatstore.MediaRef{
			MediaID:  mediaID.String,
			MimeType: mime.String,
			Path:     path.String,
			Kind:     chatstore.MediaKind(fileType.String),
		}
	}
	if replyID.Valid {
		v := replyID.Int64
		m.ReplyID = &v
	}
	return &m, nil
}

func (t *mysqlTx) InsertMessage(ctx context.Context, m *chatstore.Message) error {
	mediaID, mime, path, fileType := fileColumns(m.File)
	res, err := t.tx.ExecContext(ctx, insertMessageSQL, m.RoomID, m.Channel, m.ChatID, m.MessengerID, m.Content,
		m.FromMe, m.Saved, m.Distributed, m.Seen, m.System, m.Deleted, m.Failure, m.FailureReason, m.Forwarded,
		mediaID, mime, path, fileType, nullInt64(m.ReplyID), m.Reactions, m.Timestamp)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = id
	return nil
}

func (t *mysqlTx) UpdateMessage(ctx context.Context, m *chatstore.Message) error {
	mediaID, mime, path, fileType := fileColumns(m.File)
	_, err := t.tx.ExecContext(ctx, updateMessageSQL, m.Content, m.Saved, m.Distributed, m.Seen, m.Deleted,
		m.Failure, m.FailureReason, mediaID, mime, path, fileType, nullInt64(m.ReplyID), m.Reactions, m.ID)
	if err != nil {
		glog.Errorf("update message exec err: %v", err)
	}
	return err
}

func (t *mysqlTx) MarkSeenUpTo(ctx context.Context, roomID int64, fromMe bool, maxID int64) (int, error) {
	res, err := t.tx.ExecContext(ctx, markSeenSQL, roomID, fromMe, maxID)
	if err != nil {
		glog.Errorf("mark seen exec err: %v", err)
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func fileColumns(f *chatstore.MediaRef) (mediaID, mime, path, fileType sql.NullString) {
	if f == nil {
		return
	}
	return sql.NullString{String: f.MediaID, Valid: true},
		sql.NullString{String: f.MimeType, Valid: true},
		sql.NullString{String: f.Path, Valid: true},
		sql.NullString{String: string(f.Kind), Valid: true}
}
