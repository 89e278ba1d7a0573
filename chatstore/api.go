package chatstore

const (
	// Channel is the canonical channel name of WhatsApp Business rooms.
	Channel = "whatsapp_business"

	DefaultAvatar = "empty-avatar.png"
)

type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceOffline Presence = "offline"
)

type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaDocument MediaKind = "document"
)

// Room is the conversation container of one external chat on one channel.
// Unique by (Channel, ChatID).
type Room struct {
	ID            int64    `json:"id"`
	Channel       string   `json:"channel"`
	ChatID        string   `json:"chat_id"`
	Name          string   `json:"room_name"`
	Avatar        string   `json:"avatar"`
	Username      string   `json:"username,omitempty"`
	Phone         string   `json:"phone,omitempty"`
	StatusState   Presence `json:"status_state"`
	StatusChanged int64    `json:"status_last_changed"`
	UnreadCount   int32    `json:"unread_count"`
	LastMessageID *int64   `json:"last_message_id,omitempty"`
	LastActivity  int64    `json:"last_activity"`
}

// MediaRef is the local copy of a provider media object.
type MediaRef struct {
	MediaID  string    `json:"media_id"`
	MimeType string    `json:"mime_type,omitempty"`
	Path     string    `json:"media"`
	Kind     MediaKind `json:"type"`
}

// Message is unique by (Channel, MessengerID). ID doubles as ordering index
// inside a room.
type Message struct {
	ID            int64     `json:"id"`
	RoomID        int64     `json:"room_id"`
	Channel       string    `json:"channel"`
	ChatID        string    `json:"chat_id"`
	MessengerID   string    `json:"messenger_id"`
	Content       string    `json:"content"`
	FromMe        bool      `json:"from_me"`
	Saved         bool      `json:"saved"`
	Distributed   bool      `json:"distributed"`
	Seen          bool      `json:"seen"`
	System        bool      `json:"system"`
	Deleted       bool      `json:"deleted"`
	Failure       bool      `json:"failure"`
	FailureReason string    `json:"failure_reason,omitempty"`
	Forwarded     bool      `json:"forwarded"`
	File          *MediaRef `json:"file,omitempty"`
	ReplyID       *int64    `json:"reply_message_id,omitempty"`
	Reactions     Reactions `json:"reactions,omitempty"`
	Timestamp     int64     `json:"timestamp"`
}

// MarkSaved reports whether the flag changed.
func (m *Message) MarkSaved() bool {
	if m.Saved {
		return false
	}
	m.Saved = true
	return true
}

// MarkDistributed sets distributed and, implicitly, saved.
func (m *Message) MarkDistributed() bool {
	changed := m.MarkSaved()
	if !m.Distributed {
		m.Distributed = true
		changed = true
	}
	return changed
}

// MarkSeen sets seen and every weaker delivery flag.
func (m *Message) MarkSeen() bool {
	changed := m.MarkDistributed()
	if !m.Seen {
		m.Seen = true
		changed = true
	}
	return changed
}
